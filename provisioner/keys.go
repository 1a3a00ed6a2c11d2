package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ruteri/proxy-provisioning/cryptoutils"
	"github.com/ruteri/proxy-provisioning/interfaces"
)

// LoadRealityKeyPair reads the key pair file at path.
func LoadRealityKeyPair(path string) (interfaces.RealityKeyPair, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return interfaces.RealityKeyPair{}, fmt.Errorf("%w: %s", interfaces.ErrKeyPairMissing, path)
	}
	if err != nil {
		return interfaces.RealityKeyPair{}, fmt.Errorf("could not read %s: %w", path, err)
	}

	var keys interfaces.RealityKeyPair
	if err := json.Unmarshal(data, &keys); err != nil {
		return interfaces.RealityKeyPair{}, fmt.Errorf("%w: %s: %v", interfaces.ErrInvalidKeyPair, path, err)
	}
	if keys.PrivateKey == "" || keys.PublicKey == "" {
		return interfaces.RealityKeyPair{}, fmt.Errorf("%w: %s: privateKey and publicKey are required", interfaces.ErrInvalidKeyPair, path)
	}
	return keys, nil
}

// GenerateRealityKeyPair creates a new key pair and stores it under name.
// An existing key pair is kept unless overwrite is set.
func GenerateRealityKeyPair(ctx context.Context, store interfaces.ArtifactBackend, name string, overwrite bool) (interfaces.RealityKeyPair, error) {
	exists, err := store.Exists(ctx, name)
	if err != nil {
		return interfaces.RealityKeyPair{}, err
	}
	if exists && !overwrite {
		return interfaces.RealityKeyPair{}, fmt.Errorf("%s already exists, refusing to overwrite", name)
	}

	priv, pub, err := cryptoutils.GenerateRealityKeyPair()
	if err != nil {
		return interfaces.RealityKeyPair{}, fmt.Errorf("could not generate key pair: %w", err)
	}
	keys := interfaces.RealityKeyPair{PrivateKey: priv, PublicKey: pub}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return interfaces.RealityKeyPair{}, err
	}

	err = store.Put(ctx, name, append(data, '\n'), ModeSecret)
	if err != nil && !errors.Is(err, interfaces.ErrMirrorFailed) {
		return interfaces.RealityKeyPair{}, err
	}
	return keys, err
}
