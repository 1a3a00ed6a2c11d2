package provisioner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/proxy-provisioning/cryptoutils"
	"github.com/ruteri/proxy-provisioning/interfaces"
	"github.com/ruteri/proxy-provisioning/storage"
	"github.com/stretchr/testify/require"
)

func TestLoadRealityKeyPair(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reality_keys.json")

	_, err := LoadRealityKeyPair(path)
	require.ErrorIs(t, err, interfaces.ErrKeyPairMissing)

	require.NoError(t, os.WriteFile(path, []byte(`{"privateKey": "priv", "publicKey": "pub", "shortId": "ab"}`), 0600))
	keys, err := LoadRealityKeyPair(path)
	require.NoError(t, err)
	require.Equal(t, interfaces.RealityKeyPair{PrivateKey: "priv", PublicKey: "pub"}, keys)

	require.NoError(t, os.WriteFile(path, []byte(`["priv", "pub"]`), 0600))
	_, err = LoadRealityKeyPair(path)
	require.ErrorIs(t, err, interfaces.ErrInvalidKeyPair)
}

func TestGenerateRealityKeyPair(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFileBackend(dir, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	keys, err := GenerateRealityKeyPair(ctx, store, "reality_keys.json", false)
	require.NoError(t, err)

	pub, err := cryptoutils.RealityPublicKey(keys.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, keys.PublicKey, pub)

	path := filepath.Join(dir, "reality_keys.json")
	requireMode(t, path, 0600)

	loaded, err := LoadRealityKeyPair(path)
	require.NoError(t, err)
	require.Equal(t, keys, loaded)

	_, err = GenerateRealityKeyPair(ctx, store, "reality_keys.json", false)
	require.ErrorContains(t, err, "refusing to overwrite")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var unchanged interfaces.RealityKeyPair
	require.NoError(t, json.Unmarshal(data, &unchanged))
	require.Equal(t, keys, unchanged)

	replaced, err := GenerateRealityKeyPair(ctx, store, "reality_keys.json", true)
	require.NoError(t, err)
	require.NotEqual(t, keys.PrivateKey, replaced.PrivateKey)
}
