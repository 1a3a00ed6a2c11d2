// Package identity generates the per-run user identities (UUID and password).
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ruteri/proxy-provisioning/cryptoutils"
	"github.com/ruteri/proxy-provisioning/executil"
	"github.com/ruteri/proxy-provisioning/interfaces"
)

// FallbackUUID is used when no UUID could be generated.
const FallbackUUID = "xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx"

// PasswordBytes is the amount of randomness in a generated password.
const PasswordBytes = 16

// NativeSource generates identities in-process.
type NativeSource struct{}

// NewUUID returns a random (version 4) UUID.
func (NativeSource) NewUUID(ctx context.Context) interfaces.Resolved[string] {
	id, err := uuid.NewRandom()
	return interfaces.Resolve(id.String(), err, FallbackUUID)
}

// NewPassword returns PasswordBytes random bytes, hex encoded.
func (NativeSource) NewPassword(ctx context.Context) (string, error) {
	password, err := cryptoutils.RandomHex(PasswordBytes)
	if err != nil {
		return "", fmt.Errorf("could not generate password: %w", err)
	}
	return password, nil
}

// CommandSource generates identities with system tools.
type CommandSource struct {
	Runner executil.Runner
}

// NewUUID tries the kernel UUID source, uuidgen and openssl in that order.
func (s CommandSource) NewUUID(ctx context.Context) interfaces.Resolved[string] {
	id, err := executil.FirstOutput(ctx, s.runner(),
		[]string{"cat", "/proc/sys/kernel/random/uuid"},
		[]string{"uuidgen"},
		[]string{"openssl", "rand", "-hex", fmt.Sprint(PasswordBytes)},
	)
	return interfaces.Resolve(id, err, FallbackUUID)
}

// NewPassword runs `openssl rand -hex 16`.
func (s CommandSource) NewPassword(ctx context.Context) (string, error) {
	password, err := executil.FirstOutput(ctx, s.runner(), []string{"openssl", "rand", "-hex", fmt.Sprint(PasswordBytes)})
	if err != nil {
		return "", fmt.Errorf("could not generate password: %w", err)
	}
	return password, nil
}

func (s CommandSource) runner() executil.Runner {
	if s.Runner == nil {
		return executil.OSRunner{}
	}
	return s.Runner
}

// New creates the identity for one proxy user.
func New(ctx context.Context, src interfaces.IdentitySource) (interfaces.Identity, interfaces.Resolved[string], error) {
	id := src.NewUUID(ctx)
	password, err := src.NewPassword(ctx)
	if err != nil {
		return interfaces.Identity{}, id, err
	}
	return interfaces.Identity{UUID: id.Value, Password: password}, id, nil
}
