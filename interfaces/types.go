package interfaces

import (
	"context"
	"errors"
	"net/netip"
	"time"
)

// Identity is the per-run credential set of a proxy user.
type Identity struct {
	UUID     string
	Password string
}

// RealityKeyPair is the x25519 key pair used by the REALITY transport.
// Both keys are base64 (raw URL alphabet) strings as produced by `xray x25519`.
type RealityKeyPair struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// Resolved carries a value obtained from a fallback-tolerant source.
// When Err is set, Value holds the fallback and Err the reason it was used.
type Resolved[T any] struct {
	Value T
	Err   error
}

// Resolve picks value when err is nil and fallback otherwise.
func Resolve[T any](value T, err error, fallback T) Resolved[T] {
	if err != nil {
		return Resolved[T]{Value: fallback, Err: err}
	}
	return Resolved[T]{Value: value}
}

// FellBack reports whether the fallback value was used.
func (r Resolved[T]) FellBack() bool {
	return r.Err != nil
}

// IdentitySource produces identities.
// UUID generation tolerates failure, password generation does not.
type IdentitySource interface {
	NewUUID(ctx context.Context) Resolved[string]
	NewPassword(ctx context.Context) (string, error)
}

// CertificateIssuer produces self-signed certificate pairs.
type CertificateIssuer interface {
	// Issue returns a PEM encoded private key and certificate for commonName.
	Issue(ctx context.Context, commonName string, validity time.Duration) (keyPEM []byte, certPEM []byte, err error)

	// Name returns identifier for logging.
	Name() string
}

// AddressResolver discovers the public address of the host.
type AddressResolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)

	// Name returns identifier for logging.
	Name() string
}

var (
	// ErrKeyPairMissing is returned when the REALITY key pair file does not exist.
	ErrKeyPairMissing = errors.New("reality key pair file not found")

	// ErrInvalidKeyPair is returned when the key pair file cannot be decoded or holds empty keys.
	ErrInvalidKeyPair = errors.New("invalid reality key pair")

	// ErrLocked is returned when another run holds the output directory lock.
	ErrLocked = errors.New("output directory is locked by another run")

	// ErrInvalidPort is returned for ports outside 1..65535.
	ErrInvalidPort = errors.New("invalid port")

	// ErrNoAddress is returned by resolvers that got an answer without a usable address.
	ErrNoAddress = errors.New("no address in response")
)
