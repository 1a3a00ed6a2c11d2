package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
)

// ArtifactBackend stores artifacts by name.
type ArtifactBackend interface {
	// Put writes data under name, replacing any previous content.
	Put(ctx context.Context, name string, data []byte, mode os.FileMode) error

	// Exists reports whether an artifact is stored under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	User   *url.Userinfo
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "vault":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		User:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrInvalidLocationURI is returned when a storage location URI is malformed.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrUnsupportedScheme is returned for URI schemes without a backend.
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")

	// ErrMirrorFailed is returned when the primary backend stored an artifact
	// but at least one mirror did not.
	ErrMirrorFailed = errors.New("artifact mirror failed")
)
