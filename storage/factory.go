package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ruteri/proxy-provisioning/interfaces"
)

// StorageBackendFactory creates artifact backends from URI strings.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log: logger,
	}
}

// StorageBackendFor creates a storage backend from a location.
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - vault:// - HashiCorp Vault KV v2
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.ArtifactBackend, error) {
	switch strings.ToLower(location.Scheme) {
	case "s3":
		return sf.createS3Backend(location)
	case "vault":
		return sf.createVaultBackend(location)
	case "file":
		return sf.createFileBackend(location)
	default:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedScheme, location.Scheme)
	}
}

// CreateMultiBackend creates a file backend for outputDir mirrored to every
// backend in mirrorURIs. An invalid mirror URI is an error.
func (sf *StorageBackendFactory) CreateMultiBackend(outputDir string, mirrorURIs []string) (*MultiBackend, *FileBackend, error) {
	primary, err := NewFileBackend(outputDir, sf.log)
	if err != nil {
		return nil, nil, err
	}

	mirrors := make([]interfaces.ArtifactBackend, 0, len(mirrorURIs))
	for _, uri := range mirrorURIs {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, nil, err
		}
		backend, err := sf.StorageBackendFor(location)
		if err != nil {
			return nil, nil, fmt.Errorf("could not create mirror %s: %w", redact(location), err)
		}
		sf.log.Info("Mirroring artifacts", slog.String("backend_name", backend.Name()), slog.String("location", redact(location)))
		mirrors = append(mirrors, backend)
	}

	return NewMultiBackend(primary, mirrors, sf.log), primary, nil
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=https://custom.s3.com&path_style=true
func (sf *StorageBackendFactory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.ArtifactBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", redact(location)))

	opts := S3Options{
		Bucket:    location.Host,
		Prefix:    strings.TrimPrefix(location.Path, "/"),
		Region:    location.GetParam("region"),
		Endpoint:  location.GetParam("endpoint"),
		PathStyle: location.GetParamBool("path_style"),
	}

	if location.User != nil {
		opts.AccessKey = location.User.Username()
		opts.SecretKey, _ = location.User.Password()
		sf.log.Debug("Using embedded S3 credentials")
	} else {
		sf.log.Debug("No embedded S3 credentials, using the default credential chain")
	}

	return NewS3Backend(opts, sf.log)
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://host:port/mount/path?tls=false
// TLS is on unless tls=false is given.
func (sf *StorageBackendFactory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.ArtifactBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("uri", redact(location)))

	scheme := "https"
	if v := location.GetParam("tls"); v == "false" || v == "0" || v == "no" {
		scheme = "http"
	}
	address := (&url.URL{Scheme: scheme, Host: location.Host}).String()

	parts := strings.SplitN(strings.Trim(location.Path, "/"), "/", 2)
	mountPath := parts[0]
	dataPath := ""
	if len(parts) == 2 {
		dataPath = parts[1]
	}

	var token string
	if location.User != nil {
		token = location.User.Username()
	}

	return NewVaultBackend(address, mountPath, dataPath, token, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(location interfaces.StorageBackendLocation) (interfaces.ArtifactBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", location.String()))

	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, location.String())
	}

	return NewFileBackend(filepath.FromSlash(path), sf.log)
}

// redact drops credentials from a location for logging.
func redact(location interfaces.StorageBackendLocation) string {
	u, err := url.Parse(location.Raw)
	if err != nil {
		return location.Scheme + "://"
	}
	if u.User != nil {
		u.User = url.User("xxxxx")
	}
	return u.String()
}
