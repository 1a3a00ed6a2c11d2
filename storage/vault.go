package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// VaultBackend mirrors artifacts to a HashiCorp Vault KV v2 engine.
// Each artifact is one secret holding the base64 content and the file mode.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "proxy/node-1")
//   - token: Vault token; when empty the client falls back to VAULT_TOKEN
//   - log: Structured logger for operational insights
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")
	if mountPath == "" {
		return nil, errors.New("empty Vault mount path")
	}

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: vaultLocationURI(address, mountPath, dataPath),
	}, nil
}

// vaultLocationURI renders the vault:// form accepted by the factory.
func vaultLocationURI(address, mountPath, dataPath string) string {
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("vault://%s/%s", address, path.Join(mountPath, dataPath))
	}

	loc := url.URL{Scheme: "vault", Host: u.Host, Path: "/" + path.Join(mountPath, dataPath)}
	if u.Scheme == "http" {
		loc.RawQuery = "tls=false"
	}
	return loc.String()
}

// Put writes data as a new version of the secret for name.
func (b *VaultBackend) Put(ctx context.Context, name string, data []byte, mode os.FileMode) error {
	start := time.Now()
	secretPath := b.secretPath(name)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
			"mode":    fmt.Sprintf("%#o", mode.Perm()),
		},
	}

	_, err := b.client.Logical().WriteWithContext(ctx, secretPath, secretData)
	if err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", secretPath),
			"err", err)
		return fmt.Errorf("failed to write to Vault: %w", err)
	}

	b.log.Debug("Stored artifact in Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Exists reports whether a secret is stored for name.
func (b *VaultBackend) Exists(ctx context.Context, name string) (bool, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.secretPath(name))
	if err != nil {
		return false, fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return false, nil
	}
	_, ok := secret.Data["data"].(map[string]interface{})
	return ok, nil
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

// secretPath returns the KV v2 data path of name.
func (b *VaultBackend) secretPath(name string) string {
	key := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
	return path.Join(b.mountPath, "data", b.dataPath, key)
}
