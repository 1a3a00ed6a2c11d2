package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ruteri/proxy-provisioning/interfaces"
)

// MultiBackend writes artifacts to a primary backend and copies them to mirrors.
type MultiBackend struct {
	primary interfaces.ArtifactBackend
	mirrors []interfaces.ArtifactBackend
	log     *slog.Logger
}

// NewMultiBackend creates a backend that stores to primary and then to every mirror.
func NewMultiBackend(primary interfaces.ArtifactBackend, mirrors []interfaces.ArtifactBackend, logger *slog.Logger) *MultiBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiBackend{
		primary: primary,
		mirrors: mirrors,
		log:     logger,
	}
}

// Put stores data in the primary backend, then in each mirror.
// A primary failure is returned as is. Mirror failures are logged and
// returned wrapped in interfaces.ErrMirrorFailed once every mirror was tried.
func (m *MultiBackend) Put(ctx context.Context, name string, data []byte, mode os.FileMode) error {
	start := time.Now()

	if err := m.primary.Put(ctx, name, data, mode); err != nil {
		return err
	}

	var errs []error
	for _, mirror := range m.mirrors {
		if err := mirror.Put(ctx, name, data, mode); err != nil {
			m.log.Warn("Failed to mirror artifact",
				slog.String("backend_name", mirror.Name()),
				slog.String("artifact", name),
				"err", err)
			errs = append(errs, fmt.Errorf("%s: %w", mirror.Name(), err))
		}
	}

	m.log.Debug("Stored artifact",
		slog.String("artifact", name),
		slog.Int("mirrors", len(m.mirrors)),
		slog.Int("failed_mirrors", len(errs)),
		slog.Duration("duration", time.Since(start)))

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", interfaces.ErrMirrorFailed, errors.Join(errs...))
	}
	return nil
}

// Exists consults the primary backend only.
func (m *MultiBackend) Exists(ctx context.Context, name string) (bool, error) {
	return m.primary.Exists(ctx, name)
}

// Name returns a unique identifier for this storage backend.
func (m *MultiBackend) Name() string {
	return "multi-" + m.primary.Name()
}

// LocationURI returns the URI of the primary backend.
func (m *MultiBackend) LocationURI() string {
	return m.primary.LocationURI()
}

// Mirrors returns the configured mirror backends.
func (m *MultiBackend) Mirrors() []interfaces.ArtifactBackend {
	return m.mirrors
}
