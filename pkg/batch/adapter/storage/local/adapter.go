// Package local stores objects as files below a base directory.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/config"
	coreconfig "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// ProviderType is the storage type handled here.
const ProviderType = "local"

// Adapter implements storage.Connection on the local file system.
// Objects live at BaseDir/bucket/objectName.
type Adapter struct {
	cfg  storageconfig.Config
	name string
}

var _ storage.Connection = (*Adapter)(nil)

// NewAdapter creates the adapter, creating BaseDir when missing.
func NewAdapter(cfg storageconfig.Config, name string) (*Adapter, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage '%s': base_dir must be specified", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage '%s': failed to create base_dir '%s': %w", name, cfg.BaseDir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("local storage '%s': failed to stat base_dir '%s': %w", name, cfg.BaseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("local storage '%s': base_dir '%s' is not a directory", name, cfg.BaseDir)
	}
	return &Adapter{cfg: cfg, name: name}, nil
}

func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Type() string { return ProviderType }
func (a *Adapter) Close() error { return nil }

// Upload writes data to a file, creating parent directories.
func (a *Adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", fullPath, err)
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", fullPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("failed to write file '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded '%s' (local storage '%s').", fullPath, a.name)
	return nil
}

// Download opens the file for reading.
func (a *Adapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return f, nil
}

// ListObjects walks the bucket directory and reports object names relative to it.
func (a *Adapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return err
	}
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		return fn(rel)
	})
}

// DeleteObject removes the file. A missing file is not an error.
func (a *Adapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file '%s': %w", fullPath, err)
	}
	return nil
}

// resolvePath joins BaseDir, bucket and objectName and rejects paths escaping BaseDir.
func (a *Adapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	fullPath := filepath.Join(a.cfg.BaseDir, bucket, objectName)

	absBase, err := filepath.Abs(a.cfg.BaseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base_dir '%s': %w", a.cfg.BaseDir, err)
	}
	absFull, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path '%s': %w", fullPath, err)
	}
	if absFull != absBase && !strings.HasPrefix(absFull, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of base_dir '%s'", fullPath, a.cfg.BaseDir)
	}
	return fullPath, nil
}

// Provider caches local adapters by connection name.
type Provider struct {
	configs     map[string]storageconfig.Config
	connections map[string]storage.Connection
	mu          sync.Mutex
}

// NewProvider creates a Provider from the storage section of cfg.
func NewProvider(cfg *coreconfig.Config) *Provider {
	return NewProviderFromConfigs(cfg.Surfin.Storage)
}

// NewProviderFromConfigs creates a Provider from explicit configs.
func NewProviderFromConfigs(configs map[string]storageconfig.Config) *Provider {
	return &Provider{configs: configs, connections: make(map[string]storage.Connection)}
}

func (p *Provider) Type() string { return ProviderType }

// GetConnection returns the cached adapter for name, creating it on first use.
func (p *Provider) GetConnection(name string) (storage.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	cfg, ok := p.configs[name]
	if !ok {
		return nil, fmt.Errorf("storage configuration for '%s' not found", name)
	}
	if cfg.Type != ProviderType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, ProviderType, cfg.Type)
	}
	conn, err := NewAdapter(cfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	return conn, nil
}

// CloseAll forgets all cached adapters.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connections = make(map[string]storage.Connection)
	return nil
}

// Module registers the local provider in the storage provider group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewProvider,
		fx.As(new(storage.Provider)),
		fx.ResultTags(storage.ProviderGroup),
	)),
)
