// Package gcs implements the storage adapter on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/fx"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/config"
	coreconfig "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// ProviderType is the storage type handled here.
const ProviderType = "gcs"

// Adapter implements storage.Connection over a GCS client.
type Adapter struct {
	client *gcstorage.Client
	cfg    storageconfig.Config
	name   string
}

var _ storage.Connection = (*Adapter)(nil)

// NewAdapter opens a GCS client. CredentialsFile and Endpoint are optional.
func NewAdapter(ctx context.Context, cfg storageconfig.Config, name string) (*Adapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage '%s': failed to create client: %w", name, err)
	}
	return &Adapter{client: client, cfg: cfg, name: name}, nil
}

func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Type() string { return ProviderType }

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) bucket(name string) (*gcstorage.BucketHandle, error) {
	if name == "" {
		name = a.cfg.BucketName
	}
	if name == "" {
		return nil, fmt.Errorf("gcs storage '%s': no bucket given and no default bucket configured", a.name)
	}
	return a.client.Bucket(name), nil
}

// Upload streams data into the object.
func (a *Adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	b, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	w := b.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload gs object '%s': %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs object '%s': %w", objectName, err)
	}
	logger.Debugf("Uploaded gs object '%s' (storage '%s').", objectName, a.name)
	return nil
}

// Download opens a reader on the object.
func (a *Adapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	b, err := a.bucket(bucket)
	if err != nil {
		return nil, err
	}
	r, err := b.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs object '%s': %w", objectName, err)
	}
	return r, nil
}

// ListObjects iterates the objects under prefix.
func (a *Adapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	b, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	it := b.Objects(ctx, &gcstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list gs objects with prefix '%s': %w", prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

// DeleteObject deletes the object. A missing object is not an error.
func (a *Adapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	b, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	if err := b.Object(objectName).Delete(ctx); err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs object '%s': %w", objectName, err)
	}
	return nil
}

// Provider caches GCS adapters by connection name.
type Provider struct {
	configs     map[string]storageconfig.Config
	connections map[string]storage.Connection
	mu          sync.Mutex
}

// NewProvider creates a Provider from the storage section of cfg.
func NewProvider(cfg *coreconfig.Config) *Provider {
	return &Provider{configs: cfg.Surfin.Storage, connections: make(map[string]storage.Connection)}
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
	conn, err := NewAdapter(context.Background(), cfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	return conn, nil
}

// CloseAll closes every client.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to close gcs storage '%s': %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		delete(p.connections, name)
	}
	return firstErr
}

// Module registers the gcs provider in the storage provider group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewProvider,
		fx.As(new(storage.Provider)),
		fx.ResultTags(storage.ProviderGroup),
	)),
)
