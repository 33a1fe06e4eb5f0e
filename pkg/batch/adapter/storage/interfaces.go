// Package storage defines the object storage abstraction used by export writers.
// Buckets and object names follow cloud storage semantics; the local adapter maps them
// onto directories below a base directory.
package storage

import (
	"context"
	"io"
)

// Executor defines object operations.
type Executor interface {
	// Upload stores data under bucket/objectName. An empty bucket means the configured default.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// Connection is a named, configured storage endpoint.
type Connection interface {
	Executor
	Name() string
	Type() string
	Close() error
}

// Provider creates connections of one storage type.
type Provider interface {
	GetConnection(name string) (Connection, error)
	CloseAll() error
	Type() string
}

// ProviderGroup is the fx group collecting all storage providers.
const ProviderGroup = `group:"storage_providers"`
