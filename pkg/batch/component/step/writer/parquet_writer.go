package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage"
	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection (e.g. "export_local", "export_gcs").
	StorageRef string `mapstructure:"storageRef"`
	// Bucket overrides the connection's default bucket.
	Bucket string `mapstructure:"bucket"`
	// OutputBaseDir is the object prefix of exported files (e.g. "pay/daily").
	OutputBaseDir string `mapstructure:"outputBaseDir"`
	// CompressionType is SNAPPY (default), GZIP or NONE.
	CompressionType string `mapstructure:"compressionType"`
}

// PartitionKeyFunc returns the Hive-style partition of an item, e.g. "dt=2024-01-31".
// An empty key writes the item directly below OutputBaseDir.
type PartitionKeyFunc[T any] func(item T) (string, error)

// ParquetWriter exports every chunk as one Parquet file per partition. Object names are
// derived from the step execution and the chunk's commit index, so a retried chunk
// overwrites its own files instead of adding duplicates.
type ParquetWriter[T any] struct {
	name         string
	config       ParquetWriterConfig
	resolver     *storage.Resolver
	prototype    *T
	partitionKey PartitionKeyFunc[T]
	codec        parquet.CompressionCodec

	conn    storage.Connection
	written int
	files   int
}

// NewParquetWriter creates a new instance of ParquetWriter.
//
// Parameters:
//
//	name: The unique name of the writer.
//	properties: Configuration properties, decoded into ParquetWriterConfig.
//	resolver: Resolver for storage connections.
//	prototype: A pointer to a zero value of T; its parquet tags define the schema.
//	partitionKey: Extracts the partition from an item. nil puts everything in one partition.
//
// Returns:
//
//	A ParquetWriter and an error if the properties are invalid.
func NewParquetWriter[T any](
	name string,
	properties map[string]interface{},
	resolver *storage.Resolver,
	prototype *T,
	partitionKey PartitionKeyFunc[T],
) (*ParquetWriter[T], error) {
	var cfg ParquetWriterConfig
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("failed to decode ParquetWriter properties for '%s'", name), err, false, false)
	}
	if cfg.StorageRef == "" {
		return nil, exception.NewConfigurationError("writer", "ParquetWriter '%s' requires 'storageRef' property", name)
	}
	if cfg.OutputBaseDir == "" {
		return nil, exception.NewConfigurationError("writer", "ParquetWriter '%s' requires 'outputBaseDir' property", name)
	}
	if resolver == nil {
		return nil, exception.NewConfigurationError("writer", "ParquetWriter '%s' has no storage resolver", name)
	}
	codec, err := compressionCodec(cfg.CompressionType)
	if err != nil {
		return nil, exception.NewConfigurationError("writer", "ParquetWriter '%s': %v", name, err)
	}
	if prototype == nil {
		prototype = new(T)
	}
	if partitionKey == nil {
		partitionKey = func(T) (string, error) { return "", nil }
	}
	return &ParquetWriter[T]{
		name:         name,
		config:       cfg,
		resolver:     resolver,
		prototype:    prototype,
		partitionKey: partitionKey,
		codec:        codec,
	}, nil
}

// Verify that ParquetWriter implements the port.ItemWriter interface at compile time.
var _ port.ItemWriter[any] = (*ParquetWriter[any])(nil)

// Open resolves the storage connection.
func (w *ParquetWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.Resolve(ctx, w.config.StorageRef)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("failed to resolve storage connection '%s' for ParquetWriter '%s'", w.config.StorageRef, w.name), err, false, false)
	}
	w.conn = conn
	w.written, w.files = 0, 0
	logger.Infof("ParquetWriter '%s' opened. Target storage: %s (%s), base directory: %s", w.name, conn.Name(), conn.Type(), w.config.OutputBaseDir)
	return nil
}

// Write encodes the chunk and uploads one file per partition.
func (w *ParquetWriter[T]) Write(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if w.conn == nil {
		return exception.NewBatchErrorf("writer", "ParquetWriter '%s' is not open", w.name)
	}

	partitions := make(map[string][]T)
	for _, item := range items {
		key, err := w.partitionKey(item)
		if err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("failed to get partition key in ParquetWriter '%s'", w.name), err, false, false)
		}
		partitions[key] = append(partitions[key], item)
	}
	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	prefix := w.chunkPrefix(ctx)
	var errs error
	for _, key := range keys {
		objectName := path.Join(w.config.OutputBaseDir, key, prefix+".parquet")
		if err := w.writePartition(ctx, objectName, partitions[key]); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		w.files++
	}
	if errs != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s' failed to export chunk", w.name), errs, false, true)
	}
	w.written += len(items)
	return nil
}

// chunkPrefix names the files of the current chunk. CommitCount is read before the
// chunk commits, so it is stable across retries of the same chunk.
func (w *ParquetWriter[T]) chunkPrefix(ctx context.Context) string {
	se := port.StepExecutionFromContext(ctx)
	if se == nil {
		w.files++
		return fmt.Sprintf("part-%s-%05d", w.name, w.files)
	}
	id := se.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("part-%s-%05d", id, se.CommitCount)
}

func (w *ParquetWriter[T]) writePartition(ctx context.Context, objectName string, items []T) (err error) {
	buf := new(bytes.Buffer)
	pw, err := pqwriter.NewParquetWriterFromWriter(buf, w.prototype, 1)
	if err != nil {
		return fmt.Errorf("create parquet writer for %s: %w", objectName, err)
	}
	pw.CompressionType = w.codec
	pw.RowGroupSize = 128 * 1024 * 1024

	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return fmt.Errorf("encode item for %s: %w", objectName, err)
		}
	}

	// parquet-go panics on some schema mismatches during flush
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked while finishing %s: %v", objectName, r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish %s: %w", objectName, err)
	}

	if err := w.conn.Upload(ctx, w.config.Bucket, objectName, buf, "application/vnd.apache.parquet"); err != nil {
		return fmt.Errorf("upload %s: %w", objectName, err)
	}
	logger.Debugf("ParquetWriter '%s': Uploaded %d rows to %s.", w.name, len(items), objectName)
	return nil
}

// Close logs the export totals. The connection belongs to the resolver and stays open.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	if w.conn != nil {
		logger.Infof("ParquetWriter '%s': Exported %d items in %d files.", w.name, w.written, w.files)
	}
	w.conn = nil
	return nil
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
