package writer_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/step/writer"
	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

type payRecord struct {
	ID     int64  `parquet:"name=id, type=INT64"`
	Amount int64  `parquet:"name=amount, type=INT64"`
	Day    string `parquet:"name=day, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func localResolver(t *testing.T) (*storage.Resolver, string) {
	t.Helper()
	dir := t.TempDir()
	configs := map[string]storageconfig.Config{
		"export": {Type: "local", BaseDir: dir, BucketName: "bucket"},
	}
	return storage.NewResolverFromProviders(configs, local.NewProviderFromConfigs(configs)), dir
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	require.NoError(t, filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		files = append(files, filepath.ToSlash(rel))
		return err
	}))
	sort.Strings(files)
	return files
}

func TestParquetWriter_PartitionsPerChunk(t *testing.T) {
	resolver, dir := localResolver(t)
	w, err := writer.NewParquetWriter[payRecord]("payExport", map[string]interface{}{
		"storageRef":      "export",
		"outputBaseDir":   "pay",
		"compressionType": "gzip",
	}, resolver, nil, func(p payRecord) (string, error) { return "dt=" + p.Day, nil })
	require.NoError(t, err)

	se := model.NewStepExecution("0123456789ab", model.NewJobExecution("i", "payExportJob", model.NewJobParameters()), "export")
	ctx := port.WithStepExecution(context.Background(), se)
	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))

	require.NoError(t, w.Write(ctx, []payRecord{
		{ID: 1, Amount: 100, Day: "2024-01-01"},
		{ID: 2, Amount: 200, Day: "2024-01-02"},
		{ID: 3, Amount: 300, Day: "2024-01-01"},
	}))
	// the same chunk written again overwrites its own files
	require.NoError(t, w.Write(ctx, []payRecord{{ID: 1, Amount: 100, Day: "2024-01-01"}}))
	se.CommitCount = 1
	require.NoError(t, w.Write(ctx, []payRecord{{ID: 4, Amount: 400, Day: "2024-01-02"}}))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []string{
		"bucket/pay/dt=2024-01-01/part-01234567-00000.parquet",
		"bucket/pay/dt=2024-01-02/part-01234567-00000.parquet",
		"bucket/pay/dt=2024-01-02/part-01234567-00001.parquet",
	}, listFiles(t, dir))

	conn, err := resolver.Resolve(context.Background(), "export")
	require.NoError(t, err)
	rc, err := conn.Download(context.Background(), "", "pay/dt=2024-01-02/part-01234567-00001.parquet")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))
}

func TestParquetWriter_PartitionKeyError(t *testing.T) {
	resolver, _ := localResolver(t)
	boom := errors.New("no day")
	w, err := writer.NewParquetWriter[payRecord]("payExport", map[string]interface{}{
		"storageRef": "export", "outputBaseDir": "pay",
	}, resolver, nil, func(payRecord) (string, error) { return "", boom })
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, w.Write(ctx, []payRecord{{ID: 1}}), "writing before Open fails")
	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	assert.ErrorIs(t, w.Write(ctx, []payRecord{{ID: 1}}), boom)
}

func TestNewParquetWriter_Validation(t *testing.T) {
	resolver, _ := localResolver(t)
	tests := map[string]struct {
		props    map[string]interface{}
		resolver *storage.Resolver
	}{
		"no storage ref":  {map[string]interface{}{"outputBaseDir": "pay"}, resolver},
		"no base dir":     {map[string]interface{}{"storageRef": "export"}, resolver},
		"no resolver":     {map[string]interface{}{"storageRef": "export", "outputBaseDir": "pay"}, nil},
		"bad compression": {map[string]interface{}{"storageRef": "export", "outputBaseDir": "pay", "compressionType": "LZMA"}, resolver},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := writer.NewParquetWriter[payRecord]("payExport", tt.props, tt.resolver, nil, nil)
			assert.True(t, errors.Is(err, exception.ErrConfiguration), "got %v", err)
		})
	}

	t.Run("unknown storage", func(t *testing.T) {
		w, err := writer.NewParquetWriter[payRecord]("payExport", map[string]interface{}{"storageRef": "nowhere", "outputBaseDir": "pay"}, resolver, nil, nil)
		require.NoError(t, err)
		assert.Error(t, w.Open(context.Background(), model.NewExecutionContext()))
	})
}
