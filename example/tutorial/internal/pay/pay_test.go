package pay_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-flow/example/tutorial/internal/migrations"
	"github.com/tigerroll/surfin-flow/example/tutorial/internal/pay"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	batchtest "github.com/tigerroll/surfin-flow/pkg/batch/test"
)

type fixture struct {
	registry *jsl.ComponentRegistry
	exportTo string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	resolver := batchtest.NewSQLiteResolver(t, "tutorial")
	conn := batchtest.MustConnection(t, resolver, "tutorial")
	err := migration.NewMigrator(conn).Up(context.Background(), migrations.FS(), "sqlite", migration.FixedAppMigrationsTable)
	require.NoError(t, err)

	dir := t.TempDir()
	storageConfigs := map[string]storageconfig.Config{
		"export": {Type: local.ProviderType, BaseDir: dir, BucketName: "exports"},
	}
	registry := jsl.NewComponentRegistry()
	pay.RegisterPayComponents(pay.ComponentParams{
		Cfg:        config.NewConfig(),
		Registry:   registry,
		DBResolver: resolver,
		Storage:    storage.NewResolverFromProviders(storageConfigs, local.NewProviderFromConfigs(storageConfigs)),
	})
	return fixture{registry: registry, exportTo: dir}
}

func readAll(t *testing.T, r port.ItemReader[any]) []pay.Pay {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	defer r.Close(ctx)
	var rows []pay.Pay
	for {
		v, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, v.(pay.Pay))
	}
}

func TestPayReader_MinAmount(t *testing.T) {
	f := newFixture(t)
	built, err := f.registry.Build(jsl.KindReader, jsl.ComponentRef{
		Ref:        "payReader",
		Properties: map[string]string{"min_amount": "2000", "page_size": "3"},
	})
	require.NoError(t, err)

	rows := readAll(t, built.(port.ItemReader[any]))
	ids := make([]int64, 0, len(rows))
	for _, p := range rows {
		assert.GreaterOrEqual(t, p.Amount, int64(2000))
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{2, 3, 4, 6, 8, 9, 11, 12}, ids)
	assert.Equal(t, "test2", rows[0].TxName)
	assert.Equal(t, time.Date(2024, 1, 30, 10, 15, 0, 0, time.UTC), rows[0].TxDateTime.UTC())
}

func TestRecordProcessor(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	p := pay.Pay{ID: 7, Amount: 1500, TxName: "late", TxDateTime: time.Date(2024, 1, 31, 20, 0, 0, 0, time.UTC)}

	utc, err := pay.RecordProcessor{}.Process(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", utc.TxDate)
	assert.Equal(t, p.TxDateTime.UnixMilli(), utc.TxDateTime)

	inTokyo, err := pay.RecordProcessor{Location: tokyo}.Process(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", inTokyo.TxDate)

	key, err := pay.PartitionByDate(inTokyo)
	require.NoError(t, err)
	assert.Equal(t, "dt=2024-02-01", key)
}

func TestMarkPaid_CopiesRow(t *testing.T) {
	row := map[string]any{"id": int64(1), "success_status": false}
	out, err := pay.MarkPaid{}.Process(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, true, out["success_status"])
	assert.Equal(t, false, row["success_status"])
	assert.Equal(t, int64(1), out["id"])
}

func TestPayExport_WritesPartitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rawReader, err := f.registry.Build(jsl.KindReader, jsl.ComponentRef{Ref: "payReader"})
	require.NoError(t, err)
	rawProcessor, err := f.registry.Build(jsl.KindProcessor, jsl.ComponentRef{Ref: "payRecordProcessor"})
	require.NoError(t, err)
	rawWriter, err := f.registry.Build(jsl.KindWriter, jsl.ComponentRef{
		Ref:        "payParquetWriter",
		Properties: map[string]string{"storageRef": "export", "outputBaseDir": "pay"},
	})
	require.NoError(t, err)

	processor := rawProcessor.(port.ItemProcessor[any, any])
	w := rawWriter.(port.ItemWriter[any])
	var records []any
	for _, p := range readAll(t, rawReader.(port.ItemReader[any])) {
		out, err := processor.Process(ctx, p)
		require.NoError(t, err)
		records = append(records, out)
	}
	require.Len(t, records, 12)

	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	require.NoError(t, w.Write(ctx, records))
	require.NoError(t, w.Close(ctx))

	for _, day := range []string{"2024-01-30", "2024-01-31", "2024-02-01"} {
		matches, err := filepath.Glob(filepath.Join(f.exportTo, "exports", "pay", "dt="+day, "*.parquet"))
		require.NoError(t, err)
		require.Len(t, matches, 1, day)
		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		assert.Equal(t, "PAR1", string(data[:4]))
	}
}

func TestPayComponents_InvalidProperties(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Build(jsl.KindProcessor, jsl.ComponentRef{
		Ref:        "payRecordProcessor",
		Properties: map[string]string{"timezone": "Mars/Olympus"},
	})
	assert.Error(t, err)

	_, err = f.registry.Build(jsl.KindWriter, jsl.ComponentRef{Ref: "payParquetWriter"})
	assert.Error(t, err)

	_, err = f.registry.Build(jsl.KindReader, jsl.ComponentRef{
		Ref:        "payReader",
		Properties: map[string]string{"datasource": "missing"},
	})
	assert.Error(t, err)
}
