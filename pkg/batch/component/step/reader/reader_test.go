package reader_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-flow/pkg/batch/component/step/reader"
	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/surfin-flow/pkg/batch/test"
)

type payment struct {
	ID     int64  `gorm:"column:id;primaryKey"`
	Amount int64  `gorm:"column:amount"`
	Status string `gorm:"column:status"`
}

func (payment) TableName() string { return "payments" }

// seedPayments creates five open payments with ids 1..5.
func seedPayments(t *testing.T) (*gorm.DB, database.DBConnectionResolver) {
	t.Helper()
	resolver := batchtest.NewSQLiteResolver(t, "src")
	conn := batchtest.MustConnection(t, resolver, "src")
	db := conn.GormDB()
	require.NoError(t, db.AutoMigrate(&payment{}))
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, db.Create(&payment{ID: i, Amount: i * 100, Status: "open"}).Error)
	}
	return db, resolver
}

// drain reads r until ErrNoMoreItems, applying after to every item read.
func drain[T any](t *testing.T, r port.ItemReader[T], after func(T)) []T {
	t.Helper()
	ctx := context.Background()
	var out []T
	for {
		it, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return out
		}
		require.NoError(t, err)
		out = append(out, it)
		if after != nil {
			after(it)
		}
	}
}

func ids(items []payment) []int64 {
	out := make([]int64, 0, len(items))
	for _, p := range items {
		out = append(out, p.ID)
	}
	return out
}

func TestSqlCursorReader(t *testing.T) {
	db, _ := seedPayments(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	ctx := context.Background()

	r := reader.NewSqlCursorReader[map[string]any](sqlDB, "cursor", "SELECT id, status FROM payments WHERE amount > ? ORDER BY id", []any{100}, reader.ScanMap)
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	first, err := r.Read(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, first["id"])
	assert.Equal(t, "open", first["status"])

	ec, err := r.GetExecutionContext(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Close(ctx))
	count, ok := ec.GetInt("cursor.readCount")
	require.True(t, ok)
	assert.Equal(t, 1, count)

	t.Run("restart skips rows already read", func(t *testing.T) {
		restarted := reader.NewSqlCursorReader[map[string]any](sqlDB, "cursor", "SELECT id FROM payments WHERE amount > ? ORDER BY id", []any{100}, reader.ScanMap)
		require.NoError(t, restarted.Open(ctx, ec))
		defer restarted.Close(ctx)
		rest := drain[map[string]any](t, restarted, nil)
		require.Len(t, rest, 3)
		assert.EqualValues(t, 3, rest[0]["id"])
	})

	t.Run("read before open", func(t *testing.T) {
		_, err := reader.NewSqlCursorReader[map[string]any](sqlDB, "cursor", "SELECT 1", nil, reader.ScanMap).Read(ctx)
		assert.Error(t, err)
	})

	t.Run("no database", func(t *testing.T) {
		err := reader.NewSqlCursorReader[map[string]any](nil, "cursor", "SELECT 1", nil, reader.ScanMap).Open(ctx, model.NewExecutionContext())
		assert.True(t, errors.Is(err, exception.ErrConfiguration))
	})
}

func TestGormPagingReader_Offset(t *testing.T) {
	db, _ := seedPayments(t)
	ctx := context.Background()

	r, err := reader.NewGormPagingReader[payment](db, reader.PagingConfig{Name: "pay", SortKey: "id", PageSize: 2})
	require.NoError(t, err)
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(drain[payment](t, r, nil)))

	ec, err := r.GetExecutionContext(ctx)
	require.NoError(t, err)
	count, _ := ec.GetInt("pay.readCount")
	assert.Equal(t, 5, count)
	_, hasKey := ec.Get("pay.lastKey")
	assert.False(t, hasKey, "offset mode keeps no key")
}

// Marking rows done while reading them shifts offset pages but not keyset pages.
func TestGormPagingReader_FilterChangesDuringRun(t *testing.T) {
	tests := []struct {
		mode reader.PagingMode
		want []int64
	}{
		{reader.PagingModeOffset, []int64{1, 2, 5}},
		{reader.PagingModeKeyset, []int64{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			db, _ := seedPayments(t)
			ctx := context.Background()
			r, err := reader.NewGormPagingReader[payment](db, reader.PagingConfig{
				Name: "pay", Where: "status = ?", Args: []any{"open"}, SortKey: "id", PageSize: 2, Mode: tt.mode,
			})
			require.NoError(t, err)
			require.NoError(t, r.Open(ctx, model.NewExecutionContext()))

			got := drain[payment](t, r, func(p payment) {
				require.NoError(t, db.Model(&payment{}).Where("id = ?", p.ID).Update("status", "done").Error)
			})
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestGormPagingReader_KeysetRestart(t *testing.T) {
	db, _ := seedPayments(t)
	ctx := context.Background()
	cfg := reader.PagingConfig{Name: "pay", SortKey: "id", PageSize: 2, Mode: reader.PagingModeKeyset}

	r, err := reader.NewGormPagingReader[payment](db, cfg)
	require.NoError(t, err)
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	for i := 0; i < 3; i++ {
		_, err := r.Read(ctx)
		require.NoError(t, err)
	}
	ec, err := r.GetExecutionContext(ctx)
	require.NoError(t, err)
	last, ok := ec.Get("pay.lastKey")
	require.True(t, ok)
	assert.EqualValues(t, 3, last)

	restarted, err := reader.NewGormPagingReader[payment](db, cfg)
	require.NoError(t, err)
	require.NoError(t, restarted.Open(ctx, ec))
	assert.Equal(t, []int64{4, 5}, ids(drain[payment](t, restarted, nil)))
}

func TestGormPagingReader_MapsWithKeyFunc(t *testing.T) {
	db, _ := seedPayments(t)
	ctx := context.Background()

	r, err := reader.NewGormPagingReader[map[string]any](db, reader.PagingConfig{
		Name: "rows", Table: "payments", Where: "amount >= ?", Args: []any{400}, SortKey: "id", Mode: reader.PagingModeKeyset,
	})
	require.NoError(t, err)
	calls := 0
	r.WithKeyFunc(func(m map[string]any) any {
		calls++
		return m["id"]
	})
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	rows := drain[map[string]any](t, r, nil)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 500, rows[1]["amount"])
	assert.Equal(t, 2, calls)
}

func TestNewGormPagingReader_Errors(t *testing.T) {
	db, _ := seedPayments(t)
	tests := map[string]reader.PagingConfig{
		"no name":          {SortKey: "id"},
		"no sort key":      {Name: "pay"},
		"invalid sort key": {Name: "pay", SortKey: "id; DROP TABLE payments"},
		"unknown mode":     {Name: "pay", SortKey: "id", Mode: "random"},
		"unknown column":   {Name: "pay", SortKey: "missing", Mode: reader.PagingModeKeyset},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := reader.NewGormPagingReader[payment](db, cfg)
			assert.True(t, errors.Is(err, exception.ErrConfiguration), "got %v", err)
		})
	}

	t.Run("maps need a table", func(t *testing.T) {
		_, err := reader.NewGormPagingReader[map[string]any](db, reader.PagingConfig{Name: "rows", SortKey: "id"})
		assert.True(t, errors.Is(err, exception.ErrConfiguration))
	})
	t.Run("no database", func(t *testing.T) {
		_, err := reader.NewGormPagingReader[payment](nil, reader.PagingConfig{Name: "pay", SortKey: "id"})
		assert.True(t, errors.Is(err, exception.ErrConfiguration))
	})
}

func TestRegisterReaderBuilders(t *testing.T) {
	_, resolver := seedPayments(t)
	registry := jsl.NewComponentRegistry()
	reader.RegisterReaderBuilders(registry, resolver)
	assert.Equal(t, []string{"gormPagingReader", "sqlCursorReader"}, registry.Refs(jsl.KindReader))

	ctx := context.Background()
	t.Run("cursor", func(t *testing.T) {
		built, err := registry.Build(jsl.KindReader, jsl.ComponentRef{Ref: "sqlCursorReader", Properties: map[string]string{
			"datasource": "src",
			"query":      "SELECT id FROM payments WHERE amount > ? ORDER BY id",
			"args":       "300",
		}})
		require.NoError(t, err)
		r := built.(port.ItemReader[any])
		require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
		defer r.Close(ctx)
		assert.Len(t, drain[any](t, r, nil), 2)
	})

	t.Run("paging", func(t *testing.T) {
		built, err := registry.Build(jsl.KindReader, jsl.ComponentRef{Ref: "gormPagingReader", Properties: map[string]string{
			"datasource": "src",
			"table":      "payments",
			"where":      "status = ?",
			"args":       "open",
			"sort_key":   "id",
			"page_size":  "2",
			"mode":       "keyset",
		}})
		require.NoError(t, err)
		r := built.(port.ItemReader[any])
		require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
		rows := drain[any](t, r, nil)
		require.Len(t, rows, 5)
		assert.EqualValues(t, 5, rows[4].(map[string]any)["id"])
	})

	t.Run("missing properties", func(t *testing.T) {
		_, err := registry.Build(jsl.KindReader, jsl.ComponentRef{Ref: "sqlCursorReader", Properties: map[string]string{"datasource": "src"}})
		assert.True(t, errors.Is(err, exception.ErrConfiguration))
		_, err = registry.Build(jsl.KindReader, jsl.ComponentRef{Ref: "gormPagingReader", Properties: map[string]string{"sort_key": "id"}})
		assert.True(t, errors.Is(err, exception.ErrConfiguration))
	})
}
