package reader

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// PagingMode selects how the next page is addressed.
type PagingMode string

const (
	// PagingModeOffset reads ORDER BY key LIMIT n OFFSET readCount.
	PagingModeOffset PagingMode = "offset"
	// PagingModeKeyset reads WHERE key > lastKey ORDER BY key LIMIT n. Rows that leave
	// the filter during the run do not shift later pages.
	PagingModeKeyset PagingMode = "keyset"
)

// DefaultPageSize is used when PagingConfig.PageSize is not positive.
const DefaultPageSize = 10

var sortKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PagingConfig configures a GormPagingReader.
type PagingConfig struct {
	// Name keys the restart state.
	Name string `yaml:"name"`
	// Table overrides the table of T.
	Table string `yaml:"table"`
	// Where is an optional filter with positional placeholders bound to Args.
	Where string `yaml:"where"`
	Args  []any  `yaml:"-"`
	// SortKey is the column giving a total, stable order. Required.
	SortKey  string     `yaml:"sort_key"`
	PageSize int        `yaml:"page_size"`
	Mode     PagingMode `yaml:"mode"`
}

// GormPagingReader reads T page by page. Every page is one query on a pooled connection
// that is released once the page is buffered.
type GormPagingReader[T any] struct {
	db     *gorm.DB
	cfg    PagingConfig
	keyOf  func(T) any
	page   []T
	pos    int
	done   bool
	read   int
	last   any
	loaded int
}

// NewGormPagingReader creates a paging reader. A missing or malformed sort key is a
// configuration error: without a total order, pages may skip or repeat rows.
func NewGormPagingReader[T any](db *gorm.DB, cfg PagingConfig) (*GormPagingReader[T], error) {
	if db == nil {
		return nil, exception.NewConfigurationError("reader", "paging reader '%s' has no database", cfg.Name)
	}
	if cfg.Name == "" {
		return nil, exception.NewConfigurationError("reader", "paging reader requires a name")
	}
	if strings.TrimSpace(cfg.SortKey) == "" {
		return nil, exception.NewConfigurationError("reader", "paging reader '%s' requires a sort key", cfg.Name)
	}
	if !sortKeyPattern.MatchString(cfg.SortKey) {
		return nil, exception.NewConfigurationError("reader", "paging reader '%s': invalid sort key '%s'", cfg.Name, cfg.SortKey)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = PagingModeOffset
	case PagingModeOffset, PagingModeKeyset:
	default:
		return nil, exception.NewConfigurationError("reader", "paging reader '%s': unknown mode '%s'", cfg.Name, cfg.Mode)
	}

	if cfg.Table == "" && isDynamic[T]() {
		return nil, exception.NewConfigurationError("reader", "paging reader '%s' reads maps and requires a table", cfg.Name)
	}

	r := &GormPagingReader[T]{db: db, cfg: cfg}
	if cfg.Mode == PagingModeKeyset {
		keyOf, err := fieldAccessor[T](db, cfg.SortKey)
		if err != nil {
			return nil, exception.NewConfigurationError("reader", "paging reader '%s': %v", cfg.Name, err)
		}
		r.keyOf = keyOf
	}
	return r, nil
}

// WithKeyFunc replaces the schema lookup of the sort key value in keyset mode.
func (r *GormPagingReader[T]) WithKeyFunc(keyOf func(T) any) *GormPagingReader[T] {
	r.keyOf = keyOf
	return r
}

func isDynamic[T any]() bool {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return t.Kind() == reflect.Map || t.Kind() == reflect.Interface
}

// fieldAccessor resolves the struct field mapped to column through gorm's schema.
func fieldAccessor[T any](db *gorm.DB, column string) (func(T) any, error) {
	var zero T
	if isDynamic[T]() {
		return func(item T) any {
			if m, ok := any(item).(map[string]any); ok {
				return m[column]
			}
			return nil
		}, nil
	}
	s, err := schema.Parse(&zero, &sync.Map{}, db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("cannot parse schema of %T: %w", zero, err)
	}
	field := s.LookUpField(column)
	if field == nil {
		return nil, fmt.Errorf("%T has no field for column '%s'", zero, column)
	}
	return func(item T) any {
		v, _ := field.ValueOf(context.Background(), reflect.ValueOf(&item).Elem())
		return v
	}, nil
}

func (r *GormPagingReader[T]) readCountKey() string { return r.cfg.Name + ".readCount" }
func (r *GormPagingReader[T]) lastKeyKey() string   { return r.cfg.Name + ".lastKey" }

// Open restores the position stored in ec. No query runs until the first Read.
func (r *GormPagingReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.page, r.pos, r.done, r.loaded = nil, 0, false, 0
	r.read, _ = ec.GetInt(r.readCountKey())
	r.last, _ = ec.Get(r.lastKeyKey())
	if r.read > 0 {
		logger.Infof("GormPagingReader '%s': Resuming after %d items (last key %v).", r.cfg.Name, r.read, r.last)
	}
	return nil
}

// Read returns the next item, fetching a new page when the buffer is drained.
func (r *GormPagingReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.pos >= len(r.page) {
		if r.done {
			return zero, port.ErrNoMoreItems
		}
		if err := r.fetch(ctx); err != nil {
			return zero, err
		}
		if len(r.page) == 0 {
			r.done = true
			return zero, port.ErrNoMoreItems
		}
	}
	item := r.page[r.pos]
	r.pos++
	r.read++
	if r.keyOf != nil {
		r.last = r.keyOf(item)
	}
	return item, nil
}

func (r *GormPagingReader[T]) fetch(ctx context.Context) error {
	q := r.db.WithContext(ctx)
	if r.cfg.Table != "" {
		q = q.Table(r.cfg.Table)
	} else {
		var zero T
		q = q.Model(&zero)
	}
	if r.cfg.Where != "" {
		q = q.Where(r.cfg.Where, r.cfg.Args...)
	}
	column := clause.Column{Name: r.cfg.SortKey}
	switch r.cfg.Mode {
	case PagingModeKeyset:
		if r.last != nil {
			q = q.Where(clause.Gt{Column: column, Value: r.last})
		}
	default:
		q = q.Offset(r.read)
	}
	q = q.Order(clause.OrderByColumn{Column: column}).Limit(r.cfg.PageSize)

	page := make([]T, 0, r.cfg.PageSize)
	if err := q.Find(&page).Error; err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("GormPagingReader '%s': page query failed", r.cfg.Name), err, false, false)
	}
	r.loaded++
	logger.Debugf("GormPagingReader '%s': Page %d loaded (%d rows).", r.cfg.Name, r.loaded, len(page))
	r.page, r.pos = page, 0
	if len(page) < r.cfg.PageSize {
		r.done = true
	}
	return nil
}

// Close drops the buffered page.
func (r *GormPagingReader[T]) Close(ctx context.Context) error {
	r.page = nil
	return nil
}

// GetExecutionContext returns the items consumed and, in keyset mode, the last key.
func (r *GormPagingReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(r.readCountKey(), r.read)
	if r.last != nil {
		ec.Put(r.lastKeyKey(), r.last)
	}
	return ec, nil
}

// Verify that GormPagingReader implements the port.ItemReader interface at compile time.
var _ port.ItemReader[any] = (*GormPagingReader[any])(nil)
