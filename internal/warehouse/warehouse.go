// Package warehouse defines the relational warehouse contract the pipeline
// loads into, plus a factory registry so backends (postgres, sqlite, mssql)
// can register themselves without the core importing drivers.
//
// The warehouse schema itself is externally managed: backends read and write
// the fixed domain tables and maintain only the metadata namespace
// (sync_status, sync_log) themselves.
package warehouse

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config selects and connects a backend.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - Schema/MetaSchema are the domain and metadata namespaces; backends
//     without schema support (sqlite) ignore them.
type Config struct {
	Kind       string
	DSN        string
	Schema     string
	MetaSchema string
}

// Watermark is the persisted per-entity progress marker. A nil pointer from
// SelectWatermark means the entity has never been synced.
type Watermark struct {
	Entity       string
	SeasonYear   *int
	RoundNumber  *int
	LastSync     *time.Time
	TotalRecords int64
	Status       string
	ErrorMessage *string
}

// SyncResult carries the terminal outcome of one sync attempt into
// CompleteSync.
//
// SeasonYear/RoundNumber are the watermark delta; zero means "no change" for
// that component.
type SyncResult struct {
	Success      bool
	Records      int64
	Duration     time.Duration
	ErrorMessage string
	SeasonYear   int
	RoundNumber  int
}

// SessionRef identifies a session row plus its sequence number within the
// round, used by result loaders.
type SessionRef struct {
	ID     int64
	Number int
}

// Repository is the backend-agnostic warehouse interface.
//
// Transactionality:
//   - AppendRows and UpsertRows each run inside a single transaction;
//     any failure rolls back every row of that call.
//   - StartSync and CompleteSync are each atomic.
//
// All other methods are single-statement reads.
type Repository interface {
	Close()
	Ping(ctx context.Context) error

	// EnsureMetadata creates the sync_status and sync_log tables when absent.
	// Idempotent; called once at startup.
	EnsureMetadata(ctx context.Context) error

	// SelectWatermark returns the watermark row for entity, or nil when the
	// entity has never been synced.
	SelectWatermark(ctx context.Context, entity string) (*Watermark, error)

	// StartSync flips the entity's status to running (creating the watermark
	// row if missing) and appends a sync_log row, returning its id.
	StartSync(ctx context.Context, entity string) (int64, error)

	// CompleteSync finalizes the sync_log row and merges the watermark delta.
	CompleteSync(ctx context.Context, entity string, logID int64, res SyncResult) error

	// Schedule queries for incremental-load decisions.
	MaxRound(ctx context.Context, season int) (int, error)
	RaceDates(ctx context.Context, season int) ([]time.Time, error)
	SprintRaceDates(ctx context.Context, season int) ([]time.Time, error)

	// Lookup queries for foreign-key resolution.
	SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error)
	SeasonID(ctx context.Context, year int) (int64, bool, error)
	RoundID(ctx context.Context, year, round int) (int64, bool, error)
	SessionsByRound(ctx context.Context, sessionType string) (map[int64]SessionRef, error)

	// Bulk-load primitives for the pre-season diff load.
	CountRows(ctx context.Context, table string) (int64, error)
	TableColumns(ctx context.Context, table string) ([]string, error)
	AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	ResyncIdentity(ctx context.Context, table string) error

	// UpsertRows reconciles rows against the natural-key tuple: conflicts
	// update updateColumns in place, the rest insert fresh. Returns the number
	// of records processed.
	UpsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns, updateColumns []string) (int64, error)
}

// ---- backend factories (mirrors how loaders select a storage kind) ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres"). Call from an
// init() in the backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. Fail-fast to avoid ambiguous selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("warehouse: Register called with empty kind")
	}
	if f == nil {
		panic("warehouse: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("warehouse: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - If cfg.Kind is empty or not registered.
//   - Whatever the factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("warehouse: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("warehouse: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
