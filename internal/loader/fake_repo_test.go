package loader

import (
	"context"

	"f1etl/internal/warehouse"
)

// fakeRepo implements the warehouse slices the loaders touch and records
// what they wrote.
type fakeRepo struct {
	warehouse.Repository

	keyValues map[string]map[string]int64
	sessions  map[int64]warehouse.SessionRef
	seasonID  int64
	roundID   int64

	rowCount   int64
	tableCols  []string
	upsertErr  error
	appendErr  error

	upsertTable    string
	upsertColumns  []string
	upsertRows     [][]any
	upsertConflict []string
	upsertUpdate   []string

	appendTable   string
	appendColumns []string
	appendRows    [][]any
	resyncTables  []string

	startCalls  int
	completed   []warehouse.SyncResult
	sessionType string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		keyValues: map[string]map[string]int64{
			"driver": {"hamilton": 1, "max_verstappen": 2},
			"team":   {"mercedes": 7, "red_bull": 8},
		},
		sessions: map[int64]warehouse.SessionRef{102: {ID: 1002, Number: 5}},
		seasonID: 10,
		roundID:  102,
	}
}

func (f *fakeRepo) SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	return f.keyValues[table], nil
}

func (f *fakeRepo) SessionsByRound(ctx context.Context, sessionType string) (map[int64]warehouse.SessionRef, error) {
	f.sessionType = sessionType
	return f.sessions, nil
}

func (f *fakeRepo) SeasonID(ctx context.Context, year int) (int64, bool, error) {
	return f.seasonID, f.seasonID != 0, nil
}

func (f *fakeRepo) RoundID(ctx context.Context, year, round int) (int64, bool, error) {
	return f.roundID, f.roundID != 0, nil
}

func (f *fakeRepo) UpsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns, updateColumns []string) (int64, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upsertTable = table
	f.upsertColumns = columns
	f.upsertRows = rows
	f.upsertConflict = conflictColumns
	f.upsertUpdate = updateColumns
	return int64(len(rows)), nil
}

func (f *fakeRepo) CountRows(ctx context.Context, table string) (int64, error) {
	return f.rowCount, nil
}

func (f *fakeRepo) TableColumns(ctx context.Context, table string) ([]string, error) {
	return f.tableCols, nil
}

func (f *fakeRepo) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	f.appendTable = table
	f.appendColumns = columns
	f.appendRows = rows
	return int64(len(rows)), nil
}

func (f *fakeRepo) ResyncIdentity(ctx context.Context, table string) error {
	f.resyncTables = append(f.resyncTables, table)
	return nil
}

func (f *fakeRepo) StartSync(ctx context.Context, entity string) (int64, error) {
	f.startCalls++
	return int64(f.startCalls), nil
}

func (f *fakeRepo) CompleteSync(ctx context.Context, entity string, logID int64, res warehouse.SyncResult) error {
	f.completed = append(f.completed, res)
	return nil
}
