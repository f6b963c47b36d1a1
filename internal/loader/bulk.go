package loader

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"f1etl/internal/entity"
	"f1etl/internal/jolpica"
	"f1etl/internal/schema"
	"f1etl/internal/warehouse"
)

// bulkLoader loads one pre-season reference entity from the bulk dump
// archive.
//
// The load is an append-only diff: the dump is append-ordered and stable, so
// when it carries more rows than the warehouse currently holds, only the
// suffix beyond the current count is inserted. The identity sequence is
// resynced afterwards so manual inserts keep working.
type bulkLoader struct {
	desc   entity.Descriptor
	repo   warehouse.Repository
	client *jolpica.Client
}

func (l *bulkLoader) EntityName() string { return l.desc.Name }

func (l *bulkLoader) Extract(ctx context.Context, p Params) (any, error) {
	if p.Archive != nil {
		return p.Archive, nil
	}
	return l.client.FetchArchive(ctx)
}

func (l *bulkLoader) Transform(ctx context.Context, payload any) (*Batch, error) {
	archive, ok := payload.(*jolpica.Archive)
	if !ok {
		return nil, errors.Errorf("%s: unexpected payload %T", l.desc.Name, payload)
	}

	rc, err := archive.Open(l.desc.CSVName)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: open %s", l.desc.Name, l.desc.CSVName)
	}
	defer rc.Close()

	header, rows, err := decodeCSV(rc, l.desc.Table)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: decode %s", l.desc.Name, l.desc.CSVName)
	}
	return &Batch{Columns: header, Rows: rows}, nil
}

// decodeCSV reads a dump CSV, stripping any UTF-8 BOM and coercing each cell
// to the column's registered type.
func decodeCSV(r io.Reader, table string) ([]string, [][]any, error) {
	types := schema.TableSchema(table)
	dec := unicode.UTF8.NewDecoder()
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(dec)))
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "header")
	}

	var rows [][]any
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, schema.CoerceRow(types, header, rec))
	}
	return header, rows, nil
}

func (l *bulkLoader) Load(ctx context.Context, batch *Batch) (int64, error) {
	table := l.desc.Table

	current, err := l.repo.CountRows(ctx, table)
	if err != nil {
		return 0, err
	}
	diff := int64(len(batch.Rows)) - current
	if diff <= 0 {
		return 0, nil
	}

	target, err := l.repo.TableColumns(ctx, table)
	if err != nil {
		return 0, err
	}
	pos := make(map[string]int, len(batch.Columns))
	for i, c := range batch.Columns {
		pos[c] = i
	}
	for _, c := range target {
		if _, ok := pos[c]; !ok {
			return 0, errors.Errorf("%s: dump is missing column %q", table, c)
		}
	}

	suffix := batch.Rows[current:]
	out := make([][]any, len(suffix))
	for i, row := range suffix {
		reordered := make([]any, len(target))
		for j, c := range target {
			reordered[j] = row[pos[c]]
		}
		out[i] = reordered
	}

	if _, err := l.repo.AppendRows(ctx, table, target, out); err != nil {
		return 0, err
	}
	if err := l.repo.ResyncIdentity(ctx, table); err != nil {
		return 0, err
	}
	return diff, nil
}
