package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"f1etl/internal/entity"
	"f1etl/internal/jolpica"
)

func archiveWith(t *testing.T, files map[string]string) *jolpica.Archive {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip open: %v", err)
	}
	return jolpica.NewArchive(zr)
}

func circuitDescriptor(t *testing.T) entity.Descriptor {
	t.Helper()
	d, ok := entity.Get("circuit")
	if !ok {
		t.Fatalf("unknown entity circuit")
	}
	return d
}

const circuitCSV = "id,reference,name,locality,country,latitude,longitude,altitude,wikipedia\n" +
	"1,monza,Autodromo Nazionale di Monza,Monza,Italy,45.6156,9.28111,162,https://en.wikipedia.org/wiki/Monza\n" +
	"2,spa,Circuit de Spa-Francorchamps,Spa,Belgium,50.4372,5.97139,401,https://en.wikipedia.org/wiki/Spa\n" +
	"3,suzuka,Suzuka Circuit,Suzuka,Japan,34.8431,136.541,45,https://en.wikipedia.org/wiki/Suzuka\n" +
	"4,monaco,Circuit de Monaco,Monte-Carlo,Monaco,43.7347,7.42056,7,https://en.wikipedia.org/wiki/Monaco\n" +
	"5,silverstone,Silverstone Circuit,Silverstone,UK,52.0786,-1.01694,153,https://en.wikipedia.org/wiki/Silverstone\n"

func TestBulkTransform_ParsesAndCoerces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Leading BOM exercises the decoder path.
	archive := archiveWith(t, map[string]string{
		"formula_one_circuit.csv": "\xef\xbb\xbf" + circuitCSV,
	})

	l := &bulkLoader{desc: circuitDescriptor(t), repo: newFakeRepo()}
	batch, err := l.Transform(ctx, archive)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(batch.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(batch.Rows))
	}
	if batch.Columns[0] != "id" {
		t.Fatalf("BOM not stripped, first column %q", batch.Columns[0])
	}

	row := batch.Rows[0]
	if row[0] != int64(1) {
		t.Fatalf("id not coerced: %v (%T)", row[0], row[0])
	}
	if row[1] != "monza" {
		t.Fatalf("reference=%v", row[1])
	}
	if row[5] != 45.6156 {
		t.Fatalf("latitude not coerced: %v (%T)", row[5], row[5])
	}
	if row[7] != int64(162) {
		t.Fatalf("altitude not coerced: %v (%T)", row[7], row[7])
	}
}

func TestBulkLoad_AppendsOnlySuffixAndResyncs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeRepo()
	repo.rowCount = 3
	repo.tableCols = []string{"id", "reference", "name", "locality", "country", "latitude", "longitude", "altitude", "wikipedia"}

	archive := archiveWith(t, map[string]string{"formula_one_circuit.csv": circuitCSV})
	l := &bulkLoader{desc: circuitDescriptor(t), repo: repo}

	batch, err := l.Transform(ctx, archive)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	n, err := l.Load(ctx, batch)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 appended, got %d", n)
	}
	if len(repo.appendRows) != 2 {
		t.Fatalf("expected suffix of 2 rows, got %d", len(repo.appendRows))
	}
	if repo.appendRows[0][1] != "monaco" || repo.appendRows[1][1] != "silverstone" {
		t.Fatalf("wrong suffix rows: %v", repo.appendRows)
	}
	if len(repo.resyncTables) != 1 || repo.resyncTables[0] != "circuit" {
		t.Fatalf("expected identity resync, got %v", repo.resyncTables)
	}
}

func TestBulkLoad_UpToDateIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeRepo()
	repo.rowCount = 5
	repo.tableCols = []string{"id", "reference", "name", "locality", "country", "latitude", "longitude", "altitude", "wikipedia"}

	archive := archiveWith(t, map[string]string{"formula_one_circuit.csv": circuitCSV})
	l := &bulkLoader{desc: circuitDescriptor(t), repo: repo}

	batch, err := l.Transform(ctx, archive)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	n, err := l.Load(ctx, batch)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 appended, got %d", n)
	}
	if repo.appendRows != nil || len(repo.resyncTables) != 0 {
		t.Fatalf("up-to-date load must not write: %v %v", repo.appendRows, repo.resyncTables)
	}
}

func TestBulkLoad_ReordersToWarehouseColumns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeRepo()
	repo.rowCount = 4
	// Warehouse orders columns differently from the dump.
	repo.tableCols = []string{"id", "name", "reference"}

	archive := archiveWith(t, map[string]string{"formula_one_circuit.csv": circuitCSV})
	l := &bulkLoader{desc: circuitDescriptor(t), repo: repo}

	batch, err := l.Transform(ctx, archive)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if _, err := l.Load(ctx, batch); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(repo.appendRows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(repo.appendRows))
	}
	row := repo.appendRows[0]
	if row[0] != int64(5) || row[1] != "Silverstone Circuit" || row[2] != "silverstone" {
		t.Fatalf("row not in warehouse order: %v", row)
	}
}

func TestBulkExtract_PrefersSharedArchive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	shared := archiveWith(t, map[string]string{"formula_one_circuit.csv": circuitCSV})
	l := &bulkLoader{desc: circuitDescriptor(t), repo: newFakeRepo()}

	payload, err := l.Extract(ctx, Params{Year: 2024, Archive: shared})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if payload != any(shared) {
		t.Fatalf("expected shared archive passthrough")
	}
}
