package loader

import (
	"context"
	"testing"

	"f1etl/internal/jolpica"
)

func qualiPayload(results ...jolpica.QualifyingResult) *jolpica.Response {
	return &jolpica.Response{MRData: jolpica.MRData{
		RaceTable: &jolpica.RaceTable{Races: []jolpica.Race{{
			Season:            "2024",
			Round:             "2",
			QualifyingResults: results,
		}}},
	}}
}

func TestQualifyingTransform_MissingQ3IsNull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeRepo()
	l := &qualifyingLoader{repo: repo}

	batch, err := l.Transform(ctx, qualiPayload(jolpica.QualifyingResult{
		Position:    "4",
		Driver:      jolpica.DriverRef{DriverID: "hamilton"},
		Constructor: jolpica.TeamRef{ConstructorID: "mercedes"},
		Q1:          "1:23.456",
		Q2:          "1:22.000",
	}))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if repo.sessionType != "Q3" {
		t.Fatalf("expected Q3 session filter, got %q", repo.sessionType)
	}
	if len(batch.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(batch.Rows))
	}

	row := batch.Rows[0]
	col := func(name string) any {
		for i, c := range batch.Columns {
			if c == name {
				return row[i]
			}
		}
		t.Fatalf("missing column %q", name)
		return nil
	}

	if col("q1_time_milliseconds") != int64(83456) {
		t.Fatalf("q1 ms=%v", col("q1_time_milliseconds"))
	}
	if col("q2_time") != "1:22.000" {
		t.Fatalf("q2=%v", col("q2_time"))
	}
	if col("q3_time") != nil || col("q3_time_milliseconds") != nil {
		t.Fatalf("expected null Q3 fields, got %v/%v", col("q3_time"), col("q3_time_milliseconds"))
	}
	if col("season_id") != int64(10) || col("round_id") != int64(102) || col("last_session_id") != int64(1002) {
		t.Fatalf("unexpected scope ids: %v", row)
	}
	if col("driver_id") != int64(1) || col("team_id") != int64(7) {
		t.Fatalf("unexpected fk ids: %v", row)
	}
	if col("position") != int64(4) {
		t.Fatalf("position=%v", col("position"))
	}
}

func TestQualifyingTransform_UnknownDriverDropped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := &qualifyingLoader{repo: newFakeRepo()}
	batch, err := l.Transform(ctx, qualiPayload(
		jolpica.QualifyingResult{
			Position:    "1",
			Driver:      jolpica.DriverRef{DriverID: "unknown_rookie"},
			Constructor: jolpica.TeamRef{ConstructorID: "mercedes"},
		},
		jolpica.QualifyingResult{
			Position:    "2",
			Driver:      jolpica.DriverRef{DriverID: "max_verstappen"},
			Constructor: jolpica.TeamRef{ConstructorID: "no_such_team"},
		},
		jolpica.QualifyingResult{
			Position:    "3",
			Driver:      jolpica.DriverRef{DriverID: "hamilton"},
			Constructor: jolpica.TeamRef{ConstructorID: "mercedes"},
		},
	))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(batch.Rows) != 1 {
		t.Fatalf("expected unresolved refs dropped, got %d rows", len(batch.Rows))
	}
}

func TestQualifyingTransform_EmptyPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := &qualifyingLoader{repo: newFakeRepo()}
	batch, err := l.Transform(ctx, &jolpica.Response{MRData: jolpica.MRData{
		RaceTable: &jolpica.RaceTable{Races: []jolpica.Race{}},
	}})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !batch.empty() {
		t.Fatalf("expected empty batch")
	}
}

func TestQualifyingTransform_UnloadedScheduleIsError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeRepo()
	repo.roundID = 0
	l := &qualifyingLoader{repo: repo}
	if _, err := l.Transform(ctx, qualiPayload(jolpica.QualifyingResult{
		Driver:      jolpica.DriverRef{DriverID: "hamilton"},
		Constructor: jolpica.TeamRef{ConstructorID: "mercedes"},
	})); err == nil {
		t.Fatalf("expected error for missing round")
	}
}

func TestQualifyingLoad_DelegatesUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeRepo()
	l := &qualifyingLoader{repo: repo}
	batch, err := l.Transform(ctx, qualiPayload(jolpica.QualifyingResult{
		Position:    "1",
		Driver:      jolpica.DriverRef{DriverID: "hamilton"},
		Constructor: jolpica.TeamRef{ConstructorID: "mercedes"},
		Q1:          "1:23.456",
	}))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	n, err := l.Load(ctx, batch)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 record, got %d", n)
	}
	if repo.upsertTable != "qualifying_result" {
		t.Fatalf("table=%q", repo.upsertTable)
	}
	wantConflict := []string{"season_id", "round_id", "driver_id"}
	for i, c := range wantConflict {
		if repo.upsertConflict[i] != c {
			t.Fatalf("conflict=%v", repo.upsertConflict)
		}
	}
}
