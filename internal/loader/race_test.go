package loader

import (
	"context"
	"testing"

	"f1etl/internal/jolpica"
)

func racePayload(results ...jolpica.Result) *jolpica.Response {
	return &jolpica.Response{MRData: jolpica.MRData{
		RaceTable: &jolpica.RaceTable{Races: []jolpica.Race{{
			Season:  "2024",
			Round:   "2",
			Results: results,
		}}},
	}}
}

func TestRaceTransform_FullResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeRepo()
	l := &raceLoader{repo: repo}

	batch, err := l.Transform(ctx, racePayload(jolpica.Result{
		Position:     "1",
		PositionText: "1",
		Points:       "25",
		Grid:         "3",
		Laps:         "57",
		Status:       "Finished",
		Driver:       jolpica.DriverRef{DriverID: "max_verstappen"},
		Constructor:  jolpica.TeamRef{ConstructorID: "red_bull"},
		Time:         &jolpica.ResultTime{Millis: "5412000", Time: "1:30:12.000"},
		FastestLap: &jolpica.FastestLap{
			Rank: "1",
			Lap:  "39",
			Time: &jolpica.LapTime{Time: "1:32.608"},
		},
	}))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if repo.sessionType != "R" {
		t.Fatalf("expected R session filter, got %q", repo.sessionType)
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
	if col("grid_position") != int64(3) || col("laps_completed") != int64(57) {
		t.Fatalf("grid/laps=%v/%v", col("grid_position"), col("laps_completed"))
	}
	if col("race_time_milliseconds") != int64(5412000) {
		t.Fatalf("race ms=%v", col("race_time_milliseconds"))
	}
	if col("fastest_lap_rank") != int64(1) || col("fastest_lap_number") != int64(39) {
		t.Fatalf("fastest lap rank/number=%v/%v", col("fastest_lap_rank"), col("fastest_lap_number"))
	}
	if col("fastest_lap_milliseconds") != int64(92608) {
		t.Fatalf("fastest lap ms=%v", col("fastest_lap_milliseconds"))
	}
	if col("points") != 25.0 {
		t.Fatalf("points=%v", col("points"))
	}
}

func TestRaceTransform_MissingBlocksAreNull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := &raceLoader{repo: newFakeRepo()}
	batch, err := l.Transform(ctx, racePayload(jolpica.Result{
		Position:    "14",
		Status:      "+1 Lap",
		Driver:      jolpica.DriverRef{DriverID: "hamilton"},
		Constructor: jolpica.TeamRef{ConstructorID: "mercedes"},
		// Lapped car: no Time block; old season: no FastestLap block.
	}))
	if err != nil {
		t.Fatalf("Transform: %v", err)
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
	for _, name := range []string{
		"race_time_milliseconds", "fastest_lap_rank", "fastest_lap_number",
		"fastest_lap_time", "fastest_lap_milliseconds",
	} {
		if col(name) != nil {
			t.Fatalf("expected %s null, got %v", name, col(name))
		}
	}
}

func TestSprintTransform(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeRepo()
	l := &sprintLoader{repo: repo}

	payload := &jolpica.Response{MRData: jolpica.MRData{
		RaceTable: &jolpica.RaceTable{Races: []jolpica.Race{{
			Season: "2024",
			Round:  "2",
			SprintResults: []jolpica.Result{{
				Position:     "2",
				PositionText: "2",
				Points:       "7",
				Grid:         "1",
				Laps:         "24",
				Status:       "Finished",
				Driver:       jolpica.DriverRef{DriverID: "hamilton"},
				Constructor:  jolpica.TeamRef{ConstructorID: "mercedes"},
				Time:         &jolpica.ResultTime{Millis: "1820000"},
			}},
		}}},
	}}

	batch, err := l.Transform(ctx, payload)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if repo.sessionType != "SR" {
		t.Fatalf("expected SR session filter, got %q", repo.sessionType)
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
	if col("sprint_time_milliseconds") != int64(1820000) {
		t.Fatalf("sprint ms=%v", col("sprint_time_milliseconds"))
	}
	if col("grid_position") != int64(1) {
		t.Fatalf("grid=%v", col("grid_position"))
	}
	if col("points") != 7.0 {
		t.Fatalf("points=%v", col("points"))
	}
}
