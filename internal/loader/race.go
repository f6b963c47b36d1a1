package loader

import (
	"context"

	"github.com/pkg/errors"

	"f1etl/internal/jolpica"
	"f1etl/internal/lookup"
	"f1etl/internal/warehouse"
)

var raceColumns = []string{
	"season_id", "round_id", "session_id", "driver_id", "team_id", "grid_position",
	"position", "position_text", "points", "laps_completed", "status", "race_time_milliseconds",
	"fastest_lap_rank", "fastest_lap_number", "fastest_lap_time", "fastest_lap_milliseconds",
}

var raceUpdate = []string{
	"position", "position_text", "points", "laps_completed", "status", "race_time_milliseconds",
	"fastest_lap_rank", "fastest_lap_number", "fastest_lap_time", "fastest_lap_milliseconds",
}

// raceLoader loads one round of race results, including the optional fastest
// lap block (absent for some historical seasons).
type raceLoader struct {
	repo   warehouse.Repository
	client *jolpica.Client
}

func (l *raceLoader) EntityName() string { return "race_result" }

func (l *raceLoader) Extract(ctx context.Context, p Params) (any, error) {
	return l.client.RaceResults(ctx, p.Year, p.Round)
}

func (l *raceLoader) Transform(ctx context.Context, payload any) (*Batch, error) {
	resp, ok := payload.(*jolpica.Response)
	if !ok {
		return nil, errors.Errorf("race_result: unexpected payload %T", payload)
	}
	races := resp.Races()
	if len(races) == 0 {
		return &Batch{}, nil
	}
	race := races[0]
	year := int(intOr0(race.Season))
	round := int(intOr0(race.Round))

	maps, err := lookup.Build(ctx, l.repo, year, round, "R")
	if err != nil {
		return nil, err
	}
	ids, err := resolveRoundScope(maps, year, round)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(race.Results))
	for _, res := range race.Results {
		driverID, ok := maps.Driver(res.Driver.DriverID)
		if !ok {
			continue
		}
		teamID, ok := maps.Team(res.Constructor.ConstructorID)
		if !ok {
			continue
		}

		var raceMillis any
		if res.Time != nil {
			raceMillis = optInt(res.Time.Millis)
		}
		var flRank, flNumber, flTime, flMillis any
		if fl := res.FastestLap; fl != nil {
			flRank = optInt(fl.Rank)
			flNumber = optInt(fl.Lap)
			if fl.Time != nil {
				flTime = optStr(fl.Time.Time)
				flMillis = lapTimeMS(fl.Time.Time)
			}
		}

		rows = append(rows, []any{
			ids.seasonID, ids.roundID, ids.sessionID, driverID, teamID, intOr0(res.Grid),
			intOr0(res.Position), optStr(res.PositionText), floatOr0(res.Points),
			intOr0(res.Laps), optStr(res.Status), raceMillis,
			flRank, flNumber, flTime, flMillis,
		})
	}

	return &Batch{
		Columns:  raceColumns,
		Rows:     rows,
		Conflict: []string{"season_id", "round_id", "driver_id"},
		Update:   raceUpdate,
	}, nil
}

func (l *raceLoader) Load(ctx context.Context, batch *Batch) (int64, error) {
	return l.repo.UpsertRows(ctx, "race_result", batch.Columns, batch.Rows, batch.Conflict, batch.Update)
}
