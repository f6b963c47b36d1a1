package loader

import (
	"context"

	"github.com/pkg/errors"

	"f1etl/internal/jolpica"
	"f1etl/internal/lookup"
	"f1etl/internal/warehouse"
)

var sprintColumns = []string{
	"season_id", "round_id", "session_id", "driver_id", "team_id", "position",
	"position_text", "points", "grid_position", "laps_completed", "status",
	"sprint_time_milliseconds",
}

var sprintUpdate = []string{
	"position", "position_text", "points", "grid_position", "laps_completed",
	"status", "sprint_time_milliseconds",
}

// sprintLoader loads one round of sprint results. Only rounds with a sprint
// session ever reach it; the scheduler filters the rest.
type sprintLoader struct {
	repo   warehouse.Repository
	client *jolpica.Client
}

func (l *sprintLoader) EntityName() string { return "sprint_result" }

func (l *sprintLoader) Extract(ctx context.Context, p Params) (any, error) {
	return l.client.SprintResults(ctx, p.Year, p.Round)
}

func (l *sprintLoader) Transform(ctx context.Context, payload any) (*Batch, error) {
	resp, ok := payload.(*jolpica.Response)
	if !ok {
		return nil, errors.Errorf("sprint_result: unexpected payload %T", payload)
	}
	races := resp.Races()
	if len(races) == 0 {
		return &Batch{}, nil
	}
	race := races[0]
	year := int(intOr0(race.Season))
	round := int(intOr0(race.Round))

	maps, err := lookup.Build(ctx, l.repo, year, round, "SR")
	if err != nil {
		return nil, err
	}
	ids, err := resolveRoundScope(maps, year, round)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(race.SprintResults))
	for _, res := range race.SprintResults {
		driverID, ok := maps.Driver(res.Driver.DriverID)
		if !ok {
			continue
		}
		teamID, ok := maps.Team(res.Constructor.ConstructorID)
		if !ok {
			continue
		}

		var sprintMillis any
		if res.Time != nil {
			sprintMillis = optInt(res.Time.Millis)
		}

		rows = append(rows, []any{
			ids.seasonID, ids.roundID, ids.sessionID, driverID, teamID, intOr0(res.Position),
			optStr(res.PositionText), floatOr0(res.Points), optInt(res.Grid),
			intOr0(res.Laps), optStr(res.Status), sprintMillis,
		})
	}

	return &Batch{
		Columns:  sprintColumns,
		Rows:     rows,
		Conflict: []string{"season_id", "round_id", "driver_id"},
		Update:   sprintUpdate,
	}, nil
}

func (l *sprintLoader) Load(ctx context.Context, batch *Batch) (int64, error) {
	return l.repo.UpsertRows(ctx, "sprint_result", batch.Columns, batch.Rows, batch.Conflict, batch.Update)
}
