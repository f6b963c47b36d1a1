package loader

import (
	"context"

	"github.com/pkg/errors"

	"f1etl/internal/jolpica"
	"f1etl/internal/lookup"
	"f1etl/internal/warehouse"
)

var qualifyingColumns = []string{
	"season_id", "round_id", "last_session_id", "driver_id", "team_id", "position",
	"q1_time", "q1_time_milliseconds",
	"q2_time", "q2_time_milliseconds",
	"q3_time", "q3_time_milliseconds",
}

var qualifyingUpdate = []string{
	"position",
	"q1_time", "q1_time_milliseconds",
	"q2_time", "q2_time_milliseconds",
	"q3_time", "q3_time_milliseconds",
}

// qualifyingLoader loads one round of qualifying results. Timing fields are
// nullable: a session a driver never reached (no Q3 lap) stays null.
type qualifyingLoader struct {
	repo   warehouse.Repository
	client *jolpica.Client
}

func (l *qualifyingLoader) EntityName() string { return "qualifying_result" }

func (l *qualifyingLoader) Extract(ctx context.Context, p Params) (any, error) {
	return l.client.QualifyingResults(ctx, p.Year, p.Round)
}

func (l *qualifyingLoader) Transform(ctx context.Context, payload any) (*Batch, error) {
	resp, ok := payload.(*jolpica.Response)
	if !ok {
		return nil, errors.Errorf("qualifying_result: unexpected payload %T", payload)
	}
	races := resp.Races()
	if len(races) == 0 {
		return &Batch{}, nil
	}
	race := races[0]
	year := int(intOr0(race.Season))
	round := int(intOr0(race.Round))

	maps, err := lookup.Build(ctx, l.repo, year, round, "Q3")
	if err != nil {
		return nil, err
	}
	ids, err := resolveRoundScope(maps, year, round)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(race.QualifyingResults))
	for _, res := range race.QualifyingResults {
		driverID, ok := maps.Driver(res.Driver.DriverID)
		if !ok {
			continue
		}
		teamID, ok := maps.Team(res.Constructor.ConstructorID)
		if !ok {
			continue
		}

		rows = append(rows, []any{
			ids.seasonID, ids.roundID, ids.sessionID, driverID, teamID, intOr0(res.Position),
			optStr(res.Q1), lapTimeMS(res.Q1),
			optStr(res.Q2), lapTimeMS(res.Q2),
			optStr(res.Q3), lapTimeMS(res.Q3),
		})
	}

	return &Batch{
		Columns:  qualifyingColumns,
		Rows:     rows,
		Conflict: []string{"season_id", "round_id", "driver_id"},
		Update:   qualifyingUpdate,
	}, nil
}

func (l *qualifyingLoader) Load(ctx context.Context, batch *Batch) (int64, error) {
	return l.repo.UpsertRows(ctx, "qualifying_result", batch.Columns, batch.Rows, batch.Conflict, batch.Update)
}

// roundScope bundles the ids every per-round record shares.
type roundScope struct {
	seasonID  int64
	roundID   int64
	sessionID int64
	sessionNo int
}

// resolveRoundScope resolves the season, round and session ids for a round.
// These come from the pre-season schedule; a miss means the schedule for that
// season has not been loaded yet, which is a dependency violation rather than
// a skippable record.
func resolveRoundScope(maps *lookup.Maps, year, round int) (roundScope, error) {
	var ids roundScope
	var ok bool

	if ids.seasonID, ok = maps.Season(); !ok {
		return ids, errors.Errorf("season %d not in warehouse", year)
	}
	if ids.roundID, ok = maps.Round(); !ok {
		return ids, errors.Errorf("round %d/%d not in warehouse", year, round)
	}
	ref, ok := maps.Session(ids.roundID)
	if !ok {
		return ids, errors.Errorf("no session for round %d/%d", year, round)
	}
	ids.sessionID = ref.ID
	ids.sessionNo = ref.Number
	return ids, nil
}
