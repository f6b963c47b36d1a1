package loader

import (
	"context"

	"github.com/pkg/errors"

	"f1etl/internal/jolpica"
	"f1etl/internal/lookup"
	"f1etl/internal/warehouse"
)

var standingsUpdate = []string{"position", "points", "win_count"}

// standingsLoader loads championship standings after a round, for drivers or
// constructors. The two variants differ only in the subject column and the
// source list.
type standingsLoader struct {
	repo     warehouse.Repository
	client   *jolpica.Client
	forTeams bool
}

func (l *standingsLoader) EntityName() string {
	if l.forTeams {
		return "team_championship"
	}
	return "driver_championship"
}

func (l *standingsLoader) table() string { return l.EntityName() }

func (l *standingsLoader) subjectColumn() string {
	if l.forTeams {
		return "team_id"
	}
	return "driver_id"
}

func (l *standingsLoader) columns() []string {
	return []string{
		"season_id", "round_id", "session_id", l.subjectColumn(),
		"round_number", "session_number", "year", "position", "points", "win_count",
	}
}

func (l *standingsLoader) Extract(ctx context.Context, p Params) (any, error) {
	if l.forTeams {
		return l.client.ConstructorStandings(ctx, p.Year, p.Round)
	}
	return l.client.DriverStandings(ctx, p.Year, p.Round)
}

func (l *standingsLoader) Transform(ctx context.Context, payload any) (*Batch, error) {
	resp, ok := payload.(*jolpica.Response)
	if !ok {
		return nil, errors.Errorf("%s: unexpected payload %T", l.EntityName(), payload)
	}
	list := resp.Standings()
	if list == nil {
		return &Batch{}, nil
	}
	year := int(intOr0(list.Season))
	round := int(intOr0(list.Round))

	maps, err := lookup.Build(ctx, l.repo, year, round, "R")
	if err != nil {
		return nil, err
	}
	ids, err := resolveRoundScope(maps, year, round)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	if l.forTeams {
		for _, st := range list.ConstructorStandings {
			teamID, ok := maps.Team(st.Constructor.ConstructorID)
			if !ok {
				continue
			}
			rows = append(rows, l.row(ids, teamID, year, round, st.Position, st.Points, st.Wins))
		}
	} else {
		for _, st := range list.DriverStandings {
			driverID, ok := maps.Driver(st.Driver.DriverID)
			if !ok {
				continue
			}
			rows = append(rows, l.row(ids, driverID, year, round, st.Position, st.Points, st.Wins))
		}
	}

	return &Batch{
		Columns:  l.columns(),
		Rows:     rows,
		Conflict: []string{"season_id", "round_id", l.subjectColumn()},
		Update:   standingsUpdate,
	}, nil
}

func (l *standingsLoader) row(ids roundScope, subjectID int64, year, round int, position, points, wins string) []any {
	return []any{
		ids.seasonID, ids.roundID, ids.sessionID, subjectID,
		round, ids.sessionNo, year,
		intOr0(position), floatOr0(points), intOr0(wins),
	}
}

func (l *standingsLoader) Load(ctx context.Context, batch *Batch) (int64, error) {
	return l.repo.UpsertRows(ctx, l.table(), batch.Columns, batch.Rows, batch.Conflict, batch.Update)
}
