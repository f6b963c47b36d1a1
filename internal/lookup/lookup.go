// Package lookup resolves source references (driver slugs, constructor slugs,
// season/round coordinates) to warehouse surrogate ids.
//
// Maps are built fresh for every transform call so rows committed by earlier
// entities in the same run are visible to later ones.
package lookup

import (
	"context"

	"github.com/pkg/errors"

	"f1etl/internal/warehouse"
)

// Maps holds the id maps one transform call needs.
type Maps struct {
	drivers  map[string]int64
	teams    map[string]int64
	sessions map[int64]warehouse.SessionRef

	seasonID int64
	seasonOK bool
	roundID  int64
	roundOK  bool
}

// Build queries the warehouse for the id maps covering one (year, round)
// transform. sessionType filters the session map ('Q3' qualifying, 'SR'
// sprint, 'R' race and standings). round <= 0 skips the round lookup for
// season-scoped calls.
func Build(ctx context.Context, repo warehouse.Repository, year, round int, sessionType string) (*Maps, error) {
	m := &Maps{}

	var err error
	if m.drivers, err = repo.SelectKeyValue(ctx, "driver", "reference", "id"); err != nil {
		return nil, errors.Wrap(err, "driver map")
	}
	if m.teams, err = repo.SelectKeyValue(ctx, "team", "reference", "id"); err != nil {
		return nil, errors.Wrap(err, "team map")
	}
	if m.sessions, err = repo.SessionsByRound(ctx, sessionType); err != nil {
		return nil, errors.Wrap(err, "session map")
	}

	if m.seasonID, m.seasonOK, err = repo.SeasonID(ctx, year); err != nil {
		return nil, errors.Wrap(err, "season id")
	}
	if round > 0 {
		if m.roundID, m.roundOK, err = repo.RoundID(ctx, year, round); err != nil {
			return nil, errors.Wrap(err, "round id")
		}
	}
	return m, nil
}

// Driver resolves a driver reference slug.
func (m *Maps) Driver(ref string) (int64, bool) {
	id, ok := m.drivers[warehouse.NormalizeKey(ref)]
	return id, ok
}

// Team resolves a constructor reference slug.
func (m *Maps) Team(ref string) (int64, bool) {
	id, ok := m.teams[warehouse.NormalizeKey(ref)]
	return id, ok
}

// Season resolves the season id for the year Build was called with.
func (m *Maps) Season() (int64, bool) { return m.seasonID, m.seasonOK }

// Round resolves the round id for the (year, round) Build was called with.
func (m *Maps) Round() (int64, bool) { return m.roundID, m.roundOK }

// Session resolves the typed session for a round id.
func (m *Maps) Session(roundID int64) (warehouse.SessionRef, bool) {
	ref, ok := m.sessions[roundID]
	return ref, ok
}
