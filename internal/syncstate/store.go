// Package syncstate decides what incremental work is due, based on the
// per-entity watermarks the warehouse keeps.
package syncstate

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"f1etl/internal/entity"
	"f1etl/internal/warehouse"
)

// DefaultBufferDays is how long after a race the results are left to settle
// (stewards' decisions, penalties) before the pipeline picks them up.
const DefaultBufferDays = 3

// Store answers scheduling questions against the warehouse watermarks.
type Store struct {
	repo       warehouse.Repository
	bufferDays int
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBufferDays overrides the settle buffer.
func WithBufferDays(days int) Option {
	return func(s *Store) { s.bufferDays = days }
}

// WithClock fixes the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(repo warehouse.Repository, opts ...Option) *Store {
	s := &Store{
		repo:       repo,
		bufferDays: DefaultBufferDays,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Watermark returns the entity's watermark. A never-synced entity yields a
// zero-value watermark with Status "pending" rather than an error.
func (s *Store) Watermark(ctx context.Context, name string) (warehouse.Watermark, error) {
	wm, err := s.repo.SelectWatermark(ctx, name)
	if err != nil {
		return warehouse.Watermark{}, errors.Wrapf(err, "watermark %s", name)
	}
	if wm == nil {
		return warehouse.Watermark{Entity: name, Status: "pending"}, nil
	}
	return *wm, nil
}

// ShouldLoad reports whether the entity has work due for season.
//
// Rules:
//   - Never synced: always true.
//   - Pre-season strategy: true iff the last-synced season is unset or
//     strictly behind season (one load per season).
//   - Post-race strategy: true iff a qualifying event occurred after the last
//     successful sync. Only events at least bufferDays in the past count, and
//     only when the event date is after last sync minus one day. The one-day
//     grace absorbs clock/timezone skew between the date-only race date and
//     the full sync timestamp.
//   - The sprint entity applies the same rule restricted to rounds that have
//     a sprint session.
func (s *Store) ShouldLoad(ctx context.Context, desc entity.Descriptor, season int) (bool, string, error) {
	wm, err := s.Watermark(ctx, desc.Name)
	if err != nil {
		return false, "", err
	}

	if wm.LastSync == nil {
		return true, "never synced", nil
	}

	switch desc.Strategy {
	case entity.PreSeason:
		if wm.SeasonYear == nil || *wm.SeasonYear < season {
			return true, fmt.Sprintf("season %d not loaded", season), nil
		}
		return false, fmt.Sprintf("season %d already loaded", season), nil

	case entity.PostRace:
		var dates []time.Time
		if desc.Name == "sprint_result" {
			dates, err = s.repo.SprintRaceDates(ctx, season)
		} else {
			dates, err = s.repo.RaceDates(ctx, season)
		}
		if err != nil {
			return false, "", errors.Wrapf(err, "event dates %s", desc.Name)
		}

		cutoff := s.now().AddDate(0, 0, -s.bufferDays)
		floor := wm.LastSync.AddDate(0, 0, -1)
		for _, d := range dates {
			if !d.After(cutoff) && d.After(floor) {
				return true, fmt.Sprintf("event %s settled", d.Format("2006-01-02")), nil
			}
		}
		return false, "no settled event since last sync", nil

	default:
		return false, "", errors.Errorf("unknown strategy %q for %s", desc.Strategy, desc.Name)
	}
}

// NextRound returns the next round to load for season, or (0, false) when the
// entity is fully caught up and the caller must skip.
//
// Edge cases:
//   - Never synced, or the watermark's season behind season: round 1. This
//     check runs before any round comparison so a season rollover always
//     restarts from 1 even with a high stale round number.
func (s *Store) NextRound(ctx context.Context, name string, season int) (int, bool, error) {
	wm, err := s.Watermark(ctx, name)
	if err != nil {
		return 0, false, err
	}

	if wm.LastSync == nil || wm.SeasonYear == nil || *wm.SeasonYear < season {
		return 1, true, nil
	}

	maxRound, err := s.repo.MaxRound(ctx, season)
	if err != nil {
		return 0, false, errors.Wrapf(err, "max round %d", season)
	}

	last := 0
	if wm.RoundNumber != nil {
		last = *wm.RoundNumber
	}
	if last < maxRound {
		return last + 1, true, nil
	}
	return 0, false, nil
}

// StartSync marks the entity running and opens a log entry.
func (s *Store) StartSync(ctx context.Context, name string) (int64, error) {
	id, err := s.repo.StartSync(ctx, name)
	if err != nil {
		return 0, errors.Wrapf(err, "start sync %s", name)
	}
	return id, nil
}

// CompleteSync finalizes the log entry and merges the watermark delta.
func (s *Store) CompleteSync(ctx context.Context, name string, logID int64, res warehouse.SyncResult) error {
	if err := s.repo.CompleteSync(ctx, name, logID, res); err != nil {
		return errors.Wrapf(err, "complete sync %s", name)
	}
	return nil
}
