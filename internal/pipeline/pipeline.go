// Package pipeline orchestrates entity loads for one run: it resolves the
// entity set for the requested mode, gates each entity on its watermark, and
// drives the loaders in dependency order.
//
// One entity failing never stops the run; the summary reports per-entity
// outcomes and the caller maps them to an exit code.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"f1etl/internal/entity"
	"f1etl/internal/jolpica"
	"f1etl/internal/loader"
	"f1etl/internal/syncstate"
	"f1etl/internal/warehouse"
)

// Statuses recorded per entity in the run summary.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Detail is the outcome of one entity within a run.
type Detail struct {
	Entity   string
	Status   string
	Round    int   // round loaded, 0 when not round-scoped
	Records  int64 // records processed on success
	Duration time.Duration
	Reason   string // skip reason or failure stage
}

// Summary aggregates one pipeline run.
type Summary struct {
	RunID   string
	Mode    string
	Season  int
	Started time.Time
	Details []Detail
}

// Failed reports how many entities ended in failure.
func (s *Summary) Failed() int {
	n := 0
	for _, d := range s.Details {
		if d.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Render formats the summary as a fixed-width table for the CLI.
func (s *Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s mode=%s season=%d\n", s.RunID, s.Mode, s.Season)
	for _, d := range s.Details {
		fmt.Fprintf(&b, "  %-20s %-8s", d.Entity, d.Status)
		if d.Round > 0 {
			fmt.Fprintf(&b, " round=%d", d.Round)
		}
		if d.Status == StatusSuccess {
			fmt.Fprintf(&b, " records=%d", d.Records)
		}
		if d.Status != StatusSkipped {
			fmt.Fprintf(&b, " took=%s", d.Duration.Round(time.Millisecond))
		}
		if d.Reason != "" {
			fmt.Fprintf(&b, " (%s)", d.Reason)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Pipeline wires the watermark store, warehouse and API client into runnable
// entity loads.
type Pipeline struct {
	store  *syncstate.Store
	repo   warehouse.Repository
	client *jolpica.Client
	runner *loader.Runner
	force  bool
	log    zerolog.Logger
}

// Config holds the pipeline collaborators.
type Config struct {
	Store  *syncstate.Store
	Repo   warehouse.Repository
	Client *jolpica.Client

	// Force bypasses the watermark freshness gate. Round advancement still
	// applies: an entity with no next round is skipped even when forced.
	Force bool

	Log zerolog.Logger
}

func New(cfg Config) *Pipeline {
	return &Pipeline{
		store:  cfg.Store,
		repo:   cfg.Repo,
		client: cfg.Client,
		runner: loader.NewRunner(cfg.Store, cfg.Log),
		force:  cfg.Force,
		log:    cfg.Log,
	}
}

// RunMode processes every entity of mode for season, in load order.
//
// The bulk dump is downloaded at most once per run and shared by all
// dump-sourced entities; the download is deferred until the first entity that
// actually needs it, so a fully up-to-date run never touches the dump surface.
func (p *Pipeline) RunMode(ctx context.Context, mode string, season int) (*Summary, error) {
	names, ok := entity.Modes[mode]
	if !ok {
		return nil, errors.Errorf("pipeline: unknown mode %q", mode)
	}

	runID := uuid.NewString()
	log := p.log.With().Str("run_id", runID).Str("mode", mode).Int("season", season).Logger()
	log.Info().Int("entities", len(names)).Msg("run started")

	sum := &Summary{RunID: runID, Mode: mode, Season: season, Started: time.Now()}
	getArchive := p.archiveOnce(log)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return sum, errors.Wrap(err, "pipeline: run interrupted")
		}
		desc, ok := entity.Get(name)
		if !ok {
			return sum, errors.Errorf("pipeline: unknown entity %q in mode %s", name, mode)
		}
		sum.Details = append(sum.Details, p.runEntity(ctx, log, desc, season, getArchive))
	}

	log.Info().Int("failed", sum.Failed()).Int("total", len(sum.Details)).Msg("run finished")
	return sum, nil
}

// RunTable loads a single entity on demand, bypassing the freshness gate.
// round applies to round-scoped entities; 0 means "next unloaded round".
func (p *Pipeline) RunTable(ctx context.Context, name string, season, round int) (*Summary, error) {
	desc, ok := entity.Get(name)
	if !ok {
		return nil, errors.Errorf("pipeline: unknown entity %q", name)
	}

	runID := uuid.NewString()
	log := p.log.With().Str("run_id", runID).Str("entity", name).Int("season", season).Logger()

	sum := &Summary{RunID: runID, Mode: "table", Season: season, Started: time.Now()}

	forced := &Pipeline{
		store:  p.store,
		repo:   p.repo,
		client: p.client,
		runner: p.runner,
		force:  true,
		log:    p.log,
	}
	if desc.Strategy == entity.PostRace && round > 0 {
		sum.Details = append(sum.Details, forced.runRound(ctx, desc, season, round))
	} else {
		sum.Details = append(sum.Details, forced.runEntity(ctx, log, desc, season, p.archiveOnce(log)))
	}
	return sum, nil
}

// archiveOnce returns a fetcher that downloads the bulk dump on first use and
// reuses it afterwards.
func (p *Pipeline) archiveOnce(log zerolog.Logger) func(ctx context.Context) (*jolpica.Archive, error) {
	var cached *jolpica.Archive
	return func(ctx context.Context) (*jolpica.Archive, error) {
		if cached != nil {
			return cached, nil
		}
		log.Info().Msg("fetching bulk dump")
		a, err := p.client.FetchArchive(ctx)
		if err != nil {
			return nil, err
		}
		cached = a
		return cached, nil
	}
}

func (p *Pipeline) runEntity(ctx context.Context, log zerolog.Logger, desc entity.Descriptor, season int, getArchive func(context.Context) (*jolpica.Archive, error)) Detail {
	start := time.Now()
	det := Detail{Entity: desc.Name}

	if !p.force {
		ok, reason, err := p.store.ShouldLoad(ctx, desc, season)
		if err != nil {
			det.Status = StatusFailed
			det.Reason = err.Error()
			det.Duration = time.Since(start)
			return det
		}
		if !ok {
			log.Info().Str("entity", desc.Name).Str("reason", reason).Msg("skipped")
			det.Status = StatusSkipped
			det.Reason = reason
			return det
		}
	}

	params := loader.Params{Year: season}
	switch desc.Strategy {
	case entity.PostRace:
		round, ok, err := p.store.NextRound(ctx, desc.Name, season)
		if err != nil {
			det.Status = StatusFailed
			det.Reason = err.Error()
			det.Duration = time.Since(start)
			return det
		}
		if !ok {
			log.Info().Str("entity", desc.Name).Msg("all rounds loaded")
			det.Status = StatusSkipped
			det.Reason = "all rounds loaded"
			return det
		}
		params.Round = round
		det.Round = round
	default:
		a, err := getArchive(ctx)
		if err != nil {
			det.Status = StatusFailed
			det.Reason = err.Error()
			det.Duration = time.Since(start)
			return det
		}
		params.Archive = a
	}

	l := loader.New(desc, p.repo, p.client)
	if records, ok := p.runner.Run(ctx, l, params); ok {
		det.Status = StatusSuccess
		det.Records = records
	} else {
		det.Status = StatusFailed
		det.Reason = "sync failed, see sync log"
	}
	det.Duration = time.Since(start)
	return det
}

// runRound loads one explicit round for a round-scoped entity.
func (p *Pipeline) runRound(ctx context.Context, desc entity.Descriptor, season, round int) Detail {
	start := time.Now()
	det := Detail{Entity: desc.Name, Round: round}

	l := loader.New(desc, p.repo, p.client)
	if records, ok := p.runner.Run(ctx, l, loader.Params{Year: season, Round: round}); ok {
		det.Status = StatusSuccess
		det.Records = records
	} else {
		det.Status = StatusFailed
		det.Reason = "sync failed, see sync log"
	}
	det.Duration = time.Since(start)
	return det
}
