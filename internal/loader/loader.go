// Package loader implements the per-entity extract, transform, load cycle.
//
// Each entity gets one Loader; Runner drives the shared template around it,
// recording the attempt in the sync metadata regardless of outcome.
package loader

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"f1etl/internal/entity"
	"f1etl/internal/jolpica"
	"f1etl/internal/metrics"
	"f1etl/internal/syncstate"
	"f1etl/internal/warehouse"
)

// Params carries the run arguments down to extract.
//
// Archive, when set, is a bulk dump the orchestrator already fetched; bulk
// loaders consume it instead of downloading their own copy.
type Params struct {
	Year    int
	Round   int
	Archive *jolpica.Archive
}

// Batch is the output of a transform: rows in column order, plus the key
// metadata the load step needs.
type Batch struct {
	Columns []string
	Rows    [][]any

	// Conflict and Update drive the set-reconciling upsert. Bulk loaders
	// leave them empty and load via append-diff instead.
	Conflict []string
	Update   []string
}

func (b *Batch) empty() bool { return b == nil || len(b.Rows) == 0 }

// Loader is the shared per-entity contract.
type Loader interface {
	EntityName() string

	// Extract fetches the raw payload. A nil payload with nil error means
	// "nothing to process" and short-circuits as a zero-record success.
	Extract(ctx context.Context, p Params) (any, error)

	// Transform turns the raw payload into a Batch. Records whose foreign
	// keys cannot be resolved are dropped, not errors.
	Transform(ctx context.Context, payload any) (*Batch, error)

	// Load writes the batch in a single transaction and returns the number
	// of records processed.
	Load(ctx context.Context, batch *Batch) (int64, error)
}

// New constructs the Loader for an entity descriptor.
func New(desc entity.Descriptor, repo warehouse.Repository, client *jolpica.Client) Loader {
	switch desc.Name {
	case "qualifying_result":
		return &qualifyingLoader{repo: repo, client: client}
	case "sprint_result":
		return &sprintLoader{repo: repo, client: client}
	case "race_result":
		return &raceLoader{repo: repo, client: client}
	case "driver_championship":
		return &standingsLoader{repo: repo, client: client, forTeams: false}
	case "team_championship":
		return &standingsLoader{repo: repo, client: client, forTeams: true}
	default:
		return &bulkLoader{desc: desc, repo: repo, client: client}
	}
}

// Runner wraps every loader invocation with watermark bookkeeping.
type Runner struct {
	store *syncstate.Store
	log   zerolog.Logger
}

func NewRunner(store *syncstate.Store, log zerolog.Logger) *Runner {
	return &Runner{store: store, log: log}
}

// Run executes the full cycle for one entity and reports the records
// processed plus success.
//
// Failure semantics: any error from extract, transform or load is recorded
// via the sync log and converted into a false return. Errors never propagate
// to the caller, so one entity's failure cannot halt a batch.
func (r *Runner) Run(ctx context.Context, l Loader, p Params) (int64, bool) {
	name := l.EntityName()
	start := time.Now()
	log := r.log.With().Str("entity", name).Logger()

	logID, err := r.store.StartSync(ctx, name)
	if err != nil {
		log.Error().Err(err).Msg("start sync failed")
		r.observe(name, "failed", 0, time.Since(start))
		return 0, false
	}
	log.Info().Int("year", p.Year).Int("round", p.Round).Msg("sync started")

	fail := func(stage string, err error) (int64, bool) {
		log.Error().Err(err).Str("stage", stage).Msg("sync failed")
		res := warehouse.SyncResult{
			Success:      false,
			Duration:     time.Since(start),
			ErrorMessage: stage + ": " + err.Error(),
		}
		if cErr := r.store.CompleteSync(ctx, name, logID, res); cErr != nil {
			log.Error().Err(cErr).Msg("recording failure failed")
		}
		r.observe(name, "failed", 0, time.Since(start))
		return 0, false
	}

	succeed := func(records int64) (int64, bool) {
		res := warehouse.SyncResult{
			Success:     true,
			Records:     records,
			Duration:    time.Since(start),
			SeasonYear:  p.Year,
			RoundNumber: p.Round,
		}
		if err := r.store.CompleteSync(ctx, name, logID, res); err != nil {
			log.Error().Err(err).Msg("recording success failed")
			r.observe(name, "failed", records, time.Since(start))
			return records, false
		}
		log.Info().Int64("records", records).Dur("took", time.Since(start)).Msg("sync complete")
		r.observe(name, "success", records, time.Since(start))
		return records, true
	}

	payload, err := l.Extract(ctx, p)
	if err != nil {
		return fail("extract", err)
	}
	if payload == nil {
		log.Info().Msg("nothing to process")
		return succeed(0)
	}

	batch, err := l.Transform(ctx, payload)
	if err != nil {
		return fail("transform", err)
	}
	if batch.empty() {
		log.Info().Msg("no records after transform")
		return succeed(0)
	}

	count, err := l.Load(ctx, batch)
	if err != nil {
		return fail("load", err)
	}
	return succeed(count)
}

func (r *Runner) observe(entity, status string, records int64, took time.Duration) {
	metrics.IncCounter("f1etl_syncs_total", 1, metrics.Labels{"entity": entity, "status": status})
	if records > 0 {
		metrics.IncCounter("f1etl_records_total", float64(records), metrics.Labels{"entity": entity})
	}
	metrics.ObserveHistogram("f1etl_sync_duration_seconds", took.Seconds(), metrics.Labels{"entity": entity, "status": status})
}
