// Command f1etl runs the incremental Formula 1 warehouse pipeline.
//
// Modes:
//
//	f1etl -mode all          load everything in dependency order
//	f1etl -mode pre_season   reference data from the bulk dump
//	f1etl -mode post_race    results and standings for settled rounds
//	f1etl -table race_result -round 5   ad-hoc single-entity load
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"f1etl/internal/config"
	"f1etl/internal/entity"
	"f1etl/internal/jolpica"
	"f1etl/internal/metrics"
	"f1etl/internal/metrics/datadog"
	"f1etl/internal/migration"
	"f1etl/internal/pipeline"
	"f1etl/internal/syncstate"
	"f1etl/internal/warehouse"

	// register all warehouse backends with the factory.
	_ "f1etl/internal/warehouse/all"
)

func main() {
	var (
		mode    string
		table   string
		year    int
		round   int
		force   bool
		cfgPath string
	)

	flag.StringVar(&mode, "mode", "all", "run mode: all, pre_season or post_race")
	flag.StringVar(&table, "table", "", "load a single entity instead of a mode")
	flag.IntVar(&year, "year", time.Now().Year(), "season to load")
	flag.IntVar(&round, "round", 0, "explicit round for -table (0 = next unloaded)")
	flag.BoolVar(&force, "force", false, "bypass the watermark freshness gate")
	flag.StringVar(&cfgPath, "config", "", "config file path (default: ./config.yaml if present)")
	flag.Parse()

	os.Exit(run(mode, table, year, round, force, cfgPath))
}

func run(mode, table string, year, round int, force bool, cfgPath string) int {
	if err := entity.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "entity registry: %v\n", err)
		return 1
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.Kind == "postgres" {
		if err := migration.Run(cfg.Database.DSN, cfg.Database.MetaSchema, log); err != nil {
			log.Error().Err(err).Msg("migrations failed")
			return 1
		}
	}

	repo, err := warehouse.New(ctx, warehouse.Config{
		Kind:       cfg.Database.Kind,
		DSN:        cfg.Database.DSN,
		Schema:     cfg.Database.Schema,
		MetaSchema: cfg.Database.MetaSchema,
	})
	if err != nil {
		log.Error().Err(err).Msg("warehouse connect failed")
		return 1
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("warehouse unreachable")
		return 1
	}
	if cfg.Database.Kind != "postgres" {
		if err := repo.EnsureMetadata(ctx); err != nil {
			log.Error().Err(err).Msg("metadata setup failed")
			return 1
		}
	}

	closeMetrics := setupMetrics(ctx, cfg.Metrics, log)
	defer closeMetrics()

	client := jolpica.NewClient(jolpica.Options{
		BaseURL:      cfg.Source.BaseURL,
		DumpIndexURL: cfg.Source.DumpIndexURL,
		Timeout:      cfg.Source.Timeout,
		MaxAttempts:  cfg.Source.MaxAttempts,
	}, log)

	store := syncstate.New(repo, syncstate.WithBufferDays(cfg.Sync.BufferDays))
	p := pipeline.New(pipeline.Config{
		Store:  store,
		Repo:   repo,
		Client: client,
		Force:  force,
		Log:    log,
	})

	var sum *pipeline.Summary
	if table != "" {
		sum, err = p.RunTable(ctx, table, year, round)
	} else {
		sum, err = p.RunMode(ctx, mode, year)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Msg("interrupted")
			if sum != nil {
				fmt.Print(sum.Render())
			}
			return 130
		}
		log.Error().Err(err).Msg("run failed")
		return 1
	}

	fmt.Print(sum.Render())
	if sum.Failed() > 0 {
		return 1
	}
	return 0
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// setupMetrics installs the configured metrics backend and returns its
// shutdown func.
func setupMetrics(ctx context.Context, cfg config.MetricsConfig, log zerolog.Logger) func() {
	switch cfg.Backend {
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName: cfg.JobName,
			Tags:    datadog.ParseTagsCSV(cfg.Tags),
		})
		if err != nil {
			log.Warn().Err(err).Msg("datadog backend init failed, metrics disabled")
			return func() {}
		}
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Warn().Err(err).Msg("metrics flush failed")
			}
		}
	default:
		return func() {}
	}
}
