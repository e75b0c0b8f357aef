// Package app wires the sync pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/archive"
	"github.com/dvloznov/spending-tracker/internal/config"
	"github.com/dvloznov/spending-tracker/internal/diavgeia"
	"github.com/dvloznov/spending-tracker/internal/domain"
	infraBQ "github.com/dvloznov/spending-tracker/internal/infra/bigquery"
	"github.com/dvloznov/spending-tracker/internal/infra/postgres"
	"github.com/dvloznov/spending-tracker/internal/jobs"
	"github.com/dvloznov/spending-tracker/internal/logger"
	"github.com/dvloznov/spending-tracker/internal/pipeline"
	"gorm.io/gorm"
)

// App holds the long-lived collaborators of one process.
type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Store        *postgres.Store
	Orchestrator *pipeline.Orchestrator
	Replayer     *pipeline.Replayer

	archive   *archive.Archive
	warehouse *infraBQ.Warehouse
}

// New opens the database and builds the orchestrator. The archive and the
// warehouse are wired only when configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("New: invalid configuration: %w", err)
	}
	start, _ := cfg.BackfillStart()

	db, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	a := &App{Config: cfg, DB: db, Store: postgres.NewStore(db)}

	if postgres.IsSQLite(db) {
		if err := postgres.AutoMigrate(db); err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
	}

	clientOpts := []diavgeia.Option{
		diavgeia.WithHTTPClient(&http.Client{Timeout: cfg.Source.Timeout}),
		diavgeia.WithPageSize(cfg.Source.PageSize),
		diavgeia.WithRequestDelay(cfg.Source.RequestDelay),
	}

	if cfg.Archive.Bucket != "" {
		a.archive, err = archive.New(ctx, cfg.Archive.Bucket, cfg.ArchivePrefix())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		clientOpts = append(clientOpts, diavgeia.WithPageHook(a.archive.Hook()))
		log.Info().Str("bucket", cfg.Archive.Bucket).Str("prefix", cfg.ArchivePrefix()).Msg("raw page archive enabled")
	}

	var exporter pipeline.Exporter
	if cfg.Warehouse.Project != "" {
		a.warehouse, err = infraBQ.New(ctx, cfg.Warehouse.Project, cfg.Warehouse.Dataset, cfg.Warehouse.Table)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		exporter = a.warehouse
		log.Info().Str("project", cfg.Warehouse.Project).Str("dataset", cfg.Warehouse.Dataset).Msg("warehouse mirror enabled")
	}

	normalizer := pipeline.NewNormalizer(cfg.Source.OrgTaxID)
	normalizer.DefaultCurrency = cfg.Source.DefaultCurrency
	refresher := postgres.NewRefresher(db)

	a.Orchestrator = pipeline.NewOrchestrator(pipeline.Deps{
		Fetcher:    diavgeia.NewClient(cfg.Source.BaseURL, cfg.Source.OrgID, clientOpts...),
		Normalizer: normalizer,
		Store:      a.Store,
		Refresher:  refresher,
		Exporter:   exporter,
	}, pipeline.Options{
		BackfillStart: start,
		WindowMonths:  cfg.Backfill.WindowMonths,
		LookbackDays:  cfg.LookbackDays(),
		OverlapDays:   cfg.OverlapDays(),
	})

	if a.archive != nil {
		a.Replayer = &pipeline.Replayer{
			Source:     a.archive,
			Normalizer: normalizer,
			Reconciler: a.Store,
			Refresher:  refresher,
		}
	}
	return a, nil
}

// Close releases every resource the App opened.
func (a *App) Close() error {
	var errs []error
	if a.warehouse != nil {
		errs = append(errs, a.warehouse.Close())
	}
	if a.archive != nil {
		errs = append(errs, a.archive.Close())
	}
	if a.DB != nil {
		errs = append(errs, postgres.Close(a.DB))
	}
	return errors.Join(errs...)
}

// RunJob executes one queued sync job.
func (a *App) RunJob(ctx context.Context, job *jobs.SyncJob) (jobs.Result, error) {
	return runJobWith(ctx, a.Orchestrator, job)
}

func runJobWith(ctx context.Context, r Runner, job *jobs.SyncJob) (jobs.Result, error) {
	report, err := Run(ctx, r, job.Kind, job.From, job.To)
	if report == nil {
		return jobs.Result{}, err
	}
	return jobs.Result{RunID: report.RunID, RunStatus: report.Status}, err
}

// Runner is the orchestrator surface Run needs.
type Runner interface {
	BackfillRange() domain.Window
	RunHistorical(ctx context.Context, r domain.Window) (*pipeline.RunReport, error)
	RunIncremental(ctx context.Context) (*pipeline.RunReport, error)
	RunIncrementalRange(ctx context.Context, w domain.Window) (*pipeline.RunReport, error)
}

// Run dispatches a sync of kind over the optional [from, to) override.
// A historical run that did not fully succeed is reported as an error so
// callers can retry it.
func Run(ctx context.Context, r Runner, kind domain.SyncKind, from, to *civil.Date) (*pipeline.RunReport, error) {
	switch kind {
	case domain.SyncHistorical:
		w := r.BackfillRange()
		if from != nil {
			w.From = *from
		}
		if to != nil {
			w.To = *to
		}
		if w.Empty() {
			return nil, fmt.Errorf("Run: empty range %s", w)
		}
		report, err := r.RunHistorical(ctx, w)
		if err == nil && report.Status != domain.RunSucceeded {
			err = fmt.Errorf("Run: historical run %d ended %s with %d failed window(s)", report.RunID, report.Status, len(report.Failures))
		}
		return report, err

	case domain.SyncIncremental:
		if from == nil && to == nil {
			return r.RunIncremental(ctx)
		}
		if from == nil || to == nil {
			return nil, errors.New("Run: an incremental range needs both from and to")
		}
		w := domain.Window{From: *from, To: *to}
		if w.Empty() {
			return nil, fmt.Errorf("Run: empty range %s", w)
		}
		return r.RunIncrementalRange(ctx, w)

	default:
		return nil, fmt.Errorf("Run: unknown sync kind %q", kind)
	}
}
