package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"perfhrm/internal/domain/audit"
	"perfhrm/internal/domain/auth"
	"perfhrm/internal/domain/evaluation"
	"perfhrm/internal/domain/notifications"
	"perfhrm/internal/platform/config"
	"perfhrm/internal/platform/db"
	"perfhrm/internal/platform/jobs"
	"perfhrm/internal/platform/metrics"
	"perfhrm/internal/platform/tracing"
	"perfhrm/internal/transport/http/middleware"
	"perfhrm/migrations"
)

const serviceName = "perfhrm"

// Version is overridden at build time with -ldflags.
var Version = "dev"

type App struct {
	Config        config.Config
	DB            *pgxpool.Pool
	Router        http.Handler
	Evaluation    *evaluation.Service
	Notifications *notifications.Service
	Metrics       *metrics.Collector
	Jobs          *jobs.Service

	perms       middleware.PermissionStore
	recorder    audit.Recorder
	auditReader *audit.Service
	closers     []func(context.Context) error
}

// New wires the application for cfg.StoreDriver. The caller owns the App and
// must Close it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Metrics: metrics.New()}

	if cfg.TracingEnabled {
		shutdown, err := tracing.Init(serviceName, Version, cfg.TracingOutput)
		if err != nil {
			return nil, fmt.Errorf("tracing init: %w", err)
		}
		app.closers = append(app.closers, shutdown)
	}

	policy := evaluation.DefaultPolicy()
	if cfg.PolicyFile != "" {
		loaded, err := evaluation.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("policy: %w", err)
		}
		policy = loaded
	}

	var (
		store     evaluation.StoreAPI
		assign    evaluation.AssignmentDirectory
		lines     evaluation.EvaluationLineDirectory
		notifyAPI notifications.StoreAPI
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := openPostgres(ctx, cfg)
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		app.DB = pool
		app.closers = append(app.closers, func(context.Context) error {
			pool.Close()
			return nil
		})

		directory := evaluation.NewDirectory(pool)
		if cfg.FixturesFile != "" {
			fixtures, err := evaluation.LoadFixturesFile(cfg.FixturesFile)
			if err != nil {
				app.Close(ctx)
				return nil, fmt.Errorf("fixtures: %w", err)
			}
			if err := directory.Import(ctx, fixtures); err != nil {
				app.Close(ctx)
				return nil, fmt.Errorf("fixtures import: %w", err)
			}
		}
		store = evaluation.NewStore(pool)
		assign, lines = directory, directory
		notifyAPI = notifications.NewStore(pool)
		app.perms = auth.NewStore(pool)
		app.auditReader = audit.New(pool)
		app.recorder = app.auditReader
		app.Jobs = jobs.New(jobs.PGRunLog{DB: pool})
	case config.StoreDriverMemory:
		var fixtures evaluation.Fixtures
		if cfg.FixturesFile != "" {
			loaded, err := evaluation.LoadFixturesFile(cfg.FixturesFile)
			if err != nil {
				app.Close(ctx)
				return nil, fmt.Errorf("fixtures: %w", err)
			}
			fixtures = loaded
		}
		directory := evaluation.NewMemoryDirectory(fixtures)
		store = evaluation.NewMemoryStore()
		assign, lines = directory, directory
		notifyAPI = notifications.NewMemoryStore()
		app.perms = auth.StaticPermissions{}
		app.recorder = audit.LogRecorder{Logger: slog.Default()}
		app.Jobs = jobs.New(jobs.SlogRunLog{})
	}

	app.Evaluation = evaluation.NewService(store, assign, lines,
		evaluation.WithPolicy(policy),
		evaluation.WithRecorder(app.Metrics),
	)
	app.Notifications = notifications.New(notifyAPI)
	app.Router = app.routes()
	return app, nil
}

func openPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if cfg.MigrationsDir != "" {
			err = db.Migrate(ctx, pool, cfg.MigrationsDir)
		} else {
			err = db.MigrateFS(ctx, pool, migrations.FS)
		}
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		if err := db.Seed(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}
	return pool, nil
}

// EnqueueStatusReport queues a PDF of the period board under Config.ReportDir.
func (a *App) EnqueueStatusReport(periodID string) bool {
	return a.Jobs.Enqueue(jobs.JobStatusReport, periodID, a.statusReportJob(periodID))
}

func (a *App) statusReportJob(periodID string) jobs.RunFunc {
	return func(ctx context.Context) (any, error) {
		path, err := a.Evaluation.SaveStatusReport(ctx, periodID, a.Config.ReportDir)
		return map[string]string{"periodId": periodID, "path": path}, err
	}
}

// startJobs runs the job worker and the periodic report schedule until ctx ends.
func (a *App) startJobs(ctx context.Context) {
	a.Jobs.Start(ctx)
	a.Jobs.Schedule(ctx, a.Config.ReportInterval, jobs.JobStatusReport, func() map[string]jobs.RunFunc {
		plan := make(map[string]jobs.RunFunc, len(a.Config.ReportPeriods))
		for _, periodID := range a.Config.ReportPeriods {
			plan[periodID] = a.statusReportJob(periodID)
		}
		return plan
	})
}

// Close releases resources in reverse acquisition order.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			slog.Warn("shutdown step failed", "err", err)
		}
	}
	a.closers = nil
}

// Serve listens on Config.Addr until ctx is cancelled, then drains in-flight
// requests for up to Config.ShutdownTimeout.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer func() {
		stopJobs()
		a.Jobs.Wait()
	}()
	a.startJobs(jobsCtx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", a.Config.Addr, "driver", a.Config.StoreDriver, "version", Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	slog.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// Run is the process entrypoint: load config, wire, serve until SIGINT/SIGTERM.
func Run() error {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	return app.Serve(ctx)
}
