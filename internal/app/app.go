// Package app builds the taskgate object graph from a configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/taskgate/internal/api"
	"github.com/ppiankov/taskgate/internal/audit"
	"github.com/ppiankov/taskgate/internal/catalogue"
	"github.com/ppiankov/taskgate/internal/config"
	"github.com/ppiankov/taskgate/internal/dispatch"
	"github.com/ppiankov/taskgate/internal/fileread"
	"github.com/ppiankov/taskgate/internal/llm"
	"github.com/ppiankov/taskgate/internal/metrics"
	"github.com/ppiankov/taskgate/internal/ops"
	"github.com/ppiankov/taskgate/internal/ratelimit"
	"github.com/ppiankov/taskgate/internal/sandbox"
)

// App owns every long-lived component. The catalogue is built once; the
// dispatcher is replaced as a whole when deny rules are reloaded.
type App struct {
	cfg        *config.Config
	log        *zap.Logger
	metrics    *metrics.Metrics
	reader     *fileread.Reader
	auditLog   *audit.Log
	dispatcher atomic.Pointer[dispatch.Dispatcher]
}

// New validates cfg and builds the App.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	guard, err := sandbox.Load(cfg.Sandbox.Root, cfg.Sandbox.DenyRules)
	if err != nil {
		return nil, err
	}

	opsCfg := ops.Config{
		Root:           cfg.Sandbox.Root,
		UserEmail:      cfg.Ops.UserEmail,
		DatagenScript:  cfg.Ops.DatagenScript,
		APIURL:         cfg.Ops.APIURL,
		RepoURL:        cfg.Ops.RepoURL,
		ScrapeURL:      cfg.Ops.ScrapeURL,
		SQLQuery:       cfg.Ops.SQLQuery,
		FilterCategory: cfg.Ops.FilterCategory,
		HTTPClient:     &http.Client{Timeout: cfg.Ops.HTTPTimeout},
		Logger:         log.Named("ops"),
	}
	if cfg.Model.APIKey != "" {
		model, err := llm.New(ctx, cfg.Model.APIKey, cfg.Model.Name, cfg.Model.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		opsCfg.Vision = model
		opsCfg.Embedder = model
		log.Info("model backend enabled", zap.String("model", model.Name()))
	}

	cat, err := catalogue.New(ops.New(opsCfg).Rules()...)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		reader:  fileread.New(cfg.Sandbox.Root, cfg.Read.Confine),
	}

	dcfg := dispatch.Config{
		Guard:     guard,
		Catalogue: cat,
		Timeout:   cfg.Dispatch.Timeout,
		Logger:    log.Named("dispatch"),
		Metrics:   a.metrics,
	}
	if cfg.Audit.Path != "" {
		a.auditLog, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		dcfg.Audit = a.auditLog
	}

	d, err := dispatch.New(dcfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher.Store(d)
	return a, nil
}

// Dispatch runs the instruction on the current dispatcher.
func (a *App) Dispatch(ctx context.Context, instruction string) (*dispatch.Outcome, error) {
	return a.dispatcher.Load().Dispatch(ctx, instruction)
}

// Check is a dry run on the current dispatcher.
func (a *App) Check(instruction string) (*dispatch.Plan, error) {
	return a.dispatcher.Load().Check(instruction)
}

// Catalogue returns the operation catalogue.
func (a *App) Catalogue() *catalogue.Catalogue {
	return a.dispatcher.Load().Catalogue()
}

// Read returns a file's content through the read accessor.
func (a *App) Read(path string) (string, error) {
	return a.reader.Read(path)
}

// Metrics returns the service metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// ReloadGuard rebuilds the guard from the deny-rules file and swaps it in.
// On error the previous guard stays active.
func (a *App) ReloadGuard() error {
	guard, err := sandbox.Load(a.cfg.Sandbox.Root, a.cfg.Sandbox.DenyRules)
	if err != nil {
		return err
	}
	a.dispatcher.Store(a.dispatcher.Load().WithGuard(guard))
	return nil
}

// Serve runs the HTTP server, and the deny-rules watcher when enabled,
// until ctx is cancelled or either fails.
func (a *App) Serve(ctx context.Context) error {
	srv, err := api.NewServer(api.Config{
		Addr:            a.cfg.Server.Addr,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		Tasks:           a,
		Files:           a,
		Logger:          a.log.Named("http"),
		Metrics:         a.metrics,
		RunLimit:        ratelimit.New(a.cfg.Server.RunLimit),
	})
	if err != nil {
		return err
	}

	var reloader *api.Reloader
	if a.cfg.Sandbox.Watch && a.cfg.Sandbox.DenyRules != "" {
		reloader, err = api.NewReloader(a.cfg.Sandbox.DenyRules, a.ReloadGuard, a.log.Named("reload"), a.metrics)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	if reloader != nil {
		g.Go(func() error {
			return reloader.Run(ctx)
		})
	}

	return g.Wait()
}

// Close releases the audit log.
func (a *App) Close() error {
	if a.auditLog == nil {
		return nil
	}
	return a.auditLog.Close()
}
