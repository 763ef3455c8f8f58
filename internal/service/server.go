package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/USSTM/microservice/internal/apipool"
	"github.com/USSTM/microservice/internal/config"
	"github.com/USSTM/microservice/internal/logging"
	"github.com/USSTM/microservice/internal/middleware"
	"github.com/USSTM/microservice/internal/specs"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v4/process"
)

const shutdownTimeout = 10 * time.Second

// Setup loads every api, spawns the served ones and returns the root handler.
// ping is always served. When it fails the pool is left empty so that Setup
// can be called again.
func (a *API) Setup(ctx context.Context, serve []string) (http.Handler, error) {
	if a.handler != nil {
		return nil, ErrAlreadySetup
	}
	if a.pool.Merged() {
		return nil, apipool.ErrAlreadyMerged
	}
	if a.apis == nil {
		return nil, ErrNotLoaded
	}
	if len(serve) == 0 {
		return nil, ErrEmptyServeList
	}

	for _, name := range serve {
		if _, ok := a.apis[name]; !ok {
			return nil, fmt.Errorf("%w: can't find %s%s (swagger file) in the api directory %s",
				ErrUnknownAPI, name, specs.Extension, a.apiPath)
		}
	}
	served := slices.Clone(serve)
	if !slices.Contains(served, specs.PingName) {
		served = append(served, specs.PingName)
	}

	r, err := a.setup(ctx, served)
	if err != nil {
		a.pool.Reset()
		return nil, err
	}
	a.handler = r
	return r, nil
}

func (a *API) setup(ctx context.Context, served []string) (http.Handler, error) {
	for _, name := range specs.Names(a.apis) {
		opts := a.options(a.apis[name])
		if slices.Contains(served, name) {
			opts.Local = true
			opts.Persist = true
			opts.Host = a.cfg.Server.Host
			opts.Port = a.cfg.Server.Port
		}
		if err := a.pool.Add(name, opts); err != nil {
			return nil, err
		}
	}
	if err := a.pool.Merge(ctx); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestContext)
	r.Use(middleware.LoggingMiddleware)
	r.Use(chimw.Compress(5))
	r.Use(middleware.NewCORSHandler(&a.cfg.CORS))
	if a.redirectHTTPS(ctx) {
		logging.Info("Redirecting http calls to https")
		r.Use(middleware.HTTPSRedirect)
	}

	r.Handle("/metrics", a.metrics.Handler())
	if a.cfg.Debug {
		r.Mount("/debug", chimw.Profiler())
	}
	if a.docs != nil {
		r.Mount("/"+a.docsPrefix, a.docs)
	}

	for _, name := range served {
		if err := a.pool.Spawn(name, r, a.crash.Wrap); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Handler returns the root handler built by Setup, or nil before it.
func (a *API) Handler() http.Handler {
	return a.handler
}

func (a *API) redirectHTTPS(ctx context.Context) bool {
	deploy, err := config.LoadDeployConfigIfPresent(a.cfg.Deploy)
	if err != nil {
		logging.Warn("Failed to read deploy config", "error", err)
		return false
	}
	if deploy.AWSCertARN == "" || a.ec2 == nil {
		return false
	}
	return a.ec2.IsEC2Instance(ctx)
}

// Start sets up the service and listens on 0.0.0.0:<port> until ctx is done.
// Under a process manager it only sets up and returns.
func (a *API) Start(ctx context.Context, serve ...string) error {
	handler, err := a.Setup(ctx, serve)
	if err != nil {
		return err
	}

	if parent, managed := a.managedBy(); managed {
		logging.Info("Running under a process manager, not starting a server", "parent", parent)
		return nil
	}

	addr := fmt.Sprintf("0.0.0.0:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		name, version := a.pool.CurrentServer()
		logging.Info("Server starting", "addr", addr, "api", name, "version", version, "debug", a.cfg.Debug)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (a *API) managedBy() (string, bool) {
	name, err := a.parentName()
	if err != nil {
		logging.Debug("Cannot read parent process name", "error", err)
		return "", false
	}
	base := strings.ToLower(filepath.Base(name))
	for _, m := range a.cfg.Process.Managers {
		if strings.Contains(base, strings.ToLower(m)) {
			return name, true
		}
	}
	return name, false
}

func parentProcessName() (string, error) {
	p, err := process.NewProcess(int32(os.Getppid()))
	if err != nil {
		return "", err
	}
	return p.Name()
}
