package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// serve runs the HTTP server and the rate-limit sweep until ctx is
// cancelled, then shuts both down within the configured timeout.
func (app *application) serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(app.config.Server.Port)),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app.serveOn(ctx, server, nil)
}

// serveOn is serve with an injectable server and optional listener.
func (app *application) serveOn(ctx context.Context, server *http.Server, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	app.limiter.Start()

	if app.config.LLM.ProbeOnStartup {
		g.Go(func() error {
			probeProviders(gctx, app.providers, app.config.LLM.RequestTimeout(), app.logger)
			return nil
		})
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", server.Addr)
		var err error
		if ln != nil {
			err = server.Serve(ln)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		app.limiter.Stop()
		app.logger.Info("server shutdown completed")
		return nil
	})

	return g.Wait()
}
