// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openharvest/oaipmh/server"
)

// run loads the repository definition, builds the protocol server and
// serves it until ctx is canceled.
func run(ctx context.Context, c cmdRun, _, stderr io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL(c.Addr)
	}
	repo, err := newStaticRepository(cfg)
	if err != nil {
		return fmt.Errorf("invalid repository definition: %w", err)
	}

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.BatchSize > 0 {
		opts = append(opts, server.WithBatchSize(cfg.BatchSize))
	}
	if cfg.GetMetadata {
		opts = append(opts, server.WithGetMetadata())
	}
	srv := server.New(repo, opts...)

	lis, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", c.Addr, err)
	}
	logger.Info("serving repository",
		slog.String("repository", cfg.Name),
		slog.String("address", lis.Addr().String()),
		slog.Int("records", len(cfg.Records)))
	return serve(ctx, lis, newRouter(srv, logger))
}

// serve runs the HTTP server on lis until ctx is canceled, then drains
// in-flight requests.
func serve(ctx context.Context, lis net.Listener, handler http.Handler) error {
	httpServer := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// defaultBaseURL derives the advertised endpoint from the listen address
// when the config does not name one.
func defaultBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/oai"
}
