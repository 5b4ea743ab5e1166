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

	"github.com/openharvest/oaipmh"
	"github.com/openharvest/oaipmh/client"
)

// harvest streams headers or full records from the repository named by
// c.URL, one tab-separated line per record on stdout. Diagnostics go to
// stderr.
func harvest(ctx context.Context, c cmdHarvest, stdout, stderr io.Writer) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts := []client.Option{client.WithLogger(logger)}
	if c.ForceGet {
		opts = append(opts, client.WithForceGET())
	}
	if c.User != "" || c.Pass != "" {
		opts = append(opts, client.WithCredentials(c.User, c.Pass))
	}
	cl := client.New(c.URL, opts...)

	args := oaipmh.ListArgs{Prefix: c.Prefix, Set: c.Set}
	if c.From != "" {
		t, _, err := oaipmh.ParseDatestamp(c.From)
		if err != nil {
			return fmt.Errorf("cannot parse --from: %w", err)
		}
		args.From = &t
	}
	if c.Until != "" {
		t, _, err := oaipmh.ParseDatestampInclusive(c.Until)
		if err != nil {
			return fmt.Errorf("cannot parse --until: %w", err)
		}
		args.Until = &t
	}

	if err := cl.UpdateGranularity(ctx); err != nil {
		logger.Warn("cannot negotiate datestamp granularity, keeping seconds",
			slog.String("error", err.Error()))
	}

	var total, tombstones int
	emit := func(h oaipmh.Header) {
		total++
		line := h.Identifier + "\t" + oaipmh.FormatDatestamp(h.Datestamp, oaipmh.GranularitySecond)
		if h.Deleted {
			tombstones++
			line += "\tdeleted"
		}
		_, _ = fmt.Fprintln(stdout, line)
	}

	err := func() error {
		if c.Identifiers {
			it, err := cl.ListIdentifiers(ctx, args)
			if err != nil {
				return err
			}
			for it.Next() {
				emit(it.Item())
			}
			return it.Err()
		}
		it, err := cl.ListRecords(ctx, args)
		if err != nil {
			return err
		}
		for it.Next() {
			emit(it.Item().Header)
		}
		return it.Err()
	}()
	if errors.Is(err, oaipmh.ErrNoRecordsMatch) {
		logger.Info("no records matched the harvest window")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("harvest complete",
		slog.Int("records", total), slog.Int("deleted", tombstones))
	return nil
}
