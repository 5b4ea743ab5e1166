// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/openharvest/oaipmh/internal/version"
)

type (
	// cmd corresponds to the top-level `oaiharvest` command.
	cmd struct {
		// Version is the sub-command to show the version.
		Version struct{} `cmd:"" help:"Show version."`
		// Harvest is the sub-command parsed by the `cmdHarvest` struct. It is
		// the default, so `oaiharvest <url>` works without naming it.
		Harvest cmdHarvest `cmd:"" default:"withargs" help:"Harvest records or identifiers from an OAI-PMH repository."`
	}
	// cmdHarvest corresponds to the `oaiharvest harvest` command.
	cmdHarvest struct {
		URL         string `arg:"" name:"url" help:"Base URL of the repository to harvest."`
		Prefix      string `default:"oai_dc" help:"Metadata prefix to disseminate."`
		Set         string `help:"Restrict the harvest to records in one set."`
		From        string `help:"Lower datestamp bound, YYYY-MM-DD or YYYY-MM-DDThh:mm:ssZ."`
		Until       string `help:"Upper datestamp bound, inclusive."`
		Identifiers bool   `help:"Harvest bare headers instead of full records."`
		ForceGet    bool   `name:"force-get" help:"Issue GET requests instead of form-encoded POST."`
		User        string `help:"HTTP Basic username."`
		Pass        string `help:"HTTP Basic password."`
		Verbose     bool   `help:"Enable debug logging emitted to stderr."`
	}
)

type harvestFn func(context.Context, cmdHarvest, io.Writer, io.Writer) error

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], os.Exit, harvest)
}

// doMain parses the command line arguments and executes the appropriate
// command.
//
//   - stdout and stderr are the output writers. Mainly for testing.
//   - `args` are the command line arguments without the program name.
//   - exitFn is the function called to exit the program during argument
//     parsing. Mainly for testing.
//   - hf is the function that performs the harvest. Mainly for testing.
func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, exitFn func(int), hf harvestFn) {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("oaiharvest"),
		kong.Description("OAI-PMH 2.0 harvesting client"),
		kong.Writers(stdout, stderr),
		kong.Exit(exitFn),
	)
	if err != nil {
		log.Fatalf("Error creating parser: %v", err)
	}
	parsed, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	switch parsed.Command() {
	case "version":
		_, _ = fmt.Fprintf(stdout, "oaiharvest %s\n", version.Version)
	case "harvest <url>":
		if err := hf(ctx, c.Harvest, stdout, stderr); err != nil {
			log.Fatalf("Error harvesting: %v", err)
		}
	default:
		panic("unreachable")
	}
}
