// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// oaipmhd serves an OAI-PMH 2.0 repository defined in a YAML file.
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
	// cmd corresponds to the top-level `oaipmhd` command.
	cmd struct {
		// Version is the sub-command to show the version.
		Version struct{} `cmd:"" help:"Show version."`
		// Run is the sub-command parsed by the `cmdRun` struct.
		Run cmdRun `cmd:"" help:"Serve an OAI-PMH repository from a YAML definition."`
	}
	// cmdRun corresponds to the `oaipmhd run` command.
	cmdRun struct {
		Config   string `required:"" type:"path" help:"Path to the repository definition YAML."`
		Addr     string `default:":8080" help:"Listen address."`
		LogLevel string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Minimum log level."`
	}
)

type runFn func(context.Context, cmdRun, io.Writer, io.Writer) error

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], os.Exit, run)
}

// doMain parses the command line arguments and executes the appropriate
// command. The writers, exitFn and rf indirections exist for testing.
func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, exitFn func(int), rf runFn) {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("oaipmhd"),
		kong.Description("OAI-PMH 2.0 repository daemon"),
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
		_, _ = fmt.Fprintf(stdout, "oaipmhd %s\n", version.Version)
	case "run":
		if err := rf(ctx, c.Run, stdout, stderr); err != nil {
			log.Fatalf("Error running: %v", err)
		}
	default:
		panic("unreachable")
	}
}
