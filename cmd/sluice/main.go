// Package main provides the sluice CLI entrypoint.
//
// Usage:
//
//	sluice <command> [options]
//
// Exit codes for `run`:
//   - 0: completed
//   - 1: stream error (framing, decoding, sequencing) or cancellation
//   - 2: sink error
//   - 3: configuration error
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sluice/cli/cmd"
	"github.com/justapithecus/sluice/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "sluice",
		Usage:          "Stream framed records from a source into a storage sink",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.PingpongCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from
// cli.Exit() so that run outcomes map to the documented codes.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
