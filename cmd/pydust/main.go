// Package main provides the pydust CLI entrypoint.
//
// Usage:
//
//	pydust [--config path] <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: one or more tests failed
//   - 2: the Zig toolchain failed
//   - 3: a test server broke the protocol or crashed
//   - 4: invalid configuration or arguments
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/cli/cmd"
	"github.com/justapithecus/pydust/cli/config"
	"github.com/justapithecus/pydust/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// Replaced in tests.
var (
	osExit           = os.Exit
	stderr io.Writer = os.Stderr
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		osExit(1)
	}
}

func newApp() *cli.App {
	cache := config.NewCache()
	return &cli.App{
		Name:           "pydust",
		Usage:          "Build Zig Python extensions and run their Zig tests",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.BuildCommand(cache),
			cmd.InstallCommand(cache),
			cmd.GenerateCommand(cache),
			cmd.TestCommand(cache),
			cmd.ListCommand(cache),
			cmd.HistoryCommand(cache),
			cmd.DebugCommand(cache),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is empty or "exit status N"; skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(stderr, msg)
		}
		osExit(code)
		return
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(stderr, "Error: %v\n", err)
	osExit(1)
}
