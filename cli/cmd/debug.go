package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/buildzig"
	"github.com/justapithecus/pydust/cli/config"
	"github.com/justapithecus/pydust/types"
	"github.com/justapithecus/pydust/zigexe"
)

// DebugBinaryPath is where the debug command installs its binary.
var DebugBinaryPath = filepath.Join(types.OutputDir, "bin", buildzig.DebugBinary)

// DebugCommand returns the debug command.
// It compiles an ad-hoc root file with debug info to a fixed location so
// an IDE debugger can launch it.
func DebugCommand(cache *config.Cache) *cli.Command {
	return &cli.Command{
		Name:      "debug",
		Usage:     "Compile a Zig file with debug symbols to " + DebugBinaryPath,
		ArgsUsage: "<entrypoint>",
		Flags: []cli.Flag{
			optimizeFlag(zigexe.OptimizeDebug),
		},
		Action: func(c *cli.Context) error {
			return exitError(debugAction(c, cache))
		},
	}
}

func debugAction(c *cli.Context, cache *config.Cache) error {
	if c.NArg() != 1 {
		return cli.Exit("debug requires exactly one <entrypoint> argument", exitConfigError)
	}
	entrypoint, err := filepath.Abs(c.Args().First())
	if err != nil {
		return fmt.Errorf("resolve entrypoint: %w", err)
	}

	p, err := openProject(c, cache)
	if err != nil {
		return err
	}
	defer p.close()

	optimize, err := parseOptimize(c)
	if err != nil {
		return err
	}
	if err := p.writeBuildScript(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	req := zigexe.Request{Kind: zigexe.Debug, Optimize: optimize, DebugRoot: entrypoint}
	if err := p.invoker(p.stdout).Run(ctx, req); err != nil {
		return err
	}
	fmt.Fprintln(p.stdout, filepath.Join(p.dir, DebugBinaryPath))
	return nil
}
