package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/cli/config"
	"github.com/justapithecus/pydust/zigexe"
)

// BuildCommand returns the build command.
// Each module is compiled on its own, in configuration order; the first
// failure aborts the build.
func BuildCommand(cache *config.Cache) *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Compile extension modules to shared libraries",
		Flags: []cli.Flag{
			moduleFlag("Build only this module (repeatable)"),
			optimizeFlag(zigexe.OptimizeReleaseSafe),
		},
		Action: func(c *cli.Context) error {
			return exitError(buildAction(c, cache))
		},
	}
}

// InstallCommand returns the install command.
// Install builds every module through the build script's install step.
func InstallCommand(cache *config.Cache) *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "Build and install every extension module",
		Flags: []cli.Flag{
			optimizeFlag(zigexe.OptimizeDebug),
		},
		Action: func(c *cli.Context) error {
			return exitError(installAction(c, cache))
		},
	}
}

func buildAction(c *cli.Context, cache *config.Cache) error {
	p, err := openProject(c, cache)
	if err != nil {
		return err
	}
	defer p.close()

	optimize, err := parseOptimize(c)
	if err != nil {
		return err
	}
	modules, err := p.modules(c.StringSlice("module"))
	if err != nil {
		return err
	}
	if err := p.writeBuildScript(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	inv := p.invoker(p.stdout)
	if len(modules) == 0 {
		// Self-managed projects declare their own libraries.
		return inv.Run(ctx, zigexe.Request{Kind: zigexe.Install, Optimize: optimize})
	}
	for i := range modules {
		req := zigexe.Request{Kind: zigexe.BuildLibrary, Module: &modules[i], Optimize: optimize}
		if err := inv.Run(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func installAction(c *cli.Context, cache *config.Cache) error {
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

	return p.invoker(p.stdout).Run(ctx, zigexe.Request{Kind: zigexe.Install, Optimize: optimize})
}
