package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/buildzig"
	"github.com/justapithecus/pydust/cli/config"
)

// GenerateCommand returns the generate command.
// It writes the build script without invoking the toolchain.
func GenerateCommand(cache *config.Cache) *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Write the build script for the configured modules",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   `Write to this path instead of build_script_path ("-" for stdout)`,
			},
		},
		Action: func(c *cli.Context) error {
			return exitError(generateAction(c, cache))
		},
	}
}

func generateAction(c *cli.Context, cache *config.Cache) error {
	p, err := openProject(c, cache)
	if err != nil {
		return err
	}
	defer p.close()

	switch out := c.String("output"); out {
	case "-":
		return buildzig.Generate(p.stdout, p.config)
	case "":
		if p.config.SelfManaged {
			fmt.Fprintf(p.stderr, "self_managed is set: %s is not generated\n", p.config.BuildScriptPath)
			return nil
		}
		return p.writeBuildScript()
	default:
		cfg := *p.config
		cfg.BuildScriptPath = out
		return buildzig.WriteFile(&cfg)
	}
}
