package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/cli/render"
	"github.com/justapithecus/pydust/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version    string `json:"version" yaml:"version" msgpack:"version"`
	Commit     string `json:"commit" yaml:"commit" msgpack:"commit"`
	LimitedAPI string `json:"limited_api" yaml:"limited_api" msgpack:"limited_api"`
}

// VersionCommand returns the version command.
// It needs no project configuration.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  OutputFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}

		return r.Render(VersionResponse{
			Version:    types.Version,
			Commit:     commit,
			LimitedAPI: types.LimitedAPIHexVersion,
		})
	}
}
