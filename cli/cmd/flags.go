// Package cmd provides CLI commands for the pydust binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/adapter/redis"
	"github.com/justapithecus/pydust/adapter/webhook"
	"github.com/justapithecus/pydust/history"
	"github.com/justapithecus/pydust/zigexe"
)

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml, msgpack.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml, msgpack",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// Global flags, accepted before the command name.
var (
	// ConfigFlag points at pyproject.toml or pydust.yaml. The project
	// directory is the directory containing it.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to pyproject.toml or pydust.yaml (default: search the working directory)",
		EnvVars: []string{"PYDUST_CONFIG"},
	}

	// LogLevelFlag sets the minimum log level.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		Value:   "warn",
		EnvVars: []string{"PYDUST_LOG_LEVEL"},
	}

	// LogFormatFlag selects the log encoder.
	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format: json, console",
		Value: "json",
	}
)

// GlobalFlags returns the flags registered on the app.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		LogLevelFlag,
		LogFormatFlag,
	}
}

// OutputFlags returns the shared flags for commands that render results.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

func optimizeFlag(def zigexe.Optimize) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "optimize",
		Usage: "Zig optimize mode: Debug, ReleaseSafe, ReleaseFast, ReleaseSmall",
		Value: string(def),
	}
}

func moduleFlag(usage string) *cli.StringSliceFlag {
	return &cli.StringSliceFlag{
		Name:    "module",
		Aliases: []string{"m"},
		Usage:   usage,
	}
}

func noBuildFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:  "no-build",
		Usage: "Use existing test binaries instead of rebuilding them",
	}
}

// HistoryFlag names where test runs are recorded: a directory or an
// s3://bucket/prefix URL.
var HistoryFlag = &cli.StringFlag{
	Name:    "history",
	Usage:   "Record test runs in this directory or s3://bucket/prefix",
	EnvVars: []string{"PYDUST_HISTORY"},
}

func historyFlags() []cli.Flag {
	return []cli.Flag{
		HistoryFlag,
		&cli.StringFlag{
			Name:  "history-dataset",
			Usage: "Dataset ID of the test history",
			Value: history.DefaultDataset,
		},
		&cli.StringFlag{
			Name:    "history-s3-region",
			Usage:   "AWS region of an S3 history (default: AWS default chain)",
			EnvVars: []string{"PYDUST_HISTORY_S3_REGION"},
		},
		&cli.StringFlag{
			Name:    "history-s3-endpoint",
			Usage:   "Custom endpoint of an S3-compatible history store",
			EnvVars: []string{"PYDUST_HISTORY_S3_ENDPOINT"},
		},
		&cli.BoolFlag{
			Name:  "history-s3-path-style",
			Usage: "Use path-style addressing for an S3 history",
		},
	}
}

func notifyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "notify-webhook",
			Usage:   "POST a JSON run summary to this URL when tests finish",
			EnvVars: []string{"PYDUST_NOTIFY_WEBHOOK"},
		},
		&cli.StringSliceFlag{
			Name:  "notify-header",
			Usage: "Extra webhook header as 'Name: value' (repeatable)",
		},
		&cli.StringFlag{
			Name:    "notify-redis",
			Usage:   "PUBLISH a JSON run summary to this redis:// URL when tests finish",
			EnvVars: []string{"PYDUST_NOTIFY_REDIS"},
		},
		&cli.StringFlag{
			Name:  "notify-redis-channel",
			Usage: "Redis pub/sub channel",
			Value: redis.DefaultChannel,
		},
		&cli.IntFlag{
			Name:  "notify-retries",
			Usage: "Retries per notification after a failure",
			Value: webhook.DefaultRetries,
		},
	}
}
