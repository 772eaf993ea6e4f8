package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/ipc"
	"github.com/justapithecus/pydust/testserver"
	"github.com/justapithecus/pydust/types"
	"github.com/justapithecus/pydust/zigexe"
)

// Exit codes.
const (
	exitSuccess       = 0
	exitTestFailure   = 1
	exitBuildError    = 2
	exitProtocolError = 3
	exitConfigError   = 4
)

// exitCodeFor classifies err into an exit code.
func exitCodeFor(err error) int {
	var (
		cfgErr   *types.ConfigError
		buildErr *zigexe.BuildError
		crashErr *testserver.ProcessCrashError
	)
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &cfgErr), errors.Is(err, types.ErrUnsupported):
		return exitConfigError
	case errors.As(err, &buildErr):
		return exitBuildError
	case ipc.IsProtocolError(err), errors.As(err, &crashErr):
		return exitProtocolError
	default:
		return exitTestFailure
	}
}

// exitError wraps err in a cli.ExitCoder carrying its exit code. Errors
// that already carry one are returned unchanged.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return err
	}
	return cli.Exit(err.Error(), exitCodeFor(err))
}
