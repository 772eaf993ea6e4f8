package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/buildzig"
	"github.com/justapithecus/pydust/cli/config"
	"github.com/justapithecus/pydust/collector"
	"github.com/justapithecus/pydust/log"
	"github.com/justapithecus/pydust/metrics"
	"github.com/justapithecus/pydust/types"
	"github.com/justapithecus/pydust/zigexe"
)

// clientFactory overrides test-server clients in tests. Nil means the
// real process-backed client.
var clientFactory collector.ClientFactory

// project is the per-invocation state shared by commands.
type project struct {
	dir     string
	config  *types.ToolConfig
	logger  *log.Logger
	metrics *metrics.Collector
	stdout  io.Writer
	stderr  io.Writer
}

// openProject loads the configuration named by --config, or found in the
// working directory, and changes into the project directory so that
// relative paths in it resolve.
func openProject(c *cli.Context, cache *config.Cache) (*project, error) {
	path := c.String(ConfigFlag.Name)
	if path == "" {
		found, err := config.Find(".")
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("enter project directory: %w", err)
	}

	stderr := c.App.ErrWriter
	if stderr == nil {
		stderr = os.Stderr
	}
	stdout := c.App.Writer
	if stdout == nil {
		stdout = os.Stdout
	}

	logger, err := log.NewLogger(dir, log.Options{
		Level:  c.String(LogLevelFlag.Name),
		Format: log.Format(c.String(LogFormatFlag.Name)),
		Output: stderr,
	})
	if err != nil {
		return nil, &types.ConfigError{Field: "logging", Msg: err.Error()}
	}

	return &project{
		dir:     dir,
		config:  cfg,
		logger:  logger,
		metrics: metrics.NewCollector(dir),
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}

// close flushes the logger.
func (p *project) close() {
	_ = p.logger.Sync()
}

// modules returns the modules named by --module, or every module when
// none are named.
func (p *project) modules(names []string) ([]types.ExtModule, error) {
	if len(names) == 0 {
		return p.config.ExtModules, nil
	}
	modules := make([]types.ExtModule, 0, len(names))
	for _, name := range names {
		m, ok := p.config.Module(name)
		if !ok {
			return nil, &types.ConfigError{Field: "module", Msg: fmt.Sprintf("unknown module %q", name)}
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// writeBuildScript regenerates the build script unless the project
// manages its own.
func (p *project) writeBuildScript() error {
	if p.config.SelfManaged {
		p.logger.Info("self-managed project, build script left untouched", map[string]any{
			"build_script_path": p.config.BuildScriptPath,
		})
		return nil
	}
	if err := buildzig.WriteFile(p.config); err != nil {
		return err
	}
	p.logger.Info("wrote build script", map[string]any{"build_script_path": p.config.BuildScriptPath})
	return nil
}

// invoker returns a toolchain invoker. Toolchain stdout goes to out.
func (p *project) invoker(out io.Writer) *zigexe.Invoker {
	return zigexe.NewInvoker(p.config,
		zigexe.WithOutput(out, p.stderr),
		zigexe.WithLogger(p.logger),
		zigexe.WithCollector(p.metrics),
	)
}

// collector returns a test collector for the project.
func (p *project) collector() *collector.Collector {
	opts := []collector.Option{
		collector.WithBaseDir(p.dir),
		collector.WithLogger(p.logger),
		collector.WithMetrics(p.metrics),
	}
	if clientFactory != nil {
		opts = append(opts, collector.WithClientFactory(clientFactory))
	}
	return collector.New(p.config, opts...)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// Cancellation kills running toolchain and test processes.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func parseOptimize(c *cli.Context) (zigexe.Optimize, error) {
	optimize, err := zigexe.ParseOptimize(c.String("optimize"))
	if err != nil {
		return "", &types.ConfigError{Field: "optimize", Msg: err.Error()}
	}
	return optimize, nil
}
