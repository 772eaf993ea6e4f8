package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/adapter"
	"github.com/justapithecus/pydust/cli/config"
	"github.com/justapithecus/pydust/cli/render"
	"github.com/justapithecus/pydust/collector"
	"github.com/justapithecus/pydust/iox"
	"github.com/justapithecus/pydust/metrics"
	"github.com/justapithecus/pydust/types"
	"github.com/justapithecus/pydust/zigexe"
)

// TestRow is one line of table output for the test command.
type TestRow struct {
	NodeID     string            `json:"node_id"`
	Outcome    collector.Outcome `json:"outcome"`
	DurationMs int64             `json:"duration_ms"`
}

// TestResponse is the structured output of the test command.
type TestResponse struct {
	Reports []*collector.Report `json:"reports" yaml:"reports" msgpack:"reports"`
	Summary collector.Summary   `json:"summary" yaml:"summary" msgpack:"summary"`
	Metrics metrics.Snapshot    `json:"metrics" yaml:"metrics" msgpack:"metrics"`
}

// ListRow is one discovered test.
type ListRow struct {
	NodeID        string  `json:"node_id" yaml:"node_id" msgpack:"node_id"`
	Module        string  `json:"module" yaml:"module" msgpack:"module"`
	Index         uint32  `json:"index" yaml:"index" msgpack:"index"`
	ExpectedPanic *string `json:"expected_panic,omitempty" yaml:"expected_panic,omitempty" msgpack:"expected_panic,omitempty"`
}

func selectionFlags() []cli.Flag {
	return []cli.Flag{
		moduleFlag("Only collect tests from this module (repeatable)"),
		&cli.StringFlag{
			Name:    "match",
			Aliases: []string{"k"},
			Usage:   "Only include tests whose name contains this substring",
		},
		optimizeFlag(zigexe.OptimizeDebug),
		noBuildFlag(),
	}
}

func testFlags() []cli.Flag {
	flags := append(OutputFlags(), selectionFlags()...)
	flags = append(flags, historyFlags()...)
	return append(flags, notifyFlags()...)
}

// TestCommand returns the test command.
// It builds the libraries and test binaries, then runs every Zig test in
// its own test-server process.
func TestCommand(cache *config.Cache) *cli.Command {
	return &cli.Command{
		Name:  "test",
		Usage: "Build and run Zig tests",
		Flags: testFlags(),
		Action: func(c *cli.Context) error {
			return exitError(testAction(c, cache))
		},
	}
}

// ListCommand returns the list command.
// It reports the tests each module's binary declares without running them.
func ListCommand(cache *config.Cache) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List Zig tests",
		Flags: append(OutputFlags(), selectionFlags()...),
		Action: func(c *cli.Context) error {
			return exitError(listAction(c, cache))
		},
	}
}

// session holds what test and list share.
type session struct {
	p     *project
	r     *render.Renderer
	ctx   context.Context
	files []*collector.File
	match string
}

func openSession(c *cli.Context, cache *config.Cache) (*session, context.CancelFunc, error) {
	r, err := render.NewRenderer(c)
	if err != nil {
		return nil, nil, &types.ConfigError{Field: "format", Msg: err.Error()}
	}
	p, err := openProject(c, cache)
	if err != nil {
		return nil, nil, err
	}
	optimize, err := parseOptimize(c)
	if err != nil {
		p.close()
		return nil, nil, err
	}
	modules, err := p.modules(c.StringSlice("module"))
	if err != nil {
		p.close()
		return nil, nil, err
	}

	ctx, cancel := signalContext()
	done := func() {
		cancel()
		p.close()
	}

	if !c.Bool("no-build") {
		if err := prepareTests(ctx, p, modules, optimize); err != nil {
			done()
			return nil, nil, err
		}
	}

	coll := p.collector()
	files := make([]*collector.File, 0, len(modules))
	for _, m := range modules {
		if f, ok := coll.CollectFile(m.Root); ok {
			files = append(files, f)
		}
	}
	if !p.config.ZigTests {
		p.logger.Warn("zig_tests is disabled, no tests collected", nil)
	}

	return &session{p: p, r: r, ctx: ctx, files: files, match: c.String("match")}, done, nil
}

// prepareTests installs the libraries, then builds the test binaries of
// modules when Zig tests are enabled. Toolchain stdout goes to stderr so
// structured output stays clean.
func prepareTests(ctx context.Context, p *project, modules []types.ExtModule, optimize zigexe.Optimize) error {
	if err := p.writeBuildScript(); err != nil {
		return err
	}
	inv := p.invoker(p.stderr)
	if err := inv.Run(ctx, zigexe.Request{Kind: zigexe.Install, Optimize: optimize}); err != nil {
		return err
	}
	if !p.config.ZigTests {
		return nil
	}
	for i := range modules {
		if err := inv.Run(ctx, zigexe.Request{Kind: zigexe.Test, Module: &modules[i], Optimize: optimize}); err != nil {
			return err
		}
	}
	return nil
}

// collect returns the selected items of f.
func (s *session) collect(f *collector.File) ([]*collector.Item, error) {
	items, err := f.Collect(s.ctx)
	if err != nil {
		return nil, err
	}
	if s.match == "" {
		return items, nil
	}
	selected := items[:0]
	for _, item := range items {
		if strings.Contains(item.Test.Name, s.match) {
			selected = append(selected, item)
		}
	}
	return selected, nil
}

func testAction(c *cli.Context, cache *config.Cache) error {
	s, done, err := openSession(c, cache)
	if err != nil {
		return err
	}
	defer done()

	store, err := openHistory(s.ctx, c, s.p)
	if err != nil {
		return err
	}
	notifier, err := openNotifier(c)
	if err != nil {
		return err
	}
	if notifier != nil {
		defer iox.DiscardClose(notifier)
	}

	var (
		reports    []*collector.Report
		sessionErr error
	)
	for _, f := range s.files {
		items, err := s.collect(f)
		if err != nil {
			if sessionErr == nil {
				sessionErr = err
			}
			continue
		}
		for _, item := range items {
			report, err := item.Run(s.ctx)
			reports = append(reports, report)
			if err != nil {
				// The rest of this module's tests are abandoned.
				if sessionErr == nil {
					sessionErr = err
				}
				break
			}
		}
	}

	summary := collector.Summarize(reports)
	run := newRun(s.p, s.files)
	if store != nil {
		recordRun(s.ctx, s.p, store, run, reports)
	}
	if notifier != nil {
		event := adapter.NewTestRunEvent(run.SessionID, run.Project, summary, sessionErr, run.CompletedAt)
		event.ZigVersion = run.ZigVersion
		if store != nil {
			event.HistoryPath = c.String(HistoryFlag.Name)
		}
		publishRun(s.ctx, s.p, notifier, event)
	}

	if err := renderTestResults(s.r, reports, summary, s.p.metrics.Snapshot()); err != nil {
		return err
	}

	if sessionErr != nil {
		return sessionErr
	}
	if !summary.OK() {
		return cli.Exit("", exitTestFailure)
	}
	return nil
}

func renderTestResults(r *render.Renderer, reports []*collector.Report, summary collector.Summary, snap metrics.Snapshot) error {
	if r.Format() != render.FormatTable {
		if reports == nil {
			reports = []*collector.Report{}
		}
		return r.Render(TestResponse{Reports: reports, Summary: summary, Metrics: snap})
	}

	rows := make([]TestRow, 0, len(reports))
	for _, report := range reports {
		rows = append(rows, TestRow{NodeID: report.NodeID, Outcome: report.Outcome, DurationMs: report.DurationMs})
	}
	if err := r.Render(rows); err != nil {
		return err
	}
	if err := r.RenderSections(reports); err != nil {
		return err
	}
	return r.RenderSummary(summary)
}

func listAction(c *cli.Context, cache *config.Cache) error {
	s, done, err := openSession(c, cache)
	if err != nil {
		return err
	}
	defer done()

	rows := []ListRow{}
	for _, f := range s.files {
		items, err := s.collect(f)
		if err != nil {
			return err
		}
		for _, item := range items {
			rows = append(rows, ListRow{
				NodeID:        item.NodeID(),
				Module:        item.Module().Name,
				Index:         item.Test.Index,
				ExpectedPanic: item.Test.ExpectedPanic,
			})
		}
	}

	if err := s.r.Render(rows); err != nil {
		return err
	}
	if s.r.Format() == render.FormatTable {
		return writeCount(s.p.stderr, len(rows))
	}
	return nil
}

func writeCount(w io.Writer, n int) error {
	_, err := fmt.Fprintf(w, "%d tests collected\n", n)
	return err
}
