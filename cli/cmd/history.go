package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/cli/config"
	"github.com/justapithecus/pydust/cli/render"
	"github.com/justapithecus/pydust/cli/tui"
	"github.com/justapithecus/pydust/collector"
	"github.com/justapithecus/pydust/history"
	"github.com/justapithecus/pydust/types"
)

// HistoryResponse is the structured output of the history command.
type HistoryResponse struct {
	Run     *history.RunSummary    `json:"run" yaml:"run" msgpack:"run"`
	Reports []history.StoredReport `json:"reports" yaml:"reports" msgpack:"reports"`
}

// HistoryCommand returns the history command.
// It shows the most recent recorded test run of the project.
func HistoryCommand(cache *config.Cache) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show the most recent recorded test run",
		Flags: append(append(OutputFlags(), historyFlags()...),
			&cli.StringFlag{
				Name:  "session",
				Usage: "Show this session instead of the latest",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Browse the run interactively",
			},
		),
		Action: func(c *cli.Context) error {
			return exitError(historyAction(c, cache))
		},
	}
}

// openHistory opens the store named by --history, or returns nil when the
// flag is unset.
func openHistory(ctx context.Context, c *cli.Context, p *project) (*history.Store, error) {
	raw := c.String(HistoryFlag.Name)
	if raw == "" {
		return nil, nil
	}
	target, err := history.ParseTarget(raw)
	if err != nil {
		return nil, &types.ConfigError{Field: "history", Msg: err.Error()}
	}
	store, err := history.Open(ctx, c.String("history-dataset"), filepath.Base(p.dir), target, history.S3Config{
		Region:       c.String("history-s3-region"),
		Endpoint:     c.String("history-s3-endpoint"),
		UsePathStyle: c.Bool("history-s3-path-style"),
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("opened test history", map[string]any{"target": raw})
	return store, nil
}

// newRun describes a finished test run of p.
func newRun(p *project, files []*collector.File) history.Run {
	run := history.Run{
		SessionID:   uuid.New().String(),
		Project:     filepath.Base(p.dir),
		CompletedAt: time.Now(),
	}
	for _, f := range files {
		if f.ZigVersion != "" {
			run.ZigVersion = f.ZigVersion
			break
		}
	}
	return run
}

// recordRun writes a finished run to the history store. Failures are
// logged and reported on stderr but never change the test verdict.
func recordRun(ctx context.Context, p *project, store *history.Store, run history.Run, reports []*collector.Report) {
	if err := store.Record(ctx, run, reports); err != nil {
		p.logger.Error("failed to record test run", map[string]any{"error": err.Error()})
		_, _ = fmt.Fprintf(p.stderr, "warning: %v\n", err)
		return
	}
	p.logger.Info("recorded test run", map[string]any{
		"session_id": run.SessionID,
		"reports":    len(reports),
	})
}

func historyAction(c *cli.Context, cache *config.Cache) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return &types.ConfigError{Field: "format", Msg: err.Error()}
	}
	p, err := openProject(c, cache)
	if err != nil {
		return err
	}
	defer p.close()

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openHistory(ctx, c, p)
	if err != nil {
		return err
	}
	if store == nil {
		return &types.ConfigError{Field: "history", Msg: "--history or PYDUST_HISTORY is required"}
	}

	run, reports, err := store.Latest(ctx, c.String("session"))
	if errors.Is(err, history.ErrNoHistory) {
		return cli.Exit(err.Error(), exitTestFailure)
	}
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return tui.Run(historyView(run, reports))
	}

	if r.Format() != render.FormatTable {
		if reports == nil {
			reports = []history.StoredReport{}
		}
		return r.Render(HistoryResponse{Run: run, Reports: reports})
	}

	rows := make([]TestRow, 0, len(reports))
	for _, report := range reports {
		rows = append(rows, TestRow{NodeID: report.NodeID, Outcome: report.Outcome, DurationMs: report.DurationMs})
	}
	if _, err := fmt.Fprintf(p.stdout, "session %s (%s)\n", run.SessionID, run.CompletedAt); err != nil {
		return err
	}
	if err := r.Render(rows); err != nil {
		return err
	}
	return r.RenderSummary(run.Summary)
}

// historyView adapts a stored run to the report browser.
func historyView(run *history.RunSummary, reports []history.StoredReport) tui.View {
	v := tui.View{
		Title:   fmt.Sprintf("%s session %s (%s)", run.Project, run.SessionID, run.CompletedAt),
		Summary: run.Summary,
	}
	for _, r := range reports {
		sections := r.Sections
		if len(sections) == 0 && r.Stderr != "" {
			sections = []collector.Section{{When: collector.WhenCall, Key: collector.SectionStderr, Content: r.Stderr}}
		}
		v.Rows = append(v.Rows, tui.Row{
			NodeID:     r.NodeID,
			Outcome:    string(r.Outcome),
			DurationMs: r.DurationMs,
			Detail:     tui.ReportDetail(r.Message, sections),
		})
	}
	return v
}
