package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/pydust/adapter"
	"github.com/justapithecus/pydust/adapter/redis"
	"github.com/justapithecus/pydust/adapter/webhook"
	"github.com/justapithecus/pydust/types"
)

// openNotifier builds the adapters named by the --notify-* flags, or
// returns nil when none are set.
func openNotifier(c *cli.Context) (adapter.Adapter, error) {
	retries := c.Int("notify-retries")
	var adapters adapter.Multi

	if url := c.String("notify-webhook"); url != "" {
		headers, err := webhook.ParseHeaders(c.StringSlice("notify-header"))
		if err != nil {
			return nil, &types.ConfigError{Field: "notify-header", Msg: err.Error()}
		}
		a, err := webhook.New(webhook.Config{URL: url, Headers: headers, Retries: retries})
		if err != nil {
			return nil, &types.ConfigError{Field: "notify-webhook", Msg: err.Error()}
		}
		adapters = append(adapters, a)
	}

	if url := c.String("notify-redis"); url != "" {
		a, err := redis.New(redis.Config{
			URL:     url,
			Channel: c.String("notify-redis-channel"),
			Retries: retries,
		})
		if err != nil {
			_ = adapters.Close()
			return nil, &types.ConfigError{Field: "notify-redis", Msg: err.Error()}
		}
		adapters = append(adapters, a)
	}

	if len(adapters) == 0 {
		return nil, nil
	}
	return adapters, nil
}

// publishRun sends event to notifier. Failures are logged and reported on
// stderr but never change the test verdict.
func publishRun(ctx context.Context, p *project, notifier adapter.Adapter, event *adapter.TestRunEvent) {
	if err := notifier.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish test run", map[string]any{"error": err.Error()})
		_, _ = fmt.Fprintf(p.stderr, "warning: %v\n", err)
		return
	}
	p.logger.Info("published test run", map[string]any{
		"session_id": event.SessionID,
		"outcome":    event.Outcome,
	})
}
