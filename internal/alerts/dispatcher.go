package alerts

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sanderm5/Sky-planner-sub006/internal/logging"
)

const sendTimeout = 30 * time.Second

// Config carries the 0..3 destination URLs read from ambient
// configuration. An empty URL disables that channel with no error.
type Config struct {
	SlackWebhookURL   string
	DiscordWebhookURL string
	GenericURL        string
}

// Dispatcher fans an alert out to every configured channel in parallel. A
// per-channel failure is logged and never cancels the others or surfaces to
// the caller.
type Dispatcher struct {
	channels []Channel
}

func New(cfg Config) *Dispatcher {
	client := &http.Client{Timeout: sendTimeout}
	var channels []Channel
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, &slackChannel{url: cfg.SlackWebhookURL, client: client})
	}
	if cfg.DiscordWebhookURL != "" {
		channels = append(channels, &discordChannel{url: cfg.DiscordWebhookURL, client: client})
	}
	if cfg.GenericURL != "" {
		channels = append(channels, &genericChannel{url: cfg.GenericURL, client: client})
	}
	return &Dispatcher{channels: channels}
}

// Dispatch sends alert to every configured channel. It never returns an
// error; failures are logged only.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *Alert) {
	if len(d.channels) == 0 {
		return
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	var wg sync.WaitGroup
	for _, ch := range d.channels {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := ch.Send(sendCtx, alert); err != nil {
				logging.ErrorContext(ctx, "alert dispatch failed", "channel", ch.Name(), "alert_type", alert.Type, "error", err)
			}
		}()
	}
	wg.Wait()
}

// DispatchBruteForce raises a brute-force alert only once attemptCount
// reaches BruteForceThreshold; below that it is a no-op.
func (d *Dispatcher) DispatchBruteForce(ctx context.Context, source string, attemptCount int) {
	if attemptCount < BruteForceThreshold {
		return
	}
	d.Dispatch(ctx, &Alert{
		Type:     TypeBruteForceSuspect,
		Severity: SeverityCritical,
		Title:    "Possible brute-force attempt detected",
		Message:  "Repeated authentication failures observed",
		Source:   source,
		Metadata: map[string]any{"attempt_count": attemptCount},
	})
}
