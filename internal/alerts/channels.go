package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Channel is one vendor-specific alert destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *Alert) error
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert post to %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// --- Slack ---

type slackChannel struct {
	url    string
	client *http.Client
}

func (c *slackChannel) Name() string { return "slack" }

func (c *slackChannel) Send(ctx context.Context, alert *Alert) error {
	payload := map[string]any{
		"attachments": []map[string]any{
			{
				"color": slackColor(alert.Severity),
				"blocks": []map[string]any{
					{
						"type": "section",
						"text": map[string]any{
							"type": "mrkdwn",
							"text": fmt.Sprintf("%s *%s*\n%s", severityEmoji(alert.Severity), alert.Title, alert.Message),
						},
					},
					{
						"type": "context",
						"elements": []map[string]any{
							{"type": "mrkdwn", "text": fmt.Sprintf("Source: %s | Severity: %s | %s", alert.Source, alert.Severity, alert.CreatedAt.Format(time.RFC3339))},
						},
					},
				},
			},
		},
	}
	return postJSON(ctx, c.client, c.url, payload)
}

// --- Discord ---

type discordChannel struct {
	url    string
	client *http.Client
}

func (c *discordChannel) Name() string { return "discord" }

func (c *discordChannel) Send(ctx context.Context, alert *Alert) error {
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       alert.Title,
				"description": alert.Message,
				"color":       discordColor(alert.Severity),
				"fields": []map[string]any{
					{"name": "Source", "value": alert.Source, "inline": true},
					{"name": "Severity", "value": string(alert.Severity), "inline": true},
				},
				"timestamp": alert.CreatedAt.Format(time.RFC3339),
				"footer":    map[string]any{"text": "SkyPlanner"},
			},
		},
	}
	return postJSON(ctx, c.client, c.url, payload)
}

// --- Generic ---

type genericChannel struct {
	url    string
	client *http.Client
}

func (c *genericChannel) Name() string { return "generic" }

func (c *genericChannel) Send(ctx context.Context, alert *Alert) error {
	payload := map[string]any{
		"type":      alert.Type,
		"severity":  alert.Severity,
		"title":     alert.Title,
		"message":   alert.Message,
		"source":    alert.Source,
		"metadata":  alert.Metadata,
		"timestamp": alert.CreatedAt.Format(time.RFC3339),
	}
	return postJSON(ctx, c.client, c.url, payload)
}
