package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSlackSender posts incident events to a Slack incoming webhook.
type HTTPSlackSender struct {
	webhookURL string
	client     *http.Client
}

func NewSlackSender(webhookURL string) *HTTPSlackSender {
	return &HTTPSlackSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSlackSender) Name() string { return "slack" }

func (s *HTTPSlackSender) Send(ctx context.Context, e Event) error {
	if s.webhookURL == "" {
		return nil
	}
	payload := map[string]any{
		"text": formatEventText(e),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

func formatEventText(e Event) string {
	actor := "someone"
	if e.Actor != nil {
		if e.Actor.Name != "" {
			actor = e.Actor.Name
		} else {
			actor = e.Actor.Email
		}
	}
	switch e.Action {
	case ActionCreated:
		return fmt.Sprintf("[%s] New incident: %s (reported by %s)", e.Incident.Severity, e.Incident.Title, actor)
	case ActionResolved:
		return fmt.Sprintf("[%s] Resolved: %s (by %s)", e.Incident.Severity, e.Incident.Title, actor)
	case ActionEscalated:
		return fmt.Sprintf("[%s] Severity changed: %s (by %s)", e.Incident.Severity, e.Incident.Title, actor)
	default:
		return fmt.Sprintf("[%s] Updated: %s (by %s)", e.Incident.Severity, e.Incident.Title, actor)
	}
}
