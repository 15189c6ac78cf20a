package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lofi/internal/config"
)

const userAgent = "lofi/0.1.0"

// Event names a notification type.
type Event string

const (
	EventRunStarted   Event = "run_started"
	EventRunSucceeded Event = "run_succeeded"
	EventRunFailed    Event = "run_failed"
	EventTest         Event = "test"
)

// Payload carries event-specific values. Known keys: run_id, title, stage,
// error, ref.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventRunStarted:   cfg.Notifications.RunStarted,
			EventRunSucceeded: cfg.Notifications.RunSucceeded,
			EventRunFailed:    cfg.Notifications.RunFailed,
			EventTest:         true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	runID := shortID(payload.text("run_id"))
	title := payload.text("title")
	if title == "" {
		title = "run " + runID
	}

	switch event {
	case EventRunStarted:
		return message{
			title: "lofi - Run Started",
			body:  fmt.Sprintf("Started %s", title),
			tags:  []string{"lofi", "run", "started"},
		}, true
	case EventRunSucceeded:
		body := fmt.Sprintf("✅ Published %s", title)
		if ref := payload.text("ref"); ref != "" {
			body = fmt.Sprintf("%s\n%s", body, ref)
		}
		return message{
			title: "lofi - Run Complete",
			body:  body,
			tags:  []string{"lofi", "run", "completed"},
		}, true
	case EventRunFailed:
		var b strings.Builder
		b.WriteString("❌ Run ")
		b.WriteString(runID)
		if stage := payload.text("stage"); stage != "" {
			b.WriteString(" failed at ")
			b.WriteString(stage)
		} else {
			b.WriteString(" failed")
		}
		if errText := payload.text("error"); errText != "" {
			b.WriteString(": ")
			b.WriteString(errText)
		}
		return message{
			title:    "lofi - Run Failed",
			body:     b.String(),
			tags:     []string{"lofi", "run", "error"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "lofi - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"lofi", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
