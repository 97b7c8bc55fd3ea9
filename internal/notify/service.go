package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vigil/internal/config"
)

const userAgent = "Vigil-Go/0.1.0"

// Service defines the notification surface exposed to daemon components.
// Delivery is best effort; callers log failures and move on.
type Service interface {
	NotifyPipelineFailed(ctx context.Context, videoID, stage, message string) error
	NotifyReadyForReview(ctx context.Context, videoID string, pendingTriggers int) error
	NotifySLABreach(ctx context.Context, overdue int, oldestVideoID string, oldestAge time.Duration) error
	TestNotification(ctx context.Context) error
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
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyPipelineFailed(ctx context.Context, videoID, stage, message string) error {
	videoID = strings.TrimSpace(videoID)
	stage = strings.TrimSpace(stage)
	if stage == "" {
		stage = "unknown"
	}
	body := fmt.Sprintf("❌ Pipeline failed for %s at %s", videoID, stage)
	if message = strings.TrimSpace(message); message != "" {
		body = fmt.Sprintf("%s: %s", body, message)
	}
	data := payload{
		title:    "Vigil - Pipeline Failed",
		message:  body,
		tags:     []string{"vigil", "pipeline", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReadyForReview(ctx context.Context, videoID string, pendingTriggers int) error {
	videoID = strings.TrimSpace(videoID)
	data := payload{
		title:   "Vigil - Ready for Review",
		message: fmt.Sprintf("✅ %s ready for review: %d flagged moments", videoID, pendingTriggers),
		tags:    []string{"vigil", "review", "ready"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySLABreach(ctx context.Context, overdue int, oldestVideoID string, oldestAge time.Duration) error {
	oldestAge = oldestAge.Round(time.Minute)
	if oldestAge < 0 {
		oldestAge = 0
	}
	data := payload{
		title: "Vigil - Review SLA Breach",
		message: fmt.Sprintf("⏰ %d review tasks waiting too long; oldest is %s (%s unclaimed)",
			overdue, strings.TrimSpace(oldestVideoID), oldestAge),
		tags:     []string{"vigil", "sla", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Vigil - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"vigil", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

func (noopService) NotifyPipelineFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyReadyForReview(context.Context, string, int) error            { return nil }
func (noopService) NotifySLABreach(context.Context, int, string, time.Duration) error  { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
