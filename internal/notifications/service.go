package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"ferry/internal/config"
)

const userAgent = "Ferry/0.1.0"

// Service defines the notification surface exposed to daemon tasks.
type Service interface {
	NotifyDaemonStarted(ctx context.Context, workerID string) error
	NotifyDaemonStopped(ctx context.Context, workerID string) error
	NotifyArtifactPushed(ctx context.Context, name string, bytes int64, duration time.Duration) error
	NotifyArtifactFailed(ctx context.Context, name string, attempts int, cause error) error
	NotifyRetentionShortfall(ctx context.Context, freeBytes, floorBytes uint64) error
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
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		pushes:    cfg.Notifications.Pushes,
		failures:  cfg.Notifications.Failures,
		retention: cfg.Notifications.Retention,
		daemon:    cfg.Notifications.Daemon,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	pushes    bool
	failures  bool
	retention bool
	daemon    bool
}

func (n *ntfyService) NotifyDaemonStarted(ctx context.Context, workerID string) error {
	if !n.daemon {
		return nil
	}
	data := payload{
		title:    "Ferry - Started",
		message:  fmt.Sprintf("Sync daemon started on %s", strings.TrimSpace(workerID)),
		tags:     []string{"ferry", "daemon", "started"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDaemonStopped(ctx context.Context, workerID string) error {
	if !n.daemon {
		return nil
	}
	data := payload{
		title:    "Ferry - Stopped",
		message:  fmt.Sprintf("Sync daemon stopped on %s", strings.TrimSpace(workerID)),
		tags:     []string{"ferry", "daemon", "stopped"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyArtifactPushed(ctx context.Context, name string, bytes int64, duration time.Duration) error {
	if !n.pushes {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration <= 0 {
		duration = time.Second
	}
	message := fmt.Sprintf("Pushed %s in %s", strings.TrimSpace(name), duration)
	if bytes > 0 {
		message = fmt.Sprintf("Pushed %s (%s) in %s", strings.TrimSpace(name), humanize.IBytes(uint64(bytes)), duration)
	}
	data := payload{
		title:    "Ferry - Pushed",
		message:  message,
		tags:     []string{"ferry", "push", "completed"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyArtifactFailed(ctx context.Context, name string, attempts int, cause error) error {
	if !n.failures {
		return nil
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Push of %s failed permanently after %d attempts", strings.TrimSpace(name), attempts)
	if cause != nil {
		builder.WriteString("\nLast error: ")
		builder.WriteString(strings.TrimSpace(cause.Error()))
	}
	builder.WriteString("\nRemove the .FAILED sentinel to retry.")

	data := payload{
		title:    "Ferry - Push Failed",
		message:  builder.String(),
		tags:     []string{"ferry", "push", "failed", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRetentionShortfall(ctx context.Context, freeBytes, floorBytes uint64) error {
	if !n.retention {
		return nil
	}
	data := payload{
		title: "Ferry - Low Disk Space",
		message: fmt.Sprintf("Archive pruning exhausted: %s free, floor is %s",
			humanize.IBytes(freeBytes), humanize.IBytes(floorBytes)),
		tags:     []string{"ferry", "retention", "alert"},
		priority: "high",
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

func (noopService) NotifyDaemonStarted(context.Context, string) error                        { return nil }
func (noopService) NotifyDaemonStopped(context.Context, string) error                        { return nil }
func (noopService) NotifyArtifactPushed(context.Context, string, int64, time.Duration) error { return nil }
func (noopService) NotifyArtifactFailed(context.Context, string, int, error) error           { return nil }
func (noopService) NotifyRetentionShortfall(context.Context, uint64, uint64) error           { return nil }
