package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ferry/internal/config"
	"ferry/internal/notifications"
)

type capturedRequest struct {
	body     string
	title    string
	tags     string
	priority string
}

func newCapture(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		requests = append(requests, capturedRequest{
			body:     string(body),
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), requests...)
	}
}

func serviceFor(topic string, mutate func(*config.Config)) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	if mutate != nil {
		mutate(&cfg)
	}
	return notifications.NewService(&cfg)
}

func TestNotifyArtifactPushedSendsLowPriority(t *testing.T) {
	server, requests := newCapture(t)
	service := serviceFor(server.URL, nil)

	err := service.NotifyArtifactPushed(context.Background(), "render_042", 1<<20, 42*time.Second)
	if err != nil {
		t.Fatalf("NotifyArtifactPushed: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("got %d requests, want 1", len(got))
	}
	if got[0].title != "Ferry - Pushed" {
		t.Fatalf("title = %q", got[0].title)
	}
	if got[0].priority != "low" {
		t.Fatalf("priority = %q, want low", got[0].priority)
	}
	if !strings.Contains(got[0].body, "render_042") || !strings.Contains(got[0].body, "1.0 MiB") {
		t.Fatalf("body = %q", got[0].body)
	}
}

func TestNotifyArtifactFailedIsHighPriorityAlert(t *testing.T) {
	server, requests := newCapture(t)
	service := serviceFor(server.URL, nil)

	cause := errors.New("rsync exit 12")
	if err := service.NotifyArtifactFailed(context.Background(), "render_042", 5, cause); err != nil {
		t.Fatalf("NotifyArtifactFailed: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("got %d requests, want 1", len(got))
	}
	if got[0].priority != "high" {
		t.Fatalf("priority = %q, want high", got[0].priority)
	}
	if !strings.Contains(got[0].tags, "alert") {
		t.Fatalf("tags = %q, want alert tag", got[0].tags)
	}
	for _, want := range []string{"render_042", "5 attempts", "rsync exit 12", ".FAILED"} {
		if !strings.Contains(got[0].body, want) {
			t.Fatalf("body %q missing %q", got[0].body, want)
		}
	}
}

func TestDisabledEventClassesAreSilent(t *testing.T) {
	server, requests := newCapture(t)
	service := serviceFor(server.URL, func(cfg *config.Config) {
		cfg.Notifications.Pushes = false
		cfg.Notifications.Daemon = false
	})

	ctx := context.Background()
	if err := service.NotifyArtifactPushed(ctx, "render_042", 0, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := service.NotifyDaemonStarted(ctx, "gpu-07"); err != nil {
		t.Fatal(err)
	}

	if got := requests(); len(got) != 0 {
		t.Fatalf("expected no requests, got %d", len(got))
	}
}

func TestRetentionShortfallHumanizesBytes(t *testing.T) {
	server, requests := newCapture(t)
	service := serviceFor(server.URL, nil)

	if err := service.NotifyRetentionShortfall(context.Background(), 2<<30, 10<<30); err != nil {
		t.Fatalf("NotifyRetentionShortfall: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("got %d requests, want 1", len(got))
	}
	if !strings.Contains(got[0].body, "2.0 GiB") || !strings.Contains(got[0].body, "10 GiB") {
		t.Fatalf("body = %q", got[0].body)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	service := serviceFor(server.URL, nil)
	err := service.NotifyDaemonStarted(context.Background(), "gpu-07")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestEmptyTopicReturnsNoop(t *testing.T) {
	service := serviceFor("", nil)
	if err := service.NotifyArtifactFailed(context.Background(), "render_042", 5, errors.New("x")); err != nil {
		t.Fatalf("noop service should not error: %v", err)
	}
}
