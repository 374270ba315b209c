package services_test

import (
	"context"
	"testing"

	"ferry/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithArtifact(ctx, "render_42")
	ctx = services.WithTask(ctx, "watcher")
	ctx = services.WithRequestID(ctx, "req-123")

	if name, ok := services.ArtifactFromContext(ctx); !ok || name != "render_42" {
		t.Fatalf("unexpected artifact: %v %v", name, ok)
	}
	if task, ok := services.TaskFromContext(ctx); !ok || task != "watcher" {
		t.Fatalf("unexpected task: %v %v", task, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithArtifact(ctx, "")
	ctx = services.WithTask(ctx, "")
	if _, ok := services.ArtifactFromContext(ctx); ok {
		t.Fatal("expected no artifact value")
	}
	if _, ok := services.TaskFromContext(ctx); ok {
		t.Fatal("expected no task value")
	}
}
