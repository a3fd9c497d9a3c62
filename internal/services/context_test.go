package services_test

import (
	"context"
	"testing"

	"theli/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithStage(ctx, "Bm")
	ctx = services.WithFolderRole(ctx, "science")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "Bm" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if role, ok := services.FolderRoleFromContext(ctx); !ok || role != "science" {
		t.Fatalf("unexpected role: %v %v", role, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
