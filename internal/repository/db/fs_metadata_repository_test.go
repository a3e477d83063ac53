package db

import (
	"context"
	"errors"
	"testing"

	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
)

func TestFSMetadataRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewFSMetadataRepository(t.TempDir() + "/catalog")

	list, err := repo.ListMetadata(ctx)
	if err != nil {
		t.Fatalf("ListMetadata on empty catalog failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty catalog, got %v", list)
	}

	for _, name := range []string{"b.png", "a.png"} {
		if _, err := repo.CreateMetadata(ctx, sampleMetadata(name)); err != nil {
			t.Fatalf("CreateMetadata(%s) failed: %v", name, err)
		}
	}

	got, err := repo.GetMetadata(ctx, "a.png")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	want := sampleMetadata("a.png")
	if got.Shape != want.Shape || got.ParityMode != want.ParityMode || got.Placement[domain.RoleShard3] != "node-3" {
		t.Errorf("GetMetadata() = %+v, want %+v", got, want)
	}
	if got.Layout() != want.Layout() {
		t.Errorf("Layout() = %+v, want %+v", got.Layout(), want.Layout())
	}

	list, err = repo.ListMetadata(ctx)
	if err != nil {
		t.Fatalf("ListMetadata failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a.png" || list[1].Name != "b.png" {
		t.Errorf("ListMetadata() = %+v", list)
	}

	if err := repo.DeleteMetadata(ctx, "a.png"); err != nil {
		t.Fatalf("DeleteMetadata failed: %v", err)
	}
	if _, err := repo.GetMetadata(ctx, "a.png"); !errors.Is(err, zerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.DeleteMetadata(ctx, "a.png"); err != nil {
		t.Errorf("deleting a missing record should succeed, got %v", err)
	}
}

func TestFSMetadataRepository_InvalidName(t *testing.T) {
	repo := NewFSMetadataRepository(t.TempDir())
	if _, err := repo.CreateMetadata(context.Background(), sampleMetadata("../escape")); !errors.Is(err, zerrors.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

var _ Catalog = (*FSMetadataRepository)(nil)
var _ Catalog = (*MetadataRepository)(nil)
