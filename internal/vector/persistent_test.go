package vector

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

func openStore(t *testing.T, path string) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestPersistentIndex_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaiwa.db")
	ctx := context.Background()

	store := openStore(t, path)
	idx, err := OpenPersistent(ctx, store, 2, WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Replace(ctx, []*models.Chunk{chunk("journal/a", 0, 1, 0), chunk("journal/a", 1, 0, 1)}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store = openStore(t, path)
	defer store.Close()
	idx, err = OpenPersistent(ctx, store, 2)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Fatalf("expected 2 chunks after reopen, got %d", idx.Size())
	}
	hits, err := idx.Search(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Chunk.Index != 1 {
		t.Errorf("expected chunk 1, got %d", hits[0].Chunk.Index)
	}
}

func TestPersistentIndex_DimensionChangeStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaiwa.db")
	ctx := context.Background()
	store := openStore(t, path)
	defer store.Close()

	idx, _ := OpenPersistent(ctx, store, 2)
	_ = idx.Replace(ctx, []*models.Chunk{chunk("a", 0, 1, 0)})

	wider, err := OpenPersistent(ctx, store, 3)
	if err != nil {
		t.Fatal(err)
	}
	if wider.Size() != 0 {
		t.Errorf("expected empty index for new dimensions, got %d", wider.Size())
	}
}

func TestPersistentIndex_FailedReplaceKeepsGeneration(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "kaiwa.db"))
	defer store.Close()

	idx, _ := OpenPersistent(ctx, store, 2)
	_ = idx.Replace(ctx, []*models.Chunk{chunk("a", 0, 1, 0)})

	if err := idx.Replace(ctx, []*models.Chunk{chunk("b", 0, 1)}); err == nil {
		t.Fatal("expected error")
	}
	if idx.Size() != 1 {
		t.Errorf("in-memory generation changed after failed replace")
	}
	if n, _ := store.CountChunks(ctx); n != 1 {
		t.Errorf("stored generation changed after failed replace: %d", n)
	}
}
