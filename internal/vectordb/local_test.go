package vectordb

import (
	"context"
	"errors"
	"math"
	"testing"
)

func newLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	s := NewLocalStore(t.TempDir())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return s
}

func seedChunks() []DocumentChunk {
	return []DocumentChunk{
		{ID: "a", Text: "alpha", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"topic": "pay"}},
		{ID: "b", Text: "beta", Embedding: []float32{0, 1, 0}, Metadata: map[string]any{"topic": "leave"}},
		{ID: "c", Text: "gamma", Embedding: []float32{0.9, 0.1, 0}, Metadata: map[string]any{"topic": "pay"}},
	}
}

func TestLocalStoreSearchOrdering(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	if err := s.CreateCollection(ctx, "kb", 3); err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}
	if err := s.IngestDocuments(ctx, "kb", seedChunks()); err != nil {
		t.Fatalf("IngestDocuments() error = %v", err)
	}

	results, err := s.Search(ctx, "kb", []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "c" {
		t.Errorf("order = [%s %s], want [a c]", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("scores not descending")
	}
	if math.Abs(results[0].Score-1) > 1e-5 {
		t.Errorf("identical vector scored %f, want ~1", results[0].Score)
	}
}

func TestLocalStoreFilters(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	if err := s.CreateCollection(ctx, "kb", 3); err != nil {
		t.Fatal(err)
	}
	if err := s.IngestDocuments(ctx, "kb", seedChunks()); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, "kb", []float32{1, 0, 0}, 10, map[string]any{"topic": "leave"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Errorf("filtered results = %+v, want only b", results)
	}
}

func TestLocalStoreUpsertByID(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	if err := s.CreateCollection(ctx, "kb", 3); err != nil {
		t.Fatal(err)
	}
	if err := s.IngestDocuments(ctx, "kb", seedChunks()); err != nil {
		t.Fatal(err)
	}
	// Same ID, new content: must replace, not append.
	if err := s.IngestDocuments(ctx, "kb", []DocumentChunk{
		{ID: "a", Text: "alpha v2", Embedding: []float32{0, 0, 1}},
	}); err != nil {
		t.Fatal(err)
	}

	count, err := s.CountDocuments(ctx, "kb")
	if err != nil {
		t.Fatalf("CountDocuments() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d after upsert, want 3", count)
	}

	results, err := s.Search(ctx, "kb", []float32{0, 0, 1}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "a" || results[0].Text != "alpha v2" {
		t.Errorf("top result = %+v, want replaced chunk a", results[0])
	}
}

func TestLocalStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := NewLocalStore(dir)
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCollection(ctx, "kb", 3); err != nil {
		t.Fatal(err)
	}
	if err := s.IngestDocuments(ctx, "kb", seedChunks()); err != nil {
		t.Fatal(err)
	}

	// A fresh store over the same directory sees the collection.
	reopened := NewLocalStore(dir)
	if err := reopened.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	count, err := reopened.CountDocuments(ctx, "kb")
	if err != nil {
		t.Fatalf("CountDocuments() after reopen error = %v", err)
	}
	if count != 3 {
		t.Errorf("count after reopen = %d, want 3", count)
	}

	results, err := reopened.Search(ctx, "kb", []float32{0, 1, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "b" {
		t.Errorf("top result after reopen = %s, want b", results[0].ID)
	}
}

func TestLocalStoreMissingCollection(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	if _, err := s.Search(ctx, "nope", []float32{1}, 1, nil); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Search() err = %v, want ErrCollectionNotFound", err)
	}
	if _, err := s.CountDocuments(ctx, "nope"); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("CountDocuments() err = %v, want ErrCollectionNotFound", err)
	}
	// Deleting what does not exist is a success.
	if err := s.DeleteCollection(ctx, "nope"); err != nil {
		t.Errorf("DeleteCollection() err = %v, want nil", err)
	}
}

func TestLocalStoreDeleteCollection(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	if err := s.CreateCollection(ctx, "kb", 3); err != nil {
		t.Fatal(err)
	}
	if err := s.IngestDocuments(ctx, "kb", seedChunks()); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCollection(ctx, "kb"); err != nil {
		t.Fatalf("DeleteCollection() error = %v", err)
	}
	if _, err := s.CountDocuments(ctx, "kb"); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("collection still reachable after delete: %v", err)
	}
}

func TestCreateCollectionIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	if err := s.CreateCollection(ctx, "kb", 3); err != nil {
		t.Fatal(err)
	}
	if err := s.IngestDocuments(ctx, "kb", seedChunks()); err != nil {
		t.Fatal(err)
	}
	// Creating again must not wipe existing data.
	if err := s.CreateCollection(ctx, "kb", 3); err != nil {
		t.Fatalf("second CreateCollection() error = %v", err)
	}
	count, err := s.CountDocuments(ctx, "kb")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d after re-create, want 3", count)
	}
}

func TestLocalStoreRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	if err := s.CreateCollection(ctx, "kb", 3); err != nil {
		t.Fatal(err)
	}

	// The batch fails as a whole: the valid chunk must not land either.
	err := s.IngestDocuments(ctx, "kb", []DocumentChunk{
		{ID: "ok", Text: "fits", Embedding: []float32{1, 0, 0}},
		{ID: "short", Text: "too narrow", Embedding: []float32{1, 0}},
	})
	if err == nil {
		t.Fatal("mismatched embedding dimension accepted")
	}

	count, err := s.CountDocuments(ctx, "kb")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count = %d after rejected batch, want 0", count)
	}

	results, err := s.Search(ctx, "kb", []float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("rejected chunks are searchable: %+v", results)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := normalize([]float32{0, 0, 0})
	for _, x := range v {
		if x != 0 {
			t.Fatalf("normalize(zero) = %v, must stay zero", v)
		}
	}
}
