package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// countingEmbedder returns a vector encoding each input's global position and
// tracks how many batches it served.
type countingEmbedder struct {
	mu      sync.Mutex
	batches int
	fail    bool
}

func (c *countingEmbedder) Embed(_ context.Context, _ string, inputs []string) ([][]float32, error) {
	c.mu.Lock()
	c.batches++
	c.mu.Unlock()
	if c.fail {
		return nil, errors.New("embedder down")
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		var pos float32
		fmt.Sscanf(in, "text-%f", &pos)
		out[i] = []float32{pos}
	}
	return out, nil
}

func TestEmbedPreservesInputOrder(t *testing.T) {
	emb := &countingEmbedder{}
	svc := NewService(emb, "m", nil)

	// Three batches worth of inputs.
	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	vectors, err := svc.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 250 {
		t.Fatalf("got %d vectors, want 250", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 1 || v[0] != float32(i) {
			t.Fatalf("vectors[%d] = %v, batching broke input order", i, v)
		}
	}
	if emb.batches != 3 {
		t.Errorf("served %d batches, want 3", emb.batches)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	svc := NewService(&countingEmbedder{}, "m", nil)
	vectors, err := svc.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors != nil {
		t.Errorf("got %v, want nil for empty input", vectors)
	}
}

func TestEmbedPropagatesFailure(t *testing.T) {
	svc := NewService(&countingEmbedder{fail: true}, "m", nil)
	if _, err := svc.Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("embedder failure swallowed")
	}
}

type shortEmbedder struct{}

func (shortEmbedder) Embed(_ context.Context, _ string, inputs []string) ([][]float32, error) {
	return make([][]float32, len(inputs)-1), nil
}

func TestEmbedRejectsShortBatch(t *testing.T) {
	svc := NewService(shortEmbedder{}, "m", nil)
	_, err := svc.Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Error("vector count mismatch accepted")
	}
}

func TestEmbedQueryWithoutCache(t *testing.T) {
	emb := &countingEmbedder{}
	svc := NewService(emb, "m", nil)

	v, err := svc.EmbedQuery(context.Background(), "text-7")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(v) != 1 || v[0] != 7 {
		t.Errorf("vector = %v", v)
	}
}

func TestCacheKeyBindsModelAndText(t *testing.T) {
	a := NewService(&countingEmbedder{}, "model-a", nil)
	b := NewService(&countingEmbedder{}, "model-b", nil)

	if a.cacheKey("same text") == b.cacheKey("same text") {
		t.Error("cache key ignores the model")
	}
	if a.cacheKey("one") == a.cacheKey("two") {
		t.Error("cache key ignores the text")
	}
}
