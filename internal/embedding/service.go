// Package embedding turns text into vectors via an llm.Embedder, batching
// large inputs and memoizing per-query embeddings in Redis.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conversia-ai/conversia/internal/cache"
	"github.com/conversia-ai/conversia/internal/llm"
)

// API providers cap embedding batch sizes; 100 stays well inside the limits
// of the models in use.
const batchSize = 100

// maxConcurrentBatches bounds parallel embedding calls per request.
const maxConcurrentBatches = 4

const queryCacheTTL = 24 * time.Hour

type Service struct {
	embedder llm.Embedder
	model    string
	cache    *cache.Cache // nil disables query memoization
}

func NewService(embedder llm.Embedder, model string, c *cache.Cache) *Service {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Service{embedder: embedder, model: model, cache: c}
}

// Embed returns one vector per input text, in input order. Batches run
// concurrently with a bounded limit.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			vectors, err := s.embedder.Embed(ctx, s.model, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch at %d: %w", start, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("embed batch at %d: got %d vectors for %d inputs", start, len(vectors), end-start)
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedQuery embeds a single query string, consulting the cache first. Cache
// failures other than a miss degrade to a direct embed.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := s.cacheKey(text)
	if s.cache != nil {
		var cached []float32
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
		// A miss or a cache fault both fall through to a direct embed.
	}

	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, vectors[0], queryCacheTTL)
	}
	return vectors[0], nil
}

func (s *Service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(s.model + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}
