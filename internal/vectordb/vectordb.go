// Package vectordb abstracts vector database operations behind a uniform
// contract implemented by several backends: a local flat-file index plus
// Chroma, Qdrant, Milvus, Weaviate and pgvector clients.
package vectordb

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrCollectionNotFound is returned by Search and CountDocuments when the
// named collection does not exist in the backend.
var ErrCollectionNotFound = errors.New("collection not found")

// DocumentChunk is a unit of ingested text with its embedding and metadata.
// Identity is ID: re-ingesting the same ID overwrites the stored chunk.
type DocumentChunk struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchResult is a single similarity-search hit. Score is normalized so
// higher always means more similar; backends that natively return a distance
// convert it as score = 1 - distance.
type SearchResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Store is the uniform contract all backends implement. Filters are equality
// conditions over metadata fields, ANDed together. Implementations must not
// assume the backend preserves insertion order.
type Store interface {
	// Connect establishes or re-validates backend connectivity. Idempotent.
	Connect(ctx context.Context) error

	// CreateCollection creates a named, dimension-typed collection. Creating
	// a collection that already exists is a no-op.
	CreateCollection(ctx context.Context, name string, dimension int) error

	// DeleteCollection removes a collection and all its chunks. Deleting a
	// collection that does not exist is a success, not an error.
	DeleteCollection(ctx context.Context, name string) error

	// IngestDocuments batch-upserts chunks. Partial failure of the batch is
	// reported as an overall failure; there is no partial-success contract.
	IngestDocuments(ctx context.Context, collection string, chunks []DocumentChunk) error

	// Search returns at most topK results ordered by descending score.
	Search(ctx context.Context, collection string, vector []float32, topK int, filters map[string]any) ([]SearchResult, error)

	// CountDocuments returns the number of chunks in a collection.
	CountDocuments(ctx context.Context, collection string) (int, error)

	// Close releases backend resources.
	Close() error
}

// Config carries connection settings for the backend factory. Only the
// fields relevant to the selected type are consulted.
type Config struct {
	Type        string // local, chroma, qdrant, milvus, weaviate, pg
	Addr        string // host:port or base URL for network backends
	APIKey      string
	StoragePath string // local backend only
	DatabaseURL string // pg backend only
}

// New builds a Store for the given backend type. An unsupported type is a
// configuration error and fails here rather than on first use.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStore(cfg.StoragePath), nil
	case "chroma":
		return NewChromaStore(cfg.Addr), nil
	case "qdrant":
		return NewQdrantStore(cfg.Addr, cfg.APIKey), nil
	case "milvus":
		return NewMilvusStore(cfg.Addr, cfg.APIKey), nil
	case "weaviate":
		return NewWeaviateStore(cfg.Addr, cfg.APIKey), nil
	case "pg":
		return NewPgStore(cfg.DatabaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported vector database type %q", cfg.Type)
	}
}

// matchFilters reports whether metadata satisfies every equality filter.
// Values are compared by their fmt representation so numeric types that
// round-trip differently through JSON still match.
func matchFilters(metadata, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// sortByScore orders results by descending score in place.
func sortByScore(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
