package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore is an in-process flat index with file-based persistence.
// Vectors are unit-normalized and scored by inner product. Each collection
// persists three parallel artifacts: the vector index, a metadata map keyed
// by internal offset, and an external-id to internal-offset map. Every
// mutation rewrites all three files; there is no write-ahead log, so a crash
// between writes can leave them out of sync.
type LocalStore struct {
	path string

	mu          sync.RWMutex
	collections map[string]*localCollection
}

type localCollection struct {
	Dimension int              `json:"dimension"`
	Vectors   [][]float32      `json:"vectors"`
	Metadata  map[int]localDoc `json:"metadata"`
	IDMap     map[string]int   `json:"id_map"`
}

type localDoc struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewLocalStore(path string) *LocalStore {
	if path == "" {
		path = "./vector_indexes"
	}
	return &LocalStore{
		path:        path,
		collections: make(map[string]*localCollection),
	}
}

func (s *LocalStore) Connect(_ context.Context) error {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	return nil
}

func (s *LocalStore) vectorsPath(name string) string {
	return filepath.Join(s.path, name+".vectors")
}

func (s *LocalStore) metadataPath(name string) string {
	return filepath.Join(s.path, name+".metadata")
}

func (s *LocalStore) idMapPath(name string) string {
	return filepath.Join(s.path, name+".idmap")
}

func (s *LocalStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(name); err == nil {
		return nil
	}

	col := &localCollection{
		Dimension: dimension,
		Metadata:  make(map[int]localDoc),
		IDMap:     make(map[string]int),
	}
	s.collections[name] = col
	return s.persist(name, col)
}

func (s *LocalStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, name)
	for _, p := range []string{s.vectorsPath(name), s.metadataPath(name), s.idMapPath(name)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete collection %s: %w", name, err)
		}
	}
	return nil
}

func (s *LocalStore) IngestDocuments(_ context.Context, name string, chunks []DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.load(name)
	if err != nil {
		return err
	}

	if col.Dimension == 0 && len(chunks) > 0 {
		col.Dimension = len(chunks[0].Embedding)
	}
	// Validate the whole batch before touching the index: ingest is
	// all-or-nothing, and a mismatched vector would silently skew scores.
	for _, c := range chunks {
		if len(c.Embedding) != col.Dimension {
			return fmt.Errorf("chunk %s: embedding dimension %d, collection %s expects %d",
				c.ID, len(c.Embedding), name, col.Dimension)
		}
	}

	for _, c := range chunks {
		vec := normalize(c.Embedding)
		doc := localDoc{ID: c.ID, Text: c.Text, Metadata: c.Metadata}

		if idx, ok := col.IDMap[c.ID]; ok {
			// Upsert: same external ID replaces the stored vector in place.
			col.Vectors[idx] = vec
			col.Metadata[idx] = doc
			continue
		}
		idx := len(col.Vectors)
		col.Vectors = append(col.Vectors, vec)
		col.Metadata[idx] = doc
		col.IDMap[c.ID] = idx
	}

	return s.persist(name, col)
}

func (s *LocalStore) Search(_ context.Context, name string, vector []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.load(name)
	if err != nil {
		return nil, err
	}

	query := normalize(vector)
	results := make([]SearchResult, 0, len(col.Vectors))
	for idx, vec := range col.Vectors {
		doc, ok := col.Metadata[idx]
		if !ok {
			continue
		}
		if len(filters) > 0 && !matchFilters(doc.Metadata, filters) {
			continue
		}
		results = append(results, SearchResult{
			ID:       doc.ID,
			Text:     doc.Text,
			Score:    float64(dot(query, vec)),
			Metadata: doc.Metadata,
		})
	}

	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *LocalStore) CountDocuments(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.load(name)
	if err != nil {
		return 0, err
	}
	return len(col.IDMap), nil
}

func (s *LocalStore) Close() error { return nil }

// load returns the in-memory collection, reading the three artifacts from
// disk on first access. Callers must hold the lock.
func (s *LocalStore) load(name string) (*localCollection, error) {
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	var vectors [][]float32
	if err := readJSON(s.vectorsPath(name), &vectors); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	col := &localCollection{
		Vectors:  vectors,
		Metadata: make(map[int]localDoc),
		IDMap:    make(map[string]int),
	}
	if err := readJSON(s.metadataPath(name), &col.Metadata); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load metadata for %s: %w", name, err)
	}
	if err := readJSON(s.idMapPath(name), &col.IDMap); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load id map for %s: %w", name, err)
	}
	if len(col.Vectors) > 0 {
		col.Dimension = len(col.Vectors[0])
	}

	s.collections[name] = col
	return col, nil
}

// persist rewrites all three artifacts. Order matters only in that the
// vector index is written first; see the type comment for the crash caveat.
func (s *LocalStore) persist(name string, col *localCollection) error {
	if err := writeJSON(s.vectorsPath(name), col.Vectors); err != nil {
		return fmt.Errorf("persist vectors for %s: %w", name, err)
	}
	if err := writeJSON(s.metadataPath(name), col.Metadata); err != nil {
		return fmt.Errorf("persist metadata for %s: %w", name, err)
	}
	if err := writeJSON(s.idMapPath(name), col.IDMap); err != nil {
		return fmt.Errorf("persist id map for %s: %w", name, err)
	}
	return nil
}

func readJSON(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return append([]float32(nil), v...)
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
