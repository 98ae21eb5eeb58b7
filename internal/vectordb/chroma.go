package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ChromaStore talks to a Chroma server over its HTTP API. Chroma addresses
// collections by server-assigned ID, so the store resolves names to IDs once
// and caches the mapping.
type ChromaStore struct {
	baseURL string
	client  *http.Client

	mu  sync.Mutex
	ids map[string]string // collection name -> server ID
}

func NewChromaStore(addr string) *ChromaStore {
	if addr == "" {
		addr = "http://localhost:8000"
	}
	return &ChromaStore{
		baseURL: strings.TrimSuffix(addr, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		ids:     make(map[string]string),
	}
}

func (s *ChromaStore) Connect(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, "/api/v1/heartbeat", nil)
	if err != nil {
		return fmt.Errorf("chroma heartbeat: %w", err)
	}
	return nil
}

func (s *ChromaStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]any{
		"name":          name,
		"metadata":      map[string]any{"dimension": dimension},
		"get_or_create": true,
	}
	raw, err := s.do(ctx, http.MethodPost, "/api/v1/collections", body)
	if err != nil {
		return fmt.Errorf("chroma create collection %s: %w", name, err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("chroma create collection decode: %w", err)
	}

	s.mu.Lock()
	s.ids[name] = resp.ID
	s.mu.Unlock()
	return nil
}

func (s *ChromaStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.ids, name)
	s.mu.Unlock()

	_, err := s.do(ctx, http.MethodDelete, "/api/v1/collections/"+name, nil)
	if err != nil {
		var httpErr *chromaError
		if errors.As(err, &httpErr) && httpErr.NotFound() {
			return nil
		}
		return fmt.Errorf("chroma delete collection %s: %w", name, err)
	}
	return nil
}

func (s *ChromaStore) IngestDocuments(ctx context.Context, name string, chunks []DocumentChunk) error {
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return err
	}

	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	documents := make([]string, len(chunks))
	metadatas := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		embeddings[i] = c.Embedding
		documents[i] = c.Text
		metadatas[i] = c.Metadata
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	if _, err := s.do(ctx, http.MethodPost, "/api/v1/collections/"+id+"/upsert", body); err != nil {
		return fmt.Errorf("chroma upsert into %s: %w", name, err)
	}
	return nil
}

func (s *ChromaStore) Search(ctx context.Context, name string, vector []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(filters) > 0 {
		body["where"] = filters
	}

	raw, err := s.do(ctx, http.MethodPost, "/api/v1/collections/"+id+"/query", body)
	if err != nil {
		return nil, fmt.Errorf("chroma query %s: %w", name, err)
	}

	var resp struct {
		IDs       [][]string         `json:"ids"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float64        `json:"distances"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("chroma query decode: %w", err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(resp.IDs[0]))
	for i, chunkID := range resp.IDs[0] {
		r := SearchResult{ID: chunkID}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Text = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			// Chroma returns a distance; normalize to similarity.
			r.Score = 1 - resp.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *ChromaStore) CountDocuments(ctx context.Context, name string) (int, error) {
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return 0, err
	}

	raw, err := s.do(ctx, http.MethodGet, "/api/v1/collections/"+id+"/count", nil)
	if err != nil {
		return 0, fmt.Errorf("chroma count %s: %w", name, err)
	}
	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, fmt.Errorf("chroma count decode: %w", err)
	}
	return count, nil
}

func (s *ChromaStore) Close() error { return nil }

// collectionID resolves a collection name to its server ID.
func (s *ChromaStore) collectionID(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	if id, ok := s.ids[name]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	raw, err := s.do(ctx, http.MethodGet, "/api/v1/collections/"+name, nil)
	if err != nil {
		var httpErr *chromaError
		if errors.As(err, &httpErr) && httpErr.NotFound() {
			return "", fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return "", fmt.Errorf("chroma get collection %s: %w", name, err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("chroma get collection decode: %w", err)
	}

	s.mu.Lock()
	s.ids[name] = resp.ID
	s.mu.Unlock()
	return resp.ID, nil
}

type chromaError struct {
	Status int
	Body   string
}

func (e *chromaError) Error() string {
	return fmt.Sprintf("chroma: status %d: %s", e.Status, e.Body)
}

func (e *chromaError) NotFound() bool {
	return e.Status == http.StatusNotFound ||
		(e.Status == http.StatusBadRequest && strings.Contains(e.Body, "does not exist"))
}

func (s *ChromaStore) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &chromaError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
