package vectordb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WeaviateStore talks to a Weaviate server over its REST and GraphQL APIs.
// Collections map to classes: names are converted to the CamelCase form
// Weaviate requires and prefixed to keep them apart from other tenants of
// the same instance. Metadata keys are flattened into meta_<key> text
// properties so equality filters translate into native where operands.
type WeaviateStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

const weaviateClassPrefix = "Conversia"

func NewWeaviateStore(addr, apiKey string) *WeaviateStore {
	if addr == "" {
		addr = "http://localhost:8080"
	}
	return &WeaviateStore{
		baseURL: strings.TrimSuffix(addr, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *WeaviateStore) Connect(ctx context.Context) error {
	if _, err := s.do(ctx, http.MethodGet, "/v1/meta", nil); err != nil {
		return fmt.Errorf("weaviate heartbeat: %w", err)
	}
	return nil
}

// className converts a collection name into Weaviate's class naming scheme.
// CamelCasing alone is lossy ("my-kb", "my_kb" and "myKb" would collapse),
// so a short hash of the raw name keeps distinct collections distinct.
func className(collection string) string {
	var b strings.Builder
	b.WriteString(weaviateClassPrefix)
	for _, part := range strings.FieldsFunc(collection, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	}) {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	sum := sha256.Sum256([]byte(collection))
	fmt.Fprintf(&b, "X%x", sum[:4])
	return b.String()
}

func (s *WeaviateStore) hasClass(ctx context.Context, class string) (bool, error) {
	_, err := s.do(ctx, http.MethodGet, "/v1/schema/"+class, nil)
	if err != nil {
		var httpErr *weaviateError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *WeaviateStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	class := className(name)
	exists, err := s.hasClass(ctx, class)
	if err != nil {
		return fmt.Errorf("weaviate create collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	schema := map[string]any{
		"class":       class,
		"description": fmt.Sprintf("collection %s, dimension %d", name, dimension),
		"vectorizer":  "none",
		"vectorIndexConfig": map[string]any{
			"distance": "cosine",
		},
		"properties": []map[string]any{
			{"name": "chunkId", "dataType": []string{"text"}},
			{"name": "text", "dataType": []string{"text"}},
		},
	}
	if _, err := s.do(ctx, http.MethodPost, "/v1/schema", schema); err != nil {
		return fmt.Errorf("weaviate create collection %s: %w", name, err)
	}
	return nil
}

func (s *WeaviateStore) DeleteCollection(ctx context.Context, name string) error {
	class := className(name)
	if _, err := s.do(ctx, http.MethodDelete, "/v1/schema/"+class, nil); err != nil {
		var httpErr *weaviateError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("weaviate delete collection %s: %w", name, err)
	}
	return nil
}

func (s *WeaviateStore) IngestDocuments(ctx context.Context, name string, chunks []DocumentChunk) error {
	class := className(name)
	objects := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		props := map[string]any{
			"chunkId": c.ID,
			"text":    c.Text,
		}
		for k, v := range c.Metadata {
			props["meta_"+k] = fmt.Sprintf("%v", v)
		}
		objects[i] = map[string]any{
			"class":      class,
			"id":         objectUUID(c.ID),
			"properties": props,
			"vector":     c.Embedding,
		}
	}

	body := map[string]any{"objects": objects}
	if _, err := s.do(ctx, http.MethodPost, "/v1/batch/objects", body); err != nil {
		return fmt.Errorf("weaviate batch into %s: %w", name, err)
	}
	return nil
}

func (s *WeaviateStore) Search(ctx context.Context, name string, vector []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	class := className(name)
	exists, err := s.hasClass(ctx, class)
	if err != nil {
		return nil, fmt.Errorf("weaviate search %s: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	vecJSON, _ := json.Marshal(vector)
	fields := []string{"chunkId", "text", "_additional {distance}"}
	for k := range filters {
		fields = append(fields, "meta_"+k)
	}

	query := fmt.Sprintf("{Get{%s(nearVector:{vector:%s},limit:%d%s){%s}}}",
		class, vecJSON, topK, weaviateWhere(filters), strings.Join(fields, " "))

	raw, err := s.do(ctx, http.MethodPost, "/v1/graphql", map[string]any{"query": query})
	if err != nil {
		return nil, fmt.Errorf("weaviate search %s: %w", name, err)
	}

	var resp struct {
		Data struct {
			Get map[string][]map[string]any `json:"Get"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("weaviate search decode: %w", err)
	}

	items := resp.Data.Get[class]
	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		r := SearchResult{}
		if id, ok := item["chunkId"].(string); ok {
			r.ID = id
		}
		if text, ok := item["text"].(string); ok {
			r.Text = text
		}
		if add, ok := item["_additional"].(map[string]any); ok {
			if d, ok := add["distance"].(float64); ok {
				// Weaviate reports cosine distance; convert to similarity.
				r.Score = 1 - d
			}
		}
		meta := make(map[string]any)
		for k, v := range item {
			if after, found := strings.CutPrefix(k, "meta_"); found {
				meta[after] = v
			}
		}
		if len(meta) > 0 {
			r.Metadata = meta
		}
		results = append(results, r)
	}
	sortByScore(results)
	return results, nil
}

func (s *WeaviateStore) CountDocuments(ctx context.Context, name string) (int, error) {
	class := className(name)
	exists, err := s.hasClass(ctx, class)
	if err != nil {
		return 0, fmt.Errorf("weaviate count %s: %w", name, err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	query := fmt.Sprintf("{Aggregate{%s{meta{count}}}}", class)
	raw, err := s.do(ctx, http.MethodPost, "/v1/graphql", map[string]any{"query": query})
	if err != nil {
		return 0, fmt.Errorf("weaviate count %s: %w", name, err)
	}

	var resp struct {
		Data struct {
			Aggregate map[string][]struct {
				Meta struct {
					Count int `json:"count"`
				} `json:"meta"`
			} `json:"Aggregate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("weaviate count decode: %w", err)
	}
	if agg := resp.Data.Aggregate[class]; len(agg) > 0 {
		return agg[0].Meta.Count, nil
	}
	return 0, nil
}

func (s *WeaviateStore) Close() error { return nil }

// objectUUID maps an external chunk ID onto the UUID object identity
// Weaviate requires, so re-ingesting the same chunk overwrites it.
func objectUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// weaviateWhere renders ANDed equality filters as a GraphQL where argument
// over the flattened meta_<key> properties.
func weaviateWhere(filters map[string]any) string {
	if len(filters) == 0 {
		return ""
	}
	operands := make([]string, 0, len(filters))
	for k, v := range filters {
		operands = append(operands, fmt.Sprintf(
			`{path:["meta_%s"],operator:Equal,valueText:%q}`, k, fmt.Sprintf("%v", v)))
	}
	return fmt.Sprintf(",where:{operator:And,operands:[%s]}", strings.Join(operands, ","))
}

type weaviateError struct {
	Status int
	Body   string
}

func (e *weaviateError) Error() string {
	return fmt.Sprintf("weaviate: status %d: %s", e.Status, e.Body)
}

func (s *WeaviateStore) do(ctx context.Context, method, path string, body any) ([]byte, error) {
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
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

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
		return nil, &weaviateError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
