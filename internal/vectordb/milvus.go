package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MilvusStore talks to a Milvus server over its v2 HTTP API. Collections are
// quick-created with a varchar primary key, a COSINE-metric vector field and
// dynamic fields enabled, so chunk metadata rides along as dynamic columns
// and can be referenced directly in filter expressions.
type MilvusStore struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewMilvusStore(addr, token string) *MilvusStore {
	if addr == "" {
		addr = "http://localhost:19530"
	}
	return &MilvusStore{
		baseURL: strings.TrimSuffix(addr, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *MilvusStore) Connect(ctx context.Context) error {
	_, err := s.post(ctx, "/v2/vectordb/collections/list", map[string]any{})
	if err != nil {
		return fmt.Errorf("milvus heartbeat: %w", err)
	}
	return nil
}

func (s *MilvusStore) hasCollection(ctx context.Context, name string) (bool, error) {
	raw, err := s.post(ctx, "/v2/vectordb/collections/has", map[string]any{"collectionName": name})
	if err != nil {
		return false, err
	}
	var resp struct {
		Has bool `json:"has"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("milvus has decode: %w", err)
	}
	return resp.Has, nil
}

func (s *MilvusStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	exists, err := s.hasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("milvus create collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	body := map[string]any{
		"collectionName":   name,
		"dimension":        dimension,
		"metricType":       "COSINE",
		"idType":           "VarChar",
		"primaryFieldName": "id",
		"vectorFieldName":  "vector",
		"params":           map[string]any{"max_length": "512"},
	}
	if _, err := s.post(ctx, "/v2/vectordb/collections/create", body); err != nil {
		return fmt.Errorf("milvus create collection %s: %w", name, err)
	}
	return nil
}

func (s *MilvusStore) DeleteCollection(ctx context.Context, name string) error {
	// Drop on a missing collection is already a success server-side, but
	// checking first keeps the error path clean.
	exists, err := s.hasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("milvus delete collection %s: %w", name, err)
	}
	if !exists {
		return nil
	}
	if _, err := s.post(ctx, "/v2/vectordb/collections/drop", map[string]any{"collectionName": name}); err != nil {
		return fmt.Errorf("milvus drop collection %s: %w", name, err)
	}
	return nil
}

func (s *MilvusStore) IngestDocuments(ctx context.Context, name string, chunks []DocumentChunk) error {
	rows := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		row := map[string]any{
			"id":     c.ID,
			"vector": c.Embedding,
			"text":   c.Text,
		}
		for k, v := range c.Metadata {
			row[k] = v
		}
		rows[i] = row
	}

	body := map[string]any{"collectionName": name, "data": rows}
	if _, err := s.post(ctx, "/v2/vectordb/entities/upsert", body); err != nil {
		return fmt.Errorf("milvus upsert into %s: %w", name, err)
	}
	return nil
}

func (s *MilvusStore) Search(ctx context.Context, name string, vector []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	exists, err := s.hasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("milvus search %s: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	body := map[string]any{
		"collectionName": name,
		"data":           [][]float32{vector},
		"limit":          topK,
		"outputFields":   []string{"*"},
	}
	if len(filters) > 0 {
		body["filter"] = milvusFilterExpr(filters)
	}

	raw, err := s.post(ctx, "/v2/vectordb/entities/search", body)
	if err != nil {
		return nil, fmt.Errorf("milvus search %s: %w", name, err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("milvus search decode: %w", err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		r := SearchResult{}
		if id, ok := row["id"].(string); ok {
			r.ID = id
		}
		if text, ok := row["text"].(string); ok {
			r.Text = text
		}
		if d, ok := row["distance"].(float64); ok {
			// With the COSINE metric Milvus reports similarity directly.
			r.Score = d
		}
		meta := make(map[string]any)
		for k, v := range row {
			switch k {
			case "id", "text", "distance", "vector":
			default:
				meta[k] = v
			}
		}
		if len(meta) > 0 {
			r.Metadata = meta
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *MilvusStore) CountDocuments(ctx context.Context, name string) (int, error) {
	exists, err := s.hasCollection(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("milvus count %s: %w", name, err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	body := map[string]any{
		"collectionName": name,
		"filter":         "",
		"outputFields":   []string{"count(*)"},
	}
	raw, err := s.post(ctx, "/v2/vectordb/entities/query", body)
	if err != nil {
		return 0, fmt.Errorf("milvus count %s: %w", name, err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return 0, fmt.Errorf("milvus count decode: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if n, ok := rows[0]["count(*)"].(float64); ok {
		return int(n), nil
	}
	return 0, nil
}

func (s *MilvusStore) Close() error { return nil }

// milvusFilterExpr renders equality filters as a Milvus boolean expression
// over dynamic fields, e.g. `category == "billing" and priority == 2`.
func milvusFilterExpr(filters map[string]any) string {
	parts := make([]string, 0, len(filters))
	for k, v := range filters {
		switch val := v.(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s == %q", k, val))
		case bool:
			parts = append(parts, fmt.Sprintf("%s == %t", k, val))
		default:
			parts = append(parts, fmt.Sprintf("%s == %v", k, val))
		}
	}
	return strings.Join(parts, " and ")
}

func (s *MilvusStore) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
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
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}

	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != 0 && envelope.Code != 200 {
		return nil, fmt.Errorf("server code %d: %s", envelope.Code, envelope.Message)
	}
	return envelope.Data, nil
}
