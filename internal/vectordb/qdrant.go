package vectordb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// QdrantStore talks to a Qdrant server over gRPC. Qdrant point IDs must be
// numeric or UUIDs, so external chunk IDs that are not UUIDs are mapped to a
// deterministic UUID and the original ID is kept in the payload.
type QdrantStore struct {
	addr   string
	apiKey string

	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
}

const qdrantIDKey = "_id"

func NewQdrantStore(addr, apiKey string) *QdrantStore {
	if addr == "" {
		addr = "localhost:6334"
	}
	return &QdrantStore{addr: addr, apiKey: apiKey}
}

func (s *QdrantStore) Connect(ctx context.Context) error {
	if s.conn == nil {
		conn, err := grpc.NewClient(s.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("qdrant dial %s: %w", s.addr, err)
		}
		s.conn = conn
		s.collections = qdrantclient.NewCollectionsClient(conn)
		s.points = qdrantclient.NewPointsClient(conn)
	}

	// Heartbeat: a cheap list call validates the connection.
	if _, err := s.collections.List(s.withAuth(ctx), &qdrantclient.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("qdrant heartbeat: %w", err)
	}
	return nil
}

func (s *QdrantStore) withAuth(ctx context.Context) context.Context {
	if s.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
}

func (s *QdrantStore) hasCollection(ctx context.Context, name string) (bool, error) {
	resp, err := s.collections.List(s.withAuth(ctx), &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("qdrant list collections: %w", err)
	}
	for _, col := range resp.GetCollections() {
		if col.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	exists, err := s.hasCollection(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.collections.Create(s.withAuth(ctx), &qdrantclient.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrantclient.VectorsConfig{
			Config: &qdrantclient.VectorsConfig_Params{
				Params: &qdrantclient.VectorParams{
					Size:     uint64(dimension),
					Distance: qdrantclient.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.hasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if _, err := s.collections.Delete(s.withAuth(ctx), &qdrantclient.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("qdrant delete collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) IngestDocuments(ctx context.Context, name string, chunks []DocumentChunk) error {
	points := make([]*qdrantclient.PointStruct, len(chunks))
	for i, c := range chunks {
		payload := map[string]*qdrantclient.Value{
			qdrantIDKey: stringValue(c.ID),
			"text":      stringValue(c.Text),
		}
		for k, v := range c.Metadata {
			payload[k] = anyValue(v)
		}
		points[i] = &qdrantclient.PointStruct{
			Id: pointID(c.ID),
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: c.Embedding},
				},
			},
			Payload: payload,
		}
	}

	_, err := s.points.Upsert(s.withAuth(ctx), &qdrantclient.UpsertPoints{
		CollectionName: name,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert into %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	req := &qdrantclient.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if len(filters) > 0 {
		req.Filter = buildQdrantFilter(filters)
	}

	resp, err := s.points.Search(s.withAuth(ctx), req)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return nil, fmt.Errorf("qdrant search %s: %w", name, err)
	}

	results := make([]SearchResult, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		payload := point.GetPayload()
		r := SearchResult{
			// Cosine scores from Qdrant are already similarities.
			Score: float64(point.GetScore()),
		}
		if v, ok := payload[qdrantIDKey]; ok {
			r.ID = v.GetStringValue()
		}
		if v, ok := payload["text"]; ok {
			r.Text = v.GetStringValue()
		}
		meta := make(map[string]any)
		for k, v := range payload {
			if k == qdrantIDKey || k == "text" {
				continue
			}
			meta[k] = nativeValue(v)
		}
		if len(meta) > 0 {
			r.Metadata = meta
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *QdrantStore) CountDocuments(ctx context.Context, name string) (int, error) {
	exact := true
	resp, err := s.points.Count(s.withAuth(ctx), &qdrantclient.CountPoints{
		CollectionName: name,
		Exact:          &exact,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return 0, fmt.Errorf("qdrant count %s: %w", name, err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *QdrantStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// pointID converts an external chunk ID into a Qdrant point ID. UUIDs pass
// through; anything else is hashed to a stable UUID.
func pointID(id string) *qdrantclient.PointId {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
	}
	return &qdrantclient.PointId{
		PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: id},
	}
}

func buildQdrantFilter(filters map[string]any) *qdrantclient.Filter {
	must := make([]*qdrantclient.Condition, 0, len(filters))
	for k, v := range filters {
		must = append(must, &qdrantclient.Condition{
			ConditionOneOf: &qdrantclient.Condition_Field{
				Field: &qdrantclient.FieldCondition{
					Key:   k,
					Match: matchValue(v),
				},
			},
		})
	}
	return &qdrantclient.Filter{Must: must}
}

func matchValue(v any) *qdrantclient.Match {
	switch val := v.(type) {
	case bool:
		return &qdrantclient.Match{MatchValue: &qdrantclient.Match_Boolean{Boolean: val}}
	case int:
		return &qdrantclient.Match{MatchValue: &qdrantclient.Match_Integer{Integer: int64(val)}}
	case int64:
		return &qdrantclient.Match{MatchValue: &qdrantclient.Match_Integer{Integer: val}}
	case float64:
		return &qdrantclient.Match{MatchValue: &qdrantclient.Match_Integer{Integer: int64(val)}}
	default:
		return &qdrantclient.Match{MatchValue: &qdrantclient.Match_Keyword{Keyword: fmt.Sprintf("%v", val)}}
	}
}

func stringValue(s string) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: s}}
}

func anyValue(v any) *qdrantclient.Value {
	switch val := v.(type) {
	case string:
		return stringValue(val)
	case bool:
		return &qdrantclient.Value{Kind: &qdrantclient.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrantclient.Value{Kind: &qdrantclient.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrantclient.Value{Kind: &qdrantclient.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrantclient.Value{Kind: &qdrantclient.Value_DoubleValue{DoubleValue: val}}
	default:
		return stringValue(fmt.Sprintf("%v", val))
	}
}

func nativeValue(v *qdrantclient.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrantclient.Value_StringValue:
		return kind.StringValue
	case *qdrantclient.Value_BoolValue:
		return kind.BoolValue
	case *qdrantclient.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrantclient.Value_DoubleValue:
		return kind.DoubleValue
	default:
		return v.String()
	}
}
