package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgStore keeps collections in Postgres with the pgvector extension. Each
// collection is a row in vector_collections; chunks live in vector_chunks
// keyed by (collection_id, chunk_id) so re-ingesting a chunk overwrites it.
// Scores come from cosine distance as 1 - (embedding <=> query).
type PgStore struct {
	db *pgxpool.Pool

	databaseURL string
}

func NewPgStore(databaseURL string) *PgStore {
	return &PgStore{databaseURL: databaseURL}
}

func (s *PgStore) Connect(ctx context.Context) error {
	if s.db == nil {
		pool, err := pgxpool.New(ctx, s.databaseURL)
		if err != nil {
			return fmt.Errorf("pg connect: %w", err)
		}
		s.db = pool
	}
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("pg ping: %w", err)
	}
	return s.migrate(ctx)
}

func (s *PgStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS vector_collections (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			dimension INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS vector_chunks (
			collection_id INT NOT NULL REFERENCES vector_collections(id) ON DELETE CASCADE,
			chunk_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector NOT NULL,
			metadata JSONB,
			PRIMARY KEY (collection_id, chunk_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pg migrate: %w", err)
		}
	}
	return nil
}

func (s *PgStore) collectionID(ctx context.Context, name string) (int, error) {
	var id int
	err := s.db.QueryRow(ctx,
		"SELECT id FROM vector_collections WHERE name = $1", name,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("pg lookup collection %s: %w", name, err)
	}
	return id, nil
}

func (s *PgStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO vector_collections (name, dimension) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`,
		name, dimension,
	)
	if err != nil {
		return fmt.Errorf("pg create collection %s: %w", name, err)
	}
	return nil
}

func (s *PgStore) DeleteCollection(ctx context.Context, name string) error {
	// Chunks cascade with the collection row.
	_, err := s.db.Exec(ctx, "DELETE FROM vector_collections WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("pg delete collection %s: %w", name, err)
	}
	return nil
}

func (s *PgStore) IngestDocuments(ctx context.Context, name string, chunks []DocumentChunk) error {
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("pg marshal metadata for %s: %w", c.ID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO vector_chunks (collection_id, chunk_id, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (collection_id, chunk_id) DO UPDATE SET content = $3, embedding = $4, metadata = $5`,
			id, c.ID, c.Text, pgvector.NewVector(c.Embedding), meta,
		)
		if err != nil {
			return fmt.Errorf("pg upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgStore) Search(ctx context.Context, name string, vector []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return nil, err
	}

	query := `SELECT chunk_id, content, metadata,
	                 1 - (embedding <=> $1) AS score
	          FROM vector_chunks
	          WHERE collection_id = $2`
	args := []any{pgvector.NewVector(vector), id}
	if len(filters) > 0 {
		filter, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("pg marshal filters: %w", err)
		}
		query += " AND metadata @> $3"
		args = append(args, filter)
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT %d", topK)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg search %s: %w", name, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r    SearchResult
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.Text, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("pg scan result: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("pg decode metadata: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PgStore) CountDocuments(ctx context.Context, name string) (int, error) {
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRow(ctx,
		"SELECT count(*) FROM vector_chunks WHERE collection_id = $1", id,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pg count %s: %w", name, err)
	}
	return count, nil
}

func (s *PgStore) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	return nil
}
