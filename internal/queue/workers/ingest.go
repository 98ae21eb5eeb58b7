// Package workers holds asynq task handlers.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/conversia-ai/conversia/internal/embedding"
	"github.com/conversia-ai/conversia/internal/queue"
	"github.com/conversia-ai/conversia/internal/vectordb"
	"github.com/conversia-ai/conversia/pkg/chunker"
)

// IngestWorker turns a raw document into indexed chunks: split, embed,
// upsert. Chunk IDs are <document_id>:<index>, so re-ingesting a document
// overwrites its previous chunks instead of duplicating them.
type IngestWorker struct {
	embeddings *embedding.Service
	store      vectordb.Store
	opts       chunker.Options
	logger     *slog.Logger
}

func NewIngestWorker(embeddings *embedding.Service, store vectordb.Store, opts chunker.Options, logger *slog.Logger) *IngestWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestWorker{
		embeddings: embeddings,
		store:      store,
		opts:       opts,
		logger:     logger,
	}
}

func (w *IngestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	pieces := chunker.Split(payload.Text, w.opts)
	if len(pieces) == 0 {
		w.logger.Warn("document produced no chunks", "document_id", payload.DocumentID)
		return nil
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := w.embeddings.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", payload.DocumentID, err)
	}

	chunks := make([]vectordb.DocumentChunk, len(pieces))
	for i, p := range pieces {
		meta := map[string]any{
			"document_id": payload.DocumentID,
			"chunk_index": p.Index,
		}
		for k, v := range payload.Metadata {
			meta[k] = v
		}
		chunks[i] = vectordb.DocumentChunk{
			ID:        fmt.Sprintf("%s:%d", payload.DocumentID, p.Index),
			Text:      p.Text,
			Embedding: vectors[i],
			Metadata:  meta,
		}
	}

	if err := w.store.CreateCollection(ctx, payload.Collection, len(vectors[0])); err != nil {
		return fmt.Errorf("ensure collection %s: %w", payload.Collection, err)
	}
	if err := w.store.IngestDocuments(ctx, payload.Collection, chunks); err != nil {
		return fmt.Errorf("ingest into %s: %w", payload.Collection, err)
	}

	w.logger.Info("document ingested",
		"document_id", payload.DocumentID,
		"collection", payload.Collection,
		"chunks", len(chunks))
	return nil
}
