package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/conversia-ai/conversia/internal/embedding"
	"github.com/conversia-ai/conversia/internal/queue"
	"github.com/conversia-ai/conversia/internal/vectordb"
)

type CollectionHandler struct {
	store      vectordb.Store
	embeddings *embedding.Service
	queue      *queue.Client
	dimension  int
}

func NewCollectionHandler(store vectordb.Store, embeddings *embedding.Service, qc *queue.Client, dimension int) *CollectionHandler {
	return &CollectionHandler{
		store:      store,
		embeddings: embeddings,
		queue:      qc,
		dimension:  dimension,
	}
}

func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Dimension int    `json:"dimension"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.Dimension <= 0 {
		req.Dimension = h.dimension
	}

	if err := h.store.CreateCollection(r.Context(), req.Name, req.Dimension); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"name": req.Name, "dimension": req.Dimension})
}

func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.store.DeleteCollection(r.Context(), name); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CollectionHandler) Count(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	count, err := h.store.CountDocuments(r.Context(), name)
	if err != nil {
		if errors.Is(err, vectordb.ErrCollectionNotFound) {
			writeError(w, http.StatusNotFound, "collection not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection": name, "count": count})
}

// Ingest accepts a document and queues it for chunking and indexing.
func (h *CollectionHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		DocumentID string         `json:"document_id"`
		Text       string         `json:"text"`
		Metadata   map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}

	taskID, err := h.queue.EnqueueDocumentIngest(queue.DocumentIngestPayload{
		Collection: name,
		DocumentID: req.DocumentID,
		Text:       req.Text,
		Metadata:   req.Metadata,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": req.DocumentID,
		"task_id":     taskID,
		"status":      "queued",
	})
}

// Search runs a similarity query directly against a collection.
func (h *CollectionHandler) Search(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		Query   string         `json:"query"`
		TopK    int            `json:"top_k"`
		Filters map[string]any `json:"filters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	vector, err := h.embeddings.EmbedQuery(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	results, err := h.store.Search(r.Context(), name, vector, req.TopK, req.Filters)
	if err != nil {
		if errors.Is(err, vectordb.ErrCollectionNotFound) {
			writeError(w, http.StatusNotFound, "collection not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}
