package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/conversia-ai/conversia/internal/agent"
	"github.com/conversia-ai/conversia/internal/cache"
	"github.com/conversia-ai/conversia/internal/llm"
)

// Conversation state lives in Redis so any replica can serve the next turn.
const sessionTTL = 24 * time.Hour

type ConversationHandler struct {
	agent *agent.Agent
	cache *cache.Cache
}

func NewConversationHandler(a *agent.Agent, c *cache.Cache) *ConversationHandler {
	return &ConversationHandler{agent: a, cache: c}
}

type session struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Lead       agent.Lead        `json:"lead"`
	LeadFields []agent.FieldSpec `json:"lead_fields,omitempty"`
	History    []llm.Turn        `json:"history"`
	CreatedAt  time.Time         `json:"created_at"`
}

func sessionKey(id string) string { return "session:" + id }

// Create starts a conversation bound to a knowledge-base collection.
// lead_fields optionally names the lead data to collect for this
// conversation; omitted, the agent's default profile applies.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Collection string            `json:"collection"`
		LeadFields []agent.FieldSpec `json:"lead_fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Collection == "" {
		writeError(w, http.StatusBadRequest, "collection required")
		return
	}
	for _, f := range req.LeadFields {
		if f.Key == "" {
			writeError(w, http.StatusBadRequest, "lead field key required")
			return
		}
	}

	s := session{
		ID:         uuid.NewString(),
		Collection: req.Collection,
		LeadFields: req.LeadFields,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.cache.Set(r.Context(), sessionKey(s.ID), s, sessionTTL); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// Message runs one conversation turn and persists the updated state.
func (h *ConversationHandler) Message(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}

	var s session
	if err := h.cache.Get(r.Context(), sessionKey(id), &s); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	result, err := h.agent.Chat(r.Context(), agent.ChatRequest{
		Message:        req.Message,
		History:        s.History,
		Lead:           s.Lead,
		RequiredFields: s.LeadFields,
		Collection:     s.Collection,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.Lead = result.Lead
	s.History = append(s.History,
		llm.Turn{Role: llm.RoleUser, Content: req.Message},
		llm.Turn{Role: llm.RoleAssistant, Content: result.Answer},
	)
	if err := h.cache.Set(r.Context(), sessionKey(id), s, sessionTTL); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Get returns the session state, including the lead collected so far.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var s session
	if err := h.cache.Get(r.Context(), sessionKey(id), &s); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Delete ends a conversation and discards its state.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.cache.Delete(r.Context(), sessionKey(id)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
