// Package handlers holds the HTTP endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/conversia-ai/conversia/internal/vectordb"
)

type HealthHandler struct {
	redis *redis.Client
	store vectordb.Store
}

func NewHealthHandler(rdb *redis.Client, store vectordb.Store) *HealthHandler {
	return &HealthHandler{redis: rdb, store: store}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	if h.store != nil {
		if err := h.store.Connect(r.Context()); err != nil {
			checks["vectordb"] = "unhealthy: " + err.Error()
		} else {
			checks["vectordb"] = "ok"
		}
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, map[string]any{"status": statusStr(status), "checks": checks})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
