// Package api wires the HTTP surface: routing, middleware and handlers.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/conversia-ai/conversia/internal/agent"
	"github.com/conversia-ai/conversia/internal/api/handlers"
	"github.com/conversia-ai/conversia/internal/api/middleware"
	"github.com/conversia-ai/conversia/internal/cache"
	"github.com/conversia-ai/conversia/internal/config"
	"github.com/conversia-ai/conversia/internal/embedding"
	"github.com/conversia-ai/conversia/internal/queue"
	"github.com/conversia-ai/conversia/internal/vectordb"
)

type Router struct {
	cfg        *config.Config
	redis      *redis.Client
	store      vectordb.Store
	embeddings *embedding.Service
	agent      *agent.Agent
	queue      *queue.Client
}

func NewRouter(cfg *config.Config, rdb *redis.Client, store vectordb.Store, embeddings *embedding.Service, a *agent.Agent, qc *queue.Client) *Router {
	return &Router{
		cfg:        cfg,
		redis:      rdb,
		store:      store,
		embeddings: embeddings,
		agent:      a,
		queue:      qc,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.redis, rt.store)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	sessionCache := cache.NewCache(rt.redis)

	r.Route("/api/v1", func(r chi.Router) {
		collectionH := handlers.NewCollectionHandler(rt.store, rt.embeddings, rt.queue, rt.cfg.VectorDB.Dimension)
		r.Route("/collections", func(r chi.Router) {
			r.Post("/", collectionH.Create)
			r.Delete("/{name}", collectionH.Delete)
			r.Get("/{name}/count", collectionH.Count)
			r.Post("/{name}/documents", collectionH.Ingest)
			r.Post("/{name}/search", collectionH.Search)
		})

		conversationH := handlers.NewConversationHandler(rt.agent, sessionCache)
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationH.Create)
			r.Get("/{id}", conversationH.Get)
			r.Post("/{id}/messages", conversationH.Message)
			r.Delete("/{id}", conversationH.Delete)
		})
	})

	return r
}
