package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jeenglish/speaking-backend/internal/api/handlers"
	"github.com/jeenglish/speaking-backend/internal/api/middleware"
	"github.com/jeenglish/speaking-backend/internal/config"
	"github.com/jeenglish/speaking-backend/internal/feedback"
	"github.com/jeenglish/speaking-backend/internal/llm"
	"github.com/jeenglish/speaking-backend/internal/queue"
	"github.com/jeenglish/speaking-backend/internal/store"
	"github.com/jeenglish/speaking-backend/internal/stt"
	"github.com/jeenglish/speaking-backend/internal/usage"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{rt.cfg.CORS.ClientURL}))

	rl := middleware.NewRateLimiter(10, 20)
	r.Use(rl.Limit)

	// Health endpoints
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/", health.Root)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Core services
	usageSvc := usage.NewService(rt.ledgerStore(),
		usage.WithMonthlyLimit(rt.cfg.Quota.MonthlyLimit))

	gw := llm.NewGateway(llm.GatewayConfig{
		OpenAIKey:        rt.cfg.LLM.OpenAIKey,
		AnthropicKey:     rt.cfg.LLM.AnthropicKey,
		DefaultProvider:  rt.cfg.LLM.DefaultProvider,
		FallbackProvider: rt.cfg.LLM.FallbackProvider,
		MaxRetries:       rt.cfg.LLM.MaxRetries,
	})
	feedbackSvc := feedback.NewService(gw, rt.cfg.LLM.Model)

	var queueClient *queue.Client
	if rt.cfg.Quota.PersistMode == "queue" {
		queueClient = queue.NewClient(rt.cfg.Redis)
	}

	usageH := handlers.NewUsageHandler(usageSvc)
	speakingH := handlers.NewSpeakingHandler(usageSvc, rt.sttProvider(), feedbackSvc, queueClient, rt.cfg.Quota)

	r.Route("/api", func(r chi.Router) {
		r.Get("/usage/{email}", usageH.Get)
		r.Post("/speaking/grade", speakingH.Grade)
	})

	return r
}

func (rt *Router) ledgerStore() usage.Store {
	switch rt.cfg.Store.Backend {
	case "redis":
		return store.NewRedis(rt.redis, rt.cfg.Store.RedisKey)
	case "postgres":
		return store.NewPostgres(rt.db)
	case "memory":
		return store.NewMemory()
	default:
		return store.NewJSONBin(rt.cfg.Store.JSONBinURL, rt.cfg.Store.JSONBinKey)
	}
}

func (rt *Router) sttProvider() stt.Provider {
	if rt.cfg.STT.Backend == "local" {
		return stt.NewLocal(stt.LocalConfig{BaseURL: rt.cfg.STT.LocalBaseURL})
	}
	return stt.NewOpenAI(stt.OpenAIConfig{
		APIKey:  rt.cfg.STT.OpenAIKey,
		BaseURL: rt.cfg.STT.OpenAIBaseURL,
		Model:   rt.cfg.STT.OpenAIModel,
		Timeout: rt.cfg.STT.Timeout,
	})
}
