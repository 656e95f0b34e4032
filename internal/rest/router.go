package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bunrouter"

	"github.com/gosom/pingwatch/internal/entities"
)

type MonitorService interface {
	RecordHeartbeat(ctx context.Context, hb entities.Heartbeat) (entities.HeartbeatResult, error)
	Worker(id string) (entities.Worker, bool)
	ActiveWorkers() []string
	UpSince() time.Time
}

type EventReader interface {
	Query(q entities.EventQuery) []entities.Event
	Capacity() int
}

// History serves reads that the in-memory caches cannot answer.
type History interface {
	Events(ctx context.Context, q entities.EventQuery) ([]entities.Event, error)
	Diagnostic(ctx context.Context, worker string) (entities.Diagnostic, bool, error)
}

type DiagnosticReader interface {
	Latest(worker string) (entities.Diagnostic, bool)
}

type Analyzer interface {
	Classify() entities.Classification
	Report() entities.RCAReport
}

type AlertQueue interface {
	Len() int
}

type Gate interface {
	Held() bool
}

type RouterConfig struct {
	Log         zerolog.Logger
	Monitor     MonitorService
	Events      EventReader
	Diagnostics DiagnosticReader
	// History is optional. When set, event queries larger than the cache
	// and diagnostics missing from memory are read from it.
	History  History
	Analyzer Analyzer
	Alerts      AlertQueue
	Gate        Gate
	// Auth guards the heartbeat and /api routes. Nil leaves them open.
	Auth    bunrouter.MiddlewareFunc
	Metrics http.Handler
}

func NewRouter(cfg RouterConfig) *bunrouter.Router {
	router := bunrouter.New()

	auth := cfg.Auth
	if auth == nil {
		auth = func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc { return next }
	}

	g := router.Use(logHandler(cfg.Log), errorHandler)

	g.WithGroup("/ping", func(group *bunrouter.Group) {
		pingHandler := PingHandler{
			log:     cfg.Log,
			monitor: cfg.Monitor,
		}
		group = group.Use(auth)
		group.GET("/:worker", pingHandler.Get)
		group.POST("/:worker", pingHandler.Post)
	})

	g.WithGroup("/api", func(group *bunrouter.Group) {
		apiHandler := APIHandler{
			log:         cfg.Log,
			monitor:     cfg.Monitor,
			events:      cfg.Events,
			diagnostics: cfg.Diagnostics,
			history:     cfg.History,
			analyzer:    cfg.Analyzer,
		}
		group = group.Use(auth)
		group.GET("/status", apiHandler.Status)
		group.GET("/events", apiHandler.Events)
		group.GET("/analysis", apiHandler.Analysis)
		group.GET("/worker/:worker", apiHandler.Worker)
		group.GET("/worker/:worker/diagnostics", apiHandler.Diagnostics)
		group.GET("/rca", apiHandler.RCA)
	})

	healthHandler := HealthHandler{
		monitor:  cfg.Monitor,
		alerts:   cfg.Alerts,
		gate:     cfg.Gate,
		cacheTTL: 5 * time.Second,
	}
	g.GET("/healthz", healthHandler.Get)

	if cfg.Metrics != nil {
		router.GET("/metrics", bunrouter.HTTPHandler(cfg.Metrics))
	}
	return router
}
