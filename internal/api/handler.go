package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// EventHandler runs one chat event through the session engine, delivering
// every reply it produces to the sink.
type EventHandler interface {
	Handle(ctx context.Context, event chat.Event, sink chat.Sink) error
}

type Dependencies struct {
	Logger           *slog.Logger
	Readiness        ReadinessCheck
	DependencyTimout time.Duration
	Engine           EventHandler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/events", func(w http.ResponseWriter, r *http.Request) {
		handleEvent(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

type eventResponse struct {
	Replies []chat.Reply `json:"replies"`
}

// collectingSink buffers replies so the webhook can return them in one
// response body. The mutex guards against engines that deliver from helper
// goroutines.
type collectingSink struct {
	mu      sync.Mutex
	replies []chat.Reply
}

func (s *collectingSink) Send(_ context.Context, _ string, reply chat.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply)
	return nil
}

func handleEvent(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EVENTS_NOT_CONFIGURED", "session engine is not configured", false, nil)
		return
	}

	var event chat.Event
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&event); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid event body", false, map[string]any{"details": err.Error()})
		return
	}
	if event.UserID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "USER_ID_REQUIRED", "user_id is required", false, nil)
		return
	}
	switch event.Type {
	case chat.EventText, chat.EventVoice, chat.EventFile, chat.EventSelect, chat.EventCancel:
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "EVENT_TYPE_INVALID", "unknown event type", false, map[string]any{"type": string(event.Type)})
		return
	}

	sink := &collectingSink{}
	if err := deps.Engine.Handle(r.Context(), event, sink); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EVENT_FAILED", err.Error(), true, nil)
		return
	}
	replies := sink.replies
	if replies == nil {
		replies = []chat.Reply{}
	}
	writeJSON(w, http.StatusOK, eventResponse{Replies: replies})
}

func CheckCatalogDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Catalog.DSN == "" {
			return errors.New("catalog dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
