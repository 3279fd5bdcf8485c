// Package httpapi exposes the trend service as a small read-mostly JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"CommentTrends/internal/aggregate"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/metrics"
	"CommentTrends/internal/usecase"
)

// Refresher triggers a new batch run.
type Refresher interface {
	Refresh(ctx context.Context, opts usecase.RefreshOptions) (domain.Run, error)
}

// Server routes HTTP requests to the trend service and the refresh pipeline.
type Server struct {
	trends    *usecase.TrendService
	refresher Refresher
	logger    *slog.Logger
	router    *chi.Mux
}

// NewServer builds the router. A nil refresher disables POST /api/refresh.
func NewServer(trends *usecase.TrendService, refresher Refresher, logger *slog.Logger) *Server {
	s := &Server{trends: trends, refresher: refresher, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Route("/api", func(r chi.Router) {
		r.Get("/trends", s.handleTrends)
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/clusters", s.handleClusters)
		r.Post("/refresh", s.handleRefresh)
	})

	s.router = r
	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(metrics.Format()))
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	granularity, err := aggregate.ParseGranularity(q.Get("granularity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	weekEnd, err := aggregate.ParseWeekday(q.Get("week_end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	fill := false
	if raw := q.Get("fill"); raw != "" {
		if fill, err = strconv.ParseBool(raw); err != nil {
			writeError(w, http.StatusBadRequest, "fill: "+err.Error())
			return
		}
	}

	report, err := s.trends.Trends(r.Context(), usecase.TrendRequest{
		From:        from,
		To:          to,
		Granularity: granularity,
		WeekEnd:     weekEnd,
		FillEmpty:   fill,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.trends.Snapshot(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := map[string]any{
		"path":       snap.Path,
		"run_id":     snap.RunID,
		"comments":   len(snap.Comments),
		"updated_at": snap.ModTime.UTC(),
		"age":        humanize.Time(snap.ModTime),
	}
	if minT, maxT, ok := snap.DateRange(); ok {
		resp["first_comment"] = minT
		resp["last_comment"] = maxT
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	run, err := s.trends.CurrentRun(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusNotImplemented, "refresh is not enabled on this server")
		return
	}
	refetch, _ := strconv.ParseBool(r.URL.Query().Get("refetch"))

	run, err := s.refresher.Refresh(r.Context(), usecase.RefreshOptions{Refetch: refetch})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var (
		insufficient *domain.InsufficientDataError
		empty        *domain.EmptyResultError
		upstream     *domain.UpstreamError
		cfgErr       *domain.ConfigurationError
	)
	switch {
	case errors.Is(err, domain.ErrSnapshotNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, usecase.ErrRefreshInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &insufficient), errors.As(err, &empty):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &upstream):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		if s.logger != nil {
			s.logger.Error("request failed", "error", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.logger != nil {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"took", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}
	})
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
