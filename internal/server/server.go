// Package server exposes batch triggers and read-only product views over HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/marcosevegrand/dealpulse/internal/refresh"
	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// ErrBusy is returned when a batch is already running
var ErrBusy = errors.New("a batch is already running")

// maxObservationDays bounds ?days= so the lookback never overflows a Duration
const maxObservationDays = 3650

// BatchRunner runs refresh and alert batches
type BatchRunner interface {
	RunRefresh(ctx context.Context) (*refresh.BatchSummary, error)
	RunAlerts(ctx context.Context) (*refresh.BatchSummary, error)
}

// ProductReader is the read side of the store used by the product views
type ProductReader interface {
	ListProducts(ctx context.Context) ([]tracking.TrackedProduct, error)
	GetProduct(ctx context.Context, productID string) (tracking.TrackedProduct, error)
	ListObservations(ctx context.Context, productID string, since time.Time) ([]tracking.PriceObservation, error)
}

// Server serializes batches so that scheduled and manual triggers never overlap
type Server struct {
	runner BatchRunner
	store  ProductReader
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	last    map[string]*refresh.BatchSummary
}

func New(runner BatchRunner, store ProductReader, logger zerolog.Logger) *Server {
	return &Server{
		runner: runner,
		store:  store,
		logger: logger,
		now:    time.Now,
		last:   make(map[string]*refresh.BatchSummary),
	}
}

// Routes builds the chi router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batches/refresh", s.handleBatch(refresh.KindRefresh))
		r.Post("/batches/alerts", s.handleBatch(refresh.KindAlerts))
		r.Get("/batches/{kind}/last", s.handleLastBatch)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Second))
			r.Get("/products", s.handleListProducts)
			r.Get("/products/{id}", s.handleGetProduct)
			r.Get("/products/{id}/observations", s.handleObservations)
		})
	})

	return r
}

// Run executes one batch of the given kind unless another batch is in flight
func (s *Server) Run(ctx context.Context, kind string) (*refresh.BatchSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var (
		summary *refresh.BatchSummary
		err     error
	)
	switch kind {
	case refresh.KindRefresh:
		summary, err = s.runner.RunRefresh(ctx)
	case refresh.KindAlerts:
		summary, err = s.runner.RunAlerts(ctx)
	default:
		return nil, errors.New("unknown batch kind: " + kind)
	}

	if summary != nil {
		s.mu.Lock()
		s.last[kind] = summary
		s.mu.Unlock()
	}
	return summary, err
}

// Every runs kind on a fixed interval until ctx is done. A zero interval
// disables the loop.
func (s *Server) Every(ctx context.Context, kind string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, kind); err != nil {
				if errors.Is(err, ErrBusy) {
					s.logger.Warn().Str("kind", kind).Msg("previous batch still running, skipping tick")
					continue
				}
				s.logger.Error().Err(err).Str("kind", kind).Msg("scheduled batch failed")
			}
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleBatch(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// the batch outlives a dropped client connection
		summary, err := s.Run(context.WithoutCancel(r.Context()), kind)
		switch {
		case errors.Is(err, ErrBusy):
			jsonError(w, http.StatusConflict, err.Error())
		case err != nil && summary == nil:
			jsonError(w, http.StatusInternalServerError, err.Error())
		default:
			if err != nil {
				s.logger.Warn().Err(err).Str("kind", kind).Msg("batch finished with error")
			}
			jsonResponse(w, http.StatusOK, summary)
		}
	}
}

func (s *Server) handleLastBatch(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	s.mu.Lock()
	summary, ok := s.last[kind]
	s.mu.Unlock()
	if !ok {
		jsonError(w, http.StatusNotFound, "no "+kind+" batch has run yet")
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"products": products,
		"count":    len(products),
	})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxObservationDays {
			jsonError(w, http.StatusBadRequest, "days must be an integer between 1 and "+strconv.Itoa(maxObservationDays))
			return
		}
		days = n
	}

	if _, err := s.store.GetProduct(r.Context(), id); err != nil {
		storeError(w, err)
		return
	}

	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	obs, err := s.store.ListObservations(r.Context(), id, since)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"product_id":   id,
		"observations": obs,
		"count":        len(obs),
	})
}

func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, tracking.ErrNotFound) {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	jsonError(w, http.StatusInternalServerError, err.Error())
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
