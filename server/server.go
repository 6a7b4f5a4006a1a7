// Package server exposes presets and dispatch over HTTP. Sends are
// fire-and-forget: the handler answers 202 and the sequence runs in the
// background, bounded by a sized wait group.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/remeh/sizedwaitgroup"

	"go-midipreset/logging"
	"go-midipreset/midi"
	"go-midipreset/preset"
)

// DefaultMaxInflight bounds concurrent background dispatches.
const DefaultMaxInflight = 8

type Server struct {
	presets  preset.Store
	ports    midi.Enumerator
	sender   preset.Sender
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	inflight int

	swg    sizedwaitgroup.SizedWaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer serves the gatherer's metrics at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMaxInflight bounds concurrent background dispatches. A full server
// holds new send requests until a slot frees or the client gives up.
func WithMaxInflight(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.inflight = n
		}
	}
}

// New builds a server. sender is usually a *dispatch.Dispatcher.
func New(presets preset.Store, ports midi.Enumerator, sender preset.Sender, opts ...Option) *Server {
	s := &Server{
		presets:  presets,
		ports:    ports,
		sender:   sender,
		logger:   logging.NewNop(),
		inflight: DefaultMaxInflight,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.swg = sizedwaitgroup.New(s.inflight)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ports", s.listPorts)

	r.Route("/presets", func(r chi.Router) {
		r.Get("/", s.listPresets)
		r.Get("/{id}", s.getPreset)
		r.Put("/{id}", s.putPreset)
		r.Delete("/{id}", s.deletePreset)
		r.Post("/{id}/send", s.sendPreset)
	})
	r.Post("/devices/{index}/send", s.sendMessages)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Wait blocks until every background dispatch has returned.
func (s *Server) Wait() {
	s.swg.Wait()
}

// Close cancels background dispatches at their next message boundary and
// waits for them.
func (s *Server) Close() {
	s.cancel()
	s.swg.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := midi.ListOutputs(r.Context(), s.ports)
	if err != nil {
		s.logger.Warn("list ports failed", "err", err)
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ports)
}

func (s *Server) listPresets(w http.ResponseWriter, r *http.Request) {
	ps, err := s.presets.List(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ps)
}

func (s *Server) getPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.presets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) putPreset(w http.ResponseWriter, r *http.Request) {
	var p preset.Preset
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	p.ID = chi.URLParam(r, "id")
	if err := s.presets.Save(r.Context(), p); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.presets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendResponse struct {
	Preset   string `json:"preset,omitempty"`
	Device   int    `json:"device"`
	Messages int    `json:"messages"`
}

func (s *Server) sendPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.presets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}

	device := p.Device
	if q := r.URL.Query().Get("device"); q != "" {
		device, err = parseDevice(q)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if !s.start(w, r, func(ctx context.Context) { preset.SendTo(ctx, s.sender, p, device) }) {
		return
	}
	s.writeJSON(w, http.StatusAccepted, sendResponse{Preset: p.ID, Device: device, Messages: len(p.Messages)})
}

type sendRequest struct {
	Messages []map[string]any `json:"messages"`
}

func (s *Server) sendMessages(w http.ResponseWriter, r *http.Request) {
	device, err := parseDevice(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	msgs, err := preset.DecodeMessages(req.Messages)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if !s.start(w, r, func(ctx context.Context) { s.sender.Dispatch(ctx, device, msgs) }) {
		return
	}
	s.writeJSON(w, http.StatusAccepted, sendResponse{Device: device, Messages: len(msgs)})
}

// start runs fn on a background goroutine once a slot is free. It writes the
// error response itself and reports false when the request gave up first.
func (s *Server) start(w http.ResponseWriter, r *http.Request, fn func(context.Context)) bool {
	if err := s.swg.AddWithContext(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no dispatch slot: %w", err))
		return false
	}
	go func() {
		defer s.swg.Done()
		fn(s.ctx)
	}()
	return true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, preset.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, preset.ErrInvalidRecord):
		s.writeError(w, http.StatusBadRequest, err)
	default:
		s.logger.Error("preset store failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func parseDevice(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid device index %q", s)
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "status", status, "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
