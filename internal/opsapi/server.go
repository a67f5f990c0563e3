// Package opsapi serves a small read-only HTTP surface for operators.
package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/park285/Cheese-TicTacToe-bot/internal/boardimg"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// Pinger checks a backing dependency, e.g. redis.Client.Ping wrapped in a closure.
type Pinger func(ctx context.Context) error

type Handler struct {
	mgr      *session.Manager
	ping     Pinger
	wsState  func() string
	renderer *boardimg.Renderer
}

type Option func(*Handler)

func WithPinger(p Pinger) Option { return func(h *Handler) { h.ping = p } }

// WithWebSocketState reports the chat transport state on /healthz.
func WithWebSocketState(f func() string) Option { return func(h *Handler) { h.wsState = f } }

// WithRenderer enables GET /sessions/{ref}/board.png.
func WithRenderer(r *boardimg.Renderer) Option { return func(h *Handler) { h.renderer = r } }

func NewHandler(mgr *session.Manager, opts ...Option) *Handler {
	h := &Handler{mgr: mgr}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/healthz", h.Health)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/{ref}", h.GetSession)
		r.Get("/{ref}/board.png", h.GetBoardImage)
	})
	return r
}

// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	status := http.StatusOK
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			body["redis"] = "ok"
		}
	}
	if h.wsState != nil {
		body["websocket"] = h.wsState()
	}
	writeJSON(w, status, body)
}

// GET /sessions/{ref}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, formatSession(rec))
}

// GET /sessions/{ref}/board.png
func (h *Handler) GetBoardImage(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Board images are disabled"})
		return
	}
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	png, err := h.renderer.RenderPNG(r.Context(), rec.Board, "")
	if err != nil {
		obslog.L().Error("ops_render_error", zap.Int64("session_id", rec.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to render board"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Record, bool) {
	ref := chi.URLParam(r, "ref")
	rec, err := h.mgr.Lookup(r.Context(), ref)
	switch {
	case err == nil:
		return rec, true
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
	default:
		obslog.L().Error("ops_lookup_error", zap.String("ref", ref), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Session store unavailable"})
	}
	return nil, false
}

func formatSession(rec *session.Record) map[string]any {
	players := make([]map[string]any, 0, len(rec.Participants))
	for _, p := range rec.Participants {
		players = append(players, map[string]any{
			"userId": p.UserID,
			"name":   p.DisplayName(),
			"symbol": string(p.Symbol),
		})
	}
	return map[string]any{
		"id":           rec.ID,
		"status":       rec.Status,
		"board":        rec.Board.String(),
		"participants": players,
		"currentTurn":  rec.CurrentTurn,
		"winner":       rec.Winner,
		"createdAt":    rec.CreatedAt.Format(time.RFC3339),
		"updatedAt":    rec.UpdatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		obslog.L().Debug("ops_write_error", zap.Error(err))
	}
}
