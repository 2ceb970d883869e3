// Package http provides the HTTP adapter for starting and stopping turns
// and reading workspace history.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Strob0t/StreamForge/internal/domain"
	"github.com/Strob0t/StreamForge/internal/domain/history"
	"github.com/Strob0t/StreamForge/internal/port/historystore"
	"github.com/Strob0t/StreamForge/internal/service"
)

const maxBodyBytes = 1 << 20

// Handlers bundles the HTTP endpoints with their dependencies. ChunkChars
// and ChunkDelay tune text delta pacing; zero values fall back to the
// built-in defaults.
type Handlers struct {
	Player     *service.Player
	Store      historystore.Store
	ChunkChars int
	ChunkDelay time.Duration
}

// Routes mounts all endpoints on the given router.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/api/workspaces/{workspaceID}", func(r chi.Router) {
		r.Post("/turns", h.StartTurn)
		r.Get("/history", h.GetHistory)
		r.Get("/stream", h.StreamStatus)
		r.Delete("/stream", h.StopStream)
		r.Post("/stream/release", h.ReleaseStream)
	})
}

// startTurnRequest is the body for starting a turn.
type startTurnRequest struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// StartTurn appends the user message to history and begins streaming the
// assistant's reply. It responds once the stream has started; delivery
// continues in the background.
func (h *Handlers) StartTurn(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	req, ok := readJSON[startTurnRequest](w, r)
	if !ok {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	userMsg := &history.Message{
		ID:    "user-" + uuid.NewString(),
		Role:  "user",
		Parts: []history.Part{history.TextPart(req.Content)},
	}
	if err := h.Store.Append(r.Context(), workspaceID, userMsg); err != nil {
		slog.Error("append user message failed", "workspace_id", workspaceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	messages, err := h.Store.History(r.Context(), workspaceID)
	if err != nil {
		slog.Error("load history failed", "workspace_id", workspaceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	err = h.Player.Play(r.Context(), messages, workspaceID, service.PlayOptions{
		Model:      req.Model,
		Mode:       req.Mode,
		ChunkChars: h.ChunkChars,
		ChunkDelay: h.ChunkDelay,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoUserMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("turn start failed", "workspace_id", workspaceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start turn")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"streaming": h.Player.IsStreaming(workspaceID),
	})
}

// GetHistory returns all messages for the workspace.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	messages, err := h.Store.History(r.Context(), workspaceID)
	if err != nil {
		slog.Error("load history failed", "workspace_id", workspaceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if messages == nil {
		messages = []history.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// StreamStatus reports whether the workspace currently has an active stream.
func (h *Handlers) StreamStatus(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	writeJSON(w, http.StatusOK, map[string]bool{
		"streaming": h.Player.IsStreaming(workspaceID),
	})
}

// StopStream cancels the workspace's active stream. Stopping an idle
// workspace is a no-op.
func (h *Handlers) StopStream(w http.ResponseWriter, r *http.Request) {
	h.Player.Stop(chi.URLParam(r, "workspaceID"))
	w.WriteHeader(http.StatusNoContent)
}

// ReleaseStream opens the workspace's start gate for a turn that was asked
// to wait for an external release.
func (h *Handlers) ReleaseStream(w http.ResponseWriter, r *http.Request) {
	h.Player.Gate().Release(chi.URLParam(r, "workspaceID"))
	w.WriteHeader(http.StatusNoContent)
}

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
