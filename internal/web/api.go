package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/council/internal/chat"
	"github.com/mtzanidakis/council/internal/council"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Conversations
	mux.HandleFunc("GET /api/conversations", s.listConversations)
	mux.HandleFunc("POST /api/conversations", s.createConversation)
	mux.HandleFunc("GET /api/conversations/{id}", s.getConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.deleteConversation)

	// Council runs
	mux.HandleFunc("POST /api/conversations/{id}/message", s.sendMessage)
	mux.HandleFunc("POST /api/conversations/{id}/message/stream", s.sendMessageStream)

	// Council types
	mux.HandleFunc("GET /api/councils", s.listCouncils)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"status":    "ok",
		"service":   "LLM Council API",
		"version":   s.version,
		"uptime":    formatUptime(time.Since(s.startedAt)),
		"nats":      s.bus != nil,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListConversations()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, list)
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.CreateConversation(uuid.New().String())
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(c)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetConversation(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if c == nil {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, c)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.DeleteConversation(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) listCouncils(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, council.Types())
}

func decodeSendRequest(w http.ResponseWriter, r *http.Request) (chat.SendRequest, error) {
	var req chat.SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSendRequest(w, r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := s.chat.Send(r.Context(), r.PathValue("id"), req)
	if err != nil {
		chatError(w, err)
		return
	}
	jsonResponse(w, out)
}

func (s *Server) sendMessageStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSendRequest(w, r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sink := &sseSink{ctx: r.Context(), w: w, rc: http.NewResponseController(w)}
	err = s.chat.SendStream(r.Context(), r.PathValue("id"), req, sink)
	if err != nil && !sink.started {
		// Rejected before the stream opened.
		chatError(w, err)
		return
	}
	if errors.Is(err, council.ErrDisconnected) {
		slog.Info("stream client disconnected", "conversation", r.PathValue("id"))
	}
}

// sseSink writes council events as server-sent events, opening the stream on the
// first event.
type sseSink struct {
	ctx     context.Context
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func (s *sseSink) Send(e council.Event) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if err := council.WriteSSE(s.w, e); err != nil {
		return err
	}
	return s.rc.Flush()
}

func chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		jsonError(w, "conversation not found", http.StatusNotFound)
	case errors.Is(err, chat.ErrBusy):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, chat.ErrInvalid):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
