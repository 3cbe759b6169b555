// Package chat runs councils inside conversations: it records the user turn,
// names new conversations, streams progress and persists the outcome.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mtzanidakis/council/internal/council"
	"github.com/mtzanidakis/council/internal/store"
)

var (
	ErrNotFound = errors.New("conversation not found")
	ErrBusy     = errors.New("a council is already running in this conversation")
	ErrInvalid  = errors.New("invalid request")
)

// Store is the conversation persistence the workflow needs.
type Store interface {
	GetConversation(id string) (*store.Conversation, error)
	AddUserMessage(conversationID, content string) error
	AddAssistantMessage(conversationID, councilType string, payload json.RawMessage) error
	UpdateConversationTitle(id, title string) error
}

// Runner executes councils.
type Runner interface {
	Stream(ctx context.Context, req council.Request, emit func(council.Event) error) (council.Outcome, error)
	StartTitle(ctx context.Context, query string) *council.TitleTask
}

// Publisher broadcasts encoded events of a conversation to live listeners.
type Publisher interface {
	PublishEvent(conversationID string, data []byte) error
}

type SendRequest struct {
	Content     string `json:"content"`
	CouncilType string `json:"council_type,omitempty"`
	Iterations  int    `json:"iterations,omitempty"`
}

type Service struct {
	store   Store
	runner  Runner
	pub     Publisher
	mu      sync.Mutex
	running map[string]bool
}

// NewService creates the workflow. pub may be nil.
func NewService(s Store, r Runner, pub Publisher) *Service {
	return &Service{
		store:   s,
		runner:  r,
		pub:     pub,
		running: make(map[string]bool),
	}
}

// Send runs a council to completion in a conversation and returns its outcome.
func (s *Service) Send(ctx context.Context, conversationID string, req SendRequest) (council.Outcome, error) {
	return s.run(ctx, conversationID, req, nil)
}

// SendStream runs a council and reports every step to sink, ending with exactly one
// complete or error event unless the sink disconnects first. Validation errors
// (ErrNotFound, ErrBusy, ErrInvalid) are returned before anything is emitted.
func (s *Service) SendStream(ctx context.Context, conversationID string, req SendRequest, sink council.Sink) error {
	_, err := s.run(ctx, conversationID, req, sink)
	return err
}

// prepare validates a request and loads its conversation.
func (s *Service) prepare(conversationID string, req SendRequest) (*store.Conversation, council.Request, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, council.Request{}, fmt.Errorf("%w: content is empty", ErrInvalid)
	}
	var typ council.Type
	if req.CouncilType != "" {
		t, err := council.ParseType(req.CouncilType)
		if err != nil {
			return nil, council.Request{}, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		typ = t
	}
	if req.Iterations < 0 {
		return nil, council.Request{}, fmt.Errorf("%w: %w", ErrInvalid, council.ErrInvalidIterations)
	}

	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return nil, council.Request{}, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return nil, council.Request{}, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	return conv, council.Request{Type: typ, Query: req.Content, Iterations: req.Iterations}, nil
}

func (s *Service) run(ctx context.Context, conversationID string, req SendRequest, sink council.Sink) (council.Outcome, error) {
	conv, creq, err := s.prepare(conversationID, req)
	if err != nil {
		return nil, err
	}
	if !s.tryLock(conversationID) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, conversationID)
	}
	defer s.unlock(conversationID)

	em := council.NewEmitter(&publishingSink{sink: sink, pub: s.pub, conversationID: conversationID})
	start := time.Now()

	out, err := s.execute(ctx, conv, creq, em)
	status := "ok"
	switch {
	case errors.Is(err, council.ErrDisconnected):
		status = "disconnected"
		slog.Warn("client disconnected, run discarded", "conversation", conversationID)
	case err != nil:
		status = "error"
		slog.Error("council run failed", "conversation", conversationID, "error", err)
		_ = em.Fail(err)
	}
	typ := "unknown"
	if out != nil {
		typ = string(out.CouncilType())
	} else if creq.Type != "" {
		typ = string(creq.Type)
	}
	runsTotal.WithLabelValues(typ, status).Inc()
	runDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if err := em.Complete(); err != nil {
		// Everything is already stored; the consumer just missed the last frame.
		slog.Warn("complete event not delivered", "conversation", conversationID, "error", err)
	}
	slog.Info("council run stored", "conversation", conversationID, "type", out.CouncilType(), "duration", time.Since(start))
	return out, nil
}

// execute performs the persisted part of a run. Any error it returns is fatal to
// the run and nothing after the failing step is stored.
func (s *Service) execute(ctx context.Context, conv *store.Conversation, req council.Request, em *council.Emitter) (council.Outcome, error) {
	if err := s.store.AddUserMessage(conv.ID, req.Query); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	// In-flight model calls outlive a disconnected client; the emitter drops their
	// results at the next round boundary.
	runCtx := context.WithoutCancel(ctx)

	var title *council.TitleTask
	if len(conv.Messages) == 0 {
		title = s.runner.StartTitle(runCtx, req.Query)
	}

	out, err := s.runner.Stream(runCtx, req, em.Emit)
	if err != nil {
		return nil, err
	}

	if title != nil {
		t := title.Wait()
		if err := em.Emit(council.TitleComplete{Data: council.TitleData{Title: t}}); err != nil {
			return nil, err
		}
		if err := s.store.UpdateConversationTitle(conv.ID, t); err != nil {
			return nil, fmt.Errorf("store title: %w", err)
		}
	}

	payload, err := council.EncodeOutcome(out)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddAssistantMessage(conv.ID, string(out.CouncilType()), payload); err != nil {
		return nil, fmt.Errorf("store assistant message: %w", err)
	}
	return out, nil
}

func (s *Service) tryLock(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *Service) unlock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

// publishingSink forwards events to the caller and mirrors delivered ones on the bus.
type publishingSink struct {
	sink           council.Sink
	pub            Publisher
	conversationID string
}

func (p *publishingSink) Send(e council.Event) error {
	if p.sink != nil {
		if err := p.sink.Send(e); err != nil {
			return err
		}
	}
	if p.pub == nil {
		return nil
	}
	data, err := council.MarshalEvent(e)
	if err != nil {
		slog.Error("encode event for bus", "event", e.EventType(), "error", err)
		return nil
	}
	if err := p.pub.PublishEvent(p.conversationID, data); err != nil {
		slog.Warn("publish event", "conversation", p.conversationID, "error", err)
	}
	return nil
}
