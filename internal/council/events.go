package council

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// EventType is the wire discriminator of a progress event.
type EventType string

const (
	EventCouncilStart    EventType = "council_start"
	EventStage1Start     EventType = "stage1_start"
	EventStage1Complete  EventType = "stage1_complete"
	EventStage2Start     EventType = "stage2_start"
	EventStage2Complete  EventType = "stage2_complete"
	EventStage3Start     EventType = "stage3_start"
	EventStage3Complete  EventType = "stage3_complete"
	EventRoundStart      EventType = "round_start"
	EventRoundComplete   EventType = "round_complete"
	EventCouncilComplete EventType = "council_complete"
	EventTitleComplete   EventType = "title_complete"
	EventComplete        EventType = "complete"
	EventError           EventType = "error"
)

var (
	// ErrDisconnected is returned once the event sink has failed. The run stops at
	// the next round boundary.
	ErrDisconnected = errors.New("event stream disconnected")
	ErrStreamClosed = errors.New("event stream already terminated")
)

// Event is one progress event. The concrete types below are the only implementations.
type Event interface {
	EventType() EventType
}

type CouncilStart struct {
	CouncilType Type `json:"council_type"`
}

type Stage1Start struct{}

type Stage1Complete struct {
	Data []ModelResponse `json:"data"`
}

type Stage2Start struct{}

// RankingMetadata is what the caller needs to de-anonymize stage 2.
type RankingMetadata struct {
	LabelToModel      map[string]string `json:"label_to_model"`
	AggregateRankings []AggregateRank   `json:"aggregate_rankings"`
}

type Stage2Complete struct {
	Data     []Ranking       `json:"data"`
	Metadata RankingMetadata `json:"metadata"`
}

type Stage3Start struct{}

type Stage3Complete struct {
	Data FinalAnswer `json:"data"`
}

// RoundStart opens one round of the round table, hierarchy or assembly line.
type RoundStart struct {
	Round int    `json:"round"`
	Label string `json:"label"`
}

// RoundComplete carries the answers of the round that just settled. Single-call
// rounds carry one entry.
type RoundComplete struct {
	Round int             `json:"round"`
	Label string          `json:"label"`
	Data  []ModelResponse `json:"data"`
}

type CouncilComplete struct {
	Result Outcome `json:"data"`
}

type TitleComplete struct {
	Data TitleData `json:"data"`
}

type TitleData struct {
	Title string `json:"title"`
}

type Complete struct{}

type Error struct {
	Message string `json:"message"`
}

func (CouncilStart) EventType() EventType    { return EventCouncilStart }
func (Stage1Start) EventType() EventType     { return EventStage1Start }
func (Stage1Complete) EventType() EventType  { return EventStage1Complete }
func (Stage2Start) EventType() EventType     { return EventStage2Start }
func (Stage2Complete) EventType() EventType  { return EventStage2Complete }
func (Stage3Start) EventType() EventType     { return EventStage3Start }
func (Stage3Complete) EventType() EventType  { return EventStage3Complete }
func (RoundStart) EventType() EventType      { return EventRoundStart }
func (RoundComplete) EventType() EventType   { return EventRoundComplete }
func (CouncilComplete) EventType() EventType { return EventCouncilComplete }
func (TitleComplete) EventType() EventType   { return EventTitleComplete }
func (Complete) EventType() EventType        { return EventComplete }
func (Error) EventType() EventType           { return EventError }

// IsTerminal reports whether e ends a stream.
func IsTerminal(e Event) bool {
	t := e.EventType()
	return t == EventComplete || t == EventError
}

func (e *CouncilComplete) UnmarshalJSON(data []byte) error {
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o, err := DecodeOutcome(raw.Data)
	if err != nil {
		return err
	}
	e.Result = o
	return nil
}

// MarshalEvent encodes e as a JSON object with its type field first.
func MarshalEvent(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.EventType(), err)
	}
	head := fmt.Sprintf(`{"type":%q`, e.EventType())
	if bytes.Equal(body, []byte("{}")) {
		return []byte(head + "}"), nil
	}
	return append([]byte(head+","), body[1:]...), nil
}

// DecodeEvent restores the concrete event named by the type field.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch head.Type {
	case EventCouncilStart:
		return decodeAs[CouncilStart](data)
	case EventStage1Start:
		return Stage1Start{}, nil
	case EventStage1Complete:
		return decodeAs[Stage1Complete](data)
	case EventStage2Start:
		return Stage2Start{}, nil
	case EventStage2Complete:
		return decodeAs[Stage2Complete](data)
	case EventStage3Start:
		return Stage3Start{}, nil
	case EventStage3Complete:
		return decodeAs[Stage3Complete](data)
	case EventRoundStart:
		return decodeAs[RoundStart](data)
	case EventRoundComplete:
		return decodeAs[RoundComplete](data)
	case EventCouncilComplete:
		return decodeAs[CouncilComplete](data)
	case EventTitleComplete:
		return decodeAs[TitleComplete](data)
	case EventComplete:
		return Complete{}, nil
	case EventError:
		return decodeAs[Error](data)
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", head.Type)
	}
}

func decodeAs[T Event](data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", e.EventType(), err)
	}
	return e, nil
}

// WriteSSE writes e as one server-sent events frame.
func WriteSSE(w io.Writer, e Event) error {
	data, err := MarshalEvent(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write %s event: %w", e.EventType(), err)
	}
	return nil
}

// Sink receives events in order. A Send error means the consumer is gone.
type Sink interface {
	Send(Event) error
}

type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }

// Emitter forwards events to a sink and enforces the stream contract: events stay in
// order, at most one terminal event is sent, and nothing is sent after the sink fails.
type Emitter struct {
	mu           sync.Mutex
	sink         Sink
	terminated   bool
	disconnected bool
}

func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit forwards a non-terminal event. Use Complete and Fail to end the stream.
func (e *Emitter) Emit(ev Event) error {
	if IsTerminal(ev) {
		return fmt.Errorf("emit %s: terminal events go through Complete or Fail", ev.EventType())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.send(ev)
}

// Complete ends the stream successfully.
func (e *Emitter) Complete() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.send(Complete{})
	e.terminated = true
	return err
}

// Fail ends the stream with a single error event carrying err's message.
func (e *Emitter) Fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sendErr := e.send(Error{Message: err.Error()})
	e.terminated = true
	return sendErr
}

// Disconnected reports whether the sink has failed.
func (e *Emitter) Disconnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnected
}

func (e *Emitter) send(ev Event) error {
	if e.terminated {
		return ErrStreamClosed
	}
	if e.disconnected {
		return ErrDisconnected
	}
	if err := e.sink.Send(ev); err != nil {
		e.disconnected = true
		slog.Warn("event sink failed", "event", ev.EventType(), "error", err)
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

// StreamTo runs req and reports it on e, finishing with complete or error. Nothing
// is emitted past a disconnect.
func (c *Council) StreamTo(ctx context.Context, req Request, e *Emitter) (Outcome, error) {
	out, err := c.Stream(ctx, req, e.Emit)
	if err != nil {
		if !errors.Is(err, ErrDisconnected) {
			_ = e.Fail(err)
		}
		return nil, err
	}
	if err := e.Complete(); err != nil {
		return out, err
	}
	return out, nil
}
