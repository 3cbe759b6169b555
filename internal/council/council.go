// Package council runs a query through several models at once under one of four
// interaction patterns and reports progress at every round boundary.
//
//   - default: blind peer review. Every model answers, ranks the anonymized
//     answers of the others, and a chairman synthesizes the final answer.
//   - round_table: models refine their answers over several rounds after reading
//     each other, then a facilitator synthesizes.
//   - hierarchy: junior models answer, a lead model makes the final call.
//   - assembly_line: drafter, reviewer and polisher hand one text down the line.
//
// Failed model calls never fail a run; they only shrink the round that contained them.
package council

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtzanidakis/council/internal/config"
	"github.com/mtzanidakis/council/internal/llm"
)

// Type names a council interaction pattern. The values are the wire names.
type Type string

const (
	TypeCouncil      Type = "default"
	TypeRoundTable   Type = "round_table"
	TypeHierarchy    Type = "hierarchy"
	TypeAssemblyLine Type = "assembly_line"
)

var (
	ErrUnknownType       = errors.New("unknown council type")
	ErrInvalidIterations = errors.New("iterations must be at least 1")
	ErrEmptyQuery        = errors.New("query is empty")
)

// TypeInfo describes a council type for selection menus.
type TypeInfo struct {
	Type        Type   `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Types lists the available council types, default first.
func Types() []TypeInfo {
	return []TypeInfo{
		{TypeCouncil, "Council", "Models answer independently, rank each other's anonymized answers, and a chairman synthesizes."},
		{TypeRoundTable, "Round Table", "Models read each other's answers and refine over several rounds before a synthesis."},
		{TypeHierarchy, "Hierarchy", "Junior models report to a lead model who makes the final call."},
		{TypeAssemblyLine, "Assembly Line", "A drafter, a reviewer and a polisher build one answer in sequence."},
	}
}

// ParseType maps a wire name to a Type. The empty string selects the default council.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.TrimSpace(s)); t {
	case "":
		return TypeCouncil, nil
	case TypeCouncil, TypeRoundTable, TypeHierarchy, TypeAssemblyLine:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Querier is the agent client a council drives.
type Querier interface {
	QueryModel(ctx context.Context, model string, messages []llm.Message) *llm.Response
	QueryModels(ctx context.Context, models []string, messages []llm.Message) map[string]*llm.Response
}

// Request selects a council and carries the query for one run.
type Request struct {
	// Type is the council to run; empty selects the configured default.
	Type  Type
	Query string
	// Iterations applies to the round table only; 0 uses the configured default.
	Iterations int
}

type Council struct {
	client      Querier
	models      []string
	chairman    string
	fallback    string
	titleModel  string
	iterations  int
	defaultType Type
}

func New(client Querier, cfg config.CouncilConfig) *Council {
	seen := make(map[string]bool, len(cfg.Models))
	models := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		models = append(models, m)
	}

	iterations := cfg.Iterations
	if iterations < 1 {
		iterations = 2
	}
	titleModel := cfg.TitleModel
	if titleModel == "" {
		titleModel = cfg.FallbackModel
	}

	defaultType, err := ParseType(cfg.DefaultType)
	if err != nil {
		defaultType = TypeCouncil
	}

	return &Council{
		client:      client,
		models:      models,
		chairman:    cfg.ChairmanModel,
		fallback:    cfg.FallbackModel,
		titleModel:  titleModel,
		iterations:  iterations,
		defaultType: defaultType,
	}
}

// Models returns a copy of the roster.
func (c *Council) Models() []string {
	return append([]string(nil), c.models...)
}

// Run executes the requested council to completion and returns its outcome.
func (c *Council) Run(ctx context.Context, req Request) (Outcome, error) {
	return c.Stream(ctx, req, nil)
}

// Stream executes the requested council, passing an event to emit before and after
// every round. An emit error stops the run at that boundary and is returned as is.
// emit may be nil.
func (c *Council) Stream(ctx context.Context, req Request, emit func(Event) error) (Outcome, error) {
	if emit == nil {
		emit = func(Event) error { return nil }
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.Type == "" {
		req.Type = c.defaultType
	}
	t, err := ParseType(string(req.Type))
	if err != nil {
		return nil, err
	}

	slog.Info("council started", "type", t, "models", len(c.models))

	var out Outcome
	switch t {
	case TypeCouncil:
		out, err = c.runCouncil(ctx, req.Query, emit)
	case TypeRoundTable:
		iterations := req.Iterations
		if iterations == 0 {
			iterations = c.iterations
		}
		out, err = c.wrapped(t, emit, func() (Outcome, error) {
			return c.runRoundTable(ctx, req.Query, iterations, emit)
		})
	case TypeHierarchy:
		out, err = c.wrapped(t, emit, func() (Outcome, error) {
			return c.runHierarchy(ctx, req.Query, emit)
		})
	case TypeAssemblyLine:
		out, err = c.wrapped(t, emit, func() (Outcome, error) {
			return c.runAssemblyLine(ctx, req.Query, emit)
		})
	}
	if err != nil {
		return nil, err
	}

	slog.Info("council finished", "type", t)
	return out, nil
}

// wrapped brackets the round events of the non-default councils with
// council_start and council_complete.
func (c *Council) wrapped(t Type, emit func(Event) error, run func() (Outcome, error)) (Outcome, error) {
	if err := emit(CouncilStart{CouncilType: t}); err != nil {
		return nil, err
	}
	out, err := run()
	if err != nil {
		return nil, err
	}
	if err := emit(CouncilComplete{Result: out}); err != nil {
		return nil, err
	}
	return out, nil
}

// RunRoundTable runs the round table with the given number of iterations.
func (c *Council) RunRoundTable(ctx context.Context, query string, iterations int) (*RoundTableResult, error) {
	return c.runRoundTable(ctx, query, iterations, noEmit)
}

// RunHierarchy runs the lead-decision council.
func (c *Council) RunHierarchy(ctx context.Context, query string) (*HierarchyResult, error) {
	return c.runHierarchy(ctx, query, noEmit)
}

// RunAssemblyLine runs the three-role sequential pipeline.
func (c *Council) RunAssemblyLine(ctx context.Context, query string) (*AssemblyLineResult, error) {
	return c.runAssemblyLine(ctx, query, noEmit)
}

// RunCouncil runs the blind peer review council.
func (c *Council) RunCouncil(ctx context.Context, query string) (*CouncilResult, error) {
	return c.runCouncil(ctx, query, noEmit)
}

func noEmit(Event) error { return nil }

// fanOut queries every model on the roster and returns the successful answers in
// roster order.
func (c *Council) fanOut(ctx context.Context, messages []llm.Message) []ModelResponse {
	responses := c.client.QueryModels(ctx, c.models, messages)
	return collect(c.models, responses)
}

func collect(models []string, responses map[string]*llm.Response) []ModelResponse {
	out := make([]ModelResponse, 0, len(models))
	for _, m := range models {
		if r := responses[m]; r != nil {
			out = append(out, ModelResponse{Model: m, Response: r.Content})
		}
	}
	return out
}

// ask queries one model and returns its content, or fallback when the call failed.
func (c *Council) ask(ctx context.Context, model, prompt, fallback string) (string, bool) {
	resp := c.client.QueryModel(ctx, model, llm.UserMessage(prompt))
	if resp == nil {
		return fallback, false
	}
	return resp.Content, true
}
