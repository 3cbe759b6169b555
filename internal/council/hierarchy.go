package council

import (
	"context"
	"log/slog"

	"github.com/mtzanidakis/council/internal/llm"
)

const leadRole = "Lead Agent"

func (c *Council) runHierarchy(ctx context.Context, query string, emit func(Event) error) (*HierarchyResult, error) {
	if err := emit(RoundStart{Round: 1, Label: "Junior Agents"}); err != nil {
		return nil, err
	}
	juniors := c.fanOut(ctx, llm.UserMessage(query))
	if err := emit(RoundComplete{Round: 1, Label: "Junior Agents", Data: juniors}); err != nil {
		return nil, err
	}

	// The lead runs even with no junior answers.
	if err := emit(RoundStart{Round: 2, Label: leadRole}); err != nil {
		return nil, err
	}
	decision, ok := c.ask(ctx, c.chairman, leadPrompt(query, juniors), placeholderLead)
	if !ok {
		slog.Warn("lead agent failed", "model", c.chairman)
	}
	lead := LeadDecision{Model: c.chairman, Role: leadRole, Decision: decision}
	if err := emit(RoundComplete{Round: 2, Label: leadRole, Data: []ModelResponse{{Model: lead.Model, Response: lead.Decision}}}); err != nil {
		return nil, err
	}

	return &HierarchyResult{
		JuniorResponses: juniors,
		LeadDecision:    lead,
		Metadata: HierarchyMetadata{
			JuniorAgents:         len(c.models),
			Agents:               c.Models(),
			LeadAgent:            c.chairman,
			TotalJuniorResponses: len(juniors),
		},
	}, nil
}
