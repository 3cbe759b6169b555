package council

import (
	"context"
	"log/slog"
)

// assemblyRoles are the assembly line slots in execution order.
var assemblyRoles = [3]string{"Drafter", "Reviewer & Expander", "Polisher"}

const assemblyLineModel = "Assembly Line Council"

// resolveRoles maps every role slot to a roster entry by index, substituting the
// fallback model for slots past the end of the roster.
func resolveRoles(models []string, fallback string) [3]string {
	var agents [3]string
	for i := range agents {
		if i < len(models) {
			agents[i] = models[i]
		} else {
			agents[i] = fallback
		}
	}
	return agents
}

func (c *Council) runAssemblyLine(ctx context.Context, query string, emit func(Event) error) (*AssemblyLineResult, error) {
	agents := resolveRoles(c.models, c.fallback)
	prompts := [3]func(prev string) string{
		func(string) string { return draftPrompt(query) },
		func(prev string) string { return reviewPrompt(query, prev) },
		func(prev string) string { return polishPrompt(query, prev) },
	}

	stages := make([]StageResult, 0, len(agents))
	var prev string
	for i, agent := range agents {
		stage := i + 1
		if err := emit(RoundStart{Round: stage, Label: assemblyRoles[i]}); err != nil {
			return nil, err
		}

		content, ok := c.ask(ctx, agent, prompts[i](prev), "")
		if !ok {
			slog.Warn("assembly line stage failed, continuing with empty draft", "stage", stage, "agent", agent)
		}
		sr := StageResult{Stage: stage, Agent: agent, Role: assemblyRoles[i], Response: content}
		stages = append(stages, sr)
		prev = content

		if err := emit(RoundComplete{Round: stage, Label: assemblyRoles[i], Data: []ModelResponse{{Model: agent, Response: content}}}); err != nil {
			return nil, err
		}
	}

	return &AssemblyLineResult{
		Stages: stages,
		FinalOutput: FinalOutput{
			Model:           assemblyLineModel,
			Response:        prev,
			StagesCompleted: len(stages),
		},
		Metadata: AssemblyLineMetadata{
			Stages: len(agents),
			Agents: agents[:],
			AgentA: agents[0],
			AgentB: agents[1],
			AgentC: agents[2],
		},
	}, nil
}
