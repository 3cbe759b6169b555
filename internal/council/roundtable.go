package council

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mtzanidakis/council/internal/llm"
)

const synthesisLabel = "Synthesis"

func (c *Council) runRoundTable(ctx context.Context, query string, iterations int, emit func(Event) error) (*RoundTableResult, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidIterations, iterations)
	}

	rounds := make([]Round, 0, iterations)
	var previous []ModelResponse
	for n := 1; n <= iterations; n++ {
		label := fmt.Sprintf("Round %d", n)
		if err := emit(RoundStart{Round: n, Label: label}); err != nil {
			return nil, err
		}

		prompt := query
		if n > 1 {
			prompt = refinePrompt(query, previous)
		}
		// Every member is invited again, including those that failed last round.
		responses := c.fanOut(ctx, llm.UserMessage(prompt))
		rounds = append(rounds, Round{Round: n, Responses: responses})
		previous = responses

		slog.Debug("round table round settled", "round", n, "responses", len(responses))
		if err := emit(RoundComplete{Round: n, Label: label, Data: responses}); err != nil {
			return nil, err
		}
	}

	synthRound := iterations + 1
	if err := emit(RoundStart{Round: synthRound, Label: synthesisLabel}); err != nil {
		return nil, err
	}
	text, ok := c.ask(ctx, c.chairman, facilitatorPrompt(query, previous), placeholderSynthesis)
	if !ok {
		slog.Warn("round table synthesis failed", "model", c.chairman)
	}
	synthesis := FinalAnswer{Model: c.chairman, Response: text}
	if err := emit(RoundComplete{Round: synthRound, Label: synthesisLabel, Data: []ModelResponse{{Model: synthesis.Model, Response: synthesis.Response}}}); err != nil {
		return nil, err
	}

	return &RoundTableResult{
		Iterations: rounds,
		Synthesis:  synthesis,
		Metadata: RoundTableMetadata{
			Iterations:     iterations,
			TotalModels:    len(c.models),
			Models:         c.Models(),
			SynthesisModel: c.chairman,
		},
	}, nil
}
