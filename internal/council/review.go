package council

import (
	"context"
	"log/slog"

	"github.com/mtzanidakis/council/internal/llm"
)

// Stage1CollectResponses asks every council member the query independently.
func (c *Council) Stage1CollectResponses(ctx context.Context, query string) []ModelResponse {
	return c.fanOut(ctx, llm.UserMessage(query))
}

// Stage2CollectRankings has every member rank the anonymized stage 1 answers. It
// returns the rankings of the members that answered and the label to model map.
func (c *Council) Stage2CollectRankings(ctx context.Context, query string, stage1 []ModelResponse) ([]Ranking, map[string]string) {
	labeled, labelToModel := anonymize(stage1)
	if len(labeled) == 0 {
		return []Ranking{}, labelToModel
	}

	responses := c.client.QueryModels(ctx, c.models, llm.UserMessage(rankingPrompt(query, labeled)))
	rankings := make([]Ranking, 0, len(c.models))
	for _, mr := range collect(c.models, responses) {
		rankings = append(rankings, Ranking{
			Model:         mr.Model,
			Ranking:       mr.Response,
			ParsedRanking: ParseRanking(mr.Response),
		})
	}
	return rankings, labelToModel
}

// Stage3SynthesizeFinal has the chairman write the final answer from the labeled
// stage 1 answers and the raw peer evaluations.
func (c *Council) Stage3SynthesizeFinal(ctx context.Context, query string, stage1 []ModelResponse, stage2 []Ranking) FinalAnswer {
	labeled, _ := anonymize(stage1)
	text, ok := c.ask(ctx, c.chairman, chairmanPrompt(query, labeled, stage2), placeholderChairman)
	if !ok {
		slog.Warn("chairman synthesis failed", "model", c.chairman)
	}
	return FinalAnswer{Model: c.chairman, Response: text}
}

func (c *Council) runCouncil(ctx context.Context, query string, emit func(Event) error) (*CouncilResult, error) {
	if err := emit(Stage1Start{}); err != nil {
		return nil, err
	}
	stage1 := c.Stage1CollectResponses(ctx, query)
	if err := emit(Stage1Complete{Data: stage1}); err != nil {
		return nil, err
	}

	if err := emit(Stage2Start{}); err != nil {
		return nil, err
	}
	stage2, labelToModel := c.Stage2CollectRankings(ctx, query, stage1)
	aggregate := AggregateRankings(stage2, labelToModel, len(c.models))
	if err := emit(Stage2Complete{
		Data:     stage2,
		Metadata: RankingMetadata{LabelToModel: labelToModel, AggregateRankings: aggregate},
	}); err != nil {
		return nil, err
	}

	if err := emit(Stage3Start{}); err != nil {
		return nil, err
	}
	final := c.Stage3SynthesizeFinal(ctx, query, stage1, stage2)
	if err := emit(Stage3Complete{Data: final}); err != nil {
		return nil, err
	}

	slog.Info("council reviewed", "responses", len(stage1), "rankings", len(stage2))
	return &CouncilResult{
		Stage1: stage1,
		Stage2: stage2,
		Stage3: final,
		Metadata: CouncilMetadata{
			LabelToModel:      labelToModel,
			AggregateRankings: aggregate,
			Models:            c.Models(),
			ChairmanModel:     c.chairman,
		},
	}, nil
}
