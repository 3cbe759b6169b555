package council

import (
	"encoding/json"
	"fmt"
)

// ModelResponse is one entry of a round result: a model that answered and what it said.
type ModelResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// FinalAnswer is the single synthesized answer of a council.
type FinalAnswer struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// Outcome is the sealed result of one council run. The concrete type is one of
// *CouncilResult, *RoundTableResult, *HierarchyResult or *AssemblyLineResult.
type Outcome interface {
	CouncilType() Type
	// Final returns the text a caller should present as the answer.
	Final() string
}

// Ranking is one model's blind evaluation of the stage 1 responses.
type Ranking struct {
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`
}

// AggregateRank is one model's position in the combined peer ranking.
type AggregateRank struct {
	Model         string  `json:"model"`
	Score         int     `json:"score"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

type CouncilMetadata struct {
	LabelToModel      map[string]string `json:"label_to_model"`
	AggregateRankings []AggregateRank   `json:"aggregate_rankings"`
	Models            []string          `json:"models"`
	ChairmanModel     string            `json:"chairman_model"`
}

// CouncilResult is the outcome of the blind peer review council.
type CouncilResult struct {
	Stage1   []ModelResponse `json:"stage1"`
	Stage2   []Ranking       `json:"stage2"`
	Stage3   FinalAnswer     `json:"stage3"`
	Metadata CouncilMetadata `json:"metadata"`
}

func (r *CouncilResult) CouncilType() Type { return TypeCouncil }
func (r *CouncilResult) Final() string     { return r.Stage3.Response }

func (r CouncilResult) MarshalJSON() ([]byte, error) {
	type alias CouncilResult
	return json.Marshal(struct {
		CouncilType Type `json:"council_type"`
		alias
	}{TypeCouncil, alias(r)})
}

// Round is one iteration of the round table.
type Round struct {
	Round     int             `json:"round"`
	Responses []ModelResponse `json:"responses"`
}

type RoundTableMetadata struct {
	Iterations     int      `json:"iterations"`
	TotalModels    int      `json:"total_models"`
	Models         []string `json:"models"`
	SynthesisModel string   `json:"synthesis_model"`
}

type RoundTableResult struct {
	Iterations []Round            `json:"iterations"`
	Synthesis  FinalAnswer        `json:"synthesis"`
	Metadata   RoundTableMetadata `json:"metadata"`
}

func (r *RoundTableResult) CouncilType() Type { return TypeRoundTable }
func (r *RoundTableResult) Final() string     { return r.Synthesis.Response }

func (r RoundTableResult) MarshalJSON() ([]byte, error) {
	type alias RoundTableResult
	return json.Marshal(struct {
		CouncilType Type `json:"council_type"`
		alias
	}{TypeRoundTable, alias(r)})
}

type LeadDecision struct {
	Model    string `json:"model"`
	Role     string `json:"role"`
	Decision string `json:"decision"`
}

type HierarchyMetadata struct {
	JuniorAgents         int      `json:"junior_agents"`
	Agents               []string `json:"agents"`
	LeadAgent            string   `json:"lead_agent"`
	TotalJuniorResponses int      `json:"total_junior_responses"`
}

type HierarchyResult struct {
	JuniorResponses []ModelResponse   `json:"junior_responses"`
	LeadDecision    LeadDecision      `json:"lead_decision"`
	Metadata        HierarchyMetadata `json:"metadata"`
}

func (r *HierarchyResult) CouncilType() Type { return TypeHierarchy }
func (r *HierarchyResult) Final() string     { return r.LeadDecision.Decision }

func (r HierarchyResult) MarshalJSON() ([]byte, error) {
	type alias HierarchyResult
	return json.Marshal(struct {
		CouncilType Type `json:"council_type"`
		alias
	}{TypeHierarchy, alias(r)})
}

// StageResult is the output of one role of the assembly line.
type StageResult struct {
	Stage    int    `json:"stage"`
	Agent    string `json:"agent"`
	Role     string `json:"role"`
	Response string `json:"response"`
}

type FinalOutput struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	StagesCompleted int    `json:"stages_completed"`
}

type AssemblyLineMetadata struct {
	Stages int      `json:"stages"`
	Agents []string `json:"agents"`
	AgentA string   `json:"agent_a"`
	AgentB string   `json:"agent_b"`
	AgentC string   `json:"agent_c"`
}

type AssemblyLineResult struct {
	Stages      []StageResult        `json:"stages"`
	FinalOutput FinalOutput          `json:"final_output"`
	Metadata    AssemblyLineMetadata `json:"metadata"`
}

func (r *AssemblyLineResult) CouncilType() Type { return TypeAssemblyLine }
func (r *AssemblyLineResult) Final() string     { return r.FinalOutput.Response }

func (r AssemblyLineResult) MarshalJSON() ([]byte, error) {
	type alias AssemblyLineResult
	return json.Marshal(struct {
		CouncilType Type `json:"council_type"`
		alias
	}{TypeAssemblyLine, alias(r)})
}

// EncodeOutcome serializes an outcome with its council_type discriminator.
func EncodeOutcome(o Outcome) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("encode outcome: nil outcome")
	}
	return json.Marshal(o)
}

// DecodeOutcome restores the concrete outcome named by the council_type field.
func DecodeOutcome(data []byte) (Outcome, error) {
	var head struct {
		CouncilType Type `json:"council_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}

	var o Outcome
	switch head.CouncilType {
	case TypeCouncil:
		o = &CouncilResult{}
	case TypeRoundTable:
		o = &RoundTableResult{}
	case TypeHierarchy:
		o = &HierarchyResult{}
	case TypeAssemblyLine:
		o = &AssemblyLineResult{}
	default:
		return nil, fmt.Errorf("decode outcome: %w: %q", ErrUnknownType, head.CouncilType)
	}
	if err := json.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("decode %s outcome: %w", head.CouncilType, err)
	}
	return o, nil
}
