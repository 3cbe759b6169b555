package council

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mtzanidakis/council/internal/config"
	"github.com/mtzanidakis/council/internal/llm"
)

// fakeQuerier answers from a reply function and records every prompt it sees.
type fakeQuerier struct {
	mu      sync.Mutex
	reply   func(model, prompt string) (string, bool)
	prompts map[string][]string
	order   []string
}

func newFake(reply func(model, prompt string) (string, bool)) *fakeQuerier {
	return &fakeQuerier{reply: reply, prompts: map[string][]string{}}
}

func (f *fakeQuerier) QueryModel(_ context.Context, model string, messages []llm.Message) *llm.Response {
	prompt := messages[len(messages)-1].Content
	f.mu.Lock()
	f.prompts[model] = append(f.prompts[model], prompt)
	f.order = append(f.order, model)
	f.mu.Unlock()

	content, ok := f.reply(model, prompt)
	if !ok {
		return nil
	}
	return &llm.Response{Content: content}
}

func (f *fakeQuerier) QueryModels(ctx context.Context, models []string, messages []llm.Message) map[string]*llm.Response {
	out := make(map[string]*llm.Response, len(models))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, m := range models {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			r := f.QueryModel(ctx, m, messages)
			mu.Lock()
			out[m] = r
			mu.Unlock()
		}(m)
	}
	wg.Wait()
	return out
}

func (f *fakeQuerier) promptsFor(model string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts[model]...)
}

func testConfig(models ...string) config.CouncilConfig {
	return config.CouncilConfig{
		Models:        models,
		ChairmanModel: "chair",
		FallbackModel: "fallback",
		TitleModel:    "titler",
		Iterations:    2,
	}
}

func echo(model, _ string) (string, bool) { return "answer from " + model, true }

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", TypeCouncil, false},
		{"default", TypeCouncil, false},
		{"round_table", TypeRoundTable, false},
		{" hierarchy ", TypeHierarchy, false},
		{"assembly_line", TypeAssemblyLine, false},
		{"mob", "", true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownType) {
				t.Errorf("ParseType(%q): expected ErrUnknownType, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseType(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestTypesListsEveryCouncil(t *testing.T) {
	types := Types()
	if len(types) != 4 {
		t.Fatalf("expected 4 council types, got %d", len(types))
	}
	for _, ti := range types {
		if _, err := ParseType(string(ti.Type)); err != nil {
			t.Errorf("listed type %q does not parse: %v", ti.Type, err)
		}
	}
}

func TestNewDedupesRoster(t *testing.T) {
	c := New(newFake(echo), testConfig("a", "b", "a", "", "c"))
	got := c.Models()
	want := []string{"a", "b", "c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected roster %v, got %v", want, got)
	}
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	c := New(newFake(echo), testConfig("a"))
	if _, err := c.Run(context.Background(), Request{Query: "  "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := c.Run(context.Background(), Request{Type: "nope", Query: "q"}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestRunDispatchesByType(t *testing.T) {
	c := New(newFake(echo), testConfig("a", "b", "c"))
	for _, typ := range []Type{TypeCouncil, TypeRoundTable, TypeHierarchy, TypeAssemblyLine} {
		out, err := c.Run(context.Background(), Request{Type: typ, Query: "q"})
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if out.CouncilType() != typ {
			t.Errorf("expected %s outcome, got %s", typ, out.CouncilType())
		}
		if out.Final() == "" {
			t.Errorf("%s: empty final answer", typ)
		}
	}
}

func TestRoundResultsExcludeFailures(t *testing.T) {
	reply := func(model, prompt string) (string, bool) {
		if model == "b" {
			return "", false
		}
		return echo(model, prompt)
	}
	c := New(newFake(reply), testConfig("a", "b", "c"))

	res, err := c.RunHierarchy(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.JuniorResponses) != 2 {
		t.Fatalf("expected 2 junior responses, got %d", len(res.JuniorResponses))
	}
	if res.JuniorResponses[0].Model != "a" || res.JuniorResponses[1].Model != "c" {
		t.Errorf("expected roster order a, c; got %+v", res.JuniorResponses)
	}
	if res.Metadata.TotalJuniorResponses != 2 || res.Metadata.JuniorAgents != 3 {
		t.Errorf("unexpected metadata %+v", res.Metadata)
	}
}

func TestHierarchyAllJuniorsFail(t *testing.T) {
	f := newFake(func(model, prompt string) (string, bool) {
		if model == "chair" {
			return "final call", true
		}
		return "", false
	})
	c := New(f, testConfig("a", "b"))

	res, err := c.RunHierarchy(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.JuniorResponses) != 0 {
		t.Errorf("expected no junior responses, got %d", len(res.JuniorResponses))
	}
	if len(f.promptsFor("chair")) != 1 {
		t.Fatal("expected lead to run with empty context")
	}
	if res.LeadDecision.Decision != "final call" || res.LeadDecision.Role != "Lead Agent" {
		t.Errorf("unexpected lead decision %+v", res.LeadDecision)
	}
}

func TestHierarchyLeadFailureUsesPlaceholder(t *testing.T) {
	f := newFake(func(model, prompt string) (string, bool) {
		if model == "chair" {
			return "", false
		}
		return echo(model, prompt)
	})
	c := New(f, testConfig("a"))

	res, err := c.RunHierarchy(context.Background(), "q")
	if err != nil {
		t.Fatalf("lead failure must not fail the run: %v", err)
	}
	if res.LeadDecision.Decision != "Unable to make decision." {
		t.Errorf("expected placeholder, got %q", res.LeadDecision.Decision)
	}
}

func TestHierarchyLeadSeesModelIDs(t *testing.T) {
	f := newFake(echo)
	c := New(f, testConfig("org/alpha", "org/beta"))
	if _, err := c.RunHierarchy(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	prompt := f.promptsFor("chair")[0]
	for _, want := range []string{"org/alpha", "answer from org/beta"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("lead prompt missing %q", want)
		}
	}
}

func TestAssemblyLineHandsOffVerbatim(t *testing.T) {
	f := newFake(func(model, prompt string) (string, bool) {
		return "<<" + model + " output>>", true
	})
	c := New(f, testConfig("A", "B", "C"))

	res, err := c.RunAssemblyLine(context.Background(), "write a haiku")
	if err != nil {
		t.Fatal(err)
	}

	reviewer := f.promptsFor("B")[0]
	if !strings.Contains(reviewer, "<<A output>>") || !strings.Contains(reviewer, "write a haiku") {
		t.Errorf("reviewer prompt missing draft or query:\n%s", reviewer)
	}
	polisher := f.promptsFor("C")[0]
	if !strings.Contains(polisher, "<<B output>>") {
		t.Errorf("polisher prompt missing review:\n%s", polisher)
	}
	if strings.Contains(polisher, "<<A output>>") {
		t.Error("polisher must only see the preceding stage")
	}
	if res.FinalOutput.Response != "<<C output>>" {
		t.Errorf("expected polisher output as final, got %q", res.FinalOutput.Response)
	}
	if strings.Join(f.order, ",") != "A,B,C" {
		t.Errorf("expected sequential order A,B,C, got %v", f.order)
	}
	roles := []string{res.Stages[0].Role, res.Stages[1].Role, res.Stages[2].Role}
	if strings.Join(roles, "|") != "Drafter|Reviewer & Expander|Polisher" {
		t.Errorf("unexpected roles %v", roles)
	}
}

func TestAssemblyLineFallbackAndDegradation(t *testing.T) {
	f := newFake(func(model, prompt string) (string, bool) {
		if model == "A" {
			return "", false
		}
		return "from " + model, true
	})
	c := New(f, testConfig("A"))

	res, err := c.RunAssemblyLine(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.AgentB != "fallback" || res.Metadata.AgentC != "fallback" {
		t.Errorf("expected fallback for missing slots, got %+v", res.Metadata)
	}
	if res.Stages[0].Response != "" {
		t.Errorf("failed stage should be empty, got %q", res.Stages[0].Response)
	}
	if len(res.Stages) != 3 || res.FinalOutput.StagesCompleted != 3 {
		t.Errorf("pipeline should continue past a failed stage: %+v", res.FinalOutput)
	}
}

func TestResolveRoles(t *testing.T) {
	got := resolveRoles([]string{"x", "y"}, "fb")
	if got != [3]string{"x", "y", "fb"} {
		t.Errorf("unexpected roles %v", got)
	}
}

func TestRoundTableSingleIteration(t *testing.T) {
	f := newFake(echo)
	c := New(f, testConfig("a", "b"))

	res, err := c.RunRoundTable(context.Background(), "q", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Iterations) != 1 {
		t.Fatalf("expected 1 round, got %d", len(res.Iterations))
	}
	if got := f.promptsFor("a"); len(got) != 1 || got[0] != "q" {
		t.Errorf("expected only the raw query, got %v", got)
	}
	if res.Synthesis.Model != "chair" || res.Synthesis.Response != "answer from chair" {
		t.Errorf("unexpected synthesis %+v", res.Synthesis)
	}
}

func TestRoundTableUsesPreviousRoundOnly(t *testing.T) {
	f := newFake(func(model, prompt string) (string, bool) {
		round := "r1"
		if strings.Contains(prompt, "Previous responses") {
			round = "r2"
			if strings.Contains(prompt, "r2-") {
				round = "r3"
			}
		}
		// b fails the first round only.
		if model == "b" && round == "r1" {
			return "", false
		}
		return round + "-" + model, true
	})
	c := New(f, testConfig("a", "b"))

	res, err := c.RunRoundTable(context.Background(), "q", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Iterations) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(res.Iterations))
	}
	if n := len(res.Iterations[0].Responses); n != 1 {
		t.Errorf("round 1: expected 1 survivor, got %d", n)
	}
	if n := len(res.Iterations[1].Responses); n != 2 {
		t.Errorf("round 2: failed member should be invited again, got %d responses", n)
	}

	third := f.promptsFor("a")[2]
	if strings.Contains(third, "r1-a") {
		t.Error("round 3 prompt must not include round 1 answers")
	}
	if !strings.Contains(third, "r2-a") || !strings.Contains(third, "r2-b") {
		t.Errorf("round 3 prompt missing round 2 answers:\n%s", third)
	}
	synth := f.promptsFor("chair")[0]
	if !strings.Contains(synth, "r3-a") || strings.Contains(synth, "r2-a") {
		t.Errorf("synthesis should use the last round only:\n%s", synth)
	}
}

func TestRoundTableInvalidIterations(t *testing.T) {
	c := New(newFake(echo), testConfig("a"))
	if _, err := c.RunRoundTable(context.Background(), "q", 0); !errors.Is(err, ErrInvalidIterations) {
		t.Errorf("expected ErrInvalidIterations, got %v", err)
	}
}

func TestRoundTableSynthesisPlaceholder(t *testing.T) {
	f := newFake(func(model, prompt string) (string, bool) {
		if model == "chair" {
			return "", false
		}
		return echo(model, prompt)
	})
	c := New(f, testConfig("a"))
	res, err := c.RunRoundTable(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Synthesis.Response != "Unable to synthesize responses." {
		t.Errorf("expected placeholder, got %q", res.Synthesis.Response)
	}
}

func TestRunUsesConfiguredIterations(t *testing.T) {
	cfg := testConfig("a")
	cfg.Iterations = 3
	c := New(newFake(echo), cfg)

	out, err := c.Run(context.Background(), Request{Type: TypeRoundTable, Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(out.(*RoundTableResult).Iterations); n != 3 {
		t.Errorf("expected 3 rounds from config, got %d", n)
	}
}
