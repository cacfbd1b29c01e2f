package capability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/refineloop/core"
	"github.com/stretchr/testify/assert"
)

// scriptedLLM replays canned completions keyed by a substring of the
// instructions, falling back to a default response.
type scriptedLLM struct {
	responses map[string]string
	fallback  string
	err       error
	lastInstr string
	lastBody  string
}

func (s *scriptedLLM) Complete(_ context.Context, instructions, prompt string) (string, error) {
	s.lastInstr = instructions
	s.lastBody = prompt
	if s.err != nil {
		return "", s.err
	}
	for key, resp := range s.responses {
		if strings.Contains(instructions, key) {
			return resp, nil
		}
	}
	return s.fallback, nil
}

func TestSuite_GenerateParsesEnvelope(t *testing.T) {
	llm := &scriptedLLM{fallback: `{"content": "Analysis section", "confidence": 0.85}`}
	s := NewSuite(llm)

	out, err := s.Generate(context.Background(), SpecialistRequest{
		Task:           "write guide",
		SpecialistType: core.SpecialistAnalysis,
		MemoryGuidance: "lead with trade-offs",
	})

	assert.NoError(t, err)
	assert.Equal(t, "analysis", out.AgentName)
	assert.Equal(t, "Analysis section", out.Content)
	assert.InDelta(t, 0.85, out.Confidence, 1e-9)
	assert.Contains(t, llm.lastBody, "lead with trade-offs")
}

func TestSuite_GeneratePromptCarriesDraftAndBoost(t *testing.T) {
	llm := &scriptedLLM{fallback: `{"content": "x", "confidence": 0.8}`}
	s := NewSuite(llm)

	_, err := s.Generate(context.Background(), SpecialistRequest{
		Task:           "write guide",
		SpecialistType: core.SpecialistAnalysis,
		Draft:          "the evolving document body",
		Iteration:      3,
		Boosted:        true,
	})

	assert.NoError(t, err)
	assert.Contains(t, llm.lastBody, "the evolving document body")
	assert.Contains(t, llm.lastBody, "iteration 3")
	assert.Contains(t, llm.lastBody, "BOOST MODE")
}

func TestSuite_GenerateFallsBackToRawText(t *testing.T) {
	llm := &scriptedLLM{fallback: "plain prose without json"}
	s := NewSuite(llm)

	out, err := s.Generate(context.Background(), SpecialistRequest{
		Task:           "write guide",
		SpecialistType: core.SpecialistCreative,
	})

	assert.NoError(t, err)
	assert.Equal(t, "plain prose without json", out.Content)
	assert.InDelta(t, 0.7, out.Confidence, 1e-9)
}

func TestSuite_GeneratePropagatesErrors(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("rate limited")}
	s := NewSuite(llm)

	_, err := s.Generate(context.Background(), SpecialistRequest{
		Task:           "write guide",
		SpecialistType: core.SpecialistLearning,
	})

	assert.ErrorContains(t, err, "rate limited")
}

func TestSuite_RefineRejectsEmptyDraft(t *testing.T) {
	llm := &scriptedLLM{fallback: "   "}
	s := NewSuite(llm)

	_, err := s.Refine(context.Background(), RefineRequest{Task: "t", Draft: "d"})

	assert.ErrorContains(t, err, "empty draft")
}

func TestSuite_JudgeParsesCriteriaBreakdown(t *testing.T) {
	llm := &scriptedLLM{fallback: "```json\n" + `{
		"criteria_scores": {"clarity": 8.0, "completeness": 7.5},
		"overall_score": 7.8,
		"feedback": "Solid structure",
		"strengths": ["clear intro"],
		"improvements": ["add examples"]
	}` + "\n```"}
	s := NewSuite(llm)

	j, err := s.Judge(context.Background(), JudgeRequest{
		Task:     "t",
		Draft:    "d",
		Criteria: []string{"clarity", "completeness"},
	})

	assert.NoError(t, err)
	assert.InDelta(t, 7.8, j.OverallScore, 1e-9)
	assert.InDelta(t, 8.0, j.CriteriaScores["clarity"], 1e-9)
	assert.Equal(t, "Solid structure", j.Feedback)
	assert.Equal(t, []string{"add examples"}, j.Improvements)
}

func TestSuite_JudgeDegradesToNeutralScore(t *testing.T) {
	llm := &scriptedLLM{fallback: "I think it's pretty good overall."}
	s := NewSuite(llm)

	j, err := s.Judge(context.Background(), JudgeRequest{Task: "t", Draft: "d"})

	assert.NoError(t, err)
	assert.InDelta(t, 5.0, j.OverallScore, 1e-9)
	assert.Equal(t, "I think it's pretty good overall.", j.Feedback)
}

func TestSuite_JudgeKeepsRawFeedbackWhenFieldMissing(t *testing.T) {
	raw := `{"overall_score": 7.0, "strengths": ["terse"]}`
	llm := &scriptedLLM{fallback: raw}
	s := NewSuite(llm)

	j, err := s.Judge(context.Background(), JudgeRequest{Task: "t", Draft: "d"})

	assert.NoError(t, err)
	assert.InDelta(t, 7.0, j.OverallScore, 1e-9)
	assert.Equal(t, raw, j.Feedback)
}

func TestSuite_JudgeClampsOutOfRangeScores(t *testing.T) {
	llm := &scriptedLLM{fallback: `{"overall_score": 14.2, "feedback": "x"}`}
	s := NewSuite(llm)

	j, err := s.Judge(context.Background(), JudgeRequest{Task: "t", Draft: "d"})

	assert.NoError(t, err)
	assert.InDelta(t, 10.0, j.OverallScore, 1e-9)
}

func TestSuite_CritiqueParsesSeverity(t *testing.T) {
	llm := &scriptedLLM{fallback: `{
		"principle_violated": "Output must be technically accurate and factually grounded",
		"severity": "critical",
		"critique": "Fabricated benchmark numbers",
		"revision_request": "Replace with measured data",
		"is_acceptable": false
	}`}
	s := NewSuite(llm)

	c, err := s.Critique(context.Background(), CritiqueRequest{
		Draft:      "d",
		Principles: core.ConstitutionalPrinciples,
	})

	assert.NoError(t, err)
	assert.Equal(t, core.SeverityCritical, c.Severity)
	assert.False(t, c.IsAcceptable)
	assert.Equal(t, "Fabricated benchmark numbers", c.Critique)
}

func TestSuite_CritiqueDefaultsToMinor(t *testing.T) {
	llm := &scriptedLLM{fallback: "not json at all"}
	s := NewSuite(llm)

	c, err := s.Critique(context.Background(), CritiqueRequest{Draft: "d"})

	assert.NoError(t, err)
	assert.Equal(t, core.SeverityMinor, c.Severity)
	assert.True(t, c.IsAcceptable)
}

func TestSuite_ReflectPromptCarriesPastReflections(t *testing.T) {
	llm := &scriptedLLM{fallback: `{"reflection": "r"}`}
	s := NewSuite(llm)

	_, err := s.Reflect(context.Background(), ReflectRequest{
		Task:      "t",
		Score:     6.0,
		Iteration: 3,
		PastReflections: []core.ReflectionMemory{
			{Iteration: 2, Score: 5.5, Reflection: "intro lacked evidence"},
		},
	})

	assert.NoError(t, err)
	assert.Contains(t, llm.lastBody, "intro lacked evidence")
}

func TestSuite_HealPromptCarriesTask(t *testing.T) {
	llm := &scriptedLLM{fallback: `{"should_retry": true}`}
	s := NewSuite(llm)

	_, err := s.Heal(context.Background(), HealRequest{
		AgentName:    "analysis",
		Task:         "write a migration plan",
		ErrorMessage: "timeout",
	})

	assert.NoError(t, err)
	assert.Contains(t, llm.lastBody, "write a migration plan")
}

func TestSuite_VoteParsesVerdict(t *testing.T) {
	llm := &scriptedLLM{fallback: `{"score": 8.4, "rationale": "well organized", "suggested_improvements": ["shorter intro"]}`}
	s := NewSuite(llm)

	v, err := s.Vote(context.Background(), VoteRequest{Task: "t", Draft: "d", Role: "Clarity & Structure Expert - focus on readability and organization"})

	assert.NoError(t, err)
	assert.Equal(t, "Clarity & Structure Expert - focus on readability and organization", v.Voter)
	assert.InDelta(t, 8.4, v.Score, 1e-9)
	assert.Equal(t, []string{"shorter intro"}, v.SuggestedImprovements)
}

func TestSuite_AdjustParsesWeights(t *testing.T) {
	llm := &scriptedLLM{fallback: `{"adjustment": "favor depth", "new_weights": {"depth_vs_breadth": 0.8}, "reasoning": "scores plateaued"}`}
	s := NewSuite(llm)

	a, err := s.Adjust(context.Background(), MetaRequest{Task: "t", Scores: []float64{5, 5.1}})

	assert.NoError(t, err)
	assert.Equal(t, "favor depth", a.Adjustment)
	assert.InDelta(t, 0.8, a.NewWeights["depth_vs_breadth"], 1e-9)
}

func TestSuite_GenerateDiagramStripsFences(t *testing.T) {
	llm := &scriptedLLM{fallback: "```mermaid\ngraph TD\n  A --> B\n```"}
	s := NewSuite(llm)

	d, err := s.GenerateDiagram(context.Background(), DiagramRequest{Task: "t", Document: "doc"})

	assert.NoError(t, err)
	assert.Equal(t, "mermaid", d.DiagramType)
	assert.Equal(t, "graph TD\n  A --> B", d.Code)
}

func TestNewSuiteProviders_Validates(t *testing.T) {
	providers := NewSuiteProviders(LLMFunc(func(_ context.Context, _, _ string) (string, error) {
		return "ok", nil
	}))

	assert.NoError(t, providers.Validate())
}

func TestProviders_ValidateReportsMissing(t *testing.T) {
	var p Providers
	assert.ErrorContains(t, p.Validate(), "specialist")

	p = NewMockProviders(7.0)
	p.Judge = nil
	assert.ErrorContains(t, p.Validate(), "judge")
}

func TestDecodeObject_ToleratesSurroundingProse(t *testing.T) {
	fields, ok := decodeObject("Sure! Here is the result: {\"score\": 7} Hope that helps.")
	assert.True(t, ok)
	assert.Equal(t, 7.0, fields["score"])

	_, ok = decodeObject("no braces here")
	assert.False(t, ok)
}
