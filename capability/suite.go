package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/refineloop/core"
	"github.com/hupe1980/refineloop/logging"
)

// LLM is the minimal text-completion interface a vendor adapter must
// implement for the Suite. Instructions carry the system-level role; prompt
// carries the request body.
type LLM interface {
	Complete(ctx context.Context, instructions, prompt string) (string, error)
}

// LLMFunc adapts a plain function to the LLM interface.
type LLMFunc func(ctx context.Context, instructions, prompt string) (string, error)

// Complete implements LLM.
func (f LLMFunc) Complete(ctx context.Context, instructions, prompt string) (string, error) {
	return f(ctx, instructions, prompt)
}

// SuiteOptions configure a Suite.
type SuiteOptions struct {
	// Logger receives per-call diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// Suite implements every capability interface on top of a single LLM by
// requesting JSON-shaped answers and parsing them leniently: a response that
// is not valid JSON degrades to documented defaults instead of failing the
// phase, so one sloppy completion never aborts a run.
type Suite struct {
	llm    LLM
	logger logging.Logger
}

// NewSuite creates a Suite backed by the given LLM.
func NewSuite(llm LLM, optFns ...func(o *SuiteOptions)) *Suite {
	opts := SuiteOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Suite{llm: llm, logger: opts.Logger}
}

// NewSuiteProviders bundles one Suite into a full Providers set.
func NewSuiteProviders(llm LLM, optFns ...func(o *SuiteOptions)) Providers {
	s := NewSuite(llm, optFns...)
	return Providers{
		Specialist:  s,
		Refiner:     s,
		Critic:      s,
		Judge:       s,
		Reflector:   s,
		Healer:      s,
		Voter:       s,
		MetaLearner: s,
		Diagrammer:  s,
	}
}

// Compile-time interface checks.
var (
	_ Specialist       = (*Suite)(nil)
	_ Refiner          = (*Suite)(nil)
	_ Critic           = (*Suite)(nil)
	_ Judge            = (*Suite)(nil)
	_ Reflector        = (*Suite)(nil)
	_ Healer           = (*Suite)(nil)
	_ ConsensusVoter   = (*Suite)(nil)
	_ MetaLearner      = (*Suite)(nil)
	_ DiagramGenerator = (*Suite)(nil)
)

// specialistRoles maps each specialist type to its perspective instruction.
var specialistRoles = map[core.SpecialistType]string{
	core.SpecialistDataProcessing: "You focus on data flows, schemas, validation and transformation pipelines.",
	core.SpecialistAnalysis:       "You focus on rigorous analysis, trade-offs and failure modes.",
	core.SpecialistExperimental:   "You focus on experimentation, measurement and empirical validation.",
	core.SpecialistLearning:       "You focus on adaptive behavior, feedback loops and knowledge retention.",
	core.SpecialistOptimization:   "You focus on performance, resource efficiency and bottleneck elimination.",
	core.SpecialistCreative:       "You focus on novel approaches, alternative framings and unconventional solutions.",
}

// Generate implements Specialist. A response missing the JSON envelope is
// treated as raw content with 0.7 confidence.
func (s *Suite) Generate(ctx context.Context, req SpecialistRequest) (core.AgentOutput, error) {
	role := specialistRoles[req.SpecialistType]
	instructions := fmt.Sprintf(
		"You are a %s specialist contributing one section of a larger document. %s\n"+
			"Respond with JSON: {\"content\": string, \"confidence\": number between 0 and 1}.",
		req.SpecialistType, role,
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", req.Task)
	if req.Draft != "" {
		fmt.Fprintf(&b, "\nCurrent draft (iteration %d):\n%s\n", req.Iteration, req.Draft)
	}
	if req.Boosted {
		b.WriteString("\nBOOST MODE: prior iterations plateaued below the quality bar. " +
			"Contribute substantially new material rather than incremental polish.\n")
	}
	if req.ContextSummary != "" {
		fmt.Fprintf(&b, "\nContext from previous iterations:\n%s\n", req.ContextSummary)
	}
	if req.MemoryGuidance != "" {
		fmt.Fprintf(&b, "\nMemory guidance:\n%s\n", req.MemoryGuidance)
	}
	b.WriteString("\nProduce your specialist contribution.")

	raw, err := s.complete(ctx, "specialist", instructions, b.String())
	if err != nil {
		return core.AgentOutput{}, err
	}

	out := core.AgentOutput{
		AgentName:  string(req.SpecialistType),
		Content:    raw,
		Confidence: 0.7,
	}
	if fields, ok := decodeObject(raw); ok {
		if content := asString(fields["content"]); content != "" {
			out.Content = content
		}
		if conf, ok := asFloat(fields["confidence"]); ok {
			out.Confidence = clampUnit(conf)
		}
	}
	return out, nil
}

// Refine implements Refiner. The response is used verbatim as the new draft.
func (s *Suite) Refine(ctx context.Context, req RefineRequest) (string, error) {
	instructions := fmt.Sprintf(
		"You refine documents. Refinement intensity: %s. Rewrite the draft to address "+
			"the feedback while preserving what already works. Respond with the full "+
			"refined document only, no commentary.",
		req.Intensity,
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nCurrent draft:\n%s\n", req.Task, req.Draft)
	if req.Feedback != "" {
		fmt.Fprintf(&b, "\nFeedback:\n%s\n", req.Feedback)
	}
	if len(req.Improvements) > 0 {
		b.WriteString("\nRequested improvements:\n")
		for _, imp := range req.Improvements {
			fmt.Fprintf(&b, "- %s\n", imp)
		}
	}
	if req.ReflectionInsight != "" {
		fmt.Fprintf(&b, "\nStrategy from reflection: %s\n", req.ReflectionInsight)
	}
	if req.MemoryGuidance != "" {
		fmt.Fprintf(&b, "\nMemory guidance:\n%s\n", req.MemoryGuidance)
	}

	refined, err := s.complete(ctx, "refiner", instructions, b.String())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(refined) == "" {
		return "", fmt.Errorf("capability: refiner returned an empty draft")
	}
	return refined, nil
}

// Critique implements Critic. Unparseable responses degrade to an acceptable
// minor-severity result.
func (s *Suite) Critique(ctx context.Context, req CritiqueRequest) (core.CritiqueResult, error) {
	instructions := "You audit documents against constitutional principles. Respond with JSON: " +
		`{"principle_violated": string or "", "severity": "none"|"minor"|"major"|"critical", ` +
		`"critique": string, "revision_request": string, "is_acceptable": bool}.`

	var b strings.Builder
	b.WriteString("Principles:\n")
	for i, p := range req.Principles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	fmt.Fprintf(&b, "\nDocument:\n%s\n", req.Draft)

	raw, err := s.complete(ctx, "critic", instructions, b.String())
	if err != nil {
		return core.CritiqueResult{}, err
	}

	result := core.CritiqueResult{Severity: core.SeverityMinor, Critique: raw, IsAcceptable: true}
	if fields, ok := decodeObject(raw); ok {
		result.PrincipleViolated = asString(fields["principle_violated"])
		result.Severity = core.ParseSeverity(asString(fields["severity"]))
		result.Critique = asString(fields["critique"])
		result.RevisionRequest = asString(fields["revision_request"])
		if acceptable, ok := asBool(fields["is_acceptable"]); ok {
			result.IsAcceptable = acceptable
		}
	}
	return result, nil
}

// Judge implements Judge. Unparseable responses degrade to a neutral 5.0
// verdict carrying the raw text as feedback.
func (s *Suite) Judge(ctx context.Context, req JudgeRequest) (core.Judgment, error) {
	instructions := "You are an exacting quality judge. Score the document per criterion on a 0-10 " +
		"scale. Respond with JSON: {\"criteria_scores\": {criterion: number}, " +
		`"overall_score": number, "feedback": string, "strengths": [string], "improvements": [string]}.`

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nCriteria: %s\n\nDocument:\n%s\n",
		req.Task, strings.Join(req.Criteria, ", "), req.Draft)

	raw, err := s.complete(ctx, "judge", instructions, b.String())
	if err != nil {
		return core.Judgment{}, err
	}

	judgment := core.Judgment{OverallScore: 5.0, Feedback: raw}
	fields, ok := decodeObject(raw)
	if !ok {
		return judgment, nil
	}
	if score, ok := asFloat(fields["overall_score"]); ok {
		judgment.OverallScore = clampScore(score)
	}
	if feedback := asString(fields["feedback"]); feedback != "" {
		judgment.Feedback = feedback
	}
	judgment.Strengths = asStringSlice(fields["strengths"])
	judgment.Improvements = asStringSlice(fields["improvements"])
	if scores, ok := fields["criteria_scores"].(map[string]any); ok {
		judgment.CriteriaScores = make(map[string]float64, len(scores))
		for criterion, v := range scores {
			if f, ok := asFloat(v); ok {
				judgment.CriteriaScores[criterion] = clampScore(f)
			}
		}
	}
	return judgment, nil
}

// Reflect implements Reflector.
func (s *Suite) Reflect(ctx context.Context, req ReflectRequest) (core.Reflection, error) {
	instructions := "You perform post-attempt reflection. Identify the root cause of remaining " +
		"weaknesses and a concrete improvement strategy. Respond with JSON: " +
		`{"reflection": string, "root_cause": string, "improvement_strategy": string, ` +
		`"confidence_adjustment": number between -1 and 1}.`

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nIteration: %d\nScore: %.1f\n", req.Task, req.Iteration, req.Score)
	if len(req.PreviousScores) > 0 {
		fmt.Fprintf(&b, "Previous scores: %v\n", req.PreviousScores)
	}
	if len(req.PastReflections) > 0 {
		b.WriteString("\nPrior reflections:\n")
		for _, r := range req.PastReflections {
			fmt.Fprintf(&b, "- Iteration %d (score %.1f): %s\n", r.Iteration, r.Score, r.Reflection)
		}
	}
	fmt.Fprintf(&b, "\nFeedback:\n%s\n\nDraft:\n%s\n", req.Feedback, req.Draft)

	raw, err := s.complete(ctx, "reflector", instructions, b.String())
	if err != nil {
		return core.Reflection{}, err
	}

	reflection := core.Reflection{Reflection: raw}
	if fields, ok := decodeObject(raw); ok {
		reflection.Reflection = asString(fields["reflection"])
		reflection.RootCause = asString(fields["root_cause"])
		reflection.ImprovementStrategy = asString(fields["improvement_strategy"])
		if adj, ok := asFloat(fields["confidence_adjustment"]); ok {
			reflection.ConfidenceAdjustment = adj
		}
	}
	return reflection, nil
}

// Heal implements Healer. Unparseable responses degrade to a retry
// prescription so self-healing stays conservative.
func (s *Suite) Heal(ctx context.Context, req HealRequest) (core.Recovery, error) {
	instructions := "You diagnose failed pipeline agents and prescribe recovery. Respond with JSON: " +
		`{"diagnosis": string, "recovery_strategy": string, "should_retry": bool, ` +
		`"fallback_action": string, "preventive_measures": string}.`

	prompt := fmt.Sprintf(
		"Agent: %s\nTask: %s\nError count: %d\nGlobal health: %s\nLast error:\n%s\n",
		req.AgentName, req.Task, req.ErrorCount, req.GlobalHealth, req.ErrorMessage,
	)

	raw, err := s.complete(ctx, "healer", instructions, prompt)
	if err != nil {
		return core.Recovery{}, err
	}

	recovery := core.Recovery{Diagnosis: raw, ShouldRetry: true}
	if fields, ok := decodeObject(raw); ok {
		recovery.Diagnosis = asString(fields["diagnosis"])
		recovery.RecoveryStrategy = asString(fields["recovery_strategy"])
		recovery.FallbackAction = asString(fields["fallback_action"])
		recovery.PreventiveMeasures = asString(fields["preventive_measures"])
		if retry, ok := asBool(fields["should_retry"]); ok {
			recovery.ShouldRetry = retry
		}
	}
	return recovery, nil
}

// Vote implements ConsensusVoter. Unparseable responses degrade to a neutral
// 5.0 vote.
func (s *Suite) Vote(ctx context.Context, req VoteRequest) (core.ConsensusVote, error) {
	instructions := fmt.Sprintf(
		"You are one reviewer on a consensus panel. Your role: %s. Score the document 0-10 "+
			"from your role's perspective. Respond with JSON: {\"score\": number, "+
			`"rationale": string, "suggested_improvements": [string]}.`,
		req.Role,
	)
	prompt := fmt.Sprintf("Task: %s\n\nDocument:\n%s\n", req.Task, req.Draft)

	raw, err := s.complete(ctx, "consensus", instructions, prompt)
	if err != nil {
		return core.ConsensusVote{}, err
	}

	vote := core.ConsensusVote{Voter: req.Role, Score: 5.0, Rationale: raw}
	if fields, ok := decodeObject(raw); ok {
		if score, ok := asFloat(fields["score"]); ok {
			vote.Score = clampScore(score)
		}
		vote.Rationale = asString(fields["rationale"])
		vote.SuggestedImprovements = asStringSlice(fields["suggested_improvements"])
	}
	return vote, nil
}

// Adjust implements MetaLearner.
func (s *Suite) Adjust(ctx context.Context, req MetaRequest) (core.MetaAdjustment, error) {
	instructions := "You tune generation strategy weights from observed outcomes. Weights are in " +
		"[0,1]. Respond with JSON: {\"adjustment\": string, \"new_weights\": {name: number}, " +
		`"reasoning": string}.`

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nScore history: %v\nCurrent weights: %v\n",
		req.Task, req.Scores, req.StrategyWeights)
	if len(req.SuccessfulPatterns) > 0 {
		fmt.Fprintf(&b, "Successful patterns: %s\n", strings.Join(req.SuccessfulPatterns, "; "))
	}
	if len(req.FailedPatterns) > 0 {
		fmt.Fprintf(&b, "Failed patterns: %s\n", strings.Join(req.FailedPatterns, "; "))
	}

	raw, err := s.complete(ctx, "meta-learner", instructions, b.String())
	if err != nil {
		return core.MetaAdjustment{}, err
	}

	adjustment := core.MetaAdjustment{Adjustment: raw}
	if fields, ok := decodeObject(raw); ok {
		adjustment.Adjustment = asString(fields["adjustment"])
		adjustment.Reasoning = asString(fields["reasoning"])
		if weights, ok := fields["new_weights"].(map[string]any); ok {
			adjustment.NewWeights = make(map[string]float64, len(weights))
			for name, v := range weights {
				if f, ok := asFloat(v); ok {
					adjustment.NewWeights[name] = f
				}
			}
		}
	}
	return adjustment, nil
}

// GenerateDiagram implements DiagramGenerator. A plain-text response is
// treated as mermaid code.
func (s *Suite) GenerateDiagram(ctx context.Context, req DiagramRequest) (core.Diagram, error) {
	instructions := "You render mermaid architecture diagrams for documents. Respond with JSON: " +
		`{"diagram_type": "mermaid", "code": string}.`
	prompt := fmt.Sprintf("Task: %s\n\nDocument:\n%s\n", req.Task, req.Document)

	raw, err := s.complete(ctx, "diagrammer", instructions, prompt)
	if err != nil {
		return core.Diagram{}, err
	}

	diagram := core.Diagram{DiagramType: "mermaid", Code: stripFences(raw)}
	if fields, ok := decodeObject(raw); ok {
		if dt := asString(fields["diagram_type"]); dt != "" {
			diagram.DiagramType = dt
		}
		if code := asString(fields["code"]); code != "" {
			diagram.Code = code
		}
	}
	return diagram, nil
}

func (s *Suite) complete(ctx context.Context, provider, instructions, prompt string) (string, error) {
	start := time.Now()
	raw, err := s.llm.Complete(ctx, instructions, prompt)
	if err != nil {
		s.logger.Error("Provider call failed", "provider", provider, "duration", time.Since(start), "error", err.Error())
		return "", fmt.Errorf("capability: %s call failed: %w", provider, err)
	}
	s.logger.Debug("Provider call completed", "provider", provider, "duration", time.Since(start))
	return raw, nil
}

// decodeObject parses a JSON object out of the completion, tolerating
// surrounding prose and markdown fences.
func decodeObject(raw string) (map[string]any, bool) {
	text := stripFences(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:] // drop the language tag line
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(val, "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
