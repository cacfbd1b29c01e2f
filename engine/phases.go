package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/refineloop/capability"
	"github.com/hupe1980/refineloop/core"
	"github.com/hupe1980/refineloop/memory"
	"github.com/hupe1980/refineloop/trajectory"
)

// phaseStatus is the explicit outcome variant of one phase. Phases never
// panic or abort the run; a provider failure degrades the phase and the
// loop continues with a best-effort result.
type phaseStatus string

const (
	phaseOK       phaseStatus = "ok"
	phaseDegraded phaseStatus = "degraded"
	phaseSkipped  phaseStatus = "skipped"
)

// phaseResult reports how a phase ended and why.
type phaseResult struct {
	status phaseStatus
	detail string
}

func resultOK() phaseResult { return phaseResult{status: phaseOK} }

func resultDegraded(detail string) phaseResult {
	return phaseResult{status: phaseDegraded, detail: detail}
}

func resultSkipped(detail string) phaseResult {
	return phaseResult{status: phaseSkipped, detail: detail}
}

// minGuidanceConfidence gates memory guidance injection into specialist
// prompts; low-confidence guidance is withheld rather than misleading.
const minGuidanceConfidence = 0.3

// fanOut dispatches one concurrent call per specialist type and merges the
// outputs append-only after all workers finish. A failing call degrades to a
// zero-confidence output carrying the error text and marks the agent failed;
// it never aborts the batch.
func (e *Engine) fanOut(ctx context.Context, st *runState) phaseResult {
	start := time.Now()

	guidance := e.memoryGuidance(st)
	summary := buildContextSummary(st)
	types := core.SpecialistTypes()

	outputs := make([]core.AgentOutput, len(types))
	errs := make([]error, len(types))

	var wg sync.WaitGroup
	for i, specType := range types {
		wg.Add(1)
		go func(i int, specType core.SpecialistType) {
			defer wg.Done()

			workerID := fmt.Sprintf("%s-worker", specType)
			e.store.UpdateHeartbeat(trajectory.Heartbeat{
				WorkerID:    workerID,
				AgentName:   string(specType),
				Status:      "running",
				CurrentTask: st.task,
			})

			span := trajectory.NewSpan(string(specType), "specialist_generate")
			out, err := e.providers.Specialist.Generate(ctx, capability.SpecialistRequest{
				Task:           st.task,
				SpecialistType: specType,
				Draft:          st.draft,
				Iteration:      st.iteration,
				Boosted:        st.boosted,
				ContextSummary: summary,
				MemoryGuidance: guidance,
			})
			span.EndTime = time.Now()

			if err != nil {
				errs[i] = err
				outputs[i] = core.AgentOutput{
					AgentName:  string(specType),
					Content:    fmt.Sprintf("Error: %v", err),
					Confidence: 0,
				}
				span.Status = "failed"
				span.Error = err.Error()
			} else {
				outputs[i] = out
				span.Status = "completed"
				span.Output = out.Content
			}
			e.store.AddSpan(st.rolloutID, span)
		}(i, specType)
	}
	wg.Wait()

	st.outputs = outputs

	anyFailed := false
	for i, specType := range types {
		hs := st.health[specType]
		if errs[i] != nil {
			anyFailed = true
			hs.Status = core.AgentFailed
			hs.ErrorCount++
			hs.LastError = errs[i].Error()
			e.logger.Warn("Specialist failed",
				"run_id", st.runID, "agent", string(specType), "error", errs[i].Error())
		} else if hs.Status == core.AgentRecovering {
			hs.Status = core.AgentHealthy
		}
	}
	st.recoveryMode = anyFailed
	st.globalHealth = computeGlobalHealth(st.health)

	e.logger.Info("Fan-out completed",
		"run_id", st.runID, "iteration", st.iteration,
		"duration", time.Since(start), "degraded", anyFailed)

	if anyFailed {
		return resultDegraded("one or more specialists failed")
	}
	return resultOK()
}

// memoryGuidance retrieves phase-appropriate guidance, withholding it below
// the confidence gate.
func (e *Engine) memoryGuidance(st *runState) string {
	phase := core.PhaseIn
	if st.iteration == 1 {
		phase = core.PhaseBegin
	}
	resp := st.memory.Provide(core.MemoryRequest{
		Query:      st.task,
		Phase:      phase,
		StepNumber: st.iteration,
		AgentType:  "specialist",
	})
	if resp.Confidence <= minGuidanceConfidence {
		return ""
	}
	return resp.Guidance
}

// buildContextSummary condenses the run so far for specialist prompts.
func buildContextSummary(st *runState) string {
	if len(st.scores) == 0 {
		return "First iteration - no prior context."
	}

	var parts []string

	recent := st.scores
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	parts = append(parts, fmt.Sprintf("Recent scores: %s", scoreProgression(recent)))

	if len(st.feedback) > 0 {
		parts = append(parts, "Latest feedback: "+truncate(st.feedback[len(st.feedback)-1], 500))
	}
	if len(st.reflections) > 0 {
		last := st.reflections[len(st.reflections)-1]
		if last.ImprovementSuggestion != "" {
			parts = append(parts, "Improvement strategy: "+truncate(last.ImprovementSuggestion, 300))
		}
	}
	if issues := criticalIssues(st.critiques); issues != "" {
		parts = append(parts, "Critical issues: "+truncate(issues, 300))
	}
	if hint := st.meta.LatestAdaptation(); hint != "" {
		parts = append(parts, "Strategy hint: "+truncate(hint, 200))
	}

	return strings.Join(parts, "\n")
}

func criticalIssues(critiques []core.CritiqueResult) string {
	var issues []string
	start := len(critiques) - 3
	if start < 0 {
		start = 0
	}
	for _, c := range critiques[start:] {
		if c.Severity >= core.SeverityMajor && c.Critique != "" {
			issues = append(issues, c.Critique)
		}
	}
	return strings.Join(issues, "; ")
}

// refine merges confident specialist outputs into a contributions block and
// calls the refiner at the intensity implied by iteration count and boost
// state. A refiner failure leaves the draft unchanged.
func (e *Engine) refine(ctx context.Context, st *runState) phaseResult {
	contributions := mergeContributions(st.outputs)

	content := st.draft
	if content == "" {
		content = contributions
	}

	intensity := core.IntensityStandard
	switch {
	case st.boosted:
		intensity = core.IntensityCritical
	case st.iteration > 3:
		intensity = core.IntensityHigh
	}

	var lastFeedback string
	if len(st.feedback) > 0 {
		lastFeedback = st.feedback[len(st.feedback)-1]
	}

	span := trajectory.NewSpan("refiner", "refine_draft")
	refined, err := e.providers.Refiner.Refine(ctx, capability.RefineRequest{
		Task:              st.task,
		Draft:             content,
		Feedback:          strings.TrimSpace(contributions + "\n" + lastFeedback),
		Improvements:      st.improvements,
		Intensity:         intensity,
		ReflectionInsight: recentInsights(st.reflections, 2),
		MemoryGuidance:    e.memoryGuidance(st),
	})
	span.EndTime = time.Now()

	if err != nil {
		span.Status = "failed"
		span.Error = err.Error()
		e.store.AddSpan(st.rolloutID, span)
		e.logger.Warn("Refine failed", "run_id", st.runID, "iteration", st.iteration, "error", err.Error())
		return resultDegraded(err.Error())
	}

	span.Status = "completed"
	e.store.AddSpan(st.rolloutID, span)
	st.draft = refined

	score, _ := latestScore(st.scores)
	e.store.SaveResource(trajectory.Resource{
		ResourceID:   "draft:" + st.runID,
		ResourceType: "draft",
		Content:      refined,
		Score:        score,
	})
	return resultOK()
}

// mergeContributions concatenates outputs with positive confidence. The
// worker completion order is irrelevant; outputs arrive in specialist-type
// order.
func mergeContributions(outputs []core.AgentOutput) string {
	var b strings.Builder
	for _, out := range outputs {
		if out.Confidence <= 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s (confidence %.2f)\n%s\n\n", out.AgentName, out.Confidence, out.Content)
	}
	return strings.TrimSpace(b.String())
}

func recentInsights(reflections []core.ReflectionMemory, n int) string {
	start := len(reflections) - n
	if start < 0 {
		start = 0
	}
	var insights []string
	for _, r := range reflections[start:] {
		if r.ImprovementSuggestion != "" {
			insights = append(insights, r.ImprovementSuggestion)
		}
	}
	return strings.Join(insights, "; ")
}

// critique checks the draft against the constitutional principles. Without a
// draft it short-circuits with a neutral result; a critic failure records an
// acceptable placeholder so routing still sees one critique per iteration.
func (e *Engine) critique(ctx context.Context, st *runState) phaseResult {
	if st.draft == "" {
		st.critiques = append(st.critiques, core.CritiqueResult{
			Severity:     core.SeverityNone,
			Critique:     "No draft to critique yet",
			IsAcceptable: true,
		})
		return resultSkipped("no draft")
	}

	result, err := e.providers.Critic.Critique(ctx, capability.CritiqueRequest{
		Draft:      st.draft,
		Principles: core.ConstitutionalPrinciples,
	})
	if err != nil {
		st.critiques = append(st.critiques, core.CritiqueResult{
			Severity:     core.SeverityNone,
			Critique:     "Critique unavailable: " + err.Error(),
			IsAcceptable: true,
		})
		e.logger.Warn("Critique failed", "run_id", st.runID, "iteration", st.iteration, "error", err.Error())
		return resultDegraded(err.Error())
	}

	st.critiques = append(st.critiques, result)
	return resultOK()
}

// judge scores the draft and registers a Pareto candidate from the criteria
// breakdown (or the overall score replicated across objectives). Candidate
// registration failures are logged, never fatal; the score itself is always
// recorded.
func (e *Engine) judge(ctx context.Context, st *runState) phaseResult {
	if st.draft == "" {
		st.scores = append(st.scores, 0)
		st.feedback = append(st.feedback, noContentFeedback)
		e.logger.Info("Iteration scored", "run_id", st.runID, "iteration", st.iteration, "score", 0.0)
		return resultSkipped("no draft")
	}

	judgment, err := e.providers.Judge.Judge(ctx, capability.JudgeRequest{
		Task:     st.task,
		Draft:    st.draft,
		Criteria: e.cfg.Criteria,
	})
	if err != nil {
		st.scores = append(st.scores, 5.0)
		st.feedback = append(st.feedback, "Judging failed: "+err.Error())
		e.logger.Warn("Judge failed", "run_id", st.runID, "iteration", st.iteration, "error", err.Error())
		return resultDegraded(err.Error())
	}

	st.scores = append(st.scores, judgment.OverallScore)
	st.feedback = append(st.feedback, judgment.Feedback)
	st.improvements = judgment.Improvements
	e.logger.Info("Iteration scored",
		"run_id", st.runID, "iteration", st.iteration, "score", judgment.OverallScore)

	e.registerCandidate(st, judgment)
	return resultOK()
}

func (e *Engine) registerCandidate(st *runState, judgment core.Judgment) {
	scores := make(map[string]float64, len(e.cfg.Optimization.Objectives))
	for _, obj := range e.cfg.Optimization.Objectives {
		if s, ok := judgment.CriteriaScores[obj]; ok {
			scores[obj] = s
		} else {
			scores[obj] = judgment.OverallScore
		}
	}

	content := map[string]any{
		"content_hash": draftHash(st.draft),
		"iteration":    st.iteration,
	}
	st.tracker.AddCandidate(content, scores, "", fmt.Sprintf("Iteration %d draft", st.iteration))
	st.tracker.AdvanceGeneration()

	if removed := st.tracker.PruneDominated(e.cfg.Optimization.PruneKeepN); removed > 0 {
		e.logger.Debug("Pruned dominated candidates", "run_id", st.runID, "removed", removed)
	}
}

func draftHash(draft string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(draft))
	return fmt.Sprintf("%016x", h.Sum64())
}

// reflect analyzes the latest attempt and ingests a trajectory into memory.
// It runs whenever at least one score exists, even when the draft is empty.
// Reflector and ingestion failures are non-fatal.
func (e *Engine) reflect(ctx context.Context, st *runState) phaseResult {
	if len(st.scores) == 0 {
		return resultSkipped("no scores")
	}

	score := st.scores[len(st.scores)-1]
	var feedback string
	if len(st.feedback) > 0 {
		feedback = st.feedback[len(st.feedback)-1]
	}

	outcome := core.OutcomeNeedsImprovement
	if score >= e.cfg.MemorySuccessThreshold {
		outcome = core.OutcomeSuccess
	}

	entry := core.ReflectionMemory{
		Iteration:   st.iteration,
		ActionTaken: fmt.Sprintf("Iteration %d refinement", st.iteration),
		Outcome:     outcome,
		Score:       score,
	}

	result := resultOK()
	reflection, err := e.providers.Reflector.Reflect(ctx, capability.ReflectRequest{
		Task:            st.task,
		Draft:           st.draft,
		Feedback:        feedback,
		Score:           score,
		Iteration:       st.iteration,
		PreviousScores:  previousScores(st.scores),
		PastReflections: lastReflections(st.reflections, 3),
	})
	if err != nil {
		entry.Reflection = "Reflection unavailable: " + err.Error()
		e.logger.Warn("Reflect failed", "run_id", st.runID, "iteration", st.iteration, "error", err.Error())
		result = resultDegraded(err.Error())
	} else {
		entry.Reflection = reflection.Reflection
		entry.ImprovementSuggestion = reflection.ImprovementStrategy
	}
	st.reflections = append(st.reflections, entry)

	e.ingestTrajectory(st, score, entry.ImprovementSuggestion)
	return result
}

func previousScores(scores []float64) []float64 {
	if len(scores) <= 1 {
		return nil
	}
	return append([]float64(nil), scores[:len(scores)-1]...)
}

func lastReflections(reflections []core.ReflectionMemory, n int) []core.ReflectionMemory {
	if len(reflections) == 0 {
		return nil
	}
	if len(reflections) > n {
		reflections = reflections[len(reflections)-n:]
	}
	return append([]core.ReflectionMemory(nil), reflections...)
}

func (e *Engine) ingestTrajectory(st *runState, score float64, learning string) {
	outcome := core.OutcomePartial
	if score >= e.cfg.MemorySuccessThreshold {
		outcome = core.OutcomeSuccess
	}

	var learnings []string
	if learning != "" {
		learnings = []string{learning}
	}

	msg, err := st.memory.Ingest(core.Trajectory{
		Task: st.task,
		Steps: []string{
			"Generated contributions via specialist fan-out",
			"Refined draft against feedback",
		},
		Outcome:   outcome,
		Score:     score,
		Learnings: learnings,
	})
	if err != nil {
		e.logger.Warn("Memory ingestion failed", "run_id", st.runID, "error", err.Error())
		return
	}
	e.logger.Debug("Memory updated", "run_id", st.runID, "detail", msg)
}

// consensus polls the three fixed reviewer roles sequentially. Per-role
// failures are individually swallowed; the batch proceeds with whatever
// votes succeeded.
func (e *Engine) consensus(ctx context.Context, st *runState) phaseResult {
	if st.draft == "" {
		return resultSkipped("no draft")
	}

	failures := 0
	for _, role := range consensusRoles {
		vote, err := e.providers.Voter.Vote(ctx, capability.VoteRequest{
			Task:  st.task,
			Draft: st.draft,
			Role:  role,
		})
		if err != nil {
			failures++
			e.logger.Warn("Consensus vote failed", "run_id", st.runID, "role", role, "error", err.Error())
			continue
		}
		st.votes = append(st.votes, vote)
	}

	if failures == len(consensusRoles) {
		return resultDegraded("all consensus votes failed")
	}
	if failures > 0 {
		return resultDegraded(fmt.Sprintf("%d of %d votes failed", failures, len(consensusRoles)))
	}
	return resultOK()
}

// metaLearn folds the meta-learner's adjustment into the strategy weights
// and bounded pattern history. Pattern lists are enriched with sequences
// mined from the trajectory store.
func (e *Engine) metaLearn(ctx context.Context, st *runState) phaseResult {
	if len(st.scores) == 0 {
		return resultSkipped("no scores")
	}

	adjustment, err := e.providers.MetaLearner.Adjust(ctx, capability.MetaRequest{
		Task:               st.task,
		Scores:             append([]float64(nil), st.scores...),
		StrategyWeights:    st.meta.StrategyWeights,
		SuccessfulPatterns: append(st.meta.SuccessfulPatterns, e.store.GetSuccessfulPatterns(8.0)...),
		FailedPatterns:     append(st.meta.FailedPatterns, e.store.GetFailedPatterns(6.0)...),
	})
	if err != nil {
		e.logger.Warn("Meta-learn failed", "run_id", st.runID, "iteration", st.iteration, "error", err.Error())
		return resultDegraded(err.Error())
	}

	st.meta.MergeWeights(adjustment.NewWeights)
	if adjustment.Adjustment != "" {
		st.meta.RecordAdaptation(adjustment.Adjustment)
		st.meta.RecordPattern(adjustment.Adjustment, st.scores[len(st.scores)-1])
	}
	return resultOK()
}

// evolveMemory triggers a structural tree expansion when the last three
// scores form a low plateau and the provider is hierarchical. Any other
// configuration or condition is a no-op that still reports whether
// evolution was attempted.
func (e *Engine) evolveMemory(st *runState) phaseResult {
	if len(st.scores) < 3 {
		return resultSkipped("fewer than 3 scores")
	}

	last3 := st.scores[len(st.scores)-3:]
	mean, variance := meanVariance(last3)
	if variance >= e.cfg.PlateauVariance || mean >= e.cfg.PlateauCeiling {
		return resultSkipped("no plateau")
	}

	h, isHierarchical := st.memory.(*memory.Hierarchical)
	if !isHierarchical {
		return resultSkipped("memory provider is not hierarchical")
	}

	node := h.EvolveStructure()
	if node == nil {
		e.logger.Warn("Memory evolution failed", "run_id", st.runID, "iteration", st.iteration)
		return resultDegraded("structural evolution failed")
	}
	e.logger.Info("Memory structure evolved",
		"run_id", st.runID, "iteration", st.iteration, "node", node.ID)
	return resultOK()
}

func meanVariance(values []float64) (float64, float64) {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, variance
}

// selfHeal prescribes recovery for every failed agent within its retry
// budget, then recomputes global health and clears recovery mode so the
// next routing decision returns to fan-out.
func (e *Engine) selfHeal(ctx context.Context, st *runState) phaseResult {
	healed := 0
	for _, specType := range core.SpecialistTypes() {
		hs := st.health[specType]
		if hs.Status != core.AgentFailed {
			continue
		}
		if hs.RecoveryAttempts >= 3 {
			hs.Status = core.AgentDegraded
			continue
		}

		recovery, err := e.providers.Healer.Heal(ctx, capability.HealRequest{
			AgentName:    hs.AgentName,
			Task:         st.task,
			ErrorMessage: hs.LastError,
			ErrorCount:   hs.ErrorCount,
			GlobalHealth: st.globalHealth,
		})
		if err != nil || !recovery.ShouldRetry {
			hs.Status = core.AgentDegraded
			if err != nil {
				e.logger.Warn("Healer failed", "run_id", st.runID, "agent", hs.AgentName, "error", err.Error())
			}
			continue
		}

		hs.Status = core.AgentRecovering
		hs.RecoveryAttempts++
		healed++
		e.logger.Info("Agent recovering",
			"run_id", st.runID, "agent", hs.AgentName, "attempts", hs.RecoveryAttempts)
	}

	st.globalHealth = computeGlobalHealth(st.health)
	st.recoveryMode = false

	if healed == 0 {
		return resultSkipped("no agents eligible for recovery")
	}
	return resultOK()
}

// computeGlobalHealth summarizes the health map: more than two failed or
// degraded agents is critical, any at all is degraded.
func computeGlobalHealth(health map[core.SpecialistType]*core.HealthStatus) core.GlobalHealth {
	unhealthy := 0
	for _, hs := range health {
		if hs.Status == core.AgentFailed || hs.Status == core.AgentDegraded {
			unhealthy++
		}
	}
	switch {
	case unhealthy > 2:
		return core.HealthCritical
	case unhealthy > 0:
		return core.HealthDegraded
	default:
		return core.HealthHealthy
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
