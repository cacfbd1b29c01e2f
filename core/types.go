package core

// AgentOutput is the immutable contribution of a single specialist call.
// Confidence is in [0,1]; zero confidence marks a degraded or failed call
// whose Content carries the error text instead of a contribution.
type AgentOutput struct {
	AgentName  string
	Content    string
	Confidence float64
}

// Outcome classifies a reflection or trajectory result.
type Outcome string

const (
	// OutcomeSuccess marks an attempt that met the quality bar.
	OutcomeSuccess Outcome = "success"
	// OutcomeNeedsImprovement marks an attempt below the quality bar.
	OutcomeNeedsImprovement Outcome = "needs_improvement"
	// OutcomePartial marks a trajectory that completed without reaching the
	// memory success threshold.
	OutcomePartial Outcome = "partial"
	// OutcomeFailure marks a trajectory that failed outright.
	OutcomeFailure Outcome = "failure"
)

// ReflectionMemory is one entry of the append-only episodic log produced by
// the reflection phase and consumed by later refine steps.
type ReflectionMemory struct {
	Iteration             int
	ActionTaken           string
	Outcome               Outcome
	Score                 float64
	Reflection            string
	ImprovementSuggestion string
}

// Severity is the ordered scale used by constitutional critiques.
type Severity int

const (
	// SeverityNone indicates no principle violation.
	SeverityNone Severity = iota
	// SeverityMinor indicates a small issue.
	SeverityMinor
	// SeverityMajor indicates a significant problem.
	SeverityMajor
	// SeverityCritical forces another iteration regardless of score.
	SeverityCritical
)

// String returns the lowercase name of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityMinor:
		return "minor"
	case SeverityMajor:
		return "major"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity maps a provider-supplied severity label onto the ordered
// scale, defaulting to minor for unrecognized labels.
func ParseSeverity(label string) Severity {
	switch label {
	case "none":
		return SeverityNone
	case "minor":
		return SeverityMinor
	case "major":
		return SeverityMajor
	case "critical":
		return SeverityCritical
	default:
		return SeverityMinor
	}
}

// CritiqueResult is the outcome of checking a draft against the
// constitutional principles.
type CritiqueResult struct {
	PrincipleViolated string // empty when no principle was violated
	Severity          Severity
	Critique          string
	RevisionRequest   string
	IsAcceptable      bool
}

// AgentStatus tracks the liveness of a single named agent.
type AgentStatus string

const (
	// AgentHealthy marks an agent operating normally.
	AgentHealthy AgentStatus = "healthy"
	// AgentDegraded marks an agent past its recovery budget.
	AgentDegraded AgentStatus = "degraded"
	// AgentFailed marks an agent whose last call errored.
	AgentFailed AgentStatus = "failed"
	// AgentRecovering marks an agent scheduled for retry by self-healing.
	AgentRecovering AgentStatus = "recovering"
)

// HealthStatus is the per-agent entry of the run's health map. It is
// mutated by the fan-out and self-healing phases and read by loop routing.
type HealthStatus struct {
	AgentName        string
	Status           AgentStatus
	ErrorCount       int
	LastError        string
	RecoveryAttempts int
}

// GlobalHealth summarizes the health map across all agents.
type GlobalHealth string

const (
	// HealthHealthy means no agents are failed or degraded.
	HealthHealthy GlobalHealth = "healthy"
	// HealthDegraded means at least one agent is failed or degraded.
	HealthDegraded GlobalHealth = "degraded"
	// HealthCritical means more than two agents are failed or degraded.
	HealthCritical GlobalHealth = "critical"
)

// ConsensusVote is one reviewer's verdict from the consensus phase.
type ConsensusVote struct {
	Voter                 string
	Score                 float64
	Rationale             string
	SuggestedImprovements []string
}

// Judgment is the structured verdict returned by the judge provider.
// CriteriaScores carries the per-criterion breakdown when available; an
// empty map means only the overall score is known.
type Judgment struct {
	CriteriaScores map[string]float64
	OverallScore   float64
	Feedback       string
	Strengths      []string
	Improvements   []string
}

// Reflection is the raw output of the reflector provider before it is
// folded into a ReflectionMemory.
type Reflection struct {
	Reflection           string
	RootCause            string
	ImprovementStrategy  string
	ConfidenceAdjustment float64
}

// Recovery is the healer provider's prescription for a failed agent.
type Recovery struct {
	Diagnosis          string
	RecoveryStrategy   string
	ShouldRetry        bool
	FallbackAction     string
	PreventiveMeasures string
}

// MetaAdjustment is the meta-learner provider's strategy update.
type MetaAdjustment struct {
	Adjustment string
	NewWeights map[string]float64
	Reasoning  string
}

// Diagram is the terminal phase's rendered architecture diagram.
type Diagram struct {
	DiagramType string
	Code        string
}

// RefinementIntensity controls how aggressively the refiner rewrites.
type RefinementIntensity string

const (
	// IntensityStandard requests incremental refinement.
	IntensityStandard RefinementIntensity = "Standard"
	// IntensityHigh requests significant changes (later iterations).
	IntensityHigh RefinementIntensity = "High"
	// IntensityCritical requests a major overhaul (boost mode).
	IntensityCritical RefinementIntensity = "Critical"
)

const (
	// maxMetaHistory bounds the meta-learner's pattern and adaptation logs.
	maxMetaHistory = 10
)

// MetaState holds the meta-learner's strategy weights and bounded history
// of observed success / failure patterns.
type MetaState struct {
	StrategyWeights    map[string]float64
	SuccessfulPatterns []string
	FailedPatterns     []string
	AdaptationHistory  []string
}

// NewMetaState returns a MetaState with the default balanced weights.
func NewMetaState() *MetaState {
	return &MetaState{
		StrategyWeights: map[string]float64{
			"depth_vs_breadth":            0.5,
			"creativity_vs_precision":     0.5,
			"exploration_vs_exploitation": 0.5,
		},
	}
}

// MergeWeights folds the provider-supplied weights into the current map.
// Only keys already present are updated; values are clamped to [0,1].
func (m *MetaState) MergeWeights(weights map[string]float64) {
	for key, value := range weights {
		if _, ok := m.StrategyWeights[key]; !ok {
			continue
		}
		m.StrategyWeights[key] = clamp01(value)
	}
}

// RecordAdaptation appends a reasoning note, keeping the last 10.
func (m *MetaState) RecordAdaptation(note string) {
	m.AdaptationHistory = appendBounded(m.AdaptationHistory, note, maxMetaHistory)
}

// RecordPattern files the adjustment under success or failure depending on
// the latest score: >= 8.0 counts as a successful pattern, < 6.0 as a
// failed one. Scores in between record nothing.
func (m *MetaState) RecordPattern(adjustment string, latestScore float64) {
	switch {
	case latestScore >= 8.0:
		m.SuccessfulPatterns = appendBounded(m.SuccessfulPatterns, adjustment, maxMetaHistory)
	case latestScore < 6.0:
		m.FailedPatterns = appendBounded(m.FailedPatterns, adjustment, maxMetaHistory)
	}
}

// LatestAdaptation returns the most recent adaptation note, or "".
func (m *MetaState) LatestAdaptation() string {
	if len(m.AdaptationHistory) == 0 {
		return ""
	}
	return m.AdaptationHistory[len(m.AdaptationHistory)-1]
}

func appendBounded(list []string, entry string, max int) []string {
	list = append(list, entry)
	if len(list) > max {
		list = list[len(list)-max:]
	}
	return list
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ConstitutionalPrinciples are the fixed content-quality rules checked by
// the critique phase independent of the numeric judge score.
var ConstitutionalPrinciples = []string{
	"Output must be technically accurate and factually grounded",
	"Content should be comprehensive yet concise - no unnecessary verbosity",
	"Structure should follow established documentation patterns",
	"All claims should be verifiable or clearly marked as hypothetical",
	"The system should demonstrate clear reasoning chains",
	"Output should be actionable and practically useful",
	"Failures should be acknowledged transparently, not hidden",
	"Improvements should be measurable and concrete",
}
