package capability

import (
	"context"
	"fmt"

	"github.com/hupe1980/refineloop/core"
)

// SpecialistRequest carries one specialist's share of the entry fan-out.
type SpecialistRequest struct {
	Task           string
	SpecialistType core.SpecialistType
	Draft          string // current working draft, "" on the first pass
	Iteration      int
	Boosted        bool   // escalated refinement is in effect for this pass
	ContextSummary string // accumulated cross-iteration context, "" on the first pass
	MemoryGuidance string // guidance retrieved from the memory provider
}

// Specialist produces one perspective-specific contribution to the draft.
type Specialist interface {
	Generate(ctx context.Context, req SpecialistRequest) (core.AgentOutput, error)
}

// RefineRequest asks for a rewritten draft incorporating feedback.
type RefineRequest struct {
	Task              string
	Draft             string
	Feedback          string
	Improvements      []string
	Intensity         core.RefinementIntensity
	ReflectionInsight string // latest improvement strategy, "" when none exists
	MemoryGuidance    string
}

// Refiner rewrites the draft at the requested intensity.
type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (string, error)
}

// CritiqueRequest asks for a constitutional check of the draft.
type CritiqueRequest struct {
	Draft      string
	Principles []string
}

// Critic checks the draft against the constitutional principles.
type Critic interface {
	Critique(ctx context.Context, req CritiqueRequest) (core.CritiqueResult, error)
}

// JudgeRequest asks for a multi-criteria quality verdict.
type JudgeRequest struct {
	Task     string
	Draft    string
	Criteria []string
}

// Judge scores the draft on a 0-10 scale per criterion and overall.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (core.Judgment, error)
}

// ReflectRequest asks for an analysis of the latest attempt.
type ReflectRequest struct {
	Task            string
	Draft           string
	Feedback        string
	Score           float64
	Iteration       int
	PreviousScores  []float64
	PastReflections []core.ReflectionMemory // up to the last 3 entries
}

// Reflector analyzes an attempt and proposes an improvement strategy.
type Reflector interface {
	Reflect(ctx context.Context, req ReflectRequest) (core.Reflection, error)
}

// HealRequest describes a failed agent needing a recovery prescription.
type HealRequest struct {
	AgentName    string
	Task         string // task the agent was working on when it failed
	ErrorMessage string
	ErrorCount   int
	GlobalHealth core.GlobalHealth
}

// Healer diagnoses failed agents and prescribes recovery actions.
type Healer interface {
	Heal(ctx context.Context, req HealRequest) (core.Recovery, error)
}

// VoteRequest asks one reviewer role for its verdict on the draft.
type VoteRequest struct {
	Task  string
	Draft string
	Role  string // reviewer perspective, e.g. "Technical Accuracy Reviewer - ..."
}

// ConsensusVoter casts one role-scoped vote during the consensus phase.
type ConsensusVoter interface {
	Vote(ctx context.Context, req VoteRequest) (core.ConsensusVote, error)
}

// MetaRequest summarizes run history for a strategy adjustment.
type MetaRequest struct {
	Task               string
	Scores             []float64
	StrategyWeights    map[string]float64
	SuccessfulPatterns []string
	FailedPatterns     []string
}

// MetaLearner proposes strategy-weight adjustments from observed patterns.
type MetaLearner interface {
	Adjust(ctx context.Context, req MetaRequest) (core.MetaAdjustment, error)
}

// DiagramRequest asks for an architecture diagram of the final document.
type DiagramRequest struct {
	Task     string
	Document string
}

// DiagramGenerator renders a diagram describing the produced document.
type DiagramGenerator interface {
	GenerateDiagram(ctx context.Context, req DiagramRequest) (core.Diagram, error)
}

// Providers bundles every capability the engine needs for a run. All fields
// are required; Validate reports the first missing one.
type Providers struct {
	Specialist  Specialist
	Refiner     Refiner
	Critic      Critic
	Judge       Judge
	Reflector   Reflector
	Healer      Healer
	Voter       ConsensusVoter
	MetaLearner MetaLearner
	Diagrammer  DiagramGenerator
}

// Validate reports an error naming the first nil capability.
func (p Providers) Validate() error {
	switch {
	case p.Specialist == nil:
		return fmt.Errorf("capability: specialist provider is required")
	case p.Refiner == nil:
		return fmt.Errorf("capability: refiner provider is required")
	case p.Critic == nil:
		return fmt.Errorf("capability: critic provider is required")
	case p.Judge == nil:
		return fmt.Errorf("capability: judge provider is required")
	case p.Reflector == nil:
		return fmt.Errorf("capability: reflector provider is required")
	case p.Healer == nil:
		return fmt.Errorf("capability: healer provider is required")
	case p.Voter == nil:
		return fmt.Errorf("capability: consensus voter provider is required")
	case p.MetaLearner == nil:
		return fmt.Errorf("capability: meta-learner provider is required")
	case p.Diagrammer == nil:
		return fmt.Errorf("capability: diagram generator provider is required")
	}
	return nil
}
