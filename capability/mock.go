package capability

import (
	"context"
	"fmt"

	"github.com/hupe1980/refineloop/core"
)

// SpecialistFunc adapts a function to the Specialist interface.
type SpecialistFunc func(ctx context.Context, req SpecialistRequest) (core.AgentOutput, error)

// Generate implements Specialist.
func (f SpecialistFunc) Generate(ctx context.Context, req SpecialistRequest) (core.AgentOutput, error) {
	return f(ctx, req)
}

// RefinerFunc adapts a function to the Refiner interface.
type RefinerFunc func(ctx context.Context, req RefineRequest) (string, error)

// Refine implements Refiner.
func (f RefinerFunc) Refine(ctx context.Context, req RefineRequest) (string, error) {
	return f(ctx, req)
}

// CriticFunc adapts a function to the Critic interface.
type CriticFunc func(ctx context.Context, req CritiqueRequest) (core.CritiqueResult, error)

// Critique implements Critic.
func (f CriticFunc) Critique(ctx context.Context, req CritiqueRequest) (core.CritiqueResult, error) {
	return f(ctx, req)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, req JudgeRequest) (core.Judgment, error)

// Judge implements Judge.
func (f JudgeFunc) Judge(ctx context.Context, req JudgeRequest) (core.Judgment, error) {
	return f(ctx, req)
}

// ReflectorFunc adapts a function to the Reflector interface.
type ReflectorFunc func(ctx context.Context, req ReflectRequest) (core.Reflection, error)

// Reflect implements Reflector.
func (f ReflectorFunc) Reflect(ctx context.Context, req ReflectRequest) (core.Reflection, error) {
	return f(ctx, req)
}

// HealerFunc adapts a function to the Healer interface.
type HealerFunc func(ctx context.Context, req HealRequest) (core.Recovery, error)

// Heal implements Healer.
func (f HealerFunc) Heal(ctx context.Context, req HealRequest) (core.Recovery, error) {
	return f(ctx, req)
}

// VoterFunc adapts a function to the ConsensusVoter interface.
type VoterFunc func(ctx context.Context, req VoteRequest) (core.ConsensusVote, error)

// Vote implements ConsensusVoter.
func (f VoterFunc) Vote(ctx context.Context, req VoteRequest) (core.ConsensusVote, error) {
	return f(ctx, req)
}

// MetaLearnerFunc adapts a function to the MetaLearner interface.
type MetaLearnerFunc func(ctx context.Context, req MetaRequest) (core.MetaAdjustment, error)

// Adjust implements MetaLearner.
func (f MetaLearnerFunc) Adjust(ctx context.Context, req MetaRequest) (core.MetaAdjustment, error) {
	return f(ctx, req)
}

// DiagramFunc adapts a function to the DiagramGenerator interface.
type DiagramFunc func(ctx context.Context, req DiagramRequest) (core.Diagram, error)

// GenerateDiagram implements DiagramGenerator.
func (f DiagramFunc) GenerateDiagram(ctx context.Context, req DiagramRequest) (core.Diagram, error) {
	return f(ctx, req)
}

// NewScriptedJudge returns a Judge that replays the given overall scores in
// call order, repeating the last one once exhausted. Useful for driving the
// engine's termination logic deterministically in tests.
func NewScriptedJudge(scores ...float64) Judge {
	call := 0
	return JudgeFunc(func(_ context.Context, _ JudgeRequest) (core.Judgment, error) {
		score := scores[len(scores)-1]
		if call < len(scores) {
			score = scores[call]
		}
		call++
		return core.Judgment{
			OverallScore: score,
			Feedback:     fmt.Sprintf("Scripted verdict %.1f", score),
		}, nil
	})
}

// NewMockProviders returns a deterministic in-memory Providers bundle useful
// for tests and examples. Specialists contribute canned sections at 0.8
// confidence, the judge starts at baseScore and improves by 0.5 per call,
// the critic always accepts with minor severity, and the remaining
// capabilities echo plausible fixed answers.
func NewMockProviders(baseScore float64) Providers {
	judgeCall := 0
	return Providers{
		Specialist: SpecialistFunc(func(_ context.Context, req SpecialistRequest) (core.AgentOutput, error) {
			return core.AgentOutput{
				AgentName:  string(req.SpecialistType),
				Content:    fmt.Sprintf("Mock %s contribution for: %s", req.SpecialistType, req.Task),
				Confidence: 0.8,
			}, nil
		}),
		Refiner: RefinerFunc(func(_ context.Context, req RefineRequest) (string, error) {
			return req.Draft + "\n\nRefined per feedback: " + req.Feedback, nil
		}),
		Critic: CriticFunc(func(_ context.Context, _ CritiqueRequest) (core.CritiqueResult, error) {
			return core.CritiqueResult{
				Severity:     core.SeverityMinor,
				Critique:     "Mock critique: acceptable with minor issues",
				IsAcceptable: true,
			}, nil
		}),
		Judge: JudgeFunc(func(_ context.Context, req JudgeRequest) (core.Judgment, error) {
			score := baseScore + float64(judgeCall)*0.5
			if score > 10 {
				score = 10
			}
			judgeCall++
			criteria := make(map[string]float64, len(req.Criteria))
			for _, c := range req.Criteria {
				criteria[c] = score
			}
			return core.Judgment{
				CriteriaScores: criteria,
				OverallScore:   score,
				Feedback:       "Mock feedback",
				Improvements:   []string{"Tighten the summary"},
			}, nil
		}),
		Reflector: ReflectorFunc(func(_ context.Context, req ReflectRequest) (core.Reflection, error) {
			return core.Reflection{
				Reflection:          fmt.Sprintf("Mock reflection on iteration %d", req.Iteration),
				RootCause:           "Mock root cause",
				ImprovementStrategy: "Mock strategy: expand weakest section",
			}, nil
		}),
		Healer: HealerFunc(func(_ context.Context, req HealRequest) (core.Recovery, error) {
			return core.Recovery{
				Diagnosis:        "Mock diagnosis for " + req.AgentName,
				RecoveryStrategy: "retry",
				ShouldRetry:      true,
			}, nil
		}),
		Voter: VoterFunc(func(_ context.Context, req VoteRequest) (core.ConsensusVote, error) {
			return core.ConsensusVote{
				Voter:     req.Role,
				Score:     baseScore,
				Rationale: "Mock rationale",
			}, nil
		}),
		MetaLearner: MetaLearnerFunc(func(_ context.Context, req MetaRequest) (core.MetaAdjustment, error) {
			return core.MetaAdjustment{
				Adjustment: "Mock adjustment: favor depth",
				NewWeights: map[string]float64{"depth_vs_breadth": 0.6},
				Reasoning:  "Mock reasoning",
			}, nil
		}),
		Diagrammer: DiagramFunc(func(_ context.Context, _ DiagramRequest) (core.Diagram, error) {
			return core.Diagram{DiagramType: "mermaid", Code: "graph TD\n  A[Task] --> B[Document]"}, nil
		}),
	}
}
