package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hupe1980/refineloop/capability"
	"github.com/hupe1980/refineloop/core"
	"github.com/hupe1980/refineloop/logging"
	"github.com/hupe1980/refineloop/pareto"
	"github.com/hupe1980/refineloop/trajectory"
)

// Config tunes the iteration loop. Zero values are replaced by the defaults
// documented on each field.
type Config struct {
	// MaxIterations is the hard circuit breaker (default 7). It terminates
	// the run even when a critical critique would otherwise force another
	// pass.
	MaxIterations int
	// TargetScore terminates the run once the latest judge score reaches it
	// (default 8.5).
	TargetScore float64
	// ConsensusThreshold terminates the run once the mean of the last three
	// consensus votes reaches it (default 8.5).
	ConsensusThreshold float64
	// BoostDelta and BoostCeiling drive the boost heuristic: refinement is
	// escalated to Critical intensity when the last two scores differ by
	// less than BoostDelta (default 0.3) and the latest score is below
	// BoostCeiling (default 8.0).
	BoostDelta   float64
	BoostCeiling float64
	// PlateauVariance and PlateauCeiling drive memory evolution: the tree is
	// structurally evolved when the variance of the last three scores falls
	// below PlateauVariance (default 0.25) and their mean is below
	// PlateauCeiling (default 8.0).
	PlateauVariance float64
	PlateauCeiling  float64
	// MemorySuccessThreshold splits trajectory outcomes into success and
	// partial during reflection (default 7.0).
	MemorySuccessThreshold float64
	// Criteria are the judge's scoring criteria.
	Criteria []string
	// Memory and Optimization size the per-task subsystems.
	Memory       core.MemoryConfig
	Optimization core.OptimizationConfig
}

// DefaultConfig returns the standard loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:          7,
		TargetScore:            8.5,
		ConsensusThreshold:     8.5,
		BoostDelta:             0.3,
		BoostCeiling:           8.0,
		PlateauVariance:        0.25,
		PlateauCeiling:         8.0,
		MemorySuccessThreshold: 7.0,
		Criteria:               []string{"clarity", "completeness", "coherence", "innovation"},
		Memory:                 core.DefaultMemoryConfig(),
		Optimization:           core.DefaultOptimizationConfig(),
	}
}

// consensusRoles are the three fixed reviewer perspectives polled during the
// consensus phase, in call order.
var consensusRoles = []string{
	"Technical Accuracy Reviewer - focus on correctness and completeness",
	"Clarity & Structure Expert - focus on readability and organization",
	"Practical Utility Assessor - focus on actionability and usefulness",
}

// noContentFeedback is recorded by the judge phase when no draft exists yet.
const noContentFeedback = "No content generated yet. Focus on creating initial comprehensive draft."

// Options configure an Engine beyond its loop Config.
type Options struct {
	// Config tunes the iteration loop. Defaults to DefaultConfig().
	Config Config
	// Logger receives structured run diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// Subsystems is the per-task memory / tracker registry. Sharing one
	// across engines lets repeated runs of a task accumulate experience.
	// Defaults to a fresh registry.
	Subsystems *Subsystems
	// Store records rollouts, draft versions and heartbeats. Defaults to a
	// fresh in-memory store.
	Store *trajectory.Store
}

// Engine drives the refinement loop. One Engine is safe for concurrent runs
// of different tasks; per-task state lives in the Subsystems registry and
// each run owns its own runState.
type Engine struct {
	providers  capability.Providers
	cfg        Config
	logger     logging.Logger
	subsystems *Subsystems
	store      *trajectory.Store
}

// New creates an Engine. A nil capability in providers is a configuration
// error and fails construction; nothing else aborts a run up front.
func New(providers capability.Providers, optFns ...func(o *Options)) (*Engine, error) {
	if err := providers.Validate(); err != nil {
		return nil, err
	}

	opts := Options{
		Config: DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Subsystems == nil {
		opts.Subsystems = NewSubsystems()
	}
	if opts.Store == nil {
		opts.Store = trajectory.NewStore()
	}
	applyConfigDefaults(&opts.Config)

	return &Engine{
		providers:  providers,
		cfg:        opts.Config,
		logger:     opts.Logger,
		subsystems: opts.Subsystems,
		store:      opts.Store,
	}, nil
}

func applyConfigDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.TargetScore == 0 {
		cfg.TargetScore = def.TargetScore
	}
	if cfg.ConsensusThreshold == 0 {
		cfg.ConsensusThreshold = def.ConsensusThreshold
	}
	if cfg.BoostDelta == 0 {
		cfg.BoostDelta = def.BoostDelta
	}
	if cfg.BoostCeiling == 0 {
		cfg.BoostCeiling = def.BoostCeiling
	}
	if cfg.PlateauVariance == 0 {
		cfg.PlateauVariance = def.PlateauVariance
	}
	if cfg.PlateauCeiling == 0 {
		cfg.PlateauCeiling = def.PlateauCeiling
	}
	if cfg.MemorySuccessThreshold == 0 {
		cfg.MemorySuccessThreshold = def.MemorySuccessThreshold
	}
	if len(cfg.Criteria) == 0 {
		cfg.Criteria = def.Criteria
	}
	if cfg.Memory.ProviderType == "" {
		cfg.Memory = def.Memory
	}
	if len(cfg.Optimization.Objectives) == 0 {
		cfg.Optimization = def.Optimization
	}
}

// Run executes the full refinement loop for the task and returns the final
// result. Provider failures degrade individual phases; the run always
// reaches the terminal state with a best-effort document.
func (e *Engine) Run(ctx context.Context, task string) (*core.Result, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("engine: task must not be empty")
	}

	st := e.entry(task)
	e.logger.Info("Run started", "run_id", st.runID, "task", task)

	for {
		e.fanOut(ctx, st)
		e.refine(ctx, st)
		e.critique(ctx, st)
		e.judge(ctx, st)
		e.reflect(ctx, st)
		e.consensus(ctx, st)
		e.metaLearn(ctx, st)
		e.evolveMemory(st)

		if e.shouldTerminate(st) {
			break
		}

		e.loopDecision(st)

		if st.recoveryMode || st.globalHealth == core.HealthCritical {
			e.selfHeal(ctx, st)
		}
	}

	return e.finalize(ctx, st), nil
}

// runState is the mutable state of one task execution. It is owned by a
// single Run call; only the fan-out phase writes to it from multiple
// goroutines, and that write is an append-only merge after all workers
// complete.
type runState struct {
	runID     string
	task      string
	draft     string
	scores    []float64
	feedback  []string
	iteration int
	boosted   bool

	outputs      []core.AgentOutput // current iteration's specialist outputs
	improvements []string           // latest judge improvement requests

	reflections []core.ReflectionMemory
	critiques   []core.CritiqueResult
	votes       []core.ConsensusVote
	meta        *core.MetaState

	health       map[core.SpecialistType]*core.HealthStatus
	globalHealth core.GlobalHealth
	recoveryMode bool

	memory    core.MemoryProvider
	tracker   *pareto.Tracker
	rolloutID string
	diagram   core.Diagram
}

// entry allocates run state, per-task subsystems and the rollout record.
func (e *Engine) entry(task string) *runState {
	sub := e.subsystems.For(task, e.cfg.Memory, e.cfg.Optimization)
	rollout := e.store.CreateRollout(task)

	health := make(map[core.SpecialistType]*core.HealthStatus, len(core.SpecialistTypes()))
	for _, st := range core.SpecialistTypes() {
		health[st] = &core.HealthStatus{AgentName: string(st), Status: core.AgentHealthy}
	}

	return &runState{
		runID:        "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		task:         task,
		iteration:    1,
		meta:         core.NewMetaState(),
		health:       health,
		globalHealth: core.HealthHealthy,
		memory:       sub.Memory,
		tracker:      sub.Tracker,
		rolloutID:    rollout.RolloutID,
	}
}

// shouldTerminate applies the routing rules after memory evolution. The
// iteration budget is the hard circuit breaker; below it, a critical
// critique among the last three forces continuation regardless of score.
func (e *Engine) shouldTerminate(st *runState) bool {
	if st.iteration >= e.cfg.MaxIterations {
		return true
	}
	if hasCriticalCritique(st.critiques, 3) {
		return false
	}
	if latest, ok := latestScore(st.scores); ok && latest >= e.cfg.TargetScore {
		return true
	}
	if avg, ok := consensusAverage(st.votes, 3); ok && avg >= e.cfg.ConsensusThreshold {
		return true
	}
	return false
}

// loopDecision advances the iteration counter and recomputes the boost
// heuristic from scratch: two near-identical scores below the ceiling
// escalate the next refinement to Critical intensity, and a clear
// improvement drops back out of boost.
func (e *Engine) loopDecision(st *runState) {
	st.iteration++
	st.boosted = false
	if n := len(st.scores); n >= 2 {
		delta := st.scores[n-1] - st.scores[n-2]
		if delta < 0 {
			delta = -delta
		}
		if delta < e.cfg.BoostDelta && st.scores[n-1] < e.cfg.BoostCeiling {
			st.boosted = true
			e.logger.Info("Boost activated", "run_id", st.runID, "iteration", st.iteration)
		}
	}
}

// finalize renders the diagram, assembles the summary, completes the rollout
// and emits the terminal result. It never fails; a diagram error leaves the
// diagram empty.
func (e *Engine) finalize(ctx context.Context, st *runState) *core.Result {
	if st.draft != "" {
		diagram, err := e.providers.Diagrammer.GenerateDiagram(ctx, capability.DiagramRequest{
			Task:     st.task,
			Document: st.draft,
		})
		if err != nil {
			e.logger.Warn("Diagram generation failed", "run_id", st.runID, "error", err.Error())
		} else {
			st.diagram = diagram
		}
	}

	// Close out the trajectory and memory for this run.
	final, _ := latestScore(st.scores)
	e.store.CompleteRollout(st.rolloutID, final)
	st.memory.Provide(core.MemoryRequest{Query: st.task, Phase: core.PhaseEnd})

	result := &core.Result{
		RunID:       st.runID,
		Task:        st.task,
		Document:    st.draft,
		Diagram:     st.diagram,
		Scores:      append([]float64(nil), st.scores...),
		Iterations:  st.iteration,
		Reflections: append([]core.ReflectionMemory(nil), st.reflections...),
		Meta:        st.meta,
	}
	result.Summary = buildSummary(result)

	e.logger.Info("Run completed",
		"run_id", st.runID, "iterations", st.iteration, "final_score", final)
	return result
}

// buildSummary renders the human-readable terminal report.
func buildSummary(r *core.Result) string {
	var b strings.Builder

	b.WriteString("# Task Completed\n\n")
	fmt.Fprintf(&b, "**Task:** %s\n", r.Task)
	fmt.Fprintf(&b, "**Iterations:** %d\n", r.Iterations)
	fmt.Fprintf(&b, "**Score progression:** %s\n", scoreProgression(r.Scores))
	fmt.Fprintf(&b, "**Final score:** %.1f\n", r.FinalScore())

	if len(r.Reflections) > 0 {
		b.WriteString("\n## Key Learnings\n")
		recent := r.Reflections
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		for _, refl := range recent {
			if refl.ImprovementSuggestion != "" {
				fmt.Fprintf(&b, "- %s\n", refl.ImprovementSuggestion)
			}
		}
	}

	b.WriteString("\n## Final Document\n")
	if r.Document != "" {
		b.WriteString(r.Document)
		b.WriteString("\n")
	} else {
		b.WriteString("No document was produced.\n")
	}

	if r.Diagram.Code != "" {
		b.WriteString("\n## Architecture Diagram\n")
		fmt.Fprintf(&b, "```%s\n%s\n```\n", r.Diagram.DiagramType, r.Diagram.Code)
	}

	return b.String()
}

func scoreProgression(scores []float64) string {
	if len(scores) == 0 {
		return "n/a"
	}
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = fmt.Sprintf("%.1f", s)
	}
	return strings.Join(parts, " → ")
}

func latestScore(scores []float64) (float64, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	return scores[len(scores)-1], true
}

func hasCriticalCritique(critiques []core.CritiqueResult, window int) bool {
	start := len(critiques) - window
	if start < 0 {
		start = 0
	}
	for _, c := range critiques[start:] {
		if c.Severity == core.SeverityCritical {
			return true
		}
	}
	return false
}

func consensusAverage(votes []core.ConsensusVote, window int) (float64, bool) {
	if len(votes) == 0 {
		return 0, false
	}
	start := len(votes) - window
	if start < 0 {
		start = 0
	}
	recent := votes[start:]
	sum := 0.0
	for _, v := range recent {
		sum += v.Score
	}
	return sum / float64(len(recent)), true
}
