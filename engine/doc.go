// Package engine implements the orchestration state machine driving the
// iterative refinement loop: specialist fan-out, refinement, constitutional
// critique, judging with Pareto candidate registration, reflection with
// memory ingestion, consensus voting, meta-learning, memory evolution and
// self-healing, until a quality threshold or the iteration budget is reached.
//
// One Engine serves many runs; per-task memory providers and Pareto trackers
// live in an explicit Subsystems registry so repeated runs of the same task
// accumulate experience. Each phase returns an explicit outcome variant
// (ok / degraded / skipped) instead of panicking across the node boundary:
// capability-provider failures degrade the phase and the run continues with
// a best-effort result. Only missing configuration aborts a run up front.
package engine
