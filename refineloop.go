// Package refineloop provides a high-level façade over the orchestration
// engine and its subsystems (hierarchical memory, Pareto tracking, the
// trajectory store and logging) for iterative self-improving document
// generation. Most applications interact with this package by:
//  1. Creating a RefineLoop via New() with a capability.Providers bundle
//     (capability.NewSuiteProviders wires every capability to one LLM)
//  2. Calling Run() with a task; the engine iterates until the quality
//     threshold or the iteration budget is reached
//  3. Reading the returned Result (final document, diagram, score history,
//     reflections and summary)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically share a Subsystems registry
// across runs and supply a structured logger.
package refineloop

import (
	"context"

	"github.com/hupe1980/refineloop/capability"
	"github.com/hupe1980/refineloop/core"
	"github.com/hupe1980/refineloop/engine"
	"github.com/hupe1980/refineloop/logging"
	"github.com/hupe1980/refineloop/trajectory"
)

// Options configures the RefineLoop instance.
type Options struct {
	// EngineConfig tunes the iteration loop (budget, thresholds, criteria,
	// memory and optimization sizing).
	EngineConfig engine.Config

	// Subsystems is the per-task memory / tracker registry. Supplying one
	// shared registry lets repeated runs of the same task accumulate
	// experience across RefineLoop instances.
	Subsystems *engine.Subsystems

	// Store records rollouts, draft versions and worker heartbeats.
	Store *trajectory.Store

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// RefineLoop is the high-level façade aggregating the engine and its
// supporting stores.
type RefineLoop struct {
	opts   Options
	engine *engine.Engine
}

// New creates a RefineLoop with optional overrides. Any unset subsystem is
// initialized with an in-memory implementation. A providers bundle with a
// nil capability is a configuration error.
func New(providers capability.Providers, optFns ...func(o *Options)) (*RefineLoop, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig(),
		Subsystems:   engine.NewSubsystems(),
		Store:        trajectory.NewStore(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	eng, err := engine.New(providers, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Subsystems = opts.Subsystems
		o.Store = opts.Store
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &RefineLoop{opts: opts, engine: eng}, nil
}

// Run executes the full refinement loop for the task and returns the final
// result. Provider failures degrade individual phases rather than aborting;
// the result always carries a best-effort document.
func (r *RefineLoop) Run(ctx context.Context, task string) (*core.Result, error) {
	return r.engine.Run(ctx, task)
}

// Store exposes the trajectory store for inspection of rollouts, draft
// versions and mined patterns.
func (r *RefineLoop) Store() *trajectory.Store { return r.opts.Store }

// Subsystems exposes the per-task memory / tracker registry.
func (r *RefineLoop) Subsystems() *engine.Subsystems { return r.opts.Subsystems }
