package engine

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/hupe1980/refineloop/core"
	"github.com/hupe1980/refineloop/memory"
	"github.com/hupe1980/refineloop/pareto"
)

// TaskSubsystems bundles the per-task stateful subsystems that persist
// across iterations (and across repeated runs of the same task).
type TaskSubsystems struct {
	Memory  core.MemoryProvider
	Tracker *pareto.Tracker
}

// Subsystems is the explicit registry mapping task keys to their memory
// provider and Pareto tracker. Callers that want experience to accumulate
// across runs share one Subsystems between engines; callers that do not
// simply let each run allocate a fresh one. Entries live until Release.
type Subsystems struct {
	mu      sync.Mutex
	entries map[string]*TaskSubsystems
}

// NewSubsystems creates an empty registry.
func NewSubsystems() *Subsystems {
	return &Subsystems{entries: make(map[string]*TaskSubsystems)}
}

// For returns the subsystems for the task, allocating them from the given
// configs on first use. The task text is reduced to a stable hash key, so
// byte-identical tasks share state.
func (s *Subsystems) For(task string, memCfg core.MemoryConfig, optCfg core.OptimizationConfig) *TaskSubsystems {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := taskKey(task)
	if sub, ok := s.entries[key]; ok {
		return sub
	}

	sub := &TaskSubsystems{
		Memory:  newMemoryProvider(memCfg),
		Tracker: pareto.NewTracker(optCfg.Objectives),
	}
	s.entries[key] = sub
	return sub
}

// Release drops the task's subsystems, discarding accumulated state.
func (s *Subsystems) Release(task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, taskKey(task))
}

// Len returns the number of tracked tasks.
func (s *Subsystems) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func newMemoryProvider(cfg core.MemoryConfig) core.MemoryProvider {
	if cfg.ProviderType == core.MemoryDualBuffer {
		return memory.NewDualBuffer(func(o *memory.DualBufferOptions) {
			o.MaxShortTerm = cfg.MaxShortTerm
			o.MaxStrategic = cfg.MaxLongTerm
			o.MaxOperational = cfg.MaxLongTerm
			o.RetrievalFrequency = cfg.RetrievalFrequency
		})
	}
	return memory.NewHierarchicalFromConfig(cfg)
}

// taskKey reduces the task text to a stable short identifier.
func taskKey(task string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(task))
	return fmt.Sprintf("task_%016x", h.Sum64())
}
