package core

// MemoryPhase identifies where in a task's lifecycle a memory request is
// issued. Providers return different guidance per phase.
type MemoryPhase string

const (
	// PhaseBegin requests strategic guidance at the start of a task.
	PhaseBegin MemoryPhase = "begin"
	// PhaseIn requests operational guidance mid-task.
	PhaseIn MemoryPhase = "in"
	// PhaseEnd requests a closing summary of recent facts.
	PhaseEnd MemoryPhase = "end"
)

// MemoryRequest asks a provider for guidance relevant to the query.
type MemoryRequest struct {
	Query      string
	Context    string
	Phase      MemoryPhase
	StepNumber int
	AgentType  string
}

// MemoryResponse carries retrieved guidance. Confidence is in [0,1] and
// callers are expected to discard low-confidence guidance.
type MemoryResponse struct {
	Guidance         string
	RelevantMemories []string
	Confidence       float64
	SourceType       string
}

// Trajectory is the distilled outcome of one execution handed to a memory
// provider for ingestion.
type Trajectory struct {
	Task       string
	Steps      []string
	Outcome    Outcome
	Score      float64
	Learnings  []string
	ErrorTrace string
}

// MemoryProvider is the guidance / ingestion boundary shared by the
// dual-buffer and hierarchical memory implementations.
type MemoryProvider interface {
	// Provide returns guidance for the given request.
	Provide(req MemoryRequest) MemoryResponse
	// Ingest folds a completed trajectory into memory, returning a short
	// human-readable description of what was stored.
	Ingest(t Trajectory) (string, error)
}

// MemoryProviderType selects the memory implementation for a run.
type MemoryProviderType string

const (
	// MemoryHierarchical layers a versioned decision tree over the buffer.
	MemoryHierarchical MemoryProviderType = "hierarchical"
	// MemoryDualBuffer uses the plain short/long-term content buffer.
	MemoryDualBuffer MemoryProviderType = "dual_buffer"
)

// MemoryConfig tunes the memory subsystem for a run.
type MemoryConfig struct {
	ProviderType       MemoryProviderType
	MaxShortTerm       int
	MaxLongTerm        int
	RetrievalFrequency int
}

// DefaultMemoryConfig mirrors the defaults used when no config is supplied.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		ProviderType:       MemoryHierarchical,
		MaxShortTerm:       10,
		MaxLongTerm:        30,
		RetrievalFrequency: 3,
	}
}

// OptimizationConfig tunes the Pareto tracker for a run.
type OptimizationConfig struct {
	Objectives []string
	Epsilon    float64
	PruneKeepN int
}

// DefaultOptimizationConfig mirrors the defaults used when no config is
// supplied: three content objectives, 10% exploration, keep 10 dominated.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		Objectives: []string{"accuracy", "completeness", "clarity"},
		Epsilon:    0.1,
		PruneKeepN: 10,
	}
}
