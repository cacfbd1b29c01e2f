package core

// Result is the final record emitted when a run reaches its terminal state.
// It is always produced, even when intermediate phases degraded; Document
// carries the best-effort final draft.
type Result struct {
	RunID       string
	Task        string
	Document    string
	Diagram     Diagram
	Scores      []float64
	Iterations  int
	Reflections []ReflectionMemory
	Meta        *MetaState
	Summary     string
}

// FinalScore returns the last recorded score, or 0 when none exists.
func (r *Result) FinalScore() float64 {
	if len(r.Scores) == 0 {
		return 0
	}
	return r.Scores[len(r.Scores)-1]
}
