// Package pareto implements the multi-objective optimization tracker. It
// maintains an immutable candidate pool scored per objective, computes the
// Pareto front by pairwise dominance, and offers exploration/exploitation
// selection plus recency-biased pruning of dominated candidates.
package pareto

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Candidate is one scored artifact version. Candidates are immutable once
// created; the tracker copies score maps on the way in and out.
type Candidate struct {
	ID                  string
	Content             map[string]any
	Scores              map[string]float64
	Generation          int
	ParentID            string
	MutationDescription string
	CreatedAt           time.Time
}

// OverallScore is the arithmetic mean of the candidate's objective scores.
func (c *Candidate) OverallScore() float64 {
	if len(c.Scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range c.Scores {
		sum += s
	}
	return sum / float64(len(c.Scores))
}

// Dominates reports whether c scores at least as high as other on every
// shared objective and strictly higher on at least one. It is irreflexive
// and asymmetric.
func (c *Candidate) Dominates(other *Candidate) bool {
	strictlyBetter := false
	for obj, score := range c.Scores {
		otherScore := other.Scores[obj]
		if score < otherScore {
			return false
		}
		if score > otherScore {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// TrackerOptions configure a Tracker.
type TrackerOptions struct {
	// Rand supplies randomness for the selection strategies. Defaults to a
	// time-seeded source; tests inject a fixed seed.
	Rand *rand.Rand
}

// Tracker maintains the candidate pool for one task. Dominance filtering is
// O(n²), acceptable for the bounded generations a task produces.
//
// Concurrency: a single mutex guards the pool; safe across in-flight runs.
type Tracker struct {
	mu         sync.Mutex
	objectives []string
	candidates []*Candidate
	generation int
	rng        *rand.Rand
}

// NewTracker creates a tracker scoring candidates on the given objectives.
func NewTracker(objectives []string, optFns ...func(o *TrackerOptions)) *Tracker {
	opts := TrackerOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	objs := make([]string, len(objectives))
	copy(objs, objectives)
	return &Tracker{objectives: objs, rng: opts.Rand}
}

// AddCandidate stores a new immutable candidate. Scores missing for a
// configured objective default to 0.
func (t *Tracker) AddCandidate(content map[string]any, scores map[string]float64, parentID, mutationDescription string) *Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()

	normalized := make(map[string]float64, len(t.objectives))
	for _, obj := range t.objectives {
		normalized[obj] = scores[obj]
	}

	candidate := &Candidate{
		ID:                  "cand_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Content:             content,
		Scores:              normalized,
		Generation:          t.generation,
		ParentID:            parentID,
		MutationDescription: mutationDescription,
		CreatedAt:           time.Now(),
	}
	t.candidates = append(t.candidates, candidate)
	return candidate
}

// ParetoFront returns every candidate not dominated by another tracked
// candidate.
func (t *Tracker) ParetoFront() []*Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paretoFrontLocked()
}

func (t *Tracker) paretoFrontLocked() []*Candidate {
	var front []*Candidate
	for _, c := range t.candidates {
		dominated := false
		for _, other := range t.candidates {
			if other.ID == c.ID {
				continue
			}
			if other.Dominates(c) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, c)
		}
	}
	return front
}

// SelectPareto picks uniformly from the Pareto front, or nil when empty.
func (t *Tracker) SelectPareto() *Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()
	front := t.paretoFrontLocked()
	if len(front) == 0 {
		return nil
	}
	return front[t.rng.Intn(len(front))]
}

// SelectEpsilonGreedy explores uniformly over all candidates with
// probability epsilon, otherwise exploits the Pareto front.
func (t *Tracker) SelectEpsilonGreedy(epsilon float64) *Candidate {
	t.mu.Lock()
	if len(t.candidates) == 0 {
		t.mu.Unlock()
		return nil
	}
	if t.rng.Float64() < epsilon {
		c := t.candidates[t.rng.Intn(len(t.candidates))]
		t.mu.Unlock()
		return c
	}
	t.mu.Unlock()
	return t.SelectPareto()
}

// SelectBestOverall returns the candidate with the highest mean objective
// score, or nil when the pool is empty.
func (t *Tracker) SelectBestOverall() *Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *Candidate
	for _, c := range t.candidates {
		if best == nil || c.OverallScore() > best.OverallScore() {
			best = c
		}
	}
	return best
}

// AdvanceGeneration bumps the generation stamped onto new candidates.
func (t *Tracker) AdvanceGeneration() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
}

// DominatedCandidates returns the candidates outside the Pareto front.
func (t *Tracker) DominatedCandidates() []*Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()

	frontIDs := frontIDSet(t.paretoFrontLocked())
	var dominated []*Candidate
	for _, c := range t.candidates {
		if _, ok := frontIDs[c.ID]; !ok {
			dominated = append(dominated, c)
		}
	}
	return dominated
}

// PruneDominated retains the entire front plus the keepN most recently
// created dominated candidates, discarding the rest. Returns the number of
// candidates removed.
func (t *Tracker) PruneDominated(keepN int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	frontIDs := frontIDSet(t.paretoFrontLocked())

	var dominated []*Candidate
	for _, c := range t.candidates {
		if _, ok := frontIDs[c.ID]; !ok {
			dominated = append(dominated, c)
		}
	}
	// Recency bias: keep the newest dominated candidates.
	for i := 0; i < len(dominated); i++ {
		for j := i + 1; j < len(dominated); j++ {
			if dominated[j].CreatedAt.After(dominated[i].CreatedAt) {
				dominated[i], dominated[j] = dominated[j], dominated[i]
			}
		}
	}
	if keepN < 0 {
		keepN = 0
	}
	if len(dominated) > keepN {
		dominated = dominated[:keepN]
	}

	keep := frontIDs
	for _, c := range dominated {
		keep[c.ID] = struct{}{}
	}

	before := len(t.candidates)
	kept := t.candidates[:0]
	for _, c := range t.candidates {
		if _, ok := keep[c.ID]; ok {
			kept = append(kept, c)
		}
	}
	t.candidates = kept
	return before - len(t.candidates)
}

// Size returns the number of tracked candidates.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.candidates)
}

// Objectives returns a copy of the configured objective names.
func (t *Tracker) Objectives() []string {
	out := make([]string, len(t.objectives))
	copy(out, t.objectives)
	return out
}

// TrackerState is a diagnostic snapshot of the pool.
type TrackerState struct {
	TotalCandidates int
	FrontIDs        []string
	BestOverallID   string
	Generation      int
}

// State returns a snapshot of pool composition.
func (t *Tracker) State() TrackerState {
	front := t.ParetoFront()
	best := t.SelectBestOverall()

	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(front))
	for _, c := range front {
		ids = append(ids, c.ID)
	}
	state := TrackerState{
		TotalCandidates: len(t.candidates),
		FrontIDs:        ids,
		Generation:      t.generation,
	}
	if best != nil {
		state.BestOverallID = best.ID
	}
	return state
}

func frontIDSet(front []*Candidate) map[string]struct{} {
	ids := make(map[string]struct{}, len(front))
	for _, c := range front {
		ids[c.ID] = struct{}{}
	}
	return ids
}
