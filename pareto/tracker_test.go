package pareto

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testObjectives = []string{"accuracy", "completeness", "clarity"}

func newSeededTracker() *Tracker {
	return NewTracker(testObjectives, func(o *TrackerOptions) {
		o.Rand = rand.New(rand.NewSource(99))
	})
}

func scores(a, b, c float64) map[string]float64 {
	return map[string]float64{"accuracy": a, "completeness": b, "clarity": c}
}

func TestCandidate_DominatesIrreflexiveAndAsymmetric(t *testing.T) {
	a := &Candidate{Scores: scores(8, 8, 8)}
	b := &Candidate{Scores: scores(7, 8, 8)}

	assert.False(t, a.Dominates(a))
	assert.True(t, a.Dominates(b))
	assert.False(t, b.Dominates(a))
}

func TestCandidate_NoDominanceOnTradeoff(t *testing.T) {
	a := &Candidate{Scores: scores(9, 5, 5)}
	b := &Candidate{Scores: scores(5, 9, 5)}

	assert.False(t, a.Dominates(b))
	assert.False(t, b.Dominates(a))
}

func TestCandidate_OverallScore(t *testing.T) {
	c := &Candidate{Scores: scores(6, 7, 8)}
	assert.InDelta(t, 7.0, c.OverallScore(), 1e-9)

	empty := &Candidate{}
	assert.Zero(t, empty.OverallScore())
}

func TestTracker_AddCandidateNormalizesObjectives(t *testing.T) {
	tr := newSeededTracker()

	c := tr.AddCandidate(map[string]any{"v": 1}, map[string]float64{"accuracy": 8, "bogus": 9}, "", "initial")

	assert.InDelta(t, 8.0, c.Scores["accuracy"], 1e-9)
	assert.Zero(t, c.Scores["completeness"]) // missing objective defaults to 0
	_, tracked := c.Scores["bogus"]
	assert.False(t, tracked)
}

// Front membership property: every front member is undominated and every
// non-member is dominated by at least one front member.
func TestTracker_ParetoFrontProperty(t *testing.T) {
	tr := newSeededTracker()
	rng := rand.New(rand.NewSource(5))

	var all []*Candidate
	for i := 0; i < 40; i++ {
		c := tr.AddCandidate(
			map[string]any{"i": i},
			scores(rng.Float64()*10, rng.Float64()*10, rng.Float64()*10),
			"", fmt.Sprintf("gen-%d", i),
		)
		all = append(all, c)
	}

	front := tr.ParetoFront()
	frontIDs := make(map[string]bool, len(front))
	for _, c := range front {
		frontIDs[c.ID] = true
	}

	for _, c := range all {
		dominated := false
		var dominator *Candidate
		for _, other := range all {
			if other.ID != c.ID && other.Dominates(c) {
				dominated = true
				dominator = other
				break
			}
		}
		if frontIDs[c.ID] {
			assert.False(t, dominated, "front member %s is dominated", c.ID)
		} else {
			assert.True(t, dominated, "non-member %s is undominated", c.ID)
			// Transitivity of the random draw is not guaranteed, but some
			// front member must dominate every non-member in this setup.
			foundFrontDominator := false
			for _, f := range front {
				if f.Dominates(c) {
					foundFrontDominator = true
					break
				}
			}
			assert.True(t, foundFrontDominator, "non-member %s lacks a front dominator (was dominated by %s)", c.ID, dominator.ID)
		}
	}
}

func TestTracker_PruneDominatedKeepsFrontPlusN(t *testing.T) {
	tr := newSeededTracker()

	// One clear front member dominating everything.
	tr.AddCandidate(nil, scores(10, 10, 10), "", "best")
	// Five dominated candidates.
	for i := 0; i < 5; i++ {
		tr.AddCandidate(nil, scores(1, 1, float64(i)), "", fmt.Sprintf("weak-%d", i))
	}

	front := tr.ParetoFront()
	dominated := tr.DominatedCandidates()
	assert.Len(t, front, 1)
	assert.Len(t, dominated, 5)

	removed := tr.PruneDominated(2)

	assert.Equal(t, 3, removed)
	assert.Equal(t, len(front)+2, tr.Size()) // F + min(D, keepN)
}

func TestTracker_PruneDominatedKeepsNewest(t *testing.T) {
	tr := newSeededTracker()
	tr.AddCandidate(nil, scores(10, 10, 10), "", "best")
	var weak []*Candidate
	for i := 0; i < 3; i++ {
		weak = append(weak, tr.AddCandidate(nil, scores(1, 1, 1), "", fmt.Sprintf("weak-%d", i)))
		time.Sleep(time.Millisecond) // distinct CreatedAt for the recency bias
	}

	tr.PruneDominated(1)

	// Only the newest dominated candidate survives.
	survivors := make(map[string]bool)
	for _, c := range append(tr.ParetoFront(), tr.DominatedCandidates()...) {
		survivors[c.ID] = true
	}
	assert.False(t, survivors[weak[0].ID])
	assert.False(t, survivors[weak[1].ID])
	assert.True(t, survivors[weak[2].ID])
}

func TestTracker_SelectBestOverall(t *testing.T) {
	tr := newSeededTracker()
	assert.Nil(t, tr.SelectBestOverall())

	tr.AddCandidate(nil, scores(5, 5, 5), "", "mid")
	best := tr.AddCandidate(nil, scores(9, 9, 9), "", "best")

	assert.Equal(t, best.ID, tr.SelectBestOverall().ID)
}

func TestTracker_SelectParetoFromFront(t *testing.T) {
	tr := newSeededTracker()
	assert.Nil(t, tr.SelectPareto())

	a := tr.AddCandidate(nil, scores(9, 1, 1), "", "a")
	b := tr.AddCandidate(nil, scores(1, 9, 1), "", "b")
	tr.AddCandidate(nil, scores(0, 0, 0), "", "dominated")

	for i := 0; i < 20; i++ {
		picked := tr.SelectPareto()
		assert.Contains(t, []string{a.ID, b.ID}, picked.ID)
	}
}

func TestTracker_SelectEpsilonGreedyFullExploration(t *testing.T) {
	tr := newSeededTracker()
	assert.Nil(t, tr.SelectEpsilonGreedy(0.1))

	tr.AddCandidate(nil, scores(9, 9, 9), "", "a")
	weak := tr.AddCandidate(nil, scores(1, 1, 1), "", "b")

	// epsilon=1 always explores the full pool; eventually the dominated
	// candidate must be picked.
	seen := false
	for i := 0; i < 100 && !seen; i++ {
		seen = tr.SelectEpsilonGreedy(1.0).ID == weak.ID
	}
	assert.True(t, seen)
}

func TestTracker_GenerationStamping(t *testing.T) {
	tr := newSeededTracker()

	first := tr.AddCandidate(nil, scores(5, 5, 5), "", "gen0")
	tr.AdvanceGeneration()
	second := tr.AddCandidate(nil, scores(6, 6, 6), first.ID, "gen1")

	assert.Equal(t, 0, first.Generation)
	assert.Equal(t, 1, second.Generation)
	assert.Equal(t, first.ID, second.ParentID)

	state := tr.State()
	assert.Equal(t, 2, state.TotalCandidates)
	assert.Equal(t, 1, state.Generation)
	assert.Equal(t, second.ID, state.BestOverallID)
}
