package memory

import (
	"math/rand"
	"testing"

	"github.com/hupe1980/refineloop/core"
	"github.com/stretchr/testify/assert"
)

// Interface compliance (compile-time assertion)
var _ core.MemoryProvider = (*Hierarchical)(nil)

func newTestHierarchical() *Hierarchical {
	return NewHierarchical(func(o *HierarchicalOptions) {
		o.Tree = NewTree(func(to *TreeOptions) {
			to.RootContent = "Initial memory architecture"
			to.Rand = rand.New(rand.NewSource(1))
		})
	})
}

func TestHierarchical_IngestSuccessAdvancesPointer(t *testing.T) {
	h := newTestHierarchical()
	assert.Equal(t, rootID, h.CurrentNodeID())

	msg, err := h.Ingest(core.Trajectory{
		Task:      "draft architecture doc",
		Outcome:   core.OutcomeSuccess,
		Score:     8.0,
		Learnings: []string{"start from the data model"},
	})

	assert.NoError(t, err)
	assert.Contains(t, msg, "Learned 1 strategic patterns")
	assert.Contains(t, msg, "Advanced to new memory state")
	assert.NotEqual(t, rootID, h.CurrentNodeID())

	// The new node carries the back-propagated trajectory score.
	node := h.Tree().GetNode(h.CurrentNodeID())
	assert.Equal(t, 1, node.VisitCount)
	assert.InDelta(t, 8.0, node.MeanUtility, 1e-9)
}

func TestHierarchical_IngestLowScoreKeepsPointer(t *testing.T) {
	h := newTestHierarchical()

	msg, err := h.Ingest(core.Trajectory{
		Task:    "draft architecture doc",
		Outcome: core.OutcomePartial,
		Score:   5.0,
	})

	assert.NoError(t, err)
	assert.Contains(t, msg, "staying on current branch")
	assert.Equal(t, rootID, h.CurrentNodeID())
	// The node was still created and scored.
	assert.Equal(t, 2, h.Tree().Stats().TotalNodes)
}

func TestHierarchical_ProvideMergesGuidanceSections(t *testing.T) {
	h := newTestHierarchical()
	_, err := h.Ingest(core.Trajectory{
		Task:      "api guide",
		Outcome:   core.OutcomeSuccess,
		Score:     9.0,
		Learnings: []string{"show a full request example"},
	})
	assert.NoError(t, err)

	// Mark the root fully explored so Thompson selection lands on the new
	// node and its improvement description becomes strategic guidance.
	for i := 0; i < 4; i++ {
		h.Tree().UpdateUtility(rootID, 9.5)
	}

	resp := h.Provide(core.MemoryRequest{Query: "api guide", Phase: core.PhaseBegin})

	assert.Equal(t, "hierarchical", resp.SourceType)
	assert.Contains(t, resp.Guidance, "[Strategic]")
	assert.Contains(t, resp.Guidance, "[Operational]")
	assert.Contains(t, resp.Guidance, "Strategy insight: show a full request example")
}

func TestHierarchical_ProvideRaisesConfidenceOverBuffer(t *testing.T) {
	h := newTestHierarchical()

	// Empty memories: the buffer's begin-phase baseline is 0.3.
	resp := h.Provide(core.MemoryRequest{Query: "anything", Phase: core.PhaseBegin})

	assert.InDelta(t, 0.4, resp.Confidence, 1e-9)
	assert.Contains(t, resp.Guidance, "[Operational]\nNo prior strategic knowledge")
}

func TestHierarchical_EvolveStructureGrowsTree(t *testing.T) {
	h := newTestHierarchical()
	before := h.Tree().Stats().TotalNodes

	node := h.EvolveStructure()

	assert.NotNil(t, node)
	assert.Equal(t, before+1, h.Tree().Stats().TotalNodes)
	assert.Contains(t, node.ImprovementDescription, "Structural evolution targeting utility")
}

func TestHierarchical_MemoryState(t *testing.T) {
	h := newTestHierarchical()
	_, err := h.Ingest(core.Trajectory{
		Task:      "task",
		Outcome:   core.OutcomeSuccess,
		Score:     8.5,
		Learnings: []string{"learning"},
	})
	assert.NoError(t, err)

	state := h.MemoryState()

	assert.Equal(t, 2, state.Tree.TotalNodes)
	assert.Equal(t, 1, state.Buffer.StrategicCount)
	assert.Equal(t, h.CurrentNodeID(), state.CurrentNode)
	assert.Equal(t, rootID, state.BestPath[0])
}
