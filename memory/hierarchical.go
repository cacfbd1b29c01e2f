package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/refineloop/core"
)

// Hierarchical composes the DualBuffer (content) and the Tree (structure)
// behind one guidance / ingestion interface. A current-node pointer tracks
// the branch the run is exploring; it advances only on successful
// trajectories so plateaus and failures keep refining the existing branch.
type Hierarchical struct {
	mu            sync.Mutex
	buffer        *DualBuffer
	tree          *Tree
	currentNodeID string
}

// HierarchicalOptions configure the composed provider.
type HierarchicalOptions struct {
	// Buffer overrides the default dual-buffer store.
	Buffer *DualBuffer
	// Tree overrides the default memory tree.
	Tree *Tree
}

// NewHierarchical creates a hierarchical provider with default buffer and
// tree unless overridden.
func NewHierarchical(optFns ...func(o *HierarchicalOptions)) *Hierarchical {
	opts := HierarchicalOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Buffer == nil {
		opts.Buffer = NewDualBuffer()
	}
	if opts.Tree == nil {
		opts.Tree = NewTree(func(o *TreeOptions) { o.RootContent = "Initial memory architecture" })
	}
	return &Hierarchical{buffer: opts.Buffer, tree: opts.Tree, currentNodeID: rootID}
}

// NewHierarchicalFromConfig builds a provider sized by the run's memory
// configuration.
func NewHierarchicalFromConfig(cfg core.MemoryConfig) *Hierarchical {
	buffer := NewDualBuffer(func(o *DualBufferOptions) {
		o.MaxShortTerm = cfg.MaxShortTerm
		o.MaxStrategic = cfg.MaxLongTerm
		o.MaxOperational = cfg.MaxLongTerm
		o.RetrievalFrequency = cfg.RetrievalFrequency
	})
	return NewHierarchical(func(o *HierarchicalOptions) { o.Buffer = buffer })
}

// Provide merges the buffer's content guidance with the tree's structural
// guidance under [Strategic] / [Operational] sections. Begin-phase requests
// Thompson-select a tree node first, moving the current-node pointer.
// Confidence is raised a flat 0.1 over the buffer's own, capped at 0.95.
func (h *Hierarchical) Provide(req core.MemoryRequest) core.MemoryResponse {
	bufferResp := h.buffer.Provide(req)
	treeGuidance := h.treeGuidance(req)

	return core.MemoryResponse{
		Guidance:         mergeGuidance(bufferResp.Guidance, treeGuidance),
		RelevantMemories: bufferResp.RelevantMemories,
		Confidence:       minFloat(0.95, bufferResp.Confidence+0.1),
		SourceType:       "hierarchical",
	}
}

func (h *Hierarchical) treeGuidance(req core.MemoryRequest) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if req.Phase == core.PhaseBegin {
		selected := h.tree.SelectThompson()
		h.currentNodeID = selected.ID
		if selected.ImprovementDescription != "" {
			return "Strategy insight: " + selected.ImprovementDescription
		}
	}

	if current := h.tree.GetNode(h.currentNodeID); current != nil && current.ImprovementDescription != "" {
		return "Current strategy: " + current.ImprovementDescription
	}
	return ""
}

func mergeGuidance(bufferGuidance, treeGuidance string) string {
	var parts []string
	if treeGuidance != "" {
		parts = append(parts, "[Strategic]\n"+treeGuidance)
	}
	if bufferGuidance != "" {
		parts = append(parts, "[Operational]\n"+bufferGuidance)
	}
	if len(parts) == 0 {
		return "No specific guidance available."
	}
	return strings.Join(parts, "\n\n")
}

// Ingest delegates to the buffer, then grows the tree with a node
// describing the trajectory under the current node and back-propagates the
// trajectory score. The current-node pointer advances to the new node only
// when the score clears the success threshold.
func (h *Hierarchical) Ingest(t core.Trajectory) (string, error) {
	bufferMsg, err := h.buffer.Ingest(t)
	if err != nil {
		return "", err
	}
	treeMsg := h.updateTree(t)
	return bufferMsg + ". " + treeMsg, nil
}

func (h *Hierarchical) updateTree(t core.Trajectory) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	improvement := t.Task
	if len(t.Learnings) > 0 {
		learnings := t.Learnings
		if len(learnings) > 2 {
			learnings = learnings[:2]
		}
		improvement = strings.Join(learnings, "; ")
	}

	node := h.tree.AddVersion(h.currentNodeID, "Memory state after: "+t.Task, improvement)
	if node == nil {
		return "Tree update failed"
	}

	h.tree.UpdatePathUtilities(node.ID, t.Score)

	if t.Score >= 7.0 {
		h.currentNodeID = node.ID
		return fmt.Sprintf("Advanced to new memory state (node: %s)", node.ID)
	}
	return "Added memory node but staying on current branch"
}

// EvolveStructure performs one Thompson-selected expansion independent of
// any trajectory, used by the orchestrator when scores plateau. Returns the
// new node, or nil if the expansion failed.
func (h *Hierarchical) EvolveStructure() *Node {
	h.mu.Lock()
	defer h.mu.Unlock()

	target := h.tree.SelectThompson()
	return h.tree.AddVersion(
		target.ID,
		"Evolved from "+target.ID,
		fmt.Sprintf("Structural evolution targeting utility > %.1f", target.MeanUtility),
	)
}

// State is a diagnostic snapshot of the composed provider.
type State struct {
	Tree        TreeStats
	Buffer      Stats
	CurrentNode string
	BestPath    []string
}

// MemoryState returns a snapshot of tree, buffer and pointer state.
func (h *Hierarchical) MemoryState() State {
	h.mu.Lock()
	current := h.currentNodeID
	h.mu.Unlock()

	path := h.tree.BestPath()
	ids := make([]string, 0, len(path))
	for _, n := range path {
		ids = append(ids, n.ID)
	}

	return State{
		Tree:        h.tree.Stats(),
		Buffer:      h.buffer.Stats(),
		CurrentNode: current,
		BestPath:    ids,
	}
}

// CurrentNodeID returns the id of the branch currently being explored.
func (h *Hierarchical) CurrentNodeID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentNodeID
}

// Buffer exposes the underlying content buffer.
func (h *Hierarchical) Buffer() *DualBuffer { return h.buffer }

// Tree exposes the underlying structural tree.
func (h *Hierarchical) Tree() *Tree { return h.tree }
