package memory

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// rootID is the fixed identifier of the tree root; the root always
	// exists and is never removed.
	rootID = "root"

	// candidateMaxDepth bounds the traversal that collects selection
	// candidates, biasing Thompson sampling toward shallow branches.
	candidateMaxDepth = 10

	// exploredVisits and exploredUtility mark a node as fully explored:
	// nodes with visit_count >= 5 and mean utility >= 9.0 are no longer
	// selection candidates.
	exploredVisits  = 5
	exploredUtility = 9.0
)

// Node is a snapshot of one memory tree node. Nodes are created by
// AddVersion and never deleted; utilities accumulate via back-propagation.
type Node struct {
	ID                     string
	Content                string
	ParentID               string // empty for the root
	Children               []string
	MeanUtility            float64
	UtilitySamples         []float64
	VisitCount             int
	ImprovementDescription string
	CreatedAt              time.Time
}

// treeNode is the arena-resident representation; relations are expressed as
// ids into the arena rather than owning references.
type treeNode struct {
	id          string
	content     string
	parentID    string
	children    []string
	meanUtility float64
	samples     []float64
	visits      int
	improvement string
	createdAt   time.Time
}

func (n *treeNode) snapshot() *Node {
	children := make([]string, len(n.children))
	copy(children, n.children)
	samples := make([]float64, len(n.samples))
	copy(samples, n.samples)
	return &Node{
		ID:                     n.id,
		Content:                n.content,
		ParentID:               n.parentID,
		Children:               children,
		MeanUtility:            n.meanUtility,
		UtilitySamples:         samples,
		VisitCount:             n.visits,
		ImprovementDescription: n.improvement,
		CreatedAt:              n.createdAt,
	}
}

// TreeOptions configure tree construction.
type TreeOptions struct {
	// RootContent seeds the root node's content.
	RootContent string
	// Rand supplies the randomness source for Thompson sampling. Defaults
	// to a time-seeded source; tests inject a fixed seed.
	Rand *rand.Rand
}

// Tree is the versioned structural memory: a rooted, ever-growing tree over
// a flat node arena. Node selection uses Thompson sampling shaped by each
// node's observed utilities, which biases growth toward under-explored or
// under-performing branches.
//
// Concurrency: a single mutex guards the arena; all methods return
// snapshots, never internal references.
type Tree struct {
	mu          sync.Mutex
	nodes       map[string]*treeNode
	rng         *rand.Rand
	totalVisits int
}

// NewTree creates a tree containing only the root node.
func NewTree(optFns ...func(o *TreeOptions)) *Tree {
	opts := TreeOptions{RootContent: "Initial memory state"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	root := &treeNode{id: rootID, content: opts.RootContent, createdAt: time.Now()}
	return &Tree{
		nodes: map[string]*treeNode{rootID: root},
		rng:   opts.Rand,
	}
}

// AddVersion creates a child node under parentID. It returns nil when the
// parent id is unknown; callers must check before assuming a node exists.
func (t *Tree) AddVersion(parentID, content, improvementDescription string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		return nil
	}

	node := &treeNode{
		id:          "node_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		content:     content,
		parentID:    parentID,
		improvement: improvementDescription,
		createdAt:   time.Now(),
	}
	parent.children = append(parent.children, node.id)
	t.nodes[node.id] = node
	return node.snapshot()
}

// GetNode returns a snapshot of the node, or nil if unknown.
func (t *Tree) GetNode(id string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return node.snapshot()
}

// UpdateUtility appends a utility sample to the node and recomputes its
// running mean. Unknown ids are ignored.
func (t *Tree) UpdateUtility(id string, utility float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if node, ok := t.nodes[id]; ok {
		updateUtility(node, utility)
	}
}

// UpdatePathUtilities propagates a trajectory utility from the leaf through
// every ancestor up to the root.
func (t *Tree) UpdatePathUtilities(leafID string, utility float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalVisits++
	current, ok := t.nodes[leafID]
	for ok {
		updateUtility(current, utility)
		if current.parentID == "" {
			break
		}
		current, ok = t.nodes[current.parentID]
	}
}

func updateUtility(n *treeNode, utility float64) {
	n.samples = append(n.samples, utility)
	n.visits++
	sum := 0.0
	for _, s := range n.samples {
		sum += s
	}
	n.meanUtility = sum / float64(len(n.samples))
}

// SelectThompson samples a utility estimate per eligible node and returns
// the argmax. Eligible nodes are under-explored (visit count below 5) or
// under-performing (mean utility below 9.0), collected by depth-limited
// traversal. Falls back to the root when no candidates exist.
func (t *Tree) SelectThompson() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	var candidates []*treeNode
	t.collectCandidates(t.nodes[rootID], 0, &candidates)
	if len(candidates) == 0 {
		return t.nodes[rootID].snapshot()
	}

	best := candidates[0]
	bestSample := t.sampleThompson(best)
	for _, c := range candidates[1:] {
		if s := t.sampleThompson(c); s > bestSample {
			best, bestSample = c, s
		}
	}
	return best.snapshot()
}

func (t *Tree) collectCandidates(node *treeNode, depth int, out *[]*treeNode) {
	if depth >= candidateMaxDepth {
		return
	}
	if node.visits < exploredVisits || node.meanUtility < exploredUtility {
		*out = append(*out, node)
	}
	for _, childID := range node.children {
		if child, ok := t.nodes[childID]; ok {
			t.collectCandidates(child, depth+1, out)
		}
	}
}

// sampleThompson draws a utility estimate on the 0-10 scale. Nodes with
// fewer than two visits draw uniformly; otherwise a Beta sample shaped by
// the mean utility balances exploration and exploitation.
func (t *Tree) sampleThompson(n *treeNode) float64 {
	if n.visits < 2 {
		return t.rng.Float64() * 10
	}
	alpha := math.Max(1, n.meanUtility)
	beta := math.Max(1, 10-n.meanUtility)
	return sampleBeta(t.rng, alpha, beta) * 10
}

// BestPath is a pure greedy walk from the root always choosing the child
// with the highest mean utility. For a childless tree the path is [root].
func (t *Tree) BestPath() []*Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.nodes[rootID]
	path := []*Node{current.snapshot()}
	for len(current.children) > 0 {
		var best *treeNode
		for _, childID := range current.children {
			child, ok := t.nodes[childID]
			if !ok {
				continue
			}
			if best == nil || child.meanUtility > best.meanUtility {
				best = child
			}
		}
		if best == nil {
			break
		}
		path = append(path, best.snapshot())
		current = best
	}
	return path
}

// ParetoFront treats (mean utility ascending, visit count descending) as a
// two-objective dominance problem over all nodes: a node is dominated when
// another has at least its utility with at most its visits and is strictly
// better on one of the two.
func (t *Tree) ParetoFront() []*Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	var front []*Node
	for _, node := range t.nodes {
		dominated := false
		for _, other := range t.nodes {
			if other.id == node.id {
				continue
			}
			if other.meanUtility >= node.meanUtility && other.visits <= node.visits &&
				(other.meanUtility > node.meanUtility || other.visits < node.visits) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, node.snapshot())
		}
	}
	return front
}

// TreeStats summarizes tree growth.
type TreeStats struct {
	TotalNodes     int
	TotalVisits    int
	MaxDepth       int
	ParetoFrontLen int
}

// Stats returns a snapshot of tree growth metrics.
func (t *Tree) Stats() TreeStats {
	front := t.ParetoFront()

	t.mu.Lock()
	defer t.mu.Unlock()
	return TreeStats{
		TotalNodes:     len(t.nodes),
		TotalVisits:    t.totalVisits,
		MaxDepth:       t.maxDepth(t.nodes[rootID], 0),
		ParetoFrontLen: len(front),
	}
}

func (t *Tree) maxDepth(node *treeNode, depth int) int {
	if len(node.children) == 0 {
		return depth
	}
	max := depth
	for _, childID := range node.children {
		if child, ok := t.nodes[childID]; ok {
			if d := t.maxDepth(child, depth+1); d > max {
				max = d
			}
		}
	}
	return max
}

// sampleBeta draws from Beta(a, b) via two Gamma draws (Marsaglia-Tsang).
func sampleBeta(rng *rand.Rand, a, b float64) float64 {
	x := sampleGamma(rng, a)
	y := sampleGamma(rng, b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		// Boost and correct per Marsaglia-Tsang for shape < 1.
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
