package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/refineloop/core"
)

// Entry is a single long-term memory record. AntiPattern entries describe
// approaches to avoid and are evicted only once no normal entries remain.
type Entry struct {
	Task        string
	Learning    string
	Score       float64
	StoredAt    time.Time
	AntiPattern bool
}

// DualBufferOptions configure capacities and retrieval cadence.
type DualBufferOptions struct {
	// MaxShortTerm bounds the short-term FIFO of task facts.
	MaxShortTerm int
	// MaxStrategic bounds long-term strategic memory; overflow evicts the
	// lowest-scored entry.
	MaxStrategic int
	// MaxOperational bounds long-term operational memory; overflow evicts
	// the oldest non-anti-pattern entry first.
	MaxOperational int
	// RetrievalFrequency controls how often (every Nth step) operational
	// matches are pulled during the in-task phase.
	RetrievalFrequency int
}

// DualBuffer is the short/long-term content store. Strategic memory holds
// high-level patterns served at task begin; operational memory holds
// specific techniques and anti-patterns served mid-task.
//
// Concurrency: protected by a single mutex; safe for use across runs.
type DualBuffer struct {
	mu          sync.Mutex
	opts        DualBufferOptions
	shortTerm   []string
	strategic   []Entry
	operational []Entry
}

// NewDualBuffer creates a DualBuffer with default capacities (10 short-term
// facts, 30 entries per long-term store, retrieval every 3rd step).
func NewDualBuffer(optFns ...func(o *DualBufferOptions)) *DualBuffer {
	opts := DualBufferOptions{
		MaxShortTerm:       10,
		MaxStrategic:       30,
		MaxOperational:     30,
		RetrievalFrequency: 3,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DualBuffer{opts: opts}
}

// Provide returns guidance for the requested phase: strategic matches at
// begin, short-term facts plus periodic operational matches in-task, and a
// low-effort summary of recent facts otherwise.
func (b *DualBuffer) Provide(req core.MemoryRequest) core.MemoryResponse {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch req.Phase {
	case core.PhaseBegin:
		return b.provideStrategic(req)
	case core.PhaseIn:
		return b.provideOperational(req)
	default:
		return b.provideSummary()
	}
}

func (b *DualBuffer) provideStrategic(req core.MemoryRequest) core.MemoryResponse {
	relevant := searchEntries(req.Query, b.strategic, 3)
	if len(relevant) == 0 {
		return core.MemoryResponse{
			Guidance:   "No prior strategic knowledge. Proceed with careful exploration.",
			Confidence: 0.3,
			SourceType: "long_term",
		}
	}

	lines := make([]string, 0, len(relevant))
	tasks := make([]string, 0, len(relevant))
	for _, e := range relevant {
		lines = append(lines, "- "+e.Learning)
		tasks = append(tasks, e.Task)
	}

	return core.MemoryResponse{
		Guidance:         strings.Join(lines, "\n"),
		RelevantMemories: tasks,
		Confidence:       minFloat(0.9, 0.5+float64(len(relevant))*0.15),
		SourceType:       "long_term",
	}
}

func (b *DualBuffer) provideOperational(req core.MemoryRequest) core.MemoryResponse {
	var memories []string
	source := "hybrid"

	if len(b.shortTerm) > 0 {
		memories = append(memories, lastN(b.shortTerm, 5)...)
		source = "short_term"
	}

	step := req.StepNumber
	if step <= 0 {
		step = 1
	}
	if b.opts.RetrievalFrequency > 0 && step%b.opts.RetrievalFrequency == 0 {
		relevant := searchEntries(req.Query, b.operational, 2)
		if len(relevant) > 0 {
			for _, e := range relevant {
				memories = append(memories, e.Learning)
			}
			source = "hybrid"
		}
	}

	if len(memories) == 0 {
		return core.MemoryResponse{
			Guidance:   "No relevant operational memories. Continue with current approach.",
			Confidence: 0.4,
			SourceType: source,
		}
	}

	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		lines = append(lines, "- "+m)
	}

	return core.MemoryResponse{
		Guidance:         strings.Join(lines, "\n"),
		RelevantMemories: memories,
		Confidence:       minFloat(0.85, 0.4+float64(len(memories))*0.1),
		SourceType:       source,
	}
}

func (b *DualBuffer) provideSummary() core.MemoryResponse {
	return core.MemoryResponse{
		Guidance:         "Task completed. Learnings will be consolidated.",
		RelevantMemories: lastN(b.shortTerm, 3),
		Confidence:       0.7,
		SourceType:       "short_term",
	}
}

// Ingest folds a trajectory outcome into long-term memory. Successful
// trajectories at or above the quality bar (7.0) write each learning into
// strategic memory; successes below the bar write into operational memory;
// anything else is recorded as a single anti-pattern to avoid.
func (b *DualBuffer) Ingest(t core.Trajectory) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	switch {
	case t.Outcome == core.OutcomeSuccess && t.Score >= 7.0:
		for _, learning := range t.Learnings {
			b.addStrategic(Entry{Task: t.Task, Learning: learning, Score: t.Score, StoredAt: now})
		}
		return fmt.Sprintf("Learned %d strategic patterns from successful execution", len(t.Learnings)), nil

	case t.Outcome == core.OutcomeSuccess:
		for _, learning := range t.Learnings {
			b.addOperational(Entry{Task: t.Task, Learning: learning, Score: t.Score, StoredAt: now})
		}
		return fmt.Sprintf("Stored %d operational patterns", len(t.Learnings)), nil

	default:
		trace := t.ErrorTrace
		if trace == "" {
			trace = "Failed"
		}
		b.addOperational(Entry{
			Task:        t.Task,
			Learning:    fmt.Sprintf("AVOID: %s - %s", t.Task, trace),
			Score:       t.Score,
			StoredAt:    now,
			AntiPattern: true,
		})
		return fmt.Sprintf("Recorded failure to avoid: %s", t.Task), nil
	}
}

// AddFact appends a short-term fact, evicting the oldest once the FIFO
// exceeds capacity.
func (b *DualBuffer) AddFact(fact string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shortTerm = append(b.shortTerm, fact)
	if len(b.shortTerm) > b.opts.MaxShortTerm {
		b.shortTerm = b.shortTerm[len(b.shortTerm)-b.opts.MaxShortTerm:]
	}
}

// ClearShortTerm drops all short-term facts.
func (b *DualBuffer) ClearShortTerm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shortTerm = nil
}

// Stats reports current occupancy per store.
type Stats struct {
	ShortTermCount   int
	StrategicCount   int
	OperationalCount int
}

// Stats returns a snapshot of store occupancy.
func (b *DualBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		ShortTermCount:   len(b.shortTerm),
		StrategicCount:   len(b.strategic),
		OperationalCount: len(b.operational),
	}
}

// ShortTerm returns a copy of the short-term FIFO in insertion order.
func (b *DualBuffer) ShortTerm() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.shortTerm))
	copy(out, b.shortTerm)
	return out
}

func (b *DualBuffer) addStrategic(e Entry) {
	b.strategic = append(b.strategic, e)
	if len(b.strategic) <= b.opts.MaxStrategic {
		return
	}
	// Evict the lowest-scored entry.
	lowest := 0
	for i, cur := range b.strategic {
		if cur.Score < b.strategic[lowest].Score {
			lowest = i
		}
	}
	b.strategic = append(b.strategic[:lowest], b.strategic[lowest+1:]...)
}

func (b *DualBuffer) addOperational(e Entry) {
	b.operational = append(b.operational, e)
	if len(b.operational) <= b.opts.MaxOperational {
		return
	}
	// Anti-patterns are protected: evict the oldest normal entry first.
	for i, cur := range b.operational {
		if !cur.AntiPattern {
			b.operational = append(b.operational[:i], b.operational[i+1:]...)
			return
		}
	}
	b.operational = b.operational[1:]
}

// searchEntries scores entries by keyword overlap between the query and the
// union of task and learning words, plus a tenth of the stored score.
// Non-matches are excluded; results are sorted by descending score.
func searchEntries(query string, entries []Entry, topK int) []Entry {
	if len(entries) == 0 {
		return nil
	}

	queryWords := wordSet(query)

	type scored struct {
		score float64
		entry Entry
	}
	matches := make([]scored, 0, len(entries))
	for _, e := range entries {
		words := wordSet(e.Task)
		for w := range wordSet(e.Learning) {
			words[w] = struct{}{}
		}
		overlap := 0
		for w := range queryWords {
			if _, ok := words[w]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			matches = append(matches, scored{score: float64(overlap) + e.Score*0.1, entry: e})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > topK {
		matches = matches[:topK]
	}

	out := make([]Entry, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.entry)
	}
	return out
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func lastN(list []string, n int) []string {
	if len(list) > n {
		list = list[len(list)-n:]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
