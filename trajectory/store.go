// Package trajectory implements the concurrent rollout / resource /
// heartbeat store coordinating asynchronous workers. It keeps a bounded
// ring of rollouts fed by a FIFO pending queue with a bounded retry policy,
// a versioned resource registry, heartbeat-based staleness detection, and
// coarse pattern mining over completed trajectories.
package trajectory

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RolloutStatus is the lifecycle state of a rollout.
type RolloutStatus string

const (
	// StatusPending means the rollout is queued for a worker.
	StatusPending RolloutStatus = "pending"
	// StatusRunning means a worker has dequeued the rollout.
	StatusRunning RolloutStatus = "running"
	// StatusRetry means the rollout failed and was re-queued.
	StatusRetry RolloutStatus = "retry"
	// StatusFailed means the rollout exhausted its retry budget.
	StatusFailed RolloutStatus = "failed"
	// StatusCompleted means the rollout finished with a reward.
	StatusCompleted RolloutStatus = "completed"
)

// Span records a single agent action within a rollout.
type Span struct {
	SpanID    string
	AgentName string
	Operation string
	StartTime time.Time
	EndTime   time.Time
	Status    string
	Input     string
	Output    string
	Error     string
}

// NewSpan creates a started span for an agent operation.
func NewSpan(agentName, operation string) Span {
	return Span{
		SpanID:    "span_" + shortID(),
		AgentName: agentName,
		Operation: operation,
		StartTime: time.Now(),
		Status:    "running",
	}
}

// Rollout aggregates the ordered spans of one end-to-end execution
// trajectory and its terminal status and reward.
type Rollout struct {
	RolloutID   string
	Task        string
	Spans       []Span
	TotalReward float64
	Attempts    int
	MaxAttempts int
	Status      RolloutStatus
	LastError   string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Resource is a versioned artifact; saving under an existing id bumps the
// version.
type Resource struct {
	ResourceID   string
	ResourceType string
	Content      any
	Version      int
	Score        float64
	CreatedAt    time.Time
}

// Heartbeat records per-worker liveness. The store only detects staleness;
// it does not own worker lifecycles.
type Heartbeat struct {
	WorkerID    string
	AgentName   string
	Timestamp   time.Time
	Status      string
	CurrentTask string
}

// triplet is one mined (task, spans, reward) observation.
type triplet struct {
	task   string
	spans  []Span
	reward float64
}

// Options configure a Store.
type Options struct {
	// MaxRollouts bounds the rollout ring; the oldest rollout is silently
	// dropped once exceeded.
	MaxRollouts int
	// MaxAttempts is the per-rollout retry budget.
	MaxAttempts int
}

// Store is the central trajectory / resource / heartbeat registry. A single
// coarse mutex guards all state for cross-worker registration.
type Store struct {
	mu        sync.Mutex
	opts      Options
	rollouts  []*Rollout
	resources map[string]*Resource
	heartbeat map[string]Heartbeat
	pending   []string
	triplets  []triplet
}

// NewStore creates a store holding at most 100 rollouts with 3 attempts
// each unless overridden.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{MaxRollouts: 100, MaxAttempts: 3}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		opts:      opts,
		resources: make(map[string]*Resource),
		heartbeat: make(map[string]Heartbeat),
	}
}

// CreateRollout registers a new pending rollout for the task and enqueues
// it for workers.
func (s *Store) CreateRollout(task string) *Rollout {
	s.mu.Lock()
	defer s.mu.Unlock()

	rollout := &Rollout{
		RolloutID:   "rollout_" + shortID(),
		Task:        task,
		MaxAttempts: s.opts.MaxAttempts,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	s.rollouts = append(s.rollouts, rollout)
	if len(s.rollouts) > s.opts.MaxRollouts {
		s.rollouts = s.rollouts[1:]
	}
	s.pending = append(s.pending, rollout.RolloutID)
	return cloneRollout(rollout)
}

// AddSpan appends a span to the rollout. Unknown ids are ignored.
func (s *Store) AddSpan(rolloutID string, span Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.findLocked(rolloutID); r != nil {
		r.Spans = append(r.Spans, span)
	}
}

// CompleteRollout marks the rollout completed with the given reward and
// records its (task, spans, reward) triplet for pattern mining.
func (s *Store) CompleteRollout(rolloutID string, reward float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findLocked(rolloutID)
	if r == nil {
		return
	}
	r.Status = StatusCompleted
	r.TotalReward = reward
	r.CompletedAt = time.Now()
	spans := make([]Span, len(r.Spans))
	copy(spans, r.Spans)
	s.triplets = append(s.triplets, triplet{task: r.Task, spans: spans, reward: reward})
}

// FailRollout records a failed attempt. While attempts remain it re-queues
// the rollout and returns true; otherwise it marks the rollout permanently
// failed and returns false.
func (s *Store) FailRollout(rolloutID, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findLocked(rolloutID)
	if r == nil {
		return false
	}
	r.Attempts++
	r.LastError = errMsg
	if r.Attempts < r.MaxAttempts {
		r.Status = StatusRetry
		s.pending = append(s.pending, rolloutID)
		return true
	}
	r.Status = StatusFailed
	return false
}

// DequeueRollout hands the oldest pending rollout to a worker, marking it
// running. Returns nil when the queue is empty.
func (s *Store) DequeueRollout(workerID string) *Rollout {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 {
		id := s.pending[0]
		s.pending = s.pending[1:]
		if r := s.findLocked(id); r != nil {
			r.Status = StatusRunning
			return cloneRollout(r)
		}
		// Rollout aged out of the ring; skip its queue entry.
	}
	return nil
}

// GetRollout returns a copy of the rollout, or nil if unknown.
func (s *Store) GetRollout(rolloutID string) *Rollout {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.findLocked(rolloutID); r != nil {
		return cloneRollout(r)
	}
	return nil
}

// SaveResource stores the resource, bumping the version when the id
// already exists.
func (s *Store) SaveResource(res Resource) Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.resources[res.ResourceID]; ok {
		res.Version = existing.Version + 1
	} else if res.Version == 0 {
		res.Version = 1
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	stored := res
	s.resources[res.ResourceID] = &stored
	return res
}

// GetResource returns a copy of the resource, or nil if unknown.
func (s *Store) GetResource(resourceID string) *Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.resources[resourceID]; ok {
		cp := *r
		return &cp
	}
	return nil
}

// GetBestResource returns the highest-scored resource of the given type,
// or nil when none exists.
func (s *Store) GetBestResource(resourceType string) *Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Resource
	for _, r := range s.resources {
		if r.ResourceType != resourceType {
			continue
		}
		if best == nil || r.Score > best.Score {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

// UpdateHeartbeat records worker liveness.
func (s *Store) UpdateHeartbeat(hb Heartbeat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now()
	}
	s.heartbeat[hb.WorkerID] = hb
}

// GetStaleWorkers returns workers whose last heartbeat exceeds the timeout.
func (s *Store) GetStaleWorkers(timeout time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var stale []string
	for id, hb := range s.heartbeat {
		if now.Sub(hb.Timestamp) > timeout {
			stale = append(stale, id)
		}
	}
	return stale
}

// Triplet is a mined (task, spans, reward) observation from a completed
// rollout.
type Triplet struct {
	Task   string
	Spans  []Span
	Reward float64
}

// GetOptimizationTriplets returns completed-trajectory triplets whose
// reward meets the minimum.
func (s *Store) GetOptimizationTriplets(minReward float64) []Triplet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Triplet
	for _, t := range s.triplets {
		if t.reward >= minReward {
			spans := make([]Span, len(t.spans))
			copy(spans, t.spans)
			out = append(out, Triplet{Task: t.task, Spans: spans, Reward: t.reward})
		}
	}
	return out
}

// GetSuccessfulPatterns mines operation sequences from trajectories whose
// reward meets the threshold.
func (s *Store) GetSuccessfulPatterns(threshold float64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var patterns []string
	for _, t := range s.triplets {
		if t.reward >= threshold {
			patterns = append(patterns, joinOperations(t.spans))
		}
	}
	return patterns
}

// GetFailedPatterns mines operation sequences from trajectories whose
// reward fell below the threshold.
func (s *Store) GetFailedPatterns(threshold float64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var patterns []string
	for _, t := range s.triplets {
		if t.reward < threshold {
			patterns = append(patterns, joinOperations(t.spans))
		}
	}
	return patterns
}

// StoreStats summarizes store occupancy and outcomes.
type StoreStats struct {
	TotalRollouts int
	Completed     int
	Failed        int
	Pending       int
	AvgReward     float64
	Resources     int
	Triplets      int
}

// Stats returns a snapshot of store occupancy and aggregate reward.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := StoreStats{
		TotalRollouts: len(s.rollouts),
		Pending:       len(s.pending),
		Resources:     len(s.resources),
		Triplets:      len(s.triplets),
	}
	rewardSum := 0.0
	for _, r := range s.rollouts {
		switch r.Status {
		case StatusCompleted:
			stats.Completed++
			rewardSum += r.TotalReward
		case StatusFailed:
			stats.Failed++
		}
	}
	if stats.Completed > 0 {
		stats.AvgReward = rewardSum / float64(stats.Completed)
	}
	return stats
}

func (s *Store) findLocked(rolloutID string) *Rollout {
	for _, r := range s.rollouts {
		if r.RolloutID == rolloutID {
			return r
		}
	}
	return nil
}

func cloneRollout(r *Rollout) *Rollout {
	cp := *r
	cp.Spans = make([]Span, len(r.Spans))
	copy(cp.Spans, r.Spans)
	return &cp
}

func joinOperations(spans []Span) string {
	ops := make([]string, 0, len(spans))
	for _, sp := range spans {
		ops = append(ops, sp.Operation)
	}
	return strings.Join(ops, " -> ")
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
