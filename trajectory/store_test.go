package trajectory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_RolloutLifecycle(t *testing.T) {
	s := NewStore()

	r := s.CreateRollout("build index")
	assert.Equal(t, StatusPending, r.Status)

	dequeued := s.DequeueRollout("w1")
	assert.NotNil(t, dequeued)
	assert.Equal(t, r.RolloutID, dequeued.RolloutID)
	assert.Equal(t, StatusRunning, dequeued.Status)

	span := NewSpan("indexer", "scan_documents")
	span.Status = "completed"
	s.AddSpan(r.RolloutID, span)

	s.CompleteRollout(r.RolloutID, 8.5)

	got := s.GetRollout(r.RolloutID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.InDelta(t, 8.5, got.TotalReward, 1e-9)
	assert.Len(t, got.Spans, 1)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestStore_RetryPolicy(t *testing.T) {
	s := NewStore(func(o *Options) { o.MaxAttempts = 2 })
	r := s.CreateRollout("flaky task")
	s.DequeueRollout("w1")

	// First failure re-queues.
	assert.True(t, s.FailRollout(r.RolloutID, "timeout"))
	got := s.GetRollout(r.RolloutID)
	assert.Equal(t, StatusRetry, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "timeout", got.LastError)

	requeued := s.DequeueRollout("w2")
	assert.Equal(t, r.RolloutID, requeued.RolloutID)

	// Second failure exhausts the budget.
	assert.False(t, s.FailRollout(r.RolloutID, "timeout again"))
	got = s.GetRollout(r.RolloutID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Nil(t, s.DequeueRollout("w3"))
}

func TestStore_RolloutRingDropsOldest(t *testing.T) {
	s := NewStore(func(o *Options) { o.MaxRollouts = 2 })

	first := s.CreateRollout("a")
	s.CreateRollout("b")
	s.CreateRollout("c")

	assert.Nil(t, s.GetRollout(first.RolloutID))
	assert.Equal(t, 2, s.Stats().TotalRollouts)

	// The aged-out id is skipped by the queue instead of resurrecting.
	d1 := s.DequeueRollout("w1")
	assert.NotNil(t, d1)
	assert.NotEqual(t, first.RolloutID, d1.RolloutID)
}

func TestStore_ResourceVersionBump(t *testing.T) {
	s := NewStore()

	v1 := s.SaveResource(Resource{ResourceID: "draft:1", ResourceType: "draft", Content: "a", Score: 5})
	v2 := s.SaveResource(Resource{ResourceID: "draft:1", ResourceType: "draft", Content: "b", Score: 7})

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)

	got := s.GetResource("draft:1")
	assert.Equal(t, "b", got.Content)
	assert.Equal(t, 2, got.Version)
	assert.Nil(t, s.GetResource("missing"))
}

func TestStore_GetBestResource(t *testing.T) {
	s := NewStore()
	s.SaveResource(Resource{ResourceID: "draft:1", ResourceType: "draft", Score: 5})
	s.SaveResource(Resource{ResourceID: "draft:2", ResourceType: "draft", Score: 9})
	s.SaveResource(Resource{ResourceID: "diagram:1", ResourceType: "diagram", Score: 10})

	best := s.GetBestResource("draft")
	assert.Equal(t, "draft:2", best.ResourceID)
	assert.Nil(t, s.GetBestResource("unknown"))
}

func TestStore_StaleWorkerDetection(t *testing.T) {
	s := NewStore()

	s.UpdateHeartbeat(Heartbeat{WorkerID: "fresh", Timestamp: time.Now()})
	s.UpdateHeartbeat(Heartbeat{WorkerID: "stale", Timestamp: time.Now().Add(-time.Minute)})

	stale := s.GetStaleWorkers(30 * time.Second)
	assert.Equal(t, []string{"stale"}, stale)
}

func TestStore_PatternMining(t *testing.T) {
	s := NewStore()

	good := s.CreateRollout("good run")
	s.AddSpan(good.RolloutID, Span{Operation: "draft"})
	s.AddSpan(good.RolloutID, Span{Operation: "refine"})
	s.CompleteRollout(good.RolloutID, 9.0)

	bad := s.CreateRollout("bad run")
	s.AddSpan(bad.RolloutID, Span{Operation: "draft"})
	s.CompleteRollout(bad.RolloutID, 3.0)

	assert.Equal(t, []string{"draft -> refine"}, s.GetSuccessfulPatterns(7.0))
	assert.Equal(t, []string{"draft"}, s.GetFailedPatterns(7.0))

	triplets := s.GetOptimizationTriplets(7.0)
	assert.Len(t, triplets, 1)
	assert.Equal(t, "good run", triplets[0].Task)
	assert.Len(t, triplets[0].Spans, 2)
}

func TestStore_Stats(t *testing.T) {
	s := NewStore(func(o *Options) { o.MaxAttempts = 1 })

	done := s.CreateRollout("done")
	s.CompleteRollout(done.RolloutID, 8.0)

	failed := s.CreateRollout("failed")
	s.FailRollout(failed.RolloutID, "boom")

	s.CreateRollout("waiting")

	stats := s.Stats()
	assert.Equal(t, 3, stats.TotalRollouts)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 8.0, stats.AvgReward, 1e-9)
}

func TestStore_ConcurrentWorkers(t *testing.T) {
	s := NewStore(func(o *Options) { o.MaxRollouts = 200 })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := s.CreateRollout(fmt.Sprintf("task-%d", i))
			s.AddSpan(r.RolloutID, NewSpan("agent", "op"))
			s.UpdateHeartbeat(Heartbeat{WorkerID: fmt.Sprintf("w-%d", i)})
			s.CompleteRollout(r.RolloutID, float64(i%10))
		}(i)
	}
	wg.Wait()

	stats := s.Stats()
	assert.Equal(t, 50, stats.TotalRollouts)
	assert.Equal(t, 50, stats.Completed)
	assert.Equal(t, 50, stats.Triplets)
}

func TestStore_RolloutCopyIsolation(t *testing.T) {
	s := NewStore()
	r := s.CreateRollout("task")
	s.AddSpan(r.RolloutID, Span{Operation: "op"})

	got := s.GetRollout(r.RolloutID)
	got.Spans[0].Operation = "mutated"
	got.Status = StatusFailed

	again := s.GetRollout(r.RolloutID)
	assert.Equal(t, "op", again.Spans[0].Operation)
	assert.Equal(t, StatusPending, again.Status)
}
