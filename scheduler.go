package sagaflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tidwall/btree"
)

// forwardScheduler drives a Dag from root to leaf, dispatching every node
// whose parents have completed concurrently, and waiting for hanging
// transactions to settle before handing off to compensation (spec §4.4).
//
// It is the real implementation of the channel/goroutine coordinator the
// teacher repository left as a sketch: a single mutex protects
// {completed, inFlight, aborted} exactly per design note "Concurrency
// core" — dispatch decisions happen under the lock, the user's
// Transaction.Run() happens outside it, and results are committed back
// under the lock.
type forwardScheduler struct {
	dag    *Dag
	store  EventStore
	policy RecoveryPolicy
	log    *slog.Logger

	mu        sync.Mutex
	completed *btree.Map[SagaNodeID, struct{}]
	inFlight  *btree.Map[SagaNodeID, struct{}]
	attempts  map[SagaNodeID]int
	aborted   bool
}

func newForwardScheduler(dag *Dag, store EventStore, policy RecoveryPolicy, log *slog.Logger) *forwardScheduler {
	return &forwardScheduler{
		dag:       dag,
		store:     store,
		policy:    policy,
		log:       log,
		completed: btree.NewMap[SagaNodeID, struct{}](32),
		inFlight:  btree.NewMap[SagaNodeID, struct{}](32),
		attempts:  make(map[SagaNodeID]int),
	}
}

// seed preloads the set of nodes already known complete, e.g. from the
// replay engine, and the latched abort flag from a previous run.
func (s *forwardScheduler) seed(completed []SagaNodeID, aborted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range completed {
		s.completed.Set(id, struct{}{})
	}
	s.aborted = aborted
}

// completedSnapshot returns the node ids currently marked completed, in
// ascending order.
func (s *forwardScheduler) completedSnapshot() []SagaNodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SagaNodeID, 0, s.completed.Len())
	s.completed.Scan(func(id SagaNodeID, _ struct{}) bool {
		out = append(out, id)
		return true
	})
	return out
}

// run dispatches the unfinished portion of the Dag and blocks until
// either the leaf's SagaEnded is recorded (forward success) or every
// in-flight task has settled after an abort was latched. It reports
// whether the run ended aborted.
func (s *forwardScheduler) run(ctx context.Context) bool {
	var wg sync.WaitGroup
	s.dispatchReady(ctx, &wg)
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// dispatchReady finds every currently-ready node and spawns a goroutine
// per node to execute it. A node is ready when it is not already
// completed or in flight, the scheduler has not aborted, and every
// parent is completed. The last-completing parent of a join is always
// the goroutine that observes the child as ready, since readiness is
// re-evaluated under the same lock a completion is committed under.
func (s *forwardScheduler) dispatchReady(ctx context.Context, wg *sync.WaitGroup) {
	s.mu.Lock()
	var ready []SagaNodeID
	if !s.aborted {
		for _, id := range s.dag.NodeIDs() {
			if _, done := s.completed.Get(id); done {
				continue
			}
			if _, running := s.inFlight.Get(id); running {
				continue
			}
			if s.parentsSatisfiedLocked(id) {
				ready = append(ready, id)
				s.inFlight.Set(id, struct{}{})
			}
		}
	}
	s.mu.Unlock()

	for _, id := range ready {
		wg.Add(1)
		go func(id SagaNodeID) {
			defer wg.Done()
			s.execute(ctx, id, wg)
		}(id)
	}
}

func (s *forwardScheduler) parentsSatisfiedLocked(id SagaNodeID) bool {
	for _, p := range s.dag.ParentsOf(id) {
		if _, ok := s.completed.Get(p); !ok {
			return false
		}
	}
	return true
}

// execute runs one node's commit to completion (including retries under
// forward recovery) and, on success, re-evaluates readiness so children
// and not-yet-dispatched siblings can proceed. A late-ending node still
// records its outcome even after abort was latched by a sibling — it is
// simply never retried and never unblocks new dispatches once aborted.
func (s *forwardScheduler) execute(ctx context.Context, id SagaNodeID, wg *sync.WaitGroup) {
	req, ok := s.dag.RequestFor(id)
	if !ok {
		panic("execute: unknown node id")
	}

	err := commitRequest(s.store, s.log, req)

	s.mu.Lock()
	s.inFlight.Delete(id)

	if err == nil {
		s.completed.Set(id, struct{}{})
		s.mu.Unlock()
		s.dispatchReady(ctx, wg)
		return
	}

	if s.aborted {
		// already unwinding; this late failure needs no recovery decision
		s.mu.Unlock()
		return
	}

	s.attempts[id]++
	attempts := s.attempts[id]
	decision := s.policy.OnTransactionFailure(req, err, attempts)
	if decision == Retry {
		s.inFlight.Set(id, struct{}{})
		s.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.execute(ctx, id, wg)
		}()
		return
	}

	s.aborted = true
	s.mu.Unlock()
}
