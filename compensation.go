package sagaflow

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/arourke/sagaflow/set"
)

// backwardScheduler derives the compensation set from the event log and
// undoes exactly the transactions that successfully completed, in
// reverse causal order (spec §4.6).
type backwardScheduler struct {
	dag    *Dag
	store  EventStore
	policy RecoveryPolicy
	log    *slog.Logger
}

func newBackwardScheduler(dag *Dag, store EventStore, policy RecoveryPolicy, log *slog.Logger) *backwardScheduler {
	return &backwardScheduler{dag: dag, store: store, policy: policy, log: log}
}

// run compensates every node in `completed` whose runner is Process and
// which is not already in `alreadyCompensated`, then appends the
// terminal backward SagaEnded via the root's SagaStart.compensate. It
// returns a non-nil error if the policy answers Abort to a failed
// compensation — a permanently-failing compensation, per the Open
// Question decision recorded in DESIGN.md — or if the terminal SagaEnded
// cannot be appended.
func (b *backwardScheduler) run(ctx context.Context, completed, alreadyCompensated []SagaNodeID) error {
	pending := set.New[SagaNodeID]()
	for _, id := range completed {
		if req, ok := b.dag.RequestFor(id); ok && req.Runner == Process {
			pending.Insert(id)
		}
	}
	for _, id := range alreadyCompensated {
		pending.Delete(id)
	}

	// topoRank gives the frontier a deterministic, reverse-causal
	// iteration order even though the readiness test below (a node's
	// children are no longer pending) is what actually enforces
	// reverse-causal correctness.
	order, err := b.dag.TopologicalOrder()
	if err != nil {
		return err
	}
	topoRank := make(map[SagaNodeID]int, len(order))
	for i, id := range order {
		topoRank[id] = i
	}

	var mu sync.Mutex

	for pending.Len() > 0 {
		frontier := b.frontierLocked(pending)
		if len(frontier) == 0 {
			return ReplayInconsistent("compensation planner made no progress: remaining set forms no frontier")
		}
		sort.Slice(frontier, func(i, j int) bool { return topoRank[frontier[i]] > topoRank[frontier[j]] })

		var wg sync.WaitGroup
		var firstErr error
		for _, id := range frontier {
			wg.Add(1)
			go func(id SagaNodeID) {
				defer wg.Done()
				req, _ := b.dag.RequestFor(id)
				if err := b.compensateWithRetry(req); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				mu.Lock()
				pending.Delete(id)
				mu.Unlock()
			}(id)
		}
		wg.Wait()
		if firstErr != nil {
			return firstErr
		}
	}

	rootReq, ok := b.dag.RequestFor(b.dag.Root())
	if !ok {
		return DAGInvariantViolation("root request missing")
	}
	return compensateRequest(b.store, b.log, rootReq)
}

// frontierLocked returns the nodes in pending whose children are all
// either already compensated (removed from pending) or never needed
// compensation — i.e. the nodes ready to compensate next.
func (b *backwardScheduler) frontierLocked(pending *set.Set[SagaNodeID]) []SagaNodeID {
	var frontier []SagaNodeID
	for _, id := range pending.Keys() {
		ready := true
		for _, c := range b.dag.ChildrenOf(id) {
			if pending.Contains(c) {
				ready = false
				break
			}
		}
		if ready {
			frontier = append(frontier, id)
		}
	}
	return frontier
}

func (b *backwardScheduler) compensateWithRetry(req Request) error {
	attempts := 0
	for {
		attempts++
		err := compensateRequest(b.store, b.log, req)
		if err == nil {
			return nil
		}
		if b.policy.OnCompensationFailure(req, err, attempts) == Abort {
			return err
		}
	}
}
