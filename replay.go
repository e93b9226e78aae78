package sagaflow

import (
	"fmt"
	"sort"
)

// nodeReplayStatus is the per-node state the replay engine folds the log
// into, generalizing the teacher repository's SagaNodeLoadStatus/
// nextStatus machinery from a six-state chain to one that also accepts a
// transaction re-starting after an abort, since SPEC_FULL's forward
// recovery retries a failed transaction rather than always compensating.
type nodeReplayStatus int

const (
	statusNeverStarted nodeReplayStatus = iota
	statusStarted
	statusEnded
	statusAborted
	statusCompensationStarted
	statusCompensated
)

// transition returns the status after recording kind against the
// current status, or an error if the transition is illegal — the same
// shape as the teacher's nextStatus.
func (s nodeReplayStatus) transition(kind EventKind) (nodeReplayStatus, error) {
	switch s {
	case statusNeverStarted:
		if kind == TransactionStarted {
			return statusStarted, nil
		}
	case statusStarted:
		switch kind {
		case TransactionEnded:
			return statusEnded, nil
		case TransactionAborted:
			return statusAborted, nil
		}
	case statusAborted:
		if kind == TransactionStarted {
			return statusStarted, nil
		}
	case statusEnded:
		if kind == CompensationStarted {
			return statusCompensationStarted, nil
		}
	case statusCompensationStarted:
		// A compensation retry appends a fresh CompensationStarted
		// without any intervening event (runner.go's processCompensate
		// records no failure event, unlike a transaction's
		// TransactionAborted) — so the status simply re-affirms itself.
		switch kind {
		case CompensationStarted:
			return statusCompensationStarted, nil
		case CompensationEnded:
			return statusCompensated, nil
		}
	}
	return statusNeverStarted, fmt.Errorf("illegal event %s for current status %d", kind, s)
}

// ReplayState is the scheduler state the replay engine reconstructs from
// an event-log prefix, per spec §4.7.
type ReplayState struct {
	// Completed holds every Process node with a TransactionEnded whose
	// matching CompensationEnded has not been seen — this includes
	// nodes that are already mid-compensation (also in
	// PartiallyCompensating); the two sets are not disjoint.
	Completed []SagaNodeID
	// Aborted is true if any TransactionAborted event exists, or any
	// CompensationStarted/CompensationEnded event exists.
	Aborted bool
	// Compensated holds every node with a CompensationEnded.
	Compensated []SagaNodeID
	// PartiallyStarted holds nodes with TransactionStarted but no
	// matching TransactionEnded/TransactionAborted — must be redone.
	PartiallyStarted []SagaNodeID
	// PartiallyCompensating holds nodes with CompensationStarted but no
	// CompensationEnded — must be re-compensated.
	PartiallyCompensating []SagaNodeID
	// RootStarted is true if the root's SagaStarted has been recorded.
	RootStarted bool
	// Terminal is true if a terminal SagaEnded has already been
	// recorded (I4); TerminalBackward distinguishes how it was reached.
	Terminal         bool
	TerminalBackward bool
}

// replayLog folds envelopes, in order, into a ReplayState. It is invoked
// by Saga.Play, which Saga.Run calls before scheduling.
func replayLog(dag *Dag, envelopes []Envelope) (*ReplayState, error) {
	status := make(map[SagaNodeID]nodeReplayStatus)

	var rootStarted, terminalSeen, terminalBackward bool
	var sawAbort, sawCompensation bool

	for _, env := range envelopes {
		e := env.Event

		switch e.Kind {
		case SagaStarted:
			rootStarted = true
		case SagaEnded:
			if terminalSeen {
				return nil, ReplayInconsistent("more than one terminal SagaEnded event in log")
			}
			terminalSeen = true
			terminalBackward = e.Backward
		case TransactionStarted, TransactionEnded, TransactionAborted, CompensationStarted, CompensationEnded:
			if _, ok := dag.RequestFor(e.NodeID); !ok {
				return nil, ReplayInconsistent(fmt.Sprintf("event references unknown node %s", e.NodeID))
			}
			cur := status[e.NodeID]
			next, err := cur.transition(e.Kind)
			if err != nil {
				return nil, ReplayInconsistent(fmt.Sprintf("node %s: %v", e.NodeID, err))
			}
			status[e.NodeID] = next
			if e.Kind == TransactionAborted {
				sawAbort = true
			}
			if e.Kind == CompensationStarted || e.Kind == CompensationEnded {
				sawCompensation = true
			}
		default:
			return nil, ReplayInconsistent(fmt.Sprintf("unknown event kind %d", int(e.Kind)))
		}
	}

	out := &ReplayState{
		RootStarted:      rootStarted,
		Terminal:         terminalSeen,
		TerminalBackward: terminalBackward,
		Aborted:          sawAbort || sawCompensation,
	}
	for id, st := range status {
		switch st {
		case statusEnded:
			out.Completed = append(out.Completed, id)
		case statusCompensationStarted:
			out.Completed = append(out.Completed, id)
			out.PartiallyCompensating = append(out.PartiallyCompensating, id)
		case statusCompensated:
			out.Compensated = append(out.Compensated, id)
		case statusStarted:
			out.PartiallyStarted = append(out.PartiallyStarted, id)
		}
	}
	sort.Slice(out.Completed, func(i, j int) bool { return out.Completed[i] < out.Completed[j] })
	sort.Slice(out.Compensated, func(i, j int) bool { return out.Compensated[i] < out.Compensated[j] })
	sort.Slice(out.PartiallyStarted, func(i, j int) bool { return out.PartiallyStarted[i] < out.PartiallyStarted[j] })
	sort.Slice(out.PartiallyCompensating, func(i, j int) bool { return out.PartiallyCompensating[i] < out.PartiallyCompensating[j] })

	return out, nil
}
