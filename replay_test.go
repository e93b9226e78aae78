package sagaflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replayDag(t *testing.T) *Dag {
	t.Helper()
	dag := NewDag()
	root := dag.AddRequest(NewRootRequest(0, "start"))
	a := dag.AddRequest(NewProcessRequest(0, "a", noopCapability{}, noopCapability{}))
	b := dag.AddRequest(NewProcessRequest(0, "b", noopCapability{}, noopCapability{}))
	leaf := dag.AddRequest(NewLeafRequest(0, "end"))
	require.NoError(t, dag.AddEdge(root, a))
	require.NoError(t, dag.AddEdge(a, b))
	require.NoError(t, dag.AddEdge(b, leaf))
	require.NoError(t, dag.Validate())
	return dag
}

func TestReplayLogEmpty(t *testing.T) {
	dag := replayDag(t)
	state, err := replayLog(dag, nil)
	require.NoError(t, err)
	assert.False(t, state.RootStarted)
	assert.False(t, state.Aborted)
	assert.False(t, state.Terminal)
	assert.Empty(t, state.Completed)
}

func TestReplayLogForwardSuccess(t *testing.T) {
	dag := replayDag(t)
	envelopes := []Envelope{
		{ID: 1, Event: newSagaStarted(0, "start")},
		{ID: 2, Event: newTransactionStarted(1, "a")},
		{ID: 3, Event: newTransactionEnded(1, "a")},
		{ID: 4, Event: newTransactionStarted(2, "b")},
		{ID: 5, Event: newTransactionEnded(2, "b")},
		{ID: 6, Event: newSagaEnded(3, "end", false)},
	}
	state, err := replayLog(dag, envelopes)
	require.NoError(t, err)
	assert.True(t, state.RootStarted)
	assert.True(t, state.Terminal)
	assert.False(t, state.TerminalBackward)
	assert.False(t, state.Aborted)
	assert.ElementsMatch(t, []SagaNodeID{1, 2}, state.Completed)
}

func TestReplayLogPartiallyStartedMustBeRedone(t *testing.T) {
	dag := replayDag(t)
	envelopes := []Envelope{
		{ID: 1, Event: newSagaStarted(0, "start")},
		{ID: 2, Event: newTransactionStarted(1, "a")},
	}
	state, err := replayLog(dag, envelopes)
	require.NoError(t, err)
	assert.Equal(t, []SagaNodeID{1}, state.PartiallyStarted)
	assert.Empty(t, state.Completed)
}

func TestReplayLogAbortedTransactionIsNotCompleted(t *testing.T) {
	dag := replayDag(t)
	envelopes := []Envelope{
		{ID: 1, Event: newSagaStarted(0, "start")},
		{ID: 2, Event: newTransactionStarted(1, "a")},
		{ID: 3, Event: newTransactionAborted(1, "a", errors.New("boom"))},
	}
	state, err := replayLog(dag, envelopes)
	require.NoError(t, err)
	assert.True(t, state.Aborted)
	assert.Empty(t, state.Completed)
}

func TestReplayLogPartiallyCompensatingOverlapsCompleted(t *testing.T) {
	dag := replayDag(t)
	envelopes := []Envelope{
		{ID: 1, Event: newSagaStarted(0, "start")},
		{ID: 2, Event: newTransactionStarted(1, "a")},
		{ID: 3, Event: newTransactionEnded(1, "a")},
		{ID: 4, Event: newCompensationStarted(1, "a")},
	}
	state, err := replayLog(dag, envelopes)
	require.NoError(t, err)
	assert.True(t, state.Aborted)
	assert.Equal(t, []SagaNodeID{1}, state.Completed)
	assert.Equal(t, []SagaNodeID{1}, state.PartiallyCompensating)
}

func TestReplayLogCompensationRetryDoesNotError(t *testing.T) {
	dag := replayDag(t)
	envelopes := []Envelope{
		{ID: 1, Event: newSagaStarted(0, "start")},
		{ID: 2, Event: newTransactionStarted(1, "a")},
		{ID: 3, Event: newTransactionEnded(1, "a")},
		{ID: 4, Event: newCompensationStarted(1, "a")},
		{ID: 5, Event: newCompensationStarted(1, "a")},
		{ID: 6, Event: newCompensationEnded(1, "a")},
	}
	state, err := replayLog(dag, envelopes)
	require.NoError(t, err)
	assert.Equal(t, []SagaNodeID{1}, state.Compensated)
	assert.Empty(t, state.PartiallyCompensating)
}

func TestReplayLogRejectsUnknownNode(t *testing.T) {
	dag := replayDag(t)
	envelopes := []Envelope{
		{ID: 1, Event: newTransactionStarted(99, "ghost")},
	}
	_, err := replayLog(dag, envelopes)
	require.Error(t, err)
	var target *ReplayInconsistencyError
	assert.ErrorAs(t, err, &target)
}

func TestReplayLogRejectsImpossibleTransition(t *testing.T) {
	dag := replayDag(t)
	envelopes := []Envelope{
		{ID: 1, Event: newCompensationEnded(1, "a")},
	}
	_, err := replayLog(dag, envelopes)
	require.Error(t, err)
}

func TestReplayLogRejectsDuplicateTerminalEvent(t *testing.T) {
	dag := replayDag(t)
	envelopes := []Envelope{
		{ID: 1, Event: newSagaEnded(3, "end", false)},
		{ID: 2, Event: newSagaEnded(3, "end", false)},
	}
	_, err := replayLog(dag, envelopes)
	require.Error(t, err)
}
