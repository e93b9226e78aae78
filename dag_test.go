package sagaflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearDag(t *testing.T) (*Dag, SagaNodeID, SagaNodeID, SagaNodeID) {
	t.Helper()
	dag := NewDag()
	root := dag.AddRequest(NewRootRequest(0, "start"))
	mid := dag.AddRequest(NewProcessRequest(0, "charge", noopCapability{}, noopCapability{}))
	leaf := dag.AddRequest(NewLeafRequest(0, "end"))
	require.NoError(t, dag.AddEdge(root, mid))
	require.NoError(t, dag.AddEdge(mid, leaf))
	return dag, root, mid, leaf
}

func TestDagValidateLinear(t *testing.T) {
	dag, root, _, leaf := linearDag(t)
	require.NoError(t, dag.Validate())
	assert.Equal(t, root, dag.Root())
	assert.Equal(t, leaf, dag.Leaf())
}

func TestDagValidateMissingRoot(t *testing.T) {
	dag := NewDag()
	leaf := dag.AddRequest(NewLeafRequest(0, "end"))
	mid := dag.AddRequest(NewProcessRequest(0, "charge", noopCapability{}, noopCapability{}))
	require.NoError(t, dag.AddEdge(mid, leaf))

	err := dag.Validate()
	require.Error(t, err)
	var target *DAGInvariantError
	assert.ErrorAs(t, err, &target)
}

func TestDagValidateCycle(t *testing.T) {
	dag := NewDag()
	root := dag.AddRequest(NewRootRequest(0, "start"))
	a := dag.AddRequest(NewProcessRequest(0, "a", noopCapability{}, noopCapability{}))
	b := dag.AddRequest(NewProcessRequest(0, "b", noopCapability{}, noopCapability{}))
	leaf := dag.AddRequest(NewLeafRequest(0, "end"))
	require.NoError(t, dag.AddEdge(root, a))
	require.NoError(t, dag.AddEdge(a, b))
	require.NoError(t, dag.AddEdge(b, a))
	require.NoError(t, dag.AddEdge(b, leaf))

	err := dag.Validate()
	require.Error(t, err)
}

func TestDagValidateUnreachableNode(t *testing.T) {
	dag := NewDag()
	root := dag.AddRequest(NewRootRequest(0, "start"))
	leaf := dag.AddRequest(NewLeafRequest(0, "end"))
	orphan := dag.AddRequest(NewProcessRequest(0, "orphan", noopCapability{}, noopCapability{}))
	require.NoError(t, dag.AddEdge(root, leaf))
	_ = orphan

	err := dag.Validate()
	require.Error(t, err)
}

func TestDagParentsAndChildren(t *testing.T) {
	dag := NewDag()
	root := dag.AddRequest(NewRootRequest(0, "start"))
	a := dag.AddRequest(NewProcessRequest(0, "a", noopCapability{}, noopCapability{}))
	b := dag.AddRequest(NewProcessRequest(0, "b", noopCapability{}, noopCapability{}))
	join := dag.AddRequest(NewProcessRequest(0, "join", noopCapability{}, noopCapability{}))
	leaf := dag.AddRequest(NewLeafRequest(0, "end"))
	require.NoError(t, dag.AddEdge(root, a))
	require.NoError(t, dag.AddEdge(root, b))
	require.NoError(t, dag.AddEdge(a, join))
	require.NoError(t, dag.AddEdge(b, join))
	require.NoError(t, dag.AddEdge(join, leaf))
	require.NoError(t, dag.Validate())

	assert.ElementsMatch(t, []SagaNodeID{a, b}, dag.ChildrenOf(root))
	assert.ElementsMatch(t, []SagaNodeID{a, b}, dag.ParentsOf(join))
}

func TestDagTopologicalOrderRespectsEdges(t *testing.T) {
	dag, root, mid, leaf := linearDag(t)
	require.NoError(t, dag.Validate())

	order, err := dag.TopologicalOrder()
	require.NoError(t, err)

	pos := make(map[SagaNodeID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos[root], pos[mid])
	assert.Less(t, pos[mid], pos[leaf])
}
