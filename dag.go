package sagaflow

import (
	"fmt"
	"sort"

	"github.com/arourke/sagaflow/dag"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// Dag is a single-root/single-leaf directed acyclic graph of Requests.
// Children are unordered; ordering across siblings is not semantic.
// Adjacency is stored as a forward child-set per node plus a precomputed
// reverse index, per the "cyclic/bidirectional structure" design note:
// nodes never hold back-references to their parents.
type Dag struct {
	g        *dag.Graph
	requests map[int64]Request
	parents  map[int64][]int64
	root     int64
	leaf     int64
	rootSet  bool
	leafSet  bool
}

// NewDag creates an empty Dag. Requests are added with AddRequest and
// edges with AddEdge; call Validate once construction is complete.
func NewDag() *Dag {
	return &Dag{
		g:        dag.New(),
		requests: make(map[int64]Request),
		parents:  make(map[int64][]int64),
	}
}

// AddRequest adds a Request as a new node and returns the SagaNodeID
// assigned to it. Node ids are unique within this Dag.
func (d *Dag) AddRequest(req Request) SagaNodeID {
	n := d.g.NewNode()
	d.g.AddNode(n)
	id := n.ID()
	req.ID = SagaNodeID(id)
	d.requests[id] = req
	if req.Runner == SagaStart {
		d.root, d.rootSet = id, true
	}
	if req.Runner == SagaEnd {
		d.leaf, d.leafSet = id, true
	}
	return SagaNodeID(id)
}

// AddEdge records that the request at `to` depends on the request at
// `from` (from must complete its transaction before to may start).
func (d *Dag) AddEdge(from, to SagaNodeID) error {
	fromNode := d.g.Node(int64(from))
	if fromNode == nil {
		return DAGInvariantViolation(fmt.Sprintf("unknown node %s", from))
	}
	toNode := d.g.Node(int64(to))
	if toNode == nil {
		return DAGInvariantViolation(fmt.Sprintf("unknown node %s", to))
	}
	d.g.SetEdge(simple.Edge{F: fromNode, T: toNode})
	return nil
}

// Validate checks the single-root/single-leaf/acyclic/reachability
// invariants and precomputes the reverse (parent) index. NewSaga calls it
// and rejects a Dag for which it fails; ParentsOf relies on the index it
// builds.
func (d *Dag) Validate() error {
	if !d.rootSet {
		return DAGInvariantViolation("no node with runner SagaStart")
	}
	if !d.leafSet {
		return DAGInvariantViolation("no node with runner SagaEnd")
	}

	var roots, leaves []int64
	nodes := d.g.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		if d.g.To(id).Len() == 0 {
			roots = append(roots, id)
		}
		if d.g.From(id).Len() == 0 {
			leaves = append(leaves, id)
		}
	}
	if len(roots) != 1 {
		return DAGInvariantViolation(fmt.Sprintf("expected exactly one root, found %d", len(roots)))
	}
	if roots[0] != d.root {
		return DAGInvariantViolation("the node with no incoming edges is not the SagaStart request")
	}
	if len(leaves) != 1 {
		return DAGInvariantViolation(fmt.Sprintf("expected exactly one leaf, found %d", len(leaves)))
	}
	if leaves[0] != d.leaf {
		return DAGInvariantViolation("the node with no outgoing edges is not the SagaEnd request")
	}

	if _, err := topo.SortStabilized(d.g, nil); err != nil {
		return DAGInvariantViolation(fmt.Sprintf("graph is cyclic: %v", err))
	}

	reachable := map[int64]bool{}
	bf := traverse.BreadthFirst{}
	bf.Walk(d.g, d.g.Node(d.root), func(n graph.Node, _ int) bool {
		reachable[n.ID()] = true
		return false
	})
	if len(reachable) != d.g.Nodes().Len() {
		return DAGInvariantViolation("not every node is reachable from the root")
	}

	reverse := simple.NewDirectedGraph()
	it := d.g.Nodes()
	for it.Next() {
		reverse.AddNode(it.Node())
	}
	edges := d.g.Edges()
	for edges.Next() {
		e := edges.Edge()
		reverse.SetEdge(simple.Edge{F: e.To(), T: e.From()})
	}
	coReachable := map[int64]bool{}
	bf2 := traverse.BreadthFirst{}
	bf2.Walk(reverse, reverse.Node(d.leaf), func(n graph.Node, _ int) bool {
		coReachable[n.ID()] = true
		return false
	})
	if len(coReachable) != d.g.Nodes().Len() {
		return DAGInvariantViolation("not every node is co-reachable to the leaf")
	}

	d.parents = make(map[int64][]int64, d.g.Nodes().Len())
	it = d.g.Nodes()
	for it.Next() {
		id := it.Node().ID()
		to := d.g.To(id)
		for to.Next() {
			d.parents[id] = append(d.parents[id], to.Node().ID())
		}
		sort.Slice(d.parents[id], func(i, j int) bool { return d.parents[id][i] < d.parents[id][j] })
	}
	return nil
}

// Root returns the id of the synthetic SagaStart node.
func (d *Dag) Root() SagaNodeID { return SagaNodeID(d.root) }

// Leaf returns the id of the synthetic SagaEnd node.
func (d *Dag) Leaf() SagaNodeID { return SagaNodeID(d.leaf) }

// RequestFor returns the Request stored at node id.
func (d *Dag) RequestFor(id SagaNodeID) (Request, bool) {
	req, ok := d.requests[int64(id)]
	return req, ok
}

// ChildrenOf returns the node ids with an incoming edge from id.
func (d *Dag) ChildrenOf(id SagaNodeID) []SagaNodeID {
	from := d.g.From(int64(id))
	out := make([]SagaNodeID, 0, from.Len())
	for from.Next() {
		out = append(out, SagaNodeID(from.Node().ID()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParentsOf returns the precomputed node ids with an outgoing edge to id.
// Validate must have run first.
func (d *Dag) ParentsOf(id SagaNodeID) []SagaNodeID {
	ps := d.parents[int64(id)]
	out := make([]SagaNodeID, len(ps))
	for i, p := range ps {
		out[i] = SagaNodeID(p)
	}
	return out
}

// NodeIDs returns every node id in the Dag, in ascending order.
func (d *Dag) NodeIDs() []SagaNodeID {
	nodes := d.g.Nodes()
	out := make([]SagaNodeID, 0, nodes.Len())
	for nodes.Next() {
		out = append(out, SagaNodeID(nodes.Node().ID()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExportToDot renders the Dag in Graphviz DOT format, useful for
// debugging a saga's shape.
func (d *Dag) ExportToDot() (string, error) {
	return d.g.ExportToDot()
}

// TopologicalOrder returns every node id in root-to-leaf topological
// order. Used by the compensation planner to sort each compensation
// frontier in reverse topological order.
func (d *Dag) TopologicalOrder() ([]SagaNodeID, error) {
	sorted, err := topo.SortStabilized(d.g, nil)
	if err != nil {
		return nil, DAGInvariantViolation(fmt.Sprintf("graph is cyclic: %v", err))
	}
	out := make([]SagaNodeID, len(sorted))
	for i, n := range sorted {
		out[i] = SagaNodeID(n.ID())
	}
	return out, nil
}
