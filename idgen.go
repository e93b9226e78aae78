package sagaflow

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// SagaID uniquely identifies one Saga instance.
type SagaID struct {
	uuid.UUID
}

// NewSagaID generates a fresh, random SagaID.
func NewSagaID() SagaID {
	return SagaID{uuid.New()}
}

// String implements fmt.Stringer for SagaID.
func (id SagaID) String() string {
	return id.UUID.String()
}

// IdGenerator assigns monotonically increasing ids to event envelopes.
// NextID must be strictly increasing across one process. It is exported
// so a caller can supply their own implementation through WithIdGenerator
// — the same pluggable-strategy shape as RecoveryPolicy.
type IdGenerator interface {
	NextID() uint64
}

// monotonicIDGenerator produces dense ids (1, 2, 3, ...) starting from
// whatever the store was pre-populated with. It is the default
// IdGenerator used by NewSaga and by every EventStore backend that has
// not been given a caller-supplied one.
type monotonicIDGenerator struct {
	counter atomic.Uint64
}

// NewMonotonicIDGenerator creates an IdGenerator whose first call to
// NextID returns start+1.
func NewMonotonicIDGenerator(start uint64) IdGenerator {
	g := &monotonicIDGenerator{}
	g.counter.Store(start)
	return g
}

func (g *monotonicIDGenerator) NextID() uint64 {
	return g.counter.Add(1)
}

// SagaNodeID identifies a node within one Dag. It matches the Request's
// own nodeId.
type SagaNodeID int

// String implements fmt.Stringer for SagaNodeID.
func (id SagaNodeID) String() string {
	return fmt.Sprintf("N%03d", int(id))
}
