package sagaflow

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// CapabilityName identifies a capability-pair factory in a
// CapabilityRegistry.
type CapabilityName string

// CapabilityFactory builds a fresh transaction/compensation Capability
// pair. A factory, not a bare pair, so that a resuming process can
// recreate closures that capture fresh resources (connections, clients)
// rather than ones left over from a previous process.
type CapabilityFactory func() (transaction, compensation Capability)

// CapabilityRegistry maps a CapabilityName to a factory that reconstructs
// a live Capability pair. It exists solely so a process resuming a saga
// from a persisted EventStore can re-bind Request.Transaction/Compensation
// closures, which cannot themselves survive a process boundary — the
// event log only ever records request ids, never the closures behind
// them. Not consulted by replay itself; a construction-time convenience
// for callers (see C11).
type CapabilityRegistry struct {
	factories *xsync.MapOf[CapabilityName, CapabilityFactory]
}

// NewCapabilityRegistry creates an empty CapabilityRegistry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		factories: xsync.NewMapOf[CapabilityName, CapabilityFactory](),
	}
}

// Register adds a factory to the registry under name. It is an error to
// register the same name twice.
func (r *CapabilityRegistry) Register(name CapabilityName, factory CapabilityFactory) error {
	if _, loaded := r.factories.LoadOrStore(name, factory); loaded {
		return fmt.Errorf("capability %q already registered", name)
	}
	return nil
}

// Get retrieves the factory registered under name.
func (r *CapabilityRegistry) Get(name CapabilityName) (CapabilityFactory, error) {
	factory, ok := r.factories.Load(name)
	if !ok {
		return nil, fmt.Errorf("capability %q not found", name)
	}
	return factory, nil
}

// Bind constructs a Process Request for nodeID/name by invoking the
// factory registered under capability.
func (r *CapabilityRegistry) Bind(nodeID SagaNodeID, name string, capability CapabilityName) (Request, error) {
	factory, err := r.Get(capability)
	if err != nil {
		return Request{}, err
	}
	transaction, compensation := factory()
	return NewProcessRequest(nodeID, name, transaction, compensation), nil
}
