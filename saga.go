package sagaflow

import (
	"context"
	"log/slog"
	"sync"
)

// Outcome reports how a Saga's Run call concluded.
type Outcome int

const (
	// ForwardSucceeded means every node committed and the leaf's SagaEnded
	// was recorded; nothing was compensated.
	ForwardSucceeded Outcome = iota
	// BackwardCompleted means the saga aborted at some node and every
	// completed transaction was compensated back to the root.
	BackwardCompleted
)

// String implements fmt.Stringer for Outcome.
func (o Outcome) String() string {
	if o == ForwardSucceeded {
		return "ForwardSucceeded"
	}
	return "BackwardCompleted"
}

// Option configures a Saga at construction time.
type Option func(*Saga)

// WithRecoveryPolicy overrides the default BackwardRecovery policy.
func WithRecoveryPolicy(policy RecoveryPolicy) Option {
	return func(s *Saga) { s.policy = policy }
}

// WithIdGenerator overrides the default monotonic-from-zero IdGenerator
// used to assign envelope ids at append time (spec §4.2). NewSaga pushes
// it down into store if store implements IDGeneratorSetter, so this
// option actually governs id assignment rather than merely recording a
// preference the store never consults.
func WithIdGenerator(gen IdGenerator) Option {
	return func(s *Saga) { s.idGen, s.customIdGen = gen, true }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Saga) { s.log = log }
}

// Saga is the coordinator front door: it owns one Dag, one EventStore, and
// drives the forward and backward schedulers across possibly many Run
// calls against a log that may already hold a prefix of events (spec
// §4.1, §4.7).
type Saga struct {
	id          SagaID
	store       EventStore
	dag         *Dag
	policy      RecoveryPolicy
	idGen       IdGenerator
	customIdGen bool
	log         *slog.Logger

	mu     sync.Mutex
	played bool
	state  *ReplayState
}

// NewSaga validates dag and constructs a Saga bound to store. Validate
// runs once here; a Dag is immutable for the lifetime of the Saga built
// on it. If the caller supplied a custom IdGenerator via WithIdGenerator
// and store implements IDGeneratorSetter, it is pushed into the store so
// it actually drives envelope id assignment (spec §4.2); absent that
// option, each store backend keeps self-seeding its own default
// generator from whatever ids are already on disk, which is what lets a
// resumed log keep assigning dense ids after a reopen.
func NewSaga(store EventStore, dag *Dag, opts ...Option) (*Saga, error) {
	if err := dag.Validate(); err != nil {
		return nil, err
	}

	s := &Saga{
		id:     NewSagaID(),
		store:  store,
		dag:    dag,
		policy: BackwardRecovery,
		idGen:  NewMonotonicIDGenerator(0),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.customIdGen {
		if setter, ok := store.(IDGeneratorSetter); ok {
			setter.SetIDGenerator(s.idGen)
		}
	}
	return s, nil
}

// ID returns this Saga instance's identity. It is not persisted to the
// event log; the log itself carries no saga-scoped identity beyond what
// the caller's EventStore attaches (see SQLEventStore.sagaID).
func (s *Saga) ID() SagaID {
	return s.id
}

// Play replays the store's current contents into a ReplayState. Until Run
// has driven the saga, calling it more than once returns the first result
// without re-reading the store, since Run already calls it internally and
// a caller may legitimately want the state before deciding whether to Run
// at all. Once a Run has gone past the terminal check, the next call
// re-reads the store, so it reflects whatever that Run appended.
func (s *Saga) Play() (*ReplayState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.played {
		return s.state, nil
	}

	envelopes, err := s.store.Iterate()
	if err != nil {
		return nil, StorageFailed(err)
	}
	state, err := replayLog(s.dag, envelopes)
	if err != nil {
		return nil, err
	}
	s.played = true
	s.state = state
	return state, nil
}

// Run drives the saga to a terminal outcome. If the log already carries a
// terminal SagaEnded (I4/I5), Run appends nothing and reports the
// previously-reached outcome. Otherwise it resumes from whatever the
// replayed state shows: a fresh or interrupted forward pass, or resumed
// compensation if the log already shows an abort.
func (s *Saga) Run(ctx context.Context) (Outcome, error) {
	state, err := s.Play()
	if err != nil {
		return ForwardSucceeded, err
	}

	if state.Terminal {
		if state.TerminalBackward {
			return BackwardCompleted, nil
		}
		return ForwardSucceeded, nil
	}

	// This call appends to the log, so a later Play or Run must replay the
	// store again instead of reusing the state cached above.
	defer func() {
		s.mu.Lock()
		s.played = false
		s.mu.Unlock()
	}()

	log := s.log.With("saga_id", s.id.String())

	if !state.Aborted {
		fwd := newForwardScheduler(s.dag, s.store, s.policy, log)
		fwd.seed(state.Completed, false)
		if state.RootStarted {
			fwd.seed([]SagaNodeID{s.dag.Root()}, false)
		}

		if aborted := fwd.run(ctx); !aborted {
			return ForwardSucceeded, nil
		}

		back := newBackwardScheduler(s.dag, s.store, s.policy, log)
		if err := back.run(ctx, fwd.completedSnapshot(), state.Compensated); err != nil {
			return ForwardSucceeded, err
		}
		return BackwardCompleted, nil
	}

	back := newBackwardScheduler(s.dag, s.store, s.policy, log)
	if err := back.run(ctx, state.Completed, state.Compensated); err != nil {
		return ForwardSucceeded, err
	}
	return BackwardCompleted, nil
}

// Events returns every envelope currently in the backing EventStore, in
// id order.
func (s *Saga) Events() ([]Envelope, error) {
	return s.store.Iterate()
}
