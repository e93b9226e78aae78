package sagaflow

import (
	"database/sql"
	"fmt"
)

// SQLEventStore is an EventStore backed by a database/sql connection —
// one row per envelope, with the monotonic envelope id assigned by idGen
// and inserted explicitly. The primary key is (saga_id, id), so each saga
// in one database has its own id sequence. It is agnostic to the driver;
// callers wire up
// modernc.org/sqlite (or any other database/sql driver) and pass the
// resulting *sql.DB in.
type SQLEventStore struct {
	db          *sql.DB
	sagaID      string
	idGen       IdGenerator
	customIDGen bool
	appended    bool
}

// NewSQLEventStore creates the saga_events table if needed and returns a
// store scoped to sagaID, so one database can hold more than one saga's
// log. SQLite supports only one writer at a time, so the connection is
// pinned to a single open connection with a busy timeout, rather than
// letting concurrent DAG-node dispatch (spec §5) trip a spurious
// SQLITE_BUSY.
func NewSQLEventStore(db *sql.DB, sagaID string) (*SQLEventStore, error) {
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	s := &SQLEventStore{db: db, sagaID: sagaID, idGen: NewMonotonicIDGenerator(0)}
	if err := s.initSchema(); err != nil {
		return nil, err
	}

	var maxID uint64
	row := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM saga_events WHERE saga_id = ?`, sagaID)
	if err := row.Scan(&maxID); err != nil {
		return nil, fmt.Errorf("read existing max id: %w", err)
	}
	if maxID > 0 {
		s.idGen = NewMonotonicIDGenerator(maxID)
	}
	return s, nil
}

// SetIDGenerator implements IDGeneratorSetter. It must be called before
// any live Append.
func (s *SQLEventStore) SetIDGenerator(gen IdGenerator) {
	s.idGen = gen
	s.customIDGen = true
}

func (s *SQLEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS saga_events (
			id INTEGER NOT NULL,
			saga_id TEXT NOT NULL,
			kind INTEGER NOT NULL,
			node_id INTEGER NOT NULL,
			request_name TEXT NOT NULL DEFAULT '',
			cause TEXT NOT NULL DEFAULT '',
			backward INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (saga_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_saga_events_saga_id ON saga_events(saga_id, id);
	`)
	return err
}

// Append implements EventStore. The id is assigned by idGen and inserted
// explicitly, so a caller-supplied IdGenerator (WithIdGenerator) actually
// governs it, per spec §4.2.
func (s *SQLEventStore) Append(event Event) (Envelope, error) {
	id := s.idGen.NextID()
	_, err := s.db.Exec(`
		INSERT INTO saga_events (id, saga_id, kind, node_id, request_name, cause, backward)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, s.sagaID, int(event.Kind), int(event.NodeID), event.RequestName, event.Cause, boolToInt(event.Backward),
	)
	if err != nil {
		return Envelope{}, fmt.Errorf("append saga event: %w", err)
	}
	s.appended = true
	return Envelope{ID: id, Event: event}, nil
}

// Iterate implements EventStore.
func (s *SQLEventStore) Iterate() ([]Envelope, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, node_id, request_name, cause, backward
		FROM saga_events
		WHERE saga_id = ?
		ORDER BY id ASC`, s.sagaID)
	if err != nil {
		return nil, fmt.Errorf("list saga events: %w", err)
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var (
			id       uint64
			kind     int
			nodeID   int
			name     string
			cause    string
			backward int
		)
		if err := rows.Scan(&id, &kind, &nodeID, &name, &cause, &backward); err != nil {
			return nil, fmt.Errorf("scan saga event: %w", err)
		}
		out = append(out, Envelope{
			ID: id,
			Event: Event{
				Kind:        EventKind(kind),
				NodeID:      SagaNodeID(nodeID),
				RequestName: name,
				Cause:       cause,
				Backward:    backward != 0,
			},
		})
	}
	return out, rows.Err()
}

// Populate implements EventStore by bulk-inserting rows with explicit
// ids, preserving them exactly (the table never generates ids of its
// own). Disallowed once any live
// Append has occurred, matching MemoryEventStore and FileEventStore.
func (s *SQLEventStore) Populate(envelopes []Envelope) error {
	if s.appended {
		return fmt.Errorf("populate: store already has live appends")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin populate tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO saga_events (id, saga_id, kind, node_id, request_name, cause, backward)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare populate insert: %w", err)
	}
	defer stmt.Close()

	var maxID uint64
	for _, env := range envelopes {
		if _, err := stmt.Exec(env.ID, s.sagaID, int(env.Event.Kind), int(env.Event.NodeID),
			env.Event.RequestName, env.Event.Cause, boolToInt(env.Event.Backward)); err != nil {
			return fmt.Errorf("populate saga event %d: %w", env.ID, err)
		}
		if env.ID > maxID {
			maxID = env.ID
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if maxID > 0 && !s.customIDGen {
		s.idGen = NewMonotonicIDGenerator(maxID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
