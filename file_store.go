package sagaflow

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// FileEventStore is an EventStore backed by an append-only JSON-lines
// file: one JSON object per envelope, written with O_APPEND and fsync'd
// before Append returns, so that a crash cannot lose an acknowledged
// event (EventStore invariants, spec §4.2: "append is assumed durable").
type FileEventStore struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	idGen       IdGenerator
	customIDGen bool
	appended    bool
}

// fileEnvelope is the on-disk JSON shape for one line of the log.
type fileEnvelope struct {
	ID       uint64     `json:"id"`
	Kind     EventKind  `json:"kind"`
	NodeID   SagaNodeID `json:"node_id"`
	Name     string     `json:"request_name,omitempty"`
	Cause    string     `json:"cause,omitempty"`
	Backward bool       `json:"backward,omitempty"`
}

// NewFileEventStore opens (creating if necessary) the JSON-lines log at
// path for appending. Any existing contents are left on disk and folded
// into the store's id sequence, so a reopened log continues assigning
// ids past whatever a previous process already wrote.
func NewFileEventStore(path string) (*FileEventStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}

	s := &FileEventStore{path: path, file: f, idGen: NewMonotonicIDGenerator(0)}

	existing, err := s.Iterate()
	if err != nil {
		f.Close()
		return nil, err
	}
	var maxID uint64
	for _, env := range existing {
		if env.ID > maxID {
			maxID = env.ID
		}
	}
	if maxID > 0 {
		s.idGen = NewMonotonicIDGenerator(maxID)
	}
	return s, nil
}

// SetIDGenerator implements IDGeneratorSetter. It must be called before
// any live Append.
func (s *FileEventStore) SetIDGenerator(gen IdGenerator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idGen = gen
	s.customIDGen = true
}

// Append implements EventStore.
func (s *FileEventStore) Append(event Event) (Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env := Envelope{ID: s.idGen.NextID(), Event: event}

	line, err := json.Marshal(toFileEnvelope(env))
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal envelope: %w", err)
	}
	line = append(line, '\n')

	if _, err := s.file.Write(line); err != nil {
		return Envelope{}, fmt.Errorf("write envelope: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return Envelope{}, fmt.Errorf("fsync event log: %w", err)
	}

	s.appended = true
	return env, nil
}

// Iterate implements EventStore, re-reading the file from the top.
func (s *FileEventStore) Iterate() ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("reopen event log: %w", err)
	}
	defer f.Close()

	var out []Envelope
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		var fe fileEnvelope
		if err := json.Unmarshal(scanner.Bytes(), &fe); err != nil {
			return nil, fmt.Errorf("decode event log line: %w", err)
		}
		out = append(out, fromFileEnvelope(fe))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return out, nil
}

// Populate implements EventStore. It must be called before the first
// Append and replaces the file's contents wholesale, preserving ids.
func (s *FileEventStore) Populate(envelopes []Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appended {
		return fmt.Errorf("populate: store already has live appends")
	}

	sorted := make([]Envelope, len(envelopes))
	copy(sorted, envelopes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate event log: %w", err)
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return fmt.Errorf("seek event log: %w", err)
	}

	w := bufio.NewWriter(s.file)
	for _, env := range sorted {
		line, err := json.Marshal(toFileEnvelope(env))
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write envelope: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush event log: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("fsync event log: %w", err)
	}

	if len(sorted) > 0 && !s.customIDGen {
		s.idGen = NewMonotonicIDGenerator(sorted[len(sorted)-1].ID)
	}
	return nil
}

// Close releases the underlying file handle.
func (s *FileEventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func toFileEnvelope(env Envelope) fileEnvelope {
	return fileEnvelope{
		ID:       env.ID,
		Kind:     env.Event.Kind,
		NodeID:   env.Event.NodeID,
		Name:     env.Event.RequestName,
		Cause:    env.Event.Cause,
		Backward: env.Event.Backward,
	}
}

func fromFileEnvelope(fe fileEnvelope) Envelope {
	return Envelope{
		ID: fe.ID,
		Event: Event{
			Kind:        fe.Kind,
			NodeID:      fe.NodeID,
			RequestName: fe.Name,
			Cause:       fe.Cause,
			Backward:    fe.Backward,
		},
	}
}
