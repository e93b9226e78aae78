// Package sagaflow implements a saga coordinator: a workflow engine that
// executes a DAG of requests as a long-running transaction whose atomicity
// is recovered through compensating actions rather than two-phase commit.
//
// Overview
//
// 1. Build a Dag of Requests, each carrying a Transaction and a
//    Compensation Capability.
// 2. Choose an EventStore (MemoryEventStore, FileEventStore, or
//    SQLEventStore) to hold the durable append-only log.
// 3. Construct a Saga with NewSaga, optionally call Play to fold in a
//    historical log prefix, then call Run to drive the saga to a terminal
//    outcome.
//
// The scheduler dispatches ready nodes concurrently, waits for hanging
// transactions to settle before compensating, and the replay engine can
// reconstruct full scheduler state from any prefix of the log so that a
// crashed process can resume deterministically.
package sagaflow
