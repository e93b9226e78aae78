package sagaflow

import "log/slog"

// commitRequest dispatches to the strategy for req.Runner and drives its
// forward-phase behavior (spec §4.3). It returns a TransactionError for a
// Process request whose transaction failed, and a StorageError for any
// request whose event could not be appended; otherwise SagaStart and
// SagaEnd never fail.
func commitRequest(store EventStore, log *slog.Logger, req Request) error {
	switch req.Runner {
	case SagaStart:
		return sagaStartCommit(store, log, req)
	case Process:
		return processCommit(store, log, req)
	case SagaEnd:
		return sagaEndCommit(store, log, req)
	default:
		panic("commitRequest: unknown TaskKind")
	}
}

// compensateRequest dispatches to the strategy for req.Runner and drives
// its backward-phase behavior (spec §4.3). A Process compensation failure
// is returned so the caller's RecoveryPolicy can decide whether to retry;
// SagaStart and SagaEnd compensations fail only with a StorageError when
// their event cannot be appended.
func compensateRequest(store EventStore, log *slog.Logger, req Request) error {
	switch req.Runner {
	case SagaStart:
		return sagaStartCompensate(store, log, req)
	case Process:
		return processCompensate(store, log, req)
	case SagaEnd:
		return sagaEndCompensate(store, log, req)
	default:
		panic("compensateRequest: unknown TaskKind")
	}
}

func sagaStartCommit(store EventStore, log *slog.Logger, req Request) error {
	if _, err := store.Append(newSagaStarted(req.ID, req.Name)); err != nil {
		return StorageFailed(err)
	}
	log.Info("saga started", "node_id", req.ID, "request_name", req.Name)
	return nil
}

// sagaStartCompensate appends the terminal, backward-terminated SagaEnded
// once the compensation planner has unwound everything back to the root.
func sagaStartCompensate(store EventStore, log *slog.Logger, req Request) error {
	if _, err := store.Append(newSagaEnded(req.ID, req.Name, true)); err != nil {
		return StorageFailed(err)
	}
	log.Info("saga ended", "node_id", req.ID, "request_name", req.Name, "backward", true)
	return nil
}

func processCommit(store EventStore, log *slog.Logger, req Request) error {
	if _, err := store.Append(newTransactionStarted(req.ID, req.Name)); err != nil {
		return StorageFailed(err)
	}
	log.Info("transaction started", "node_id", req.ID, "request_name", req.Name)

	if err := req.Transaction.Run(); err != nil {
		if _, aerr := store.Append(newTransactionAborted(req.ID, req.Name, err)); aerr != nil {
			return StorageFailed(aerr)
		}
		log.Warn("transaction aborted", "node_id", req.ID, "request_name", req.Name, "cause", err)
		return TransactionFailed(req.Name, err)
	}

	if _, err := store.Append(newTransactionEnded(req.ID, req.Name)); err != nil {
		return StorageFailed(err)
	}
	log.Info("transaction ended", "node_id", req.ID, "request_name", req.Name)
	return nil
}

func processCompensate(store EventStore, log *slog.Logger, req Request) error {
	if _, err := store.Append(newCompensationStarted(req.ID, req.Name)); err != nil {
		return StorageFailed(err)
	}
	log.Warn("compensation started", "node_id", req.ID, "request_name", req.Name)

	if err := req.Compensation.Run(); err != nil {
		log.Error("compensation failed", "node_id", req.ID, "request_name", req.Name, "cause", err)
		return CompensationFailed(req.Name, err)
	}

	if _, err := store.Append(newCompensationEnded(req.ID, req.Name)); err != nil {
		return StorageFailed(err)
	}
	log.Info("compensation ended", "node_id", req.ID, "request_name", req.Name)
	return nil
}

func sagaEndCommit(store EventStore, log *slog.Logger, req Request) error {
	if _, err := store.Append(newSagaEnded(req.ID, req.Name, false)); err != nil {
		return StorageFailed(err)
	}
	log.Info("saga ended", "node_id", req.ID, "request_name", req.Name, "backward", false)
	return nil
}

// sagaEndCompensate never actually runs in a correct scheduler — the
// backward scheduler invokes SagaStart.compensate, not the leaf's — but
// is provided so SagaEnd satisfies the same two-operation shape as every
// other runner, per design note "dynamic dispatch of task kinds".
func sagaEndCompensate(store EventStore, log *slog.Logger, req Request) error {
	if _, err := store.Append(newSagaEnded(req.ID, req.Name, true)); err != nil {
		return StorageFailed(err)
	}
	log.Info("saga ended", "node_id", req.ID, "request_name", req.Name, "backward", true)
	return nil
}
