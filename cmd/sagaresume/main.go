// Command sagaresume provisions the same three resources as sagarun, but
// durably, via a SQLEventStore on disk, and can reopen a saga a second
// time to demonstrate replay: a terminal saga resumes into a no-op
// (I5), and an aborted-but-uncompensated saga resumes straight into
// compensation with no transactions re-run.
//
//	sagaresume run    -state-dir ./saga-state -saga-id demo [-fail]
//	sagaresume resume -state-dir ./saga-state -saga-id demo
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/arourke/sagaflow"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type capFunc func() error

func (f capFunc) Run() error { return f() }

const (
	capDatabase sagaflow.CapabilityName = "create_database"
	capCache    sagaflow.CapabilityName = "create_cache"
	capServer   sagaflow.CapabilityName = "create_server"
)

// buildRegistry rebinds a fresh Capability pair per resource name. A
// resuming process cannot recover the closures bound during the prior
// process's run — only the event log survives — so every call to
// sagaresume re-registers factories identically to the first.
func buildRegistry(log *slog.Logger, fail bool, resources map[string]string) *sagaflow.CapabilityRegistry {
	reg := sagaflow.NewCapabilityRegistry()

	reg.Register(capDatabase, func() (sagaflow.Capability, sagaflow.Capability) {
		return capFunc(func() error {
				id := fmt.Sprintf("db-%s", uuid.New().String()[:8])
				resources["database"] = id
				log.Info("database created", "resource_id", id)
				return nil
			}), capFunc(func() error {
				log.Warn("database deleted", "resource_id", resources["database"])
				delete(resources, "database")
				return nil
			})
	})

	reg.Register(capCache, func() (sagaflow.Capability, sagaflow.Capability) {
		return capFunc(func() error {
				id := fmt.Sprintf("cache-%s", uuid.New().String()[:8])
				resources["cache"] = id
				log.Info("cache created", "resource_id", id)
				return nil
			}), capFunc(func() error {
				log.Warn("cache deleted", "resource_id", resources["cache"])
				delete(resources, "cache")
				return nil
			})
	})

	reg.Register(capServer, func() (sagaflow.Capability, sagaflow.Capability) {
		return capFunc(func() error {
				if fail {
					return fmt.Errorf("provider quota exceeded")
				}
				id := fmt.Sprintf("server-%s", uuid.New().String()[:8])
				resources["server"] = id
				log.Info("server created", "resource_id", id)
				return nil
			}), capFunc(func() error {
				log.Warn("server deleted", "resource_id", resources["server"])
				delete(resources, "server")
				return nil
			})
	})

	return reg
}

func buildDag(reg *sagaflow.CapabilityRegistry) (*sagaflow.Dag, error) {
	dag := sagaflow.NewDag()
	root := dag.AddRequest(sagaflow.NewRootRequest(0, "provision-start"))

	database, err := reg.Bind(0, "create_database", capDatabase)
	if err != nil {
		return nil, err
	}
	databaseID := dag.AddRequest(database)

	cache, err := reg.Bind(0, "create_cache", capCache)
	if err != nil {
		return nil, err
	}
	cacheID := dag.AddRequest(cache)

	server, err := reg.Bind(0, "create_server", capServer)
	if err != nil {
		return nil, err
	}
	serverID := dag.AddRequest(server)

	leaf := dag.AddRequest(sagaflow.NewLeafRequest(0, "provision-end"))

	edges := [][2]sagaflow.SagaNodeID{
		{root, databaseID}, {root, cacheID},
		{databaseID, serverID}, {cacheID, serverID},
		{serverID, leaf},
	}
	for _, e := range edges {
		if err := dag.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	return dag, nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runStateDir := runCmd.String("state-dir", "./saga-state", "directory to store the event log")
	runSagaID := runCmd.String("saga-id", "", "saga id (auto-generated if empty)")
	runFail := runCmd.Bool("fail", false, "fail the create_server transaction")

	resumeCmd := flag.NewFlagSet("resume", flag.ExitOnError)
	resumeStateDir := resumeCmd.String("state-dir", "./saga-state", "directory containing the event log")
	resumeSagaID := resumeCmd.String("saga-id", "", "saga id to resume (required)")
	resumeFail := resumeCmd.Bool("fail", false, "keep failing create_server if it is retried")

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	switch os.Args[1] {
	case "run":
		runCmd.Parse(os.Args[2:])
		sagaID := *runSagaID
		if sagaID == "" {
			sagaID = fmt.Sprintf("provision-%s", uuid.New().String()[:8])
		}
		if err := run(log, *runStateDir, sagaID, *runFail); err != nil {
			log.Error("run failed", "cause", err)
			os.Exit(1)
		}
	case "resume":
		resumeCmd.Parse(os.Args[2:])
		if *resumeSagaID == "" {
			log.Error("resume requires -saga-id")
			os.Exit(1)
		}
		if err := run(log, *resumeStateDir, *resumeSagaID, *resumeFail); err != nil {
			log.Error("resume failed", "cause", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  sagaresume run    -state-dir DIR -saga-id ID [-fail]")
	fmt.Println("  sagaresume resume -state-dir DIR -saga-id ID [-fail]")
}

// run and resume share one code path: Play always replays whatever the
// database already holds (empty, on a first "run") before driving
// forward/backward scheduling. That is the whole point of I5 — a second
// invocation against a terminal log is a no-op, and against an aborted,
// partially-compensated log it picks compensation up where it left off.
func run(log *slog.Logger, stateDir, sagaID string, fail bool) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(stateDir, "sagas.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	store, err := sagaflow.NewSQLEventStore(db, sagaID)
	if err != nil {
		return err
	}

	resources := map[string]string{}
	reg := buildRegistry(log, fail, resources)
	dag, err := buildDag(reg)
	if err != nil {
		return err
	}

	saga, err := sagaflow.NewSaga(store, dag, sagaflow.WithLogger(log))
	if err != nil {
		return err
	}

	state, err := saga.Play()
	if err != nil {
		return err
	}
	log.Info("replayed event log", "saga_id", sagaID, "terminal", state.Terminal, "aborted", state.Aborted, "completed", state.Completed)

	ctx := context.Background()
	outcome, err := saga.Run(ctx)
	if err != nil {
		return err
	}
	log.Info("saga finished", "saga_id", sagaID, "outcome", outcome.String(), "resources", resources, "db_path", path)
	return nil
}
