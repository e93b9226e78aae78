// Command sagarun builds a small resource-provisioning saga in memory and
// runs it once. Pass -fail to make the server transaction fail, which
// demonstrates backward recovery unwinding the database and cache nodes
// that already committed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/arourke/sagaflow"
	"github.com/google/uuid"
)

// capFunc adapts a plain func() error to sagaflow.Capability.
type capFunc func() error

func (f capFunc) Run() error { return f() }

func main() {
	fail := flag.Bool("fail", false, "fail the create_server transaction to exercise compensation")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	resources := map[string]string{}

	dag := sagaflow.NewDag()
	root := dag.AddRequest(sagaflow.NewRootRequest(0, "provision-start"))

	database := dag.AddRequest(sagaflow.NewProcessRequest(0, "create_database",
		capFunc(func() error {
			id := fmt.Sprintf("db-%s", uuid.New().String()[:8])
			resources["database"] = id
			log.Info("database created", "resource_id", id)
			return nil
		}),
		capFunc(func() error {
			log.Warn("database deleted", "resource_id", resources["database"])
			delete(resources, "database")
			return nil
		}),
	))

	cache := dag.AddRequest(sagaflow.NewProcessRequest(0, "create_cache",
		capFunc(func() error {
			id := fmt.Sprintf("cache-%s", uuid.New().String()[:8])
			resources["cache"] = id
			log.Info("cache created", "resource_id", id)
			return nil
		}),
		capFunc(func() error {
			log.Warn("cache deleted", "resource_id", resources["cache"])
			delete(resources, "cache")
			return nil
		}),
	))

	server := dag.AddRequest(sagaflow.NewProcessRequest(0, "create_server",
		capFunc(func() error {
			if *fail {
				return fmt.Errorf("provider quota exceeded")
			}
			id := fmt.Sprintf("server-%s", uuid.New().String()[:8])
			resources["server"] = id
			log.Info("server created", "resource_id", id)
			return nil
		}),
		capFunc(func() error {
			log.Warn("server deleted", "resource_id", resources["server"])
			delete(resources, "server")
			return nil
		}),
	))

	leaf := dag.AddRequest(sagaflow.NewLeafRequest(0, "provision-end"))

	edges := [][2]sagaflow.SagaNodeID{
		{root, database}, {root, cache},
		{database, server}, {cache, server},
		{server, leaf},
	}
	for _, e := range edges {
		if err := dag.AddEdge(e[0], e[1]); err != nil {
			log.Error("failed to wire dag", "cause", err)
			os.Exit(1)
		}
	}

	store := sagaflow.NewMemoryEventStore()
	saga, err := sagaflow.NewSaga(store, dag, sagaflow.WithLogger(log))
	if err != nil {
		log.Error("invalid dag", "cause", err)
		os.Exit(1)
	}

	start := time.Now()
	ctx := context.Background()
	outcome, err := saga.Run(ctx)
	if err != nil {
		log.Error("saga run failed", "cause", err)
		os.Exit(1)
	}

	log.Info("saga finished", "outcome", outcome.String(), "elapsed", time.Since(start), "resources", resources)
}
