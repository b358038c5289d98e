package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/antithesishq/antithesis-sdk-go/lifecycle"
	"github.com/nats-io/nats.go"

	"smr-exec/app"
	"smr-exec/kv"
	"smr-exec/server"
	"smr-exec/transfer"
)

func main() {
	var (
		replicaId       string
		groupId         string
		natsUrl         string
		buckets         int
		dbDir           string
		checkpointEvery int
	)
	flag.StringVar(&replicaId, "replica-id", "", "unique id of replica")
	flag.StringVar(&groupId, "group-id", "", "replication group id")
	flag.StringVar(&natsUrl, "nats-url", nats.DefaultURL, "nats url")
	flag.IntVar(&buckets, "buckets", 16, "number of state buckets")
	flag.StringVar(&dbDir, "db-dir", "", "state directory (in-memory store if empty)")
	flag.IntVar(&checkpointEvery, "checkpoint-every", 10, "batches between checkpoints")
	flag.Parse()

	fatalErr := func(err error) {
		fmt.Println(err)
		os.Exit(1)
	}

	if replicaId == "" {
		fatalErr(fmt.Errorf("missing required argument: replica-id"))
	}
	if groupId == "" {
		fatalErr(fmt.Errorf("missing required argument: group-id"))
	}

	conduit, err := transfer.NewNatsConduit(groupId, natsUrl, kv.Codec{})
	if err != nil {
		fatalErr(fmt.Errorf("failed to initialize conduit: %w", err))
	}
	defer conduit.Close()

	application := kv.App{ReplicaID: replicaId, Buckets: buckets, BaseDir: dbDir}
	replica, err := server.NewReplica[*kv.Store, kv.Op, kv.Result](
		replicaId,
		application,
		conduit,
		server.LogReplySink[kv.Result]{ID: replicaId},
		checkpointEvery,
	)
	if err != nil {
		fatalErr(err)
	}
	replica.Start()
	defer replica.Stop()

	// proposals arrive as raw ops on the group's proposal subject
	nc, err := nats.Connect(natsUrl, nats.MaxReconnects(-1), nats.RetryOnFailedConnect(true))
	if err != nil {
		fatalErr(fmt.Errorf("failed to connect for proposals: %w", err))
	}
	defer nc.Close()

	proposalSubject := fmt.Sprintf("%s.%s.proposal", transfer.SubjectPrefix, groupId)
	var nextOpId app.SeqNo
	_, err = nc.Subscribe(proposalSubject, func(msg *nats.Msg) {
		op, err := kv.LoadOp(msg.Data)
		if err != nil {
			fmt.Printf("dropping malformed proposal: %s\n", err)
			return
		}
		nextOpId++
		replica.Propose(0, 1, nextOpId, op)
	})
	if err != nil {
		fatalErr(fmt.Errorf("failed to subscribe to proposals: %w", err))
	}

	// if running in antithesis, signal setup is complete
	lifecycle.SetupComplete(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
