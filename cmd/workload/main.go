package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/antithesishq/antithesis-sdk-go/lifecycle"
	"github.com/nats-io/nats.go"

	"smr-exec/kv"
	"smr-exec/transfer"
)

func main() {
	var (
		groupId string
		natsUrl string
		rate    time.Duration
	)
	flag.StringVar(&groupId, "group-id", "", "replication group id")
	flag.StringVar(&natsUrl, "nats-url", nats.DefaultURL, "nats url")
	flag.DurationVar(&rate, "rate", 500*time.Millisecond, "interval between proposals")
	flag.Parse()

	fatalErr := func(err error) {
		fmt.Println(err)
		os.Exit(1)
	}

	if groupId == "" {
		fatalErr(fmt.Errorf("missing required argument: group-id"))
	}

	nc, err := nats.Connect(natsUrl)
	if err != nil {
		fatalErr(fmt.Errorf("failed to connect: %w", err))
	}
	defer nc.Close()

	// if running in antithesis, signal setup is complete
	lifecycle.SetupComplete(nil)

	proposalSubject := fmt.Sprintf("%s.%s.proposal", transfer.SubjectPrefix, groupId)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	value := make([]byte, 16)

	proposed := 0
	for range time.Tick(rate) {
		rng.Read(value)
		op := kv.Op{
			Kind:  kv.OpPut,
			Key:   fmt.Sprintf("key-%d", rng.Intn(1000)),
			Value: append([]byte(nil), value...),
		}
		if err := nc.Publish(proposalSubject, op.Bytes()); err != nil {
			fmt.Printf("failed to publish proposal: %s\n", err)
			continue
		}
		proposed++
		if proposed%100 == 0 {
			fmt.Printf("proposed %d ops\n", proposed)
		}
	}
}
