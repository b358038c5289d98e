package transfer

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/antithesishq/antithesis-sdk-go/assert"
	"github.com/nats-io/nats.go"

	"smr-exec/app"
	"smr-exec/state"
)

const SubjectPrefix = "SMR"

// checkpointEnvelope is the wire form of an AppStateMessage.
type checkpointEnvelope struct {
	From       string   `json:"from"`
	SeqNo      uint64   `json:"seqNo"`
	Descriptor []byte   `json:"descriptor"`
	Parts      [][]byte `json:"parts"`
}

func (env *checkpointEnvelope) Bytes() []byte {
	bytes, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return bytes
}

func loadCheckpointEnvelope(data []byte) (checkpointEnvelope, error) {
	var env checkpointEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return checkpointEnvelope{}, fmt.Errorf("failed to load checkpoint envelope: %w", err)
	}
	return env, nil
}

// NatsConduit ships checkpoints between the replicas of a group over NATS.
type NatsConduit struct {
	conn  *nats.Conn
	codec Codec

	groupID           string
	checkpointSubject string
}

func NewNatsConduit(groupID, natsURL string, codec Codec) (*NatsConduit, error) {
	nc, err := nats.Connect(
		natsURL,
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &NatsConduit{
		conn:              nc,
		codec:             codec,
		groupID:           groupID,
		checkpointSubject: fmt.Sprintf("%s.%s.checkpoint", SubjectPrefix, groupID),
	}, nil
}

func (c *NatsConduit) Log(format string, args ...any) {
	log.Printf("TRANSFER-"+c.groupID+": "+format, args...)
}

func (c *NatsConduit) PublishCheckpoint(from string, msg state.AppStateMessage) error {
	descriptor, err := c.codec.EncodeDescriptor(msg.Descriptor())
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint descriptor: %w", err)
	}

	parts := make([][]byte, 0, len(msg.AlteredParts()))
	for _, part := range msg.AlteredParts() {
		encoded, err := c.codec.EncodePart(part)
		if err != nil {
			return fmt.Errorf("failed to encode checkpoint part: %w", err)
		}
		parts = append(parts, encoded)
	}

	env := checkpointEnvelope{
		From:       from,
		SeqNo:      uint64(msg.SequenceNumber()),
		Descriptor: descriptor,
		Parts:      parts,
	}
	if err := c.conn.Publish(c.checkpointSubject, env.Bytes()); err != nil {
		return fmt.Errorf("failed to publish checkpoint: %w", err)
	}
	return nil
}

func (c *NatsConduit) RegisterReplica(id string, receiver Receiver) error {
	_, err := c.conn.Subscribe(c.checkpointSubject, func(msg *nats.Msg) {
		env, err := loadCheckpointEnvelope(msg.Data)
		if err != nil {
			c.Log("dropping malformed checkpoint: %s", err)
			return
		}
		if env.From == id {
			return
		}

		decoded, err := c.decode(env)
		if err != nil {
			c.Log("dropping undecodable checkpoint from %s: %s", env.From, err)
			return
		}
		if err := deliverSession(receiver, decoded); err != nil {
			c.Log("failed to hand checkpoint from %s to %s: %s", env.From, id, err)
		}
	})
	if err != nil {
		assert.Unreachable(
			"Failed to subscribe to checkpoint subject",
			map[string]any{
				"subject": c.checkpointSubject,
				"error":   err.Error(),
			},
		)
		return fmt.Errorf("failed to subscribe to %s: %w", c.checkpointSubject, err)
	}
	return nil
}

func (c *NatsConduit) decode(env checkpointEnvelope) (state.AppStateMessage, error) {
	descriptor, err := c.codec.DecodeDescriptor(env.Descriptor)
	if err != nil {
		return state.AppStateMessage{}, err
	}
	parts := make([]state.StatePart, 0, len(env.Parts))
	for _, encoded := range env.Parts {
		part, err := c.codec.DecodePart(encoded)
		if err != nil {
			return state.AppStateMessage{}, err
		}
		parts = append(parts, part)
	}
	return state.NewAppStateMessage(app.SeqNo(env.SeqNo), descriptor, parts), nil
}

func (c *NatsConduit) Close() {
	c.conn.Close()
}
