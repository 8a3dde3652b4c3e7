package collaboration

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

/*
LEARNING: CROSS-INSTANCE FAN-OUT WITH REDIS PUB/SUB

With more than one server behind a load balancer, two editors of the same
document may be connected to different instances. Every instance publishes
the deltas it accepts to one Redis channel and delivers what the others
published to its own local members.

Each instance tags its envelopes with a random instance id and ignores
its own, so a delta is never delivered twice on the instance that relayed
it locally. One subscription goroutine handles messages in the order Redis
delivers them, which keeps per-sender order across instances too.
*/

// Envelope is the message published on the bus.
type Envelope struct {
	Instance string          `json:"instance"`
	Sender   string          `json:"sender"`
	Document string          `json:"document"`
	Delta    json.RawMessage `json:"delta"`
}

// RedisBus publishes and receives deltas through a Redis channel.
type RedisBus struct {
	client   *redis.Client
	channel  string
	instance string
}

func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	return &RedisBus{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
	}
}

// Instance returns the id this instance stamps on its envelopes.
func (b *RedisBus) Instance() string {
	return b.instance
}

// Publish sends msg for documentID to the other instances.
func (b *RedisBus) Publish(ctx context.Context, documentID, senderID string, msg []byte) error {
	payload, err := b.encode(documentID, senderID, msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", b.channel, err)
	}
	return nil
}

// Run subscribes to the channel and calls deliver for every envelope from
// another instance until ctx is cancelled.
func (b *RedisBus) Run(ctx context.Context, deliver func(context.Context, Envelope) int) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	log.Printf("✓ Subscribed to delta bus %s as instance %s", b.channel, b.instance)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, ok := b.decode(msg.Payload)
			if !ok {
				continue
			}
			deliver(ctx, env)
		}
	}
}

func (b *RedisBus) encode(documentID, senderID string, msg []byte) ([]byte, error) {
	payload, err := json.Marshal(Envelope{
		Instance: b.instance,
		Sender:   senderID,
		Document: documentID,
		Delta:    msg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return payload, nil
}

// decode returns the envelope and whether it should be delivered locally.
func (b *RedisBus) decode(payload string) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Printf("⚠️  Ignoring undecodable bus message: %v", err)
		return Envelope{}, false
	}
	if env.Instance == b.instance {
		return Envelope{}, false
	}
	if env.Document == "" || len(env.Delta) == 0 {
		log.Printf("⚠️  Ignoring incomplete bus message from instance %s", env.Instance)
		return Envelope{}, false
	}
	return env, true
}
