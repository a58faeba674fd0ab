// Package events carries hook outcomes to observers. Events are published
// after an instruction's outcome is final; they never influence it.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// DefaultTopic is the topic hook events are published on.
const DefaultTopic = "permit_hook.events"

type Kind string

const (
	KindInitialized      Kind = "initialized"
	KindPauseChanged     Kind = "pause_changed"
	KindTtlBoundsChanged Kind = "ttl_bounds_changed"
	KindPermitRedeemed   Kind = "permit_redeemed"
	KindPermitRejected   Kind = "permit_rejected"
)

// Event is the JSON envelope published for every hook outcome.
type Event struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Mint      string `json:"mint"`
	Authority string `json:"authority,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Spender   string `json:"spender,omitempty"`
	Nonce     uint64 `json:"nonce,omitempty"`
	Amount    uint64 `json:"amount,omitempty"`
	Paused    bool   `json:"paused,omitempty"`
	MinTTL    int64  `json:"min_ttl,omitempty"`
	MaxTTL    int64  `json:"max_ttl,omitempty"`
	Code      uint32 `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
	At        int64  `json:"at"`
}

// Publisher delivers events to observers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// WatermillPublisher implements Publisher on top of a Watermill publisher.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{publisher: publisher, topic: topic}
}

// Publish assigns an ID if the event has none and publishes it as JSON.
func (p *WatermillPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("kind", string(ev.Kind))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Decode parses an event payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Kind == "" || ev.Mint == "" {
		return Event{}, fmt.Errorf("decode event: missing kind or mint")
	}
	return ev, nil
}
