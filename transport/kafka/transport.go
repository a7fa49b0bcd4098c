// Package kafka provides a Kafka-backed cqrskit.EventTransport, adapted
// from the teacher's distribution/kafka publisher/consumer pair but built
// on IBM/sarama's native consumer-group support rather than the
// bsm/sarama-cluster add-on the teacher used, and speaking
// cqrskit.Envelope instead of the teacher's own PublishedEvent wire type.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/IBM/sarama"

	"github.com/go-gadgets/cqrskit"
)

// wireEnvelope is the JSON form an Envelope is published as: Data is
// encoded generically, so a PayloadRegistry on the receiving side is
// needed to know which concrete Go type to decode it back into.
type wireEnvelope struct {
	cqrskit.EventMeta
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// PayloadRegistry maps an event's wire type name back to a concrete Go
// type, so a consumed message's Data can be unmarshalled into the right
// struct. Register every payload type a Transport will ever publish or
// consume before calling Subscribe.
type PayloadRegistry struct {
	byName map[string]reflect.Type
}

// NewPayloadRegistry creates an empty PayloadRegistry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{byName: make(map[string]reflect.Type)}
}

// RegisterPayload adds T to r, keyed by its own Go type name.
func RegisterPayload[T any](r *PayloadRegistry) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	r.byName[t.String()] = t
}

func (r *PayloadRegistry) nameOf(data any) string {
	return reflect.TypeOf(data).String()
}

func (r *PayloadRegistry) newByName(name string) (any, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("cqrskit/kafka: no payload type registered for %q", name)
	}
	return reflect.New(t).Interface(), nil
}

// Transport is a cqrskit.EventTransport backed by a single Kafka topic.
type Transport struct {
	producer sarama.SyncProducer
	brokers  []string
	topic    string
	groupID  string
	registry *PayloadRegistry

	mu    sync.Mutex
	groups []sarama.ConsumerGroup
}

// New creates a Transport. brokers and topic configure both the producer
// used by Publish and any consumer group created by Subscribe; groupID
// names the Kafka consumer group every Subscribe call joins, so multiple
// Transport instances sharing groupID load-balance the topic's partitions
// between them rather than each seeing every message.
func New(brokers []string, topic string, groupID string, registry *PayloadRegistry) (*Transport, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &Transport{
		producer: producer,
		brokers:  brokers,
		topic:    topic,
		groupID:  groupID,
		registry: registry,
	}, nil
}

// Publish implements cqrskit.EventTransport.
func (t *Transport) Publish(ctx context.Context, events []cqrskit.Envelope) error {
	for _, env := range events {
		data, err := json.Marshal(env.Data)
		if err != nil {
			return err
		}
		wire := wireEnvelope{EventMeta: env.EventMeta, EventType: t.registry.nameOf(env.Data), Data: data}
		buf, err := json.Marshal(wire)
		if err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{
			Topic: t.topic,
			Key:   sarama.StringEncoder(env.AggregateID.String()),
			Value: sarama.ByteEncoder(buf),
		}
		if _, _, err := t.producer.SendMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe implements cqrskit.EventTransport by joining the transport's
// consumer group and streaming decoded messages into a Subscription.
// topics filters by EventType name; an empty list subscribes to every
// payload type known to the registry.
func (t *Transport) Subscribe(ctx context.Context, topics []cqrskit.EventType) (cqrskit.Subscription, error) {
	config := sarama.NewConfig()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(t.brokers, t.groupID, config)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.groups = append(t.groups, group)
	t.mu.Unlock()

	sub := &subscription{
		ch:     make(chan cqrskit.Envelope, 256),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		group:  group,
		topics: topicSet(topics),
	}

	handler := &consumerGroupHandler{sub: sub, registry: t.registry}
	go func() {
		defer close(sub.ch)
		for {
			if err := group.Consume(ctx, []string{t.topic}, handler); err != nil {
				select {
				case sub.errs <- err:
				default:
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			default:
			}
		}
	}()

	return sub, nil
}

// Close implements cqrskit.EventTransport, closing the producer and every
// consumer group Subscribe opened.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	groups := t.groups
	t.groups = nil
	t.mu.Unlock()

	for _, g := range groups {
		_ = g.Close()
	}
	return t.producer.Close()
}

func topicSet(topics []cqrskit.EventType) map[string]struct{} {
	if len(topics) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[string(t)] = struct{}{}
	}
	return set
}

type subscription struct {
	ch     chan cqrskit.Envelope
	errs   chan error
	done   chan struct{}
	group  sarama.ConsumerGroup
	topics map[string]struct{}
}

// Next implements cqrskit.Subscription.
func (s *subscription) Next(ctx context.Context) (cqrskit.Envelope, error) {
	select {
	case env, ok := <-s.ch:
		if !ok {
			return cqrskit.Envelope{}, cqrskit.ErrEndOfStream
		}
		return env, nil
	case err := <-s.errs:
		return cqrskit.Envelope{}, err
	case <-ctx.Done():
		return cqrskit.Envelope{}, ctx.Err()
	}
}

// Depth implements cqrskit.Subscription. It reports the number of decoded
// messages buffered locally, not the consumer group's true broker-side
// lag (partition high-water-mark minus committed offset): getting that
// would mean an extra admin API round trip per measurement, which is more
// than a lag estimate used only to decide whether to run catchup is worth.
func (s *subscription) Depth() int {
	return len(s.ch)
}

// Close implements cqrskit.Subscription.
func (s *subscription) Close(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.group.Close()
}

type consumerGroupHandler struct {
	sub      *subscription
	registry *PayloadRegistry
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var wire wireEnvelope
		if err := json.Unmarshal(msg.Value, &wire); err != nil {
			continue
		}
		if h.sub.topics != nil {
			if _, ok := h.sub.topics[wire.EventType]; !ok {
				session.MarkMessage(msg, "")
				continue
			}
		}
		payload, err := h.registry.newByName(wire.EventType)
		if err != nil {
			continue
		}
		if err := json.Unmarshal(wire.Data, payload); err != nil {
			continue
		}

		env := cqrskit.Envelope{
			EventMeta: wire.EventMeta,
			Data:      reflect.ValueOf(payload).Elem().Interface(),
		}

		select {
		case h.sub.ch <- env:
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
	return nil
}
