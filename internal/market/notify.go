package market

import (
	"context"
	"log"

	kafkax "github.com/rizana/marketplace-orders/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
)

// NotificationSink receives every state-change event. Emission is
// best-effort: a sink failure never rolls back the transition that
// produced the event.
type NotificationSink interface {
	Emit(ctx context.Context, ev Envelope)
}

// NopSink drops everything. Used in tests and when brokers are disabled.
type NopSink struct{}

func (NopSink) Emit(context.Context, Envelope) {}

// KafkaSink publishes envelopes to one topic per event kind, partitioned
// by order id so per-order ordering holds across consumers.
type KafkaSink struct {
	producers map[string]*kafkax.Producer
}

func NewKafkaSink(brokers []string, buf int) *KafkaSink {
	s := &KafkaSink{producers: make(map[string]*kafkax.Producer)}
	for _, topic := range []string{
		TopicOrderCreated,
		TopicPaymentFailed,
		TopicItemSold,
		TopicOrderCompleted,
		TopicOrderCancelled,
		TopicOrderRefunded,
	} {
		s.producers[topic] = kafkax.NewProducer(brokers, topic, buf)
	}
	return s
}

func (s *KafkaSink) Start(ctx context.Context) {
	for _, p := range s.producers {
		p.Start(ctx)
	}
}

func (s *KafkaSink) Emit(ctx context.Context, ev Envelope) {
	topic, ok := TopicFor(ev.EventType)
	if !ok {
		log.Printf("sink: unknown event type %q dropped", ev.EventType)
		return
	}
	p, ok := s.producers[topic]
	if !ok {
		log.Printf("sink: no producer for topic %q", topic)
		return
	}
	p.Publish(PartitionKey(ev.CorrelationID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Close closes every producer inbox so buffered events get flushed.
func (s *KafkaSink) Close() {
	for _, p := range s.producers {
		p.Close()
	}
}

func (s *KafkaSink) WaitClosed() {
	for _, p := range s.producers {
		p.WaitClosed()
	}
}
