package kafka

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Producer streams order lifecycle events. Writers are created per topic on
// first use and share the broker list; Publish is called from concurrent
// request handlers, so the map is guarded.
type Producer struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *Producer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers: p.brokers,
		Topic:   topic,
	})
	p.writers[topic] = w
	return w
}

// Publish writes a single keyed message to the topic. Keying by order id
// keeps every event for one order on the same partition, in order.
func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.writer(topic).WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: value,
		},
	)
}

// Close shuts down all topic writers.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
