package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type topicWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer keeps one writer per gamification topic. Records are hashed
// by key so every event for a user or territory lands on the same partition.
type KafkaProducer struct {
	mu      sync.Mutex
	writers map[string]topicWriter
	open    func(topic string) topicWriter
}

// NewKafkaProducer creates a KafkaProducer for brokers.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	addr := kafka.TCP(brokers...)
	return newProducer(func(topic string) topicWriter {
		return &kafka.Writer{
			Addr:         addr,
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			BatchTimeout: 50 * time.Millisecond,
		}
	})
}

func newProducer(open func(topic string) topicWriter) *KafkaProducer {
	return &KafkaProducer{writers: make(map[string]topicWriter), open: open}
}

// WriteMessages publishes msgs to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) topicWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[topic]
	if !ok {
		w = p.open(topic)
		p.writers[topic] = w
	}
	return w
}

// Close flushes and closes every writer opened so far.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close writer for %s: %w", topic, err))
		}
	}
	clear(p.writers)
	return errs
}
