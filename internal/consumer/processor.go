// Package consumer reads tracker events from Kafka and feeds them to the game engine.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/conquest/internal/events"
)

// ErrPermanent marks handler failures that will never succeed on retry. The
// processor commits such messages instead of retrying them. Any other handler
// error holds the offset until the record is handled.
var ErrPermanent = errors.New("permanent handler failure")

// Reader exposes the subset of kafka.Reader used by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Message is a decoded Kafka record.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Key           string
	Timestamp     time.Time
	EventType     string
	TenantID      string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetry sets how often a failing handler is retried and the initial backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader   Reader
	handler  Handler
	logger   *log.Logger
	attempts int
	backoff  time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		logger:   log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
		attempts: 3,
		backoff:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until ctx is cancelled.
//
// A record that keeps failing with a transient error holds its partition: the
// next record is not fetched until it is handled or fails permanently, so no
// later commit can move the group offset past it.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			// Commit malformed messages to avoid poison-pill loops.
			if p.commit(ctx, msg) {
				recordCommitted(outcomeUndecodable, msg.Time)
			}
			continue
		}

		outcome, err := p.settle(ctx, event)
		if err != nil {
			return err
		}
		if p.commit(ctx, msg) {
			recordCommitted(outcome, msg.Time)
		}
	}
}

// settle handles event until it succeeds or fails permanently. It only
// returns an error once ctx is done.
func (p *Processor) settle(ctx context.Context, event Message) (string, error) {
	defer setHeld(false)

	for {
		err := p.handle(ctx, event)
		switch {
		case err == nil:
			return outcomeHandled, nil
		case errors.Is(err, ErrPermanent):
			p.logger.Printf("dropping message (event_type=%s, tenant=%s, offset=%d): %v", event.EventType, event.TenantID, event.Offset, err)
			return outcomeDropped, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		setHeld(true)
		delay := p.holdDelay()
		p.logger.Printf("holding offset %d (event_type=%s, tenant=%s) after %d attempts, retrying in %s: %v",
			event.Offset, event.EventType, event.TenantID, p.attempts, delay, err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
}

// handle retries transient handler failures with doubling backoff.
func (p *Processor) handle(ctx context.Context, event Message) error {
	delay := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = p.handler.Handle(ctx, event)
		if err == nil || errors.Is(err, ErrPermanent) {
			return err
		}
		recordTransientFailure(event.EventType)
		if attempt == p.attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, maxHoldDelay)
	}
	return err
}

// maxHoldDelay caps the pause between retry rounds of a held record.
const maxHoldDelay = 30 * time.Second

func (p *Processor) holdDelay() time.Duration {
	delay := p.backoff
	for range p.attempts {
		delay *= 2
		if delay >= maxHoldDelay {
			return maxHoldDelay
		}
	}
	return delay
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Printf("commit error (topic=%s, offset=%d): %v", msg.Topic, msg.Offset, err)
		return false
	}
	return true
}

func decodeMessage(msg kafka.Message) (Message, error) {
	schemaID, payload, err := events.DecodeWireFormat(msg.Value)
	if err != nil {
		return Message{}, fmt.Errorf("%w (length %d)", err, len(msg.Value))
	}

	eventType, ok := headerValue(msg, events.HeaderEventType)
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	tenantID, _ := headerValue(msg, events.HeaderTenantID)
	schemaSubject, _ := headerValue(msg, events.HeaderSchemaSubject)

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Key:           string(msg.Key),
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		TenantID:      string(tenantID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       json.RawMessage(append([]byte(nil), payload...)),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
