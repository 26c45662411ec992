package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/conquest/internal/events"
)

func TestDeliverFramesAndGroupsByTopic(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := &Dispatcher{producer: producer, registry: registry}

	msgs := []Message{
		newMessage(1, events.TypeActivityRecorded),
		newMessage(2, events.TypeTerritoryConquered),
		newMessage(3, events.TypeLevelReached),
	}

	failures := d.deliver(context.Background(), msgs)
	require.Empty(t, failures)
	require.Len(t, producer.writes, 2)

	require.Equal(t, events.TopicGamification, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, events.TopicTerritory, producer.writes[1].topic)

	record := producer.writes[0].messages[0]
	assert.Equal(t, []byte("tenant-1:user-1"), record.Key)

	id, payload, err := events.DecodeWireFormat(record.Value)
	require.NoError(t, err)
	assert.Equal(t, 42, id)
	assert.JSONEq(t, `{"tenant_id":"tenant-1"}`, string(payload))

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, events.TypeActivityRecorded, headers[events.HeaderEventType])
	assert.Equal(t, "tenant-1", headers[events.HeaderTenantID])
	assert.Equal(t, msgs[0].SchemaSubject, headers[events.HeaderSchemaSubject])
}

func TestDeliverCachesSchemaIDs(t *testing.T) {
	registry := &stubRegistry{id: 7}
	d := &Dispatcher{producer: &stubProducer{}, registry: registry}

	msgs := []Message{newMessage(1, events.TypeActivityRecorded), newMessage(2, events.TypeActivityRecorded)}
	require.Empty(t, d.deliver(context.Background(), msgs))
	require.Empty(t, d.deliver(context.Background(), msgs))

	assert.Len(t, registry.calls, 1)
}

func TestDeliverUnknownEventFailsOnlyThatMessage(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 1}
	d := &Dispatcher{producer: producer, registry: registry}

	failures := d.deliver(context.Background(), []Message{
		newMessage(1, "activity.unknown"),
		newMessage(2, events.TypeActivityRecorded),
	})

	require.Len(t, failures, 1)
	assert.Equal(t, int64(1), failures[0].msg.EventID)
	assert.Contains(t, failures[0].reason, "no schema metadata for event_type=activity.unknown")
	require.Len(t, producer.writes, 1)
	assert.Len(t, producer.writes[0].messages, 1)
}

func TestDeliverWriteErrorFailsTopicBatch(t *testing.T) {
	producer := &stubProducer{failTopic: events.TopicTerritory, err: errors.New("broker unavailable")}
	d := &Dispatcher{producer: producer, registry: &stubRegistry{id: 3}}

	failures := d.deliver(context.Background(), []Message{
		newMessage(1, events.TypeTerritoryConquered),
		newMessage(2, events.TypeActivityRecorded),
		newMessage(3, events.TypeTerritoryConquered),
	})

	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, events.TopicTerritory, f.msg.Topic)
		assert.Equal(t, "broker unavailable", f.reason)
	}
}

func TestDeliverRegistryErrorIsReported(t *testing.T) {
	d := &Dispatcher{producer: &stubProducer{}, registry: &stubRegistry{err: errors.New("registry down")}}

	failures := d.deliver(context.Background(), []Message{newMessage(1, events.TypeMissionCompleted)})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].reason, "registry down")
}

func TestSchemaCatalogCoversEveryRoutedEvent(t *testing.T) {
	for _, eventType := range []string{events.TypeActivityRecorded, events.TypeLevelReached, events.TypeMissionCompleted, events.TypeTerritoryConquered} {
		_, routed := events.RouteFor(eventType)
		_, hasSchema := schemaFor(eventType)
		assert.True(t, routed, eventType)
		assert.True(t, hasSchema, eventType)
	}
}

func newMessage(id int64, eventType string) Message {
	route, ok := events.RouteFor(eventType)
	if !ok {
		route = events.Route{Topic: events.TopicGamification, SchemaSubject: events.TopicGamification + "-unknown-value"}
	}
	return Message{
		EventID:       id,
		TenantID:      "tenant-1",
		AggregateType: "activity",
		AggregateID:   "agg-1",
		EventType:     eventType,
		Topic:         route.Topic,
		SchemaSubject: route.SchemaSubject,
		PartitionKey:  "tenant-1:user-1",
		Payload:       []byte(`{"tenant_id":"tenant-1"}`),
	}
}

type stubProducer struct {
	mu        sync.Mutex
	err       error
	failTopic string
	writes    []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil && (s.failTopic == "" || s.failTopic == topic) {
		return s.err
	}
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []string
}

func (s *stubRegistry) EnsureSchema(_ context.Context, subject string, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, subject)
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}
