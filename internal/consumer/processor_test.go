package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"activity_id":"abc"}`)
	msg := framedMessage(10, 42, payload, "activity.completed", "tenant-1")

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, testLogger(t)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "activity.completed", handler.last.EventType)
	require.Equal(t, "tenant-1", handler.last.TenantID)
	require.Equal(t, "tracker.activity_completed-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.Equal(t, "tenant-1:user-1", handler.last.Key)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorHoldsOffsetWhileHandlerFails(t *testing.T) {
	failing := framedMessage(50, 99, []byte(`{}`), "activity.completed", "tenant-2")
	next := framedMessage(51, 99, []byte(`{}`), "activity.completed", "tenant-2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{messages: []kafka.Message{failing, next}}
	handler := &stubHandler{err: errors.New("database unavailable")}
	handler.onCall = func(calls int) {
		if calls == 7 {
			cancel()
		}
	}
	before := testutil.ToFloat64(transientFailures.WithLabelValues("activity.completed"))

	err := NewProcessor(reader, handler, testLogger(t), WithRetry(3, time.Millisecond)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 7, handler.calls, "two full retry rounds and the start of a third")
	require.Equal(t, 1, reader.index, "the next record is not fetched while one is held")
	for _, offset := range handler.offsets {
		require.Equal(t, int64(50), offset)
	}
	require.Empty(t, reader.committed)
	require.InDelta(t, before+7, testutil.ToFloat64(transientFailures.WithLabelValues("activity.completed")), 0.0001)
	require.Zero(t, testutil.ToFloat64(heldPartitions))
}

func TestProcessorCommitsInOrderOnceHeldRecordSucceeds(t *testing.T) {
	failing := framedMessage(50, 99, []byte(`{}`), "activity.completed", "tenant-2")
	next := framedMessage(51, 99, []byte(`{}`), "activity.completed", "tenant-2")

	reader := &stubReader{messages: []kafka.Message{failing, next}}
	transient := errors.New("deadlock detected")
	handler := &stubHandler{errs: []error{transient, transient, transient, transient, nil}}

	err := NewProcessor(reader, handler, testLogger(t), WithRetry(3, time.Millisecond)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, []int64{50, 50, 50, 50, 50, 51}, handler.offsets)
	require.Equal(t, []int64{50, 51}, reader.committed)
}

func TestProcessorRecoversAfterTransientError(t *testing.T) {
	msg := framedMessage(21, 1, []byte(`{}`), "activity.completed", "tenant-2")

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{errs: []error{errors.New("deadlock"), nil}}

	err := NewProcessor(reader, handler, testLogger(t), WithRetry(3, time.Millisecond)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 2, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorCommitsPermanentFailures(t *testing.T) {
	msg := framedMessage(30, 1, []byte(`{}`), "activity.completed", "tenant-3")

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{err: fmt.Errorf("%w: bad payload", ErrPermanent)}

	err := NewProcessor(reader, handler, testLogger(t), WithRetry(5, time.Millisecond)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls, "permanent failures are not retried")
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	missingHeader := framedMessage(40, 1, []byte(`{}`), "", "")
	missingHeader.Headers = nil
	unframed := kafka.Message{Topic: "tracker.activity_completed", Offset: 41, Value: []byte(`{"raw":true}`)}

	reader := &stubReader{messages: []kafka.Message{missingHeader, unframed}}
	handler := &stubHandler{}
	before := testutil.ToFloat64(committedRecords.WithLabelValues(outcomeUndecodable))

	err := NewProcessor(reader, handler, testLogger(t)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
	require.InDelta(t, before+2, testutil.ToFloat64(committedRecords.WithLabelValues(outcomeUndecodable)), 0.0001)
}

func TestProcessorStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &stubReader{}
	err := NewProcessor(reader, &stubHandler{}, testLogger(t)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, reader.index)
}

func framedMessage(offset int64, schemaID uint32, payload []byte, eventType, tenantID string) kafka.Message {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)

	return kafka.Message{
		Topic:     "tracker.activity_completed",
		Partition: 0,
		Offset:    offset,
		Key:       []byte(tenantID + ":user-1"),
		Time:      time.Now().UTC(),
		Value:     value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "tenant_id", Value: []byte(tenantID)},
			{Key: "schema_subject", Value: []byte("tracker.activity_completed-value")},
		},
	}
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	committed   []int64
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.commitCalls += len(msgs)
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls   int
	err     error
	errs    []error
	last    Message
	offsets []int64
	onCall  func(calls int)
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	h.offsets = append(h.offsets, msg.Offset)
	if h.onCall != nil {
		h.onCall(h.calls)
	}
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return err
	}
	return h.err
}

func testLogger(t *testing.T) Option {
	return WithLogger(log.New(testWriter{t}, "", 0))
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
