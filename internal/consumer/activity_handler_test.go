package consumer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/game"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordActivity(ctx context.Context, in domain.RecordActivityInput) (*domain.ActivityResult, error) {
	args := m.Called(ctx, in)
	result, _ := args.Get(0).(*domain.ActivityResult)
	return result, args.Error(1)
}

func newTestHandler(t *testing.T, recorder ActivityRecorder) *ActivityHandler {
	return NewActivityHandler(recorder, log.New(testWriter{t}, "", 0))
}

func TestActivityHandlerRecordsTrackerActivity(t *testing.T) {
	recorder := &mockRecorder{}
	startedAt := time.Date(2025, time.June, 1, 6, 30, 0, 0, time.UTC)

	recorder.On("RecordActivity", mock.Anything, mock.MatchedBy(func(in domain.RecordActivityInput) bool {
		return in.TenantID == "tenant-1" &&
			in.UserID == "user-1" &&
			in.ActivityID == "act-1" &&
			in.IdempotencyKey == "act-1" &&
			in.Type == game.ActivityBike &&
			in.DistanceKm == 12.5 &&
			in.DurationSec == 2700 &&
			in.TerritoriesConquered == 2 &&
			in.WeightKg == 80 &&
			in.Source == "tracker" &&
			in.StartedAt.Equal(startedAt)
	})).Return(&domain.ActivityResult{Profile: domain.Profile{Level: 2}, PreviousLevel: 1}, nil).Once()
	scored := testutil.ToFloat64(trackerActivities.WithLabelValues("bike", activityScored))

	err := newTestHandler(t, recorder).Handle(context.Background(), Message{
		EventType: "activity.completed",
		TenantID:  "header-tenant",
		Payload: []byte(`{"activity_id":"act-1","tenant_id":"tenant-1","user_id":"user-1","activity_type":"bike",
			"distance_km":12.5,"duration_sec":2700,"territories_conquered":2,"started_at":"2025-06-01T06:30:00Z","weight_kg":80}`),
	})
	require.NoError(t, err)
	recorder.AssertExpectations(t)
	assert.InDelta(t, scored+1, testutil.ToFloat64(trackerActivities.WithLabelValues("bike", activityScored)), 0.0001)
}

func TestActivityHandlerFallsBackToHeaderTenant(t *testing.T) {
	recorder := &mockRecorder{}
	recorder.On("RecordActivity", mock.Anything, mock.MatchedBy(func(in domain.RecordActivityInput) bool {
		return in.TenantID == "header-tenant"
	})).Return(&domain.ActivityResult{Replayed: true}, nil).Once()
	replayed := testutil.ToFloat64(trackerActivities.WithLabelValues("run", activityReplayed))

	err := newTestHandler(t, recorder).Handle(context.Background(), Message{
		EventType: "activity.completed",
		TenantID:  "header-tenant",
		Payload:   []byte(`{"activity_id":"act-2","user_id":"user-1","activity_type":"run","distance_km":3,"duration_sec":900}`),
	})
	require.NoError(t, err)
	recorder.AssertExpectations(t)
	assert.InDelta(t, replayed+1, testutil.ToFloat64(trackerActivities.WithLabelValues("run", activityReplayed)), 0.0001)
}

func TestActivityHandlerIgnoresOtherEventTypes(t *testing.T) {
	recorder := &mockRecorder{}
	ignored := testutil.ToFloat64(ignoredEvents.WithLabelValues("activity.started"))

	err := newTestHandler(t, recorder).Handle(context.Background(), Message{EventType: "activity.started", Payload: []byte(`{}`)})
	require.NoError(t, err)
	recorder.AssertNotCalled(t, "RecordActivity", mock.Anything, mock.Anything)
	assert.InDelta(t, ignored+1, testutil.ToFloat64(ignoredEvents.WithLabelValues("activity.started")), 0.0001)
}

func TestActivityHandlerClassifiesFailures(t *testing.T) {
	valid := []byte(`{"activity_id":"act-3","tenant_id":"t","user_id":"u","activity_type":"swim","distance_km":1,"duration_sec":60}`)

	cases := []struct {
		name      string
		payload   []byte
		err       error
		permanent bool
	}{
		{name: "malformed json", payload: []byte(`{`), permanent: true},
		{name: "missing activity id", payload: []byte(`{"user_id":"u"}`), permanent: true},
		{name: "invalid input", payload: valid, err: fmt.Errorf("%w: unknown activity type", domain.ErrInvalidInput), permanent: true},
		{name: "transient", payload: valid, err: errors.New("connection reset"), permanent: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := &mockRecorder{}
			if tc.err != nil {
				recorder.On("RecordActivity", mock.Anything, mock.Anything).Return(nil, tc.err).Once()
			}

			err := newTestHandler(t, recorder).Handle(context.Background(), Message{EventType: "activity.completed", Payload: tc.payload})
			require.Error(t, err)
			assert.Equal(t, tc.permanent, errors.Is(err, ErrPermanent))
		})
	}
}

func TestActivityHandlerBoundsRejectedTypeLabel(t *testing.T) {
	recorder := &mockRecorder{}
	recorder.On("RecordActivity", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: unknown activity type", domain.ErrInvalidInput)).Once()
	before := testutil.ToFloat64(trackerActivities.WithLabelValues("unknown", activityRejected))

	err := newTestHandler(t, recorder).Handle(context.Background(), Message{
		EventType: "activity.completed",
		Payload:   []byte(`{"activity_id":"act-4","tenant_id":"t","user_id":"u","activity_type":"hoverboard"}`),
	})
	require.ErrorIs(t, err, ErrPermanent)
	assert.InDelta(t, before+1, testutil.ToFloat64(trackerActivities.WithLabelValues("unknown", activityRejected)), 0.0001)
}
