package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/events"
	"example.com/conquest/internal/game"
)

// ActivityRecorder is the slice of domain.Service the handler needs.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, in domain.RecordActivityInput) (*domain.ActivityResult, error)
}

// ActivityHandler scores tracker activity.completed events. The tracker's
// activity id doubles as the idempotency key so redelivered records replay.
type ActivityHandler struct {
	recorder ActivityRecorder
	logger   *log.Logger
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(recorder ActivityRecorder, logger *log.Logger) *ActivityHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &ActivityHandler{recorder: recorder, logger: logger}
}

// Handle implements Handler.
func (h *ActivityHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeActivityCompleted {
		recordIgnored(msg.EventType)
		return nil
	}

	var evt events.ActivityCompleted
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrPermanent, msg.EventType, err)
	}
	tenantID := evt.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}
	if evt.ActivityID == "" {
		return fmt.Errorf("%w: activity_id is required", ErrPermanent)
	}

	result, err := h.recorder.RecordActivity(ctx, domain.RecordActivityInput{
		TenantID:             tenantID,
		UserID:               evt.UserID,
		ActivityID:           evt.ActivityID,
		Type:                 game.ActivityType(evt.ActivityType),
		DistanceKm:           evt.DistanceKm,
		DurationSec:          evt.DurationSec,
		AvgSpeedKmh:          evt.AvgSpeedKmh,
		TerritoriesConquered: evt.TerritoriesConquered,
		StartedAt:            evt.StartedAt,
		WeightKg:             evt.WeightKg,
		Source:               "tracker",
		IdempotencyKey:       evt.ActivityID,
	})
	if errors.Is(err, domain.ErrInvalidInput) {
		recordActivity(activityTypeLabel(evt.ActivityType), activityRejected)
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if err != nil {
		return err
	}

	if result.Replayed {
		recordActivity(activityTypeLabel(evt.ActivityType), activityReplayed)
		h.logger.Printf("activity %s already scored, skipping", evt.ActivityID)
		return nil
	}
	recordActivity(activityTypeLabel(evt.ActivityType), activityScored)
	if result.LeveledUp() {
		h.logger.Printf("user %s reached level %d (%s)", evt.UserID, result.Profile.Level, game.TitleForLevel(result.Profile.Level))
	}
	return nil
}

// activityTypeLabel bounds metric label values to the scored activity types.
func activityTypeLabel(raw string) string {
	if t := game.ActivityType(raw); t.IsValid() {
		return string(t)
	}
	return "unknown"
}
