// Package domain orchestrates the game engine over persistent user, activity
// and territory state.
package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/conquest/internal/events"
	"example.com/conquest/internal/game"
	"example.com/conquest/internal/observability"
)

var (
	// ErrIdempotentReplay indicates an existing activity was found for the provided idempotency key.
	ErrIdempotentReplay = errors.New("activity already exists for idempotency key")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrProfileNotFound is returned for users that never recorded an activity.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrTerritoryNotFound is returned when a territory id is unknown.
	ErrTerritoryNotFound = errors.New("territory not found")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Repository captures persistence operations. Lookups return nil, nil when
// nothing matches. The Update methods run fn while holding a write lock on the
// user or territory and persist the returned change atomically with its events.
type Repository interface {
	FindActivityByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*ActivityAggregate, error)
	GetActivity(ctx context.Context, tenantID, activityID string) (*ActivityAggregate, error)
	ListActivities(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]ActivityAggregate, *Cursor, error)
	GetProfile(ctx context.Context, tenantID, userID string) (*Profile, error)
	UpdateUser(ctx context.Context, tenantID, userID, day string, fn func(UserState) (UserChange, error)) error
	GetTerritory(ctx context.Context, tenantID, territoryID string) (*TerritoryAggregate, error)
	ListTerritoriesByOwner(ctx context.Context, tenantID, ownerID string) ([]TerritoryAggregate, error)
	UpdateTerritory(ctx context.Context, tenantID, territoryID string, fn func(*TerritoryAggregate) (TerritoryChange, error)) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRules replaces the default policy and mission catalog.
func WithRules(policy game.Policy, catalog []game.MissionTemplate) Option {
	return func(s *Service) {
		s.policy = policy
		if len(catalog) > 0 {
			s.catalog = catalog
		}
	}
}

// Service orchestrates game workflows.
type Service struct {
	repo    Repository
	policy  game.Policy
	catalog []game.MissionTemplate
	now     func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		policy:  game.DefaultPolicy(),
		catalog: game.DefaultCatalog(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the rules the service scores with.
func (s *Service) Policy() game.Policy {
	return s.policy
}

// RecordActivityInput captures a finished activity from the API or the tracker.
type RecordActivityInput struct {
	TenantID             string
	UserID               string
	ActivityID           string
	Type                 game.ActivityType
	DistanceKm           float64
	DurationSec          int
	AvgSpeedKmh          float64
	TerritoriesConquered int
	StartedAt            time.Time
	Source               string
	WeightKg             float64
	IdempotencyKey       string
}

// Limits on a single recorded activity.
const (
	MaxTerritoriesPerActivity = 1000
	MaxDistanceKm             = 1000.0
	MaxDurationSec            = 7 * 24 * 60 * 60
)

// A supplied average speed may exceed the elapsed-time speed by this factor
// plus slack; trackers report moving speed, which excludes pauses.
const (
	speedToleranceFactor = 1.5
	speedToleranceKmh    = 1.0
)

// Validate rejects inputs the engine would silently clamp.
func (in RecordActivityInput) Validate() error {
	switch {
	case strings.TrimSpace(in.TenantID) == "":
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	case strings.TrimSpace(in.UserID) == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	case !in.Type.IsValid():
		return fmt.Errorf("%w: unknown activity type %q", ErrInvalidInput, in.Type)
	case !finiteNonNegative(in.DistanceKm):
		return fmt.Errorf("%w: distance_km must be >= 0", ErrInvalidInput)
	case in.DurationSec < 0:
		return fmt.Errorf("%w: duration_sec must be >= 0", ErrInvalidInput)
	case !finiteNonNegative(in.AvgSpeedKmh):
		return fmt.Errorf("%w: avg_speed_kmh must be >= 0", ErrInvalidInput)
	case in.TerritoriesConquered < 0:
		return fmt.Errorf("%w: territories_conquered must be >= 0", ErrInvalidInput)
	case in.TerritoriesConquered > MaxTerritoriesPerActivity:
		return fmt.Errorf("%w: territories_conquered must be <= %d", ErrInvalidInput, MaxTerritoriesPerActivity)
	case in.DistanceKm > MaxDistanceKm:
		return fmt.Errorf("%w: distance_km must be <= %g", ErrInvalidInput, MaxDistanceKm)
	case in.DurationSec > MaxDurationSec:
		return fmt.Errorf("%w: duration_sec must be <= %d", ErrInvalidInput, MaxDurationSec)
	case !plausibleSpeed(in):
		return fmt.Errorf("%w: avg_speed_kmh %.1f contradicts distance and duration", ErrInvalidInput, in.AvgSpeedKmh)
	}
	return nil
}

func plausibleSpeed(in RecordActivityInput) bool {
	if in.AvgSpeedKmh == 0 || in.DurationSec == 0 {
		return true
	}
	derived := in.DistanceKm / (float64(in.DurationSec) / 3600)
	return in.AvgSpeedKmh <= derived*speedToleranceFactor+speedToleranceKmh
}

// ActivityResult is the outcome of scoring one activity.
type ActivityResult struct {
	Activity          ActivityAggregate
	Profile           Profile
	PreviousLevel     int
	CompletedMissions []MissionAggregate
	Replayed          bool
}

// LeveledUp reports whether the activity moved the profile to a higher level.
func (r ActivityResult) LeveledUp() bool {
	return r.Profile.Level > r.PreviousLevel
}

// RecordActivity scores an activity, advances today's missions, grants
// mission rewards once and levels the profile. A repeated idempotency key
// returns the stored activity with Replayed set.
func (s *Service) RecordActivity(ctx context.Context, in RecordActivityInput) (*ActivityResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" {
		existing, err := s.repo.FindActivityByIdempotency(ctx, in.TenantID, in.UserID, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.replay(ctx, *existing)
		}
	}

	now := s.now().UTC()
	day := now.Format(time.DateOnly)

	var result ActivityResult
	err := s.repo.UpdateUser(ctx, in.TenantID, in.UserID, day, func(state UserState) (UserChange, error) {
		var change UserChange
		result, change = s.score(in, state, now, day)
		return change, nil
	})
	if errors.Is(err, ErrIdempotentReplay) {
		existing, findErr := s.repo.FindActivityByIdempotency(ctx, in.TenantID, in.UserID, in.IdempotencyKey)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return s.replay(ctx, *existing)
	}
	if err != nil {
		return nil, err
	}

	observability.RecordExperienceAwarded(string(result.Activity.Type), result.Activity.XPEarned+result.Activity.MissionXP)
	observability.RecordActivityPersisted(result.Activity.CreatedAt)
	if result.LeveledUp() {
		observability.RecordLevelUp()
	}
	for _, m := range result.CompletedMissions {
		observability.RecordMissionCompleted(string(m.Category))
	}
	return &result, nil
}

func (s *Service) score(in RecordActivityInput, state UserState, now time.Time, day string) (ActivityResult, UserChange) {
	activityID := in.ActivityID
	if activityID == "" {
		activityID = uuid.NewString()
	}
	startedAt := in.StartedAt.UTC()
	if in.StartedAt.IsZero() {
		startedAt = now
	}

	telemetry := game.Activity{
		Type:                 in.Type,
		DistanceKm:           in.DistanceKm,
		DurationSec:          in.DurationSec,
		AvgSpeedKmh:          in.AvgSpeedKmh,
		TerritoriesConquered: in.TerritoriesConquered,
	}

	activity := ActivityAggregate{
		ID:                   activityID,
		TenantID:             in.TenantID,
		UserID:               in.UserID,
		Type:                 in.Type,
		DistanceKm:           in.DistanceKm,
		DurationSec:          in.DurationSec,
		AvgSpeedKmh:          telemetry.Speed(),
		TerritoriesConquered: in.TerritoriesConquered,
		Calories:             game.CaloriesBurned(in.Type, in.DurationSec, in.WeightKg),
		XPEarned:             s.policy.ExperienceAward(telemetry),
		Source:               in.Source,
		StartedAt:            startedAt,
		CreatedAt:            now,
	}

	missions := state.Missions
	if len(missions) == 0 {
		missions = s.seedMissions(in.TenantID, in.UserID, day, now)
	} else {
		missions = append([]MissionAggregate(nil), missions...)
	}

	var completed []MissionAggregate
	var evts []Event
	for i := range missions {
		m := &missions[i]
		if m.CompletedAt != nil {
			continue
		}
		m.Mission = m.Mission.Advance(telemetry)
		if !m.Completed() {
			continue
		}
		completedAt := now
		m.CompletedAt = &completedAt
		activity.MissionXP += m.XPReward
		completed = append(completed, *m)
		evts = append(evts, missionCompletedEvent(*m))
	}

	profile := state.Profile
	if profile.Level == 0 {
		profile = Profile{TenantID: in.TenantID, UserID: in.UserID, Level: 1, CreatedAt: now}
	}
	previousLevel := profile.Level
	profile.Experience = game.AddExperience(profile.Experience, activity.XPEarned+activity.MissionXP)
	profile.Level = s.policy.LevelForExperience(profile.Experience)
	profile.TotalDistanceKm += activity.DistanceKm
	profile.TotalDurationSec += activity.DurationSec
	profile.TotalCalories += activity.Calories
	profile.ActivityCount++
	profile.UpdatedAt = now

	evts = append([]Event{activityRecordedEvent(activity, profile)}, evts...)
	if profile.Level > previousLevel {
		evts = append(evts, levelReachedEvent(profile, previousLevel, now))
	}

	result := ActivityResult{
		Activity:          activity,
		Profile:           profile,
		PreviousLevel:     previousLevel,
		CompletedMissions: completed,
	}
	change := UserChange{
		Activity:       &activity,
		IdempotencyKey: in.IdempotencyKey,
		Profile:        &profile,
		Missions:       missions,
		Events:         evts,
	}
	return result, change
}

func (s *Service) replay(ctx context.Context, activity ActivityAggregate) (*ActivityResult, error) {
	profile, err := s.repo.GetProfile(ctx, activity.TenantID, activity.UserID)
	if err != nil {
		return nil, err
	}
	result := &ActivityResult{Activity: activity, Replayed: true}
	if profile != nil {
		result.Profile = *profile
		result.PreviousLevel = profile.Level
	}
	return result, nil
}

func (s *Service) seedMissions(tenantID, userID, day string, now time.Time) []MissionAggregate {
	rng := game.NewSource(game.DailySeed(tenantID+"/"+userID, now))
	var missions []MissionAggregate
	for seed := range game.GenerateDailyMissions(s.catalog, s.policy.DailyMissionCount, rng) {
		missions = append(missions, MissionAggregate{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			UserID:    userID,
			Day:       day,
			Mission:   game.Mission{MissionSeed: seed},
			CreatedAt: now,
		})
	}
	return missions
}

// DailyMissions returns today's missions for a user, assigning them on first read.
func (s *Service) DailyMissions(ctx context.Context, tenantID, userID string) ([]MissionAggregate, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	day := now.Format(time.DateOnly)

	var missions []MissionAggregate
	err := s.repo.UpdateUser(ctx, tenantID, userID, day, func(state UserState) (UserChange, error) {
		if len(state.Missions) > 0 {
			missions = state.Missions
			return UserChange{}, nil
		}
		missions = s.seedMissions(tenantID, userID, day, now)
		return UserChange{Missions: missions}, nil
	})
	if err != nil {
		return nil, err
	}
	return missions, nil
}

// ProfileView decorates a profile with derived progression data.
type ProfileView struct {
	Profile
	ProgressPercent int
	XPForNextLevel  int
	Title           string
	Color           string
	FormattedXP     string
}

// GetProfile returns the derived view of a user's profile.
func (s *Service) GetProfile(ctx context.Context, tenantID, userID string) (*ProfileView, error) {
	profile, err := s.repo.GetProfile(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	level := s.policy.LevelForExperience(profile.Experience)
	profile.Level = level
	return &ProfileView{
		Profile:         *profile,
		ProgressPercent: s.policy.LevelProgressPercent(profile.Experience, level),
		XPForNextLevel:  s.policy.XPForNextLevel(level),
		Title:           game.TitleForLevel(level),
		Color:           game.ColorForOwner(profile.UserID),
		FormattedXP:     game.FormatExperience(profile.Experience),
	}, nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, tenantID, activityID string) (*ActivityAggregate, error) {
	agg, err := s.repo.GetActivity(ctx, tenantID, activityID)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, ErrActivityNotFound
	}
	return agg, nil
}

// ListActivities fetches a user's activities newest first with cursor pagination.
func (s *Service) ListActivities(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]ActivityAggregate, *Cursor, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.ListActivities(ctx, tenantID, userID, cursor, limit)
}

// TerritoryAction names what a claim did.
type TerritoryAction string

const (
	TerritoryClaimed   TerritoryAction = "claimed"
	TerritoryConquered TerritoryAction = "conquered"
	TerritoryDefended  TerritoryAction = "defended"
)

// ClaimTerritoryInput claims a new territory (empty TerritoryID) or challenges an existing one.
type ClaimTerritoryInput struct {
	TenantID    string
	UserID      string
	TerritoryID string
	Name        string
	DistanceKm  float64
}

// Validate ensures request correctness.
func (in ClaimTerritoryInput) Validate() error {
	switch {
	case strings.TrimSpace(in.TenantID) == "":
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	case strings.TrimSpace(in.UserID) == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	case !finiteNonNegative(in.DistanceKm):
		return fmt.Errorf("%w: distance_km must be >= 0", ErrInvalidInput)
	}
	return nil
}

// TerritoryView decorates a territory with derived state as of a point in time.
type TerritoryView struct {
	TerritoryAggregate
	IsProtected    bool
	ProtectedUntil *time.Time
	Color          string
}

// TerritoryResult is the outcome of ClaimTerritory.
type TerritoryResult struct {
	Territory     TerritoryView
	Action        TerritoryAction
	PreviousOwner string
}

// ClaimTerritory creates, conquers or defends a territory. Challenging a
// protected territory owned by someone else fails with game.ErrTerritoryProtected.
func (s *Service) ClaimTerritory(ctx context.Context, in ClaimTerritoryInput) (*TerritoryResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	id := in.TerritoryID
	isNew := id == ""
	if isNew {
		id = uuid.NewString()
	}
	now := s.now().UTC()

	var result TerritoryResult
	err := s.repo.UpdateTerritory(ctx, in.TenantID, id, func(current *TerritoryAggregate) (TerritoryChange, error) {
		if current == nil {
			if !isNew {
				return TerritoryChange{}, ErrTerritoryNotFound
			}
			agg := TerritoryAggregate{
				ID:        id,
				TenantID:  in.TenantID,
				Name:      in.Name,
				Territory: s.policy.Claim(in.UserID, in.DistanceKm, now),
				CreatedAt: now,
				UpdatedAt: now,
			}
			result = TerritoryResult{Territory: s.viewTerritory(agg, now), Action: TerritoryClaimed}
			return TerritoryChange{Territory: agg, Events: []Event{territoryConqueredEvent(agg, "")}}, nil
		}

		next, err := s.policy.Challenge(current.Territory, in.UserID, now)
		if err != nil {
			return TerritoryChange{}, err
		}
		agg := *current
		agg.Territory = next
		agg.UpdatedAt = now

		if current.OwnerID == in.UserID {
			result = TerritoryResult{Territory: s.viewTerritory(agg, now), Action: TerritoryDefended}
			return TerritoryChange{Territory: agg}, nil
		}
		result = TerritoryResult{Territory: s.viewTerritory(agg, now), Action: TerritoryConquered, PreviousOwner: current.OwnerID}
		return TerritoryChange{Territory: agg, Events: []Event{territoryConqueredEvent(agg, current.OwnerID)}}, nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordTerritoryAction(string(result.Action))
	return &result, nil
}

// GetTerritory returns a territory with protection evaluated now.
func (s *Service) GetTerritory(ctx context.Context, tenantID, territoryID string) (*TerritoryView, error) {
	agg, err := s.repo.GetTerritory(ctx, tenantID, territoryID)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, ErrTerritoryNotFound
	}
	view := s.viewTerritory(*agg, s.now().UTC())
	return &view, nil
}

// ListTerritories returns the territories held by an owner.
func (s *Service) ListTerritories(ctx context.Context, tenantID, ownerID string) ([]TerritoryView, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner_id is required", ErrInvalidInput)
	}
	aggs, err := s.repo.ListTerritoriesByOwner(ctx, tenantID, ownerID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	views := make([]TerritoryView, 0, len(aggs))
	for _, agg := range aggs {
		views = append(views, s.viewTerritory(agg, now))
	}
	return views, nil
}

func (s *Service) viewTerritory(agg TerritoryAggregate, now time.Time) TerritoryView {
	view := TerritoryView{
		TerritoryAggregate: agg,
		IsProtected:        s.policy.IsProtected(agg.LastDefendedAt, now),
		Color:              game.ColorForOwner(agg.OwnerID),
	}
	if view.IsProtected {
		until := agg.LastDefendedAt.Add(s.policy.ProtectionWindow)
		view.ProtectedUntil = &until
	}
	return view
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func userPartitionKey(tenantID, userID string) string {
	return fmt.Sprintf("%s:%s", tenantID, userID)
}

func activityRecordedEvent(a ActivityAggregate, p Profile) Event {
	return Event{
		Type:          events.TypeActivityRecorded,
		AggregateType: "activity",
		AggregateID:   a.ID,
		PartitionKey:  userPartitionKey(a.TenantID, a.UserID),
		DedupeKey:     fmt.Sprintf("%s:%s", a.ID, events.TypeActivityRecorded),
		Payload: events.ActivityRecorded{
			ActivityID:   a.ID,
			TenantID:     a.TenantID,
			UserID:       a.UserID,
			ActivityType: string(a.Type),
			DistanceKm:   a.DistanceKm,
			DurationSec:  a.DurationSec,
			XPEarned:     a.XPEarned,
			MissionXP:    a.MissionXP,
			Calories:     a.Calories,
			TotalXP:      p.Experience,
			Level:        p.Level,
			RecordedAt:   a.CreatedAt,
		},
	}
}

func levelReachedEvent(p Profile, previous int, now time.Time) Event {
	return Event{
		Type:          events.TypeLevelReached,
		AggregateType: "profile",
		AggregateID:   p.UserID,
		PartitionKey:  userPartitionKey(p.TenantID, p.UserID),
		DedupeKey:     fmt.Sprintf("%s:%s:%s:%d", p.TenantID, p.UserID, events.TypeLevelReached, p.Level),
		Payload: events.LevelReached{
			TenantID:      p.TenantID,
			UserID:        p.UserID,
			PreviousLevel: previous,
			Level:         p.Level,
			Title:         game.TitleForLevel(p.Level),
			TotalXP:       p.Experience,
			ReachedAt:     now,
		},
	}
}

func missionCompletedEvent(m MissionAggregate) Event {
	return Event{
		Type:          events.TypeMissionCompleted,
		AggregateType: "mission",
		AggregateID:   m.ID,
		PartitionKey:  userPartitionKey(m.TenantID, m.UserID),
		DedupeKey:     fmt.Sprintf("%s:%s", m.ID, events.TypeMissionCompleted),
		Payload: events.MissionCompleted{
			MissionID:   m.ID,
			TenantID:    m.TenantID,
			UserID:      m.UserID,
			MissionKey:  m.Key,
			Day:         m.Day,
			XPReward:    m.XPReward,
			CompletedAt: *m.CompletedAt,
		},
	}
}

func territoryConqueredEvent(t TerritoryAggregate, previousOwner string) Event {
	return Event{
		Type:          events.TypeTerritoryConquered,
		AggregateType: "territory",
		AggregateID:   t.ID,
		PartitionKey:  t.ID,
		DedupeKey:     fmt.Sprintf("%s:%s:%d", t.ID, events.TypeTerritoryConquered, t.ConquestCount),
		Payload: events.TerritoryConquered{
			TerritoryID:   t.ID,
			TenantID:      t.TenantID,
			OwnerID:       t.OwnerID,
			PreviousOwner: previousOwner,
			RadiusM:       t.RadiusM,
			SizeKm2:       t.SizeKm2,
			ConquestCount: t.ConquestCount,
			ConqueredAt:   t.ConqueredAt,
		},
	}
}
