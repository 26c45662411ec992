package domain

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockRepository is a testify mock of Repository. The Update methods look up
// the stored state through Called, run the callback against it and keep the
// resulting change so tests can inspect what would have been written.
type mockRepository struct {
	mock.Mock

	userChanges      []UserChange
	territoryChanges []TerritoryChange
}

func (m *mockRepository) FindActivityByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*ActivityAggregate, error) {
	args := m.Called(ctx, tenantID, userID, idempotencyKey)
	agg, _ := args.Get(0).(*ActivityAggregate)
	return agg, args.Error(1)
}

func (m *mockRepository) GetActivity(ctx context.Context, tenantID, activityID string) (*ActivityAggregate, error) {
	args := m.Called(ctx, tenantID, activityID)
	agg, _ := args.Get(0).(*ActivityAggregate)
	return agg, args.Error(1)
}

func (m *mockRepository) ListActivities(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]ActivityAggregate, *Cursor, error) {
	args := m.Called(ctx, tenantID, userID, cursor, limit)
	items, _ := args.Get(0).([]ActivityAggregate)
	next, _ := args.Get(1).(*Cursor)
	return items, next, args.Error(2)
}

func (m *mockRepository) GetProfile(ctx context.Context, tenantID, userID string) (*Profile, error) {
	args := m.Called(ctx, tenantID, userID)
	p, _ := args.Get(0).(*Profile)
	return p, args.Error(1)
}

func (m *mockRepository) UpdateUser(ctx context.Context, tenantID, userID, day string, fn func(UserState) (UserChange, error)) error {
	args := m.Called(ctx, tenantID, userID, day)
	state, _ := args.Get(0).(UserState)
	change, err := fn(state)
	if err != nil {
		return err
	}
	if err := args.Error(1); err != nil {
		return err
	}
	m.userChanges = append(m.userChanges, change)
	return nil
}

func (m *mockRepository) GetTerritory(ctx context.Context, tenantID, territoryID string) (*TerritoryAggregate, error) {
	args := m.Called(ctx, tenantID, territoryID)
	t, _ := args.Get(0).(*TerritoryAggregate)
	return t, args.Error(1)
}

func (m *mockRepository) ListTerritoriesByOwner(ctx context.Context, tenantID, ownerID string) ([]TerritoryAggregate, error) {
	args := m.Called(ctx, tenantID, ownerID)
	items, _ := args.Get(0).([]TerritoryAggregate)
	return items, args.Error(1)
}

func (m *mockRepository) UpdateTerritory(ctx context.Context, tenantID, territoryID string, fn func(*TerritoryAggregate) (TerritoryChange, error)) error {
	args := m.Called(ctx, tenantID, territoryID)
	current, _ := args.Get(0).(*TerritoryAggregate)
	change, err := fn(current)
	if err != nil {
		return err
	}
	if err := args.Error(1); err != nil {
		return err
	}
	m.territoryChanges = append(m.territoryChanges, change)
	return nil
}

func (m *mockRepository) lastUserChange() UserChange {
	return m.userChanges[len(m.userChanges)-1]
}
