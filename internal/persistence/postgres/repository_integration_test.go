//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/game"
)

func newTestRepository(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("conquest"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations are idempotent")

	return NewRepository(pool), pool
}

func TestRecordActivityPersistsStateAndOutbox(t *testing.T) {
	ctx := context.Background()
	repo, pool := newTestRepository(t)

	now := time.Date(2025, time.June, 1, 7, 0, 0, 0, time.UTC)
	svc := domain.NewService(repo, domain.WithClock(func() time.Time { return now }))

	tenantID := uuid.NewString()
	in := domain.RecordActivityInput{
		TenantID:             tenantID,
		UserID:               "user-1",
		Type:                 game.ActivityRun,
		DistanceKm:           5,
		DurationSec:          1000,
		TerritoriesConquered: 1,
		Source:               "integration-test",
		IdempotencyKey:       "key-1",
	}

	first, err := svc.RecordActivity(ctx, in)
	require.NoError(t, err)
	require.False(t, first.Replayed)
	require.Equal(t, 275, first.Activity.XPEarned)

	again, err := svc.RecordActivity(ctx, in)
	require.NoError(t, err)
	require.True(t, again.Replayed)
	require.Equal(t, first.Activity.ID, again.Activity.ID)

	profile, err := repo.GetProfile(ctx, tenantID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, first.Profile.Experience, profile.Experience)
	require.Equal(t, 1, profile.ActivityCount)

	missions, err := svc.DailyMissions(ctx, tenantID, "user-1")
	require.NoError(t, err)
	require.Len(t, missions, game.DefaultMissionCount)

	items, next, err := repo.ListActivities(ctx, tenantID, "user-1", nil, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Nil(t, next)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE tenant_id=$1 AND event_type='activity.recorded'`, tenantID).Scan(&outboxRows))
	require.Equal(t, 1, outboxRows)

	other, err := repo.GetActivity(ctx, uuid.NewString(), first.Activity.ID)
	require.NoError(t, err)
	require.Nil(t, other, "activities are scoped to their tenant")
}

func TestTerritoryChallengeLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)

	now := time.Date(2025, time.June, 1, 7, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := domain.NewService(repo, domain.WithClock(func() time.Time { return clock() }))

	tenantID := uuid.NewString()
	claimed, err := svc.ClaimTerritory(ctx, domain.ClaimTerritoryInput{TenantID: tenantID, UserID: "alice", Name: "Park", DistanceKm: 3})
	require.NoError(t, err)

	_, err = svc.ClaimTerritory(ctx, domain.ClaimTerritoryInput{TenantID: tenantID, UserID: "bob", TerritoryID: claimed.Territory.ID})
	require.ErrorIs(t, err, game.ErrTerritoryProtected)

	later := now.Add(25 * time.Hour)
	clock = func() time.Time { return later }
	conquered, err := svc.ClaimTerritory(ctx, domain.ClaimTerritoryInput{TenantID: tenantID, UserID: "bob", TerritoryID: claimed.Territory.ID})
	require.NoError(t, err)
	require.Equal(t, domain.TerritoryConquered, conquered.Action)

	owned, err := repo.ListTerritoriesByOwner(ctx, tenantID, "bob")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, 2, owned[0].ConquestCount)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
