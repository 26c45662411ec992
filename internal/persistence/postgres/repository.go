// Package postgres implements the domain repository on PostgreSQL with a
// transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/events"
	"example.com/conquest/internal/persistence"
)

const uniqueViolation = "23505"

// Repository provides Postgres-backed persistence for game state and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// inTenantTx runs fn in a transaction scoped to tenantID for row-level security.
func (r *Repository) inTenantTx(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const activityColumns = `activity_id, tenant_id, user_id, activity_type, distance_km, duration_sec, avg_speed_kmh,
        territories_conquered, calories, xp_earned, mission_xp, source, started_at, created_at`

func scanActivity(row rowScanner) (domain.ActivityAggregate, error) {
	var a domain.ActivityAggregate
	err := row.Scan(&a.ID, &a.TenantID, &a.UserID, &a.Type, &a.DistanceKm, &a.DurationSec, &a.AvgSpeedKmh,
		&a.TerritoriesConquered, &a.Calories, &a.XPEarned, &a.MissionXP, &a.Source, &a.StartedAt, &a.CreatedAt)
	return a, err
}

// FindActivityByIdempotency checks if an activity already exists for the supplied idempotency key.
func (r *Repository) FindActivityByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.ActivityAggregate, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND user_id=$2 AND idempotency_key=$3`

	var found *domain.ActivityAggregate
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		agg, err := scanActivity(tx.QueryRow(ctx, query, tenantID, userID, idempotencyKey))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &agg
		return nil
	})
	return found, err
}

// GetActivity retrieves an activity by ID.
func (r *Repository) GetActivity(ctx context.Context, tenantID, activityID string) (*domain.ActivityAggregate, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND activity_id=$2`

	var found *domain.ActivityAggregate
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		agg, err := scanActivity(tx.QueryRow(ctx, query, tenantID, activityID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &agg
		return nil
	})
	return found, err
}

// ListActivities returns activities for a user ordered newest first.
func (r *Repository) ListActivities(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityAggregate, *domain.Cursor, error) {
	args := []any{tenantID, userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND user_id=$2`
	if cursor != nil {
		query += ` AND (started_at, activity_id) < ($4, $5)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}
	query += ` ORDER BY started_at DESC, activity_id DESC LIMIT $3`

	results := make([]domain.ActivityAggregate, 0, limit)
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			agg, err := scanActivity(rows)
			if err != nil {
				return err
			}
			results = append(results, agg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}
	return results, persistence.NextCursor(results, limit), nil
}

const profileColumns = `tenant_id, user_id, experience, level, total_distance_km, total_duration_sec,
        total_calories, activity_count, created_at, updated_at`

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.TenantID, &p.UserID, &p.Experience, &p.Level, &p.TotalDistanceKm, &p.TotalDurationSec,
		&p.TotalCalories, &p.ActivityCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile loads a user's profile.
func (r *Repository) GetProfile(ctx context.Context, tenantID, userID string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE tenant_id=$1 AND user_id=$2`

	var found *domain.Profile
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		p, err := scanProfile(tx.QueryRow(ctx, query, tenantID, userID))
		found = p
		return err
	})
	return found, err
}

// UpdateUser serialises writers per user with a transaction-scoped advisory
// lock, then persists the change and its outbox events in the same transaction.
func (r *Repository) UpdateUser(ctx context.Context, tenantID, userID, day string, fn func(domain.UserState) (domain.UserChange, error)) error {
	return r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", tenantID+"/"+userID); err != nil {
			return err
		}

		var state domain.UserState
		profile, err := scanProfile(tx.QueryRow(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE tenant_id=$1 AND user_id=$2`, tenantID, userID))
		if err != nil {
			return err
		}
		if profile != nil {
			state.Profile = *profile
		}
		if state.Missions, err = listMissions(ctx, tx, tenantID, userID, day); err != nil {
			return err
		}

		change, err := fn(state)
		if err != nil {
			return err
		}

		if change.Activity != nil {
			if err := insertActivity(ctx, tx, *change.Activity, change.IdempotencyKey); err != nil {
				return err
			}
		}
		if change.Profile != nil {
			if err := upsertProfile(ctx, tx, *change.Profile); err != nil {
				return err
			}
		}
		for _, m := range change.Missions {
			if err := upsertMission(ctx, tx, m); err != nil {
				return err
			}
		}
		for _, evt := range change.Events {
			if err := insertOutbox(ctx, tx, tenantID, evt); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertActivity(ctx context.Context, tx pgx.Tx, a domain.ActivityAggregate, idempotencyKey string) error {
	const stmt = `INSERT INTO activities (activity_id, tenant_id, user_id, activity_type, distance_km, duration_sec, avg_speed_kmh,
            territories_conquered, calories, xp_earned, mission_xp, source, idempotency_key, started_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err := tx.Exec(ctx, stmt,
		a.ID, a.TenantID, a.UserID, a.Type, a.DistanceKm, a.DurationSec, a.AvgSpeedKmh,
		a.TerritoriesConquered, a.Calories, a.XPEarned, a.MissionXP, a.Source, nullIfEmpty(idempotencyKey),
		a.StartedAt, a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrIdempotentReplay, pgErr.ConstraintName)
	}
	return err
}

func upsertProfile(ctx context.Context, tx pgx.Tx, p domain.Profile) error {
	const stmt = `INSERT INTO profiles (` + profileColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (tenant_id, user_id) DO UPDATE SET
            experience = EXCLUDED.experience,
            level = EXCLUDED.level,
            total_distance_km = EXCLUDED.total_distance_km,
            total_duration_sec = EXCLUDED.total_duration_sec,
            total_calories = EXCLUDED.total_calories,
            activity_count = EXCLUDED.activity_count,
            updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, stmt, p.TenantID, p.UserID, p.Experience, p.Level, p.TotalDistanceKm, p.TotalDurationSec,
		p.TotalCalories, p.ActivityCount, p.CreatedAt, p.UpdatedAt)
	return err
}

const missionColumns = `mission_id, tenant_id, user_id, day, mission_key, title, description, category, icon,
        target_value, xp_reward, current_progress, completed_at, created_at`

func listMissions(ctx context.Context, tx pgx.Tx, tenantID, userID, day string) ([]domain.MissionAggregate, error) {
	rows, err := tx.Query(ctx, `SELECT `+missionColumns+` FROM missions
        WHERE tenant_id=$1 AND user_id=$2 AND day=$3 ORDER BY created_at, mission_id`, tenantID, userID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []domain.MissionAggregate
	for rows.Next() {
		var m domain.MissionAggregate
		if err := rows.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Day, &m.Key, &m.Title, &m.Description, &m.Category, &m.Icon,
			&m.TargetValue, &m.XPReward, &m.CurrentProgress, &m.CompletedAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

func upsertMission(ctx context.Context, tx pgx.Tx, m domain.MissionAggregate) error {
	const stmt = `INSERT INTO missions (` + missionColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (mission_id) DO UPDATE SET
            current_progress = EXCLUDED.current_progress,
            completed_at = EXCLUDED.completed_at`

	_, err := tx.Exec(ctx, stmt, m.ID, m.TenantID, m.UserID, m.Day, m.Key, m.Title, m.Description, m.Category, m.Icon,
		m.TargetValue, m.XPReward, m.CurrentProgress, m.CompletedAt, m.CreatedAt)
	return err
}

const territoryColumns = `territory_id, tenant_id, name, owner_id, radius_m, size_km2, conquered_at,
        last_defended_at, conquest_count, created_at, updated_at`

func scanTerritory(row rowScanner) (domain.TerritoryAggregate, error) {
	var t domain.TerritoryAggregate
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.OwnerID, &t.RadiusM, &t.SizeKm2, &t.ConqueredAt,
		&t.LastDefendedAt, &t.ConquestCount, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// GetTerritory retrieves a territory by ID.
func (r *Repository) GetTerritory(ctx context.Context, tenantID, territoryID string) (*domain.TerritoryAggregate, error) {
	query := `SELECT ` + territoryColumns + ` FROM territories WHERE tenant_id=$1 AND territory_id=$2`

	var found *domain.TerritoryAggregate
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		t, err := scanTerritory(tx.QueryRow(ctx, query, tenantID, territoryID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &t
		return nil
	})
	return found, err
}

// ListTerritoriesByOwner returns an owner's territories, most recently conquered first.
func (r *Repository) ListTerritoriesByOwner(ctx context.Context, tenantID, ownerID string) ([]domain.TerritoryAggregate, error) {
	query := `SELECT ` + territoryColumns + ` FROM territories WHERE tenant_id=$1 AND owner_id=$2
        ORDER BY conquered_at DESC, territory_id`

	var results []domain.TerritoryAggregate
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, tenantID, ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTerritory(rows)
			if err != nil {
				return err
			}
			results = append(results, t)
		}
		return rows.Err()
	})
	return results, err
}

// UpdateTerritory locks the territory row, applies fn and writes the result
// together with its outbox events. fn receives nil for unknown ids.
func (r *Repository) UpdateTerritory(ctx context.Context, tenantID, territoryID string, fn func(*domain.TerritoryAggregate) (domain.TerritoryChange, error)) error {
	return r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		var current *domain.TerritoryAggregate
		t, err := scanTerritory(tx.QueryRow(ctx,
			`SELECT `+territoryColumns+` FROM territories WHERE tenant_id=$1 AND territory_id=$2 FOR UPDATE`,
			tenantID, territoryID))
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		default:
			current = &t
		}

		change, err := fn(current)
		if err != nil {
			return err
		}

		const stmt = `INSERT INTO territories (` + territoryColumns + `)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
            ON CONFLICT (territory_id) DO UPDATE SET
                owner_id = EXCLUDED.owner_id,
                conquered_at = EXCLUDED.conquered_at,
                last_defended_at = EXCLUDED.last_defended_at,
                conquest_count = EXCLUDED.conquest_count,
                updated_at = EXCLUDED.updated_at`
		n := change.Territory
		if _, err := tx.Exec(ctx, stmt, n.ID, n.TenantID, n.Name, n.OwnerID, n.RadiusM, n.SizeKm2, n.ConqueredAt,
			n.LastDefendedAt, n.ConquestCount, n.CreatedAt, n.UpdatedAt); err != nil {
			return err
		}

		for _, evt := range change.Events {
			if err := insertOutbox(ctx, tx, tenantID, evt); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertOutbox(ctx context.Context, tx pgx.Tx, tenantID string, evt domain.Event) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	route, ok := events.RouteFor(evt.Type)
	if !ok {
		return fmt.Errorf("unknown event type: %s", evt.Type)
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		evt.AggregateType,
		evt.AggregateID,
		evt.Type,
		route.Topic,
		route.SchemaSubject,
		evt.PartitionKey,
		body,
		nullIfEmpty(evt.DedupeKey),
	)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
