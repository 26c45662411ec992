// Package sqlite implements the domain repository on an embedded SQLite file
// for single-node deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/events"
	"example.com/conquest/internal/persistence"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Repository is a database/sql backed domain.Repository. A single connection
// serialises every write, which stands in for row locks.
type Repository struct {
	db *sql.DB
}

// Open creates the database file if needed, applies migrations and returns a Repository.
func Open(ctx context.Context, file string) (*Repository, error) {
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", file+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) applyMigrations(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
            version TEXT PRIMARY KEY,
            applied_at DATETIME NOT NULL
        )`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := r.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate schema migrations: %w", err)
	}
	rows.Close()

	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		version := path.Base(file)
		if applied[version] {
			continue
		}
		body, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}
		err = r.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("apply migration %s: %w", version, err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", version, time.Now().UTC()); err != nil {
				return fmt.Errorf("record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const activityColumns = `activity_id, tenant_id, user_id, activity_type, distance_km, duration_sec, avg_speed_kmh,
    territories_conquered, calories, xp_earned, mission_xp, source, started_at, created_at`

func scanActivity(row rowScanner) (*domain.ActivityAggregate, error) {
	var a domain.ActivityAggregate
	err := row.Scan(&a.ID, &a.TenantID, &a.UserID, &a.Type, &a.DistanceKm, &a.DurationSec, &a.AvgSpeedKmh,
		&a.TerritoriesConquered, &a.Calories, &a.XPEarned, &a.MissionXP, &a.Source, &a.StartedAt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindActivityByIdempotency checks if an activity already exists for the supplied idempotency key.
func (r *Repository) FindActivityByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.ActivityAggregate, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	return scanActivity(r.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE tenant_id=? AND user_id=? AND idempotency_key=?`,
		tenantID, userID, idempotencyKey))
}

// GetActivity retrieves an activity by ID.
func (r *Repository) GetActivity(ctx context.Context, tenantID, activityID string) (*domain.ActivityAggregate, error) {
	return scanActivity(r.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE tenant_id=? AND activity_id=?`, tenantID, activityID))
}

// ListActivities returns activities for a user ordered newest first.
func (r *Repository) ListActivities(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityAggregate, *domain.Cursor, error) {
	args := []any{tenantID, userID}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=? AND user_id=?`
	if cursor != nil {
		query += ` AND (started_at, activity_id) < (?, ?)`
		args = append(args, cursor.StartedAt.UTC(), cursor.ID)
	}
	query += ` ORDER BY started_at DESC, activity_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityAggregate, 0, limit)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return results, persistence.NextCursor(results, limit), nil
}

const profileColumns = `tenant_id, user_id, experience, level, total_distance_km, total_duration_sec,
    total_calories, activity_count, created_at, updated_at`

func getProfile(ctx context.Context, q queryer, tenantID, userID string) (*domain.Profile, error) {
	var p domain.Profile
	err := q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE tenant_id=? AND user_id=?`, tenantID, userID).
		Scan(&p.TenantID, &p.UserID, &p.Experience, &p.Level, &p.TotalDistanceKm, &p.TotalDurationSec,
			&p.TotalCalories, &p.ActivityCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile loads a user's profile.
func (r *Repository) GetProfile(ctx context.Context, tenantID, userID string) (*domain.Profile, error) {
	return getProfile(ctx, r.db, tenantID, userID)
}

// UpdateUser applies fn to the user's state and persists the change with its outbox rows.
func (r *Repository) UpdateUser(ctx context.Context, tenantID, userID, day string, fn func(domain.UserState) (domain.UserChange, error)) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var state domain.UserState
		profile, err := getProfile(ctx, tx, tenantID, userID)
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

		if a := change.Activity; a != nil {
			_, err := tx.ExecContext(ctx, `INSERT INTO activities (`+activityColumns+`, idempotency_key)
                VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				a.ID, a.TenantID, a.UserID, a.Type, a.DistanceKm, a.DurationSec, a.AvgSpeedKmh,
				a.TerritoriesConquered, a.Calories, a.XPEarned, a.MissionXP, a.Source, a.StartedAt.UTC(), a.CreatedAt.UTC(),
				nullIfEmpty(change.IdempotencyKey))
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %v", domain.ErrIdempotentReplay, err)
			}
			if err != nil {
				return fmt.Errorf("insert activity: %w", err)
			}
		}

		if p := change.Profile; p != nil {
			_, err := tx.ExecContext(ctx, `INSERT INTO profiles (`+profileColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)
                ON CONFLICT (tenant_id, user_id) DO UPDATE SET
                    experience = excluded.experience,
                    level = excluded.level,
                    total_distance_km = excluded.total_distance_km,
                    total_duration_sec = excluded.total_duration_sec,
                    total_calories = excluded.total_calories,
                    activity_count = excluded.activity_count,
                    updated_at = excluded.updated_at`,
				p.TenantID, p.UserID, p.Experience, p.Level, p.TotalDistanceKm, p.TotalDurationSec,
				p.TotalCalories, p.ActivityCount, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
			if err != nil {
				return fmt.Errorf("upsert profile: %w", err)
			}
		}

		for _, m := range change.Missions {
			_, err := tx.ExecContext(ctx, `INSERT INTO missions (`+missionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
                ON CONFLICT (mission_id) DO UPDATE SET
                    current_progress = excluded.current_progress,
                    completed_at = excluded.completed_at`,
				m.ID, m.TenantID, m.UserID, m.Day, m.Key, m.Title, m.Description, m.Category, m.Icon,
				m.TargetValue, m.XPReward, m.CurrentProgress, utcPtr(m.CompletedAt), m.CreatedAt.UTC())
			if err != nil {
				return fmt.Errorf("upsert mission %s: %w", m.Key, err)
			}
		}

		return insertOutbox(ctx, tx, tenantID, change.Events)
	})
}

const missionColumns = `mission_id, tenant_id, user_id, day, mission_key, title, description, category, icon,
    target_value, xp_reward, current_progress, completed_at, created_at`

func listMissions(ctx context.Context, q queryer, tenantID, userID, day string) ([]domain.MissionAggregate, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions
        WHERE tenant_id=? AND user_id=? AND day=? ORDER BY created_at, mission_id`, tenantID, userID, day)
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

const territoryColumns = `territory_id, tenant_id, name, owner_id, radius_m, size_km2, conquered_at,
    last_defended_at, conquest_count, created_at, updated_at`

func scanTerritory(row rowScanner) (*domain.TerritoryAggregate, error) {
	var t domain.TerritoryAggregate
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.OwnerID, &t.RadiusM, &t.SizeKm2, &t.ConqueredAt,
		&t.LastDefendedAt, &t.ConquestCount, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTerritory retrieves a territory by ID.
func (r *Repository) GetTerritory(ctx context.Context, tenantID, territoryID string) (*domain.TerritoryAggregate, error) {
	return scanTerritory(r.db.QueryRowContext(ctx,
		`SELECT `+territoryColumns+` FROM territories WHERE tenant_id=? AND territory_id=?`, tenantID, territoryID))
}

// ListTerritoriesByOwner returns an owner's territories, most recently conquered first.
func (r *Repository) ListTerritoriesByOwner(ctx context.Context, tenantID, ownerID string) ([]domain.TerritoryAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+territoryColumns+` FROM territories
        WHERE tenant_id=? AND owner_id=? ORDER BY conquered_at DESC, territory_id`, tenantID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.TerritoryAggregate
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *t)
	}
	return results, rows.Err()
}

// UpdateTerritory applies fn to the current territory (nil when unknown) and upserts the result.
func (r *Repository) UpdateTerritory(ctx context.Context, tenantID, territoryID string, fn func(*domain.TerritoryAggregate) (domain.TerritoryChange, error)) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanTerritory(tx.QueryRowContext(ctx,
			`SELECT `+territoryColumns+` FROM territories WHERE tenant_id=? AND territory_id=?`, tenantID, territoryID))
		if err != nil {
			return err
		}

		change, err := fn(current)
		if err != nil {
			return err
		}

		t := change.Territory
		_, err = tx.ExecContext(ctx, `INSERT INTO territories (`+territoryColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)
            ON CONFLICT (territory_id) DO UPDATE SET
                owner_id = excluded.owner_id,
                conquered_at = excluded.conquered_at,
                last_defended_at = excluded.last_defended_at,
                conquest_count = excluded.conquest_count,
                updated_at = excluded.updated_at`,
			t.ID, t.TenantID, t.Name, t.OwnerID, t.RadiusM, t.SizeKm2, t.ConqueredAt.UTC(),
			utcPtr(t.LastDefendedAt), t.ConquestCount, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("upsert territory: %w", err)
		}

		return insertOutbox(ctx, tx, tenantID, change.Events)
	})
}

// insertOutbox keeps events alongside the state change. Nothing drains this
// table on SQLite; it is an audit trail for single-node deployments.
func insertOutbox(ctx context.Context, tx *sql.Tx, tenantID string, evts []domain.Event) error {
	for _, evt := range evts {
		route, ok := events.RouteFor(evt.Type)
		if !ok {
			return fmt.Errorf("unknown event type: %s", evt.Type)
		}
		body, err := json.Marshal(evt.Payload)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
            VALUES (?,?,?,?,?,?,?,?,?)
            ON CONFLICT (dedupe_key) DO NOTHING`,
			tenantID, evt.AggregateType, evt.AggregateID, evt.Type, route.Topic, route.SchemaSubject, evt.PartitionKey,
			string(body), nullIfEmpty(evt.DedupeKey))
		if err != nil {
			return fmt.Errorf("insert outbox %s: %w", evt.Type, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
