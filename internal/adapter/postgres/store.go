// Package postgres persists latest device state in a Postgres table, one row
// per device with the location, extras and sensors held as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/netatmo-ingest/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS latest (
    device_id  TEXT PRIMARY KEY,
    location   JSONB NOT NULL,
    extras     JSONB NOT NULL,
    sensors    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements the pipeline's latest-state store on Postgres.
type Store struct {
	db   querier
	pool *pgxpool.Pool
}

// New connects to databaseURL and makes sure the latest table exists.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the latest table if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create latest table: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Get(ctx context.Context, deviceID string) (domain.LatestDeviceState, error) {
	row := s.db.QueryRow(ctx, `
SELECT device_id, location, extras, sensors, created_at, updated_at
FROM latest
WHERE device_id = $1`, deviceID)

	state, err := scanState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LatestDeviceState{}, domain.NewError(domain.KindLatestNotFound, deviceID, nil)
	}
	if err != nil {
		return domain.LatestDeviceState{}, fmt.Errorf("get latest %s: %w", deviceID, err)
	}
	return state, nil
}

// Create inserts the first snapshot of a device. A second create for the
// same device fails on the primary key.
func (s *Store) Create(ctx context.Context, state domain.LatestDeviceState) (domain.LatestDeviceState, error) {
	location, extras, sensors, err := encodeDocuments(state.Location, state.Extras, state.Sensors)
	if err != nil {
		return domain.LatestDeviceState{}, domain.NewError(domain.KindCreateFailed, state.DeviceID, err)
	}

	row := s.db.QueryRow(ctx, `
INSERT INTO latest (device_id, location, extras, sensors, created_at, updated_at)
VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, NOW(), NOW())
RETURNING device_id, location, extras, sensors, created_at, updated_at`,
		state.DeviceID, location, extras, sensors)

	created, err := scanState(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = fmt.Errorf("device already exists: %w", err)
		}
		return domain.LatestDeviceState{}, domain.NewError(domain.KindCreateFailed, state.DeviceID, err)
	}
	return created, nil
}

// Update replaces the location, extras and sensors of an existing device.
func (s *Store) Update(ctx context.Context, deviceID string, patch domain.LatestPatch) (domain.LatestDeviceState, error) {
	location, extras, sensors, err := encodeDocuments(patch.Location, patch.Extras, patch.Sensors)
	if err != nil {
		return domain.LatestDeviceState{}, domain.NewError(domain.KindUpdateFailed, deviceID, err)
	}

	row := s.db.QueryRow(ctx, `
UPDATE latest
SET location = $2::jsonb, extras = $3::jsonb, sensors = $4::jsonb, updated_at = NOW()
WHERE device_id = $1
RETURNING device_id, location, extras, sensors, created_at, updated_at`,
		deviceID, location, extras, sensors)

	updated, err := scanState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.NewError(domain.KindLatestNotFound, deviceID, nil)
	}
	if err != nil {
		return domain.LatestDeviceState{}, domain.NewError(domain.KindUpdateFailed, deviceID, err)
	}
	return updated, nil
}

func encodeDocuments(location domain.LatestLocation, extras domain.Extras, sensors []domain.LatestSensor) (string, string, string, error) {
	if sensors == nil {
		sensors = []domain.LatestSensor{}
	}
	loc, err := json.Marshal(location)
	if err != nil {
		return "", "", "", fmt.Errorf("encode location: %w", err)
	}
	ext, err := json.Marshal(extras)
	if err != nil {
		return "", "", "", fmt.Errorf("encode extras: %w", err)
	}
	sen, err := json.Marshal(sensors)
	if err != nil {
		return "", "", "", fmt.Errorf("encode sensors: %w", err)
	}
	return string(loc), string(ext), string(sen), nil
}

func scanState(row pgx.Row) (domain.LatestDeviceState, error) {
	var (
		state                     domain.LatestDeviceState
		location, extras, sensors []byte
		createdAt, updatedAt      time.Time
	)
	if err := row.Scan(&state.DeviceID, &location, &extras, &sensors, &createdAt, &updatedAt); err != nil {
		return domain.LatestDeviceState{}, err
	}
	if err := json.Unmarshal(location, &state.Location); err != nil {
		return domain.LatestDeviceState{}, fmt.Errorf("decode location: %w", err)
	}
	if err := json.Unmarshal(extras, &state.Extras); err != nil {
		return domain.LatestDeviceState{}, fmt.Errorf("decode extras: %w", err)
	}
	if err := json.Unmarshal(sensors, &state.Sensors); err != nil {
		return domain.LatestDeviceState{}, fmt.Errorf("decode sensors: %w", err)
	}
	state.CreatedAt, state.UpdatedAt = createdAt.UTC(), updatedAt.UTC()
	return state, nil
}
