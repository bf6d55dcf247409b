package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists machines, detections and capability runs.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a store instance. Call Init before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database in WAL mode and verifies the connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// UpsertMachine inserts or refreshes a machine record, keyed by name.
func (s *SQLiteStore) UpsertMachine(ctx context.Context, m *Machine) error {
	query := `
		INSERT INTO machines (id, name, address, guest_pin, labels, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			address = excluded.address,
			guest_pin = excluded.guest_pin,
			labels = excluded.labels,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Name, m.Address, m.GuestPin, m.Labels, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting machine: %w", err)
	}
	return nil
}

// GetMachine retrieves a machine by inventory name.
func (s *SQLiteStore) GetMachine(ctx context.Context, name string) (*Machine, error) {
	query := `
		SELECT id, name, address, guest_pin, labels, created_at, updated_at
		FROM machines
		WHERE name = ?
	`

	m := &Machine{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&m.ID, &m.Name, &m.Address, &m.GuestPin, &m.Labels, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("machine not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting machine: %w", err)
	}
	return m, nil
}

// ListMachines lists machines ordered by name.
func (s *SQLiteStore) ListMachines(ctx context.Context, limit, offset int) ([]*Machine, error) {
	query := `
		SELECT id, name, address, guest_pin, labels, created_at, updated_at
		FROM machines
		ORDER BY name ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}
	defer rows.Close()

	machines := []*Machine{}
	for rows.Next() {
		m := &Machine{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Address, &m.GuestPin, &m.Labels, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning machine: %w", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating machines: %w", err)
	}
	return machines, nil
}

// DeleteMachine deletes a machine and, through foreign keys, its
// detections and capability runs.
func (s *SQLiteStore) DeleteMachine(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM machines WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting machine: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("machine not found: %s", name)
	}
	return nil
}

// RecordDetection appends a detection result for a machine.
func (s *SQLiteStore) RecordDetection(ctx context.Context, d *Detection) error {
	query := `
		INSERT INTO detections (machine_id, guest, method, chain, duration_ms, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, query,
		d.MachineID, d.Guest, d.Method, d.Chain, d.Duration.Milliseconds(), d.DetectedAt)
	if err != nil {
		return fmt.Errorf("recording detection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting detection ID: %w", err)
	}
	d.ID = id
	return nil
}

// LatestDetection returns the most recent detection for a machine.
func (s *SQLiteStore) LatestDetection(ctx context.Context, machineID string) (*Detection, error) {
	query := `
		SELECT id, machine_id, guest, method, chain, duration_ms, detected_at
		FROM detections
		WHERE machine_id = ?
		ORDER BY detected_at DESC, id DESC
		LIMIT 1
	`

	d := &Detection{}
	var durationMs int64
	err := s.db.QueryRowContext(ctx, query, machineID).Scan(
		&d.ID, &d.MachineID, &d.Guest, &d.Method, &d.Chain, &durationMs, &d.DetectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no detections for machine: %s", machineID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest detection: %w", err)
	}
	d.Duration = time.Duration(durationMs) * time.Millisecond
	return d, nil
}

// ListDetections lists detections for a machine, newest first.
func (s *SQLiteStore) ListDetections(ctx context.Context, machineID string, limit, offset int) ([]*Detection, error) {
	query := `
		SELECT id, machine_id, guest, method, chain, duration_ms, detected_at
		FROM detections
		WHERE machine_id = ?
		ORDER BY detected_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, machineID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing detections: %w", err)
	}
	defer rows.Close()

	detections := []*Detection{}
	for rows.Next() {
		d := &Detection{}
		var durationMs int64
		if err := rows.Scan(&d.ID, &d.MachineID, &d.Guest, &d.Method, &d.Chain, &durationMs, &d.DetectedAt); err != nil {
			return nil, fmt.Errorf("scanning detection: %w", err)
		}
		d.Duration = time.Duration(durationMs) * time.Millisecond
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating detections: %w", err)
	}
	return detections, nil
}

// StartCapabilityRun records a dispatched capability call.
func (s *SQLiteStore) StartCapabilityRun(ctx context.Context, r *CapabilityRun) error {
	query := `
		INSERT INTO capability_runs (machine_id, guest, capability, args, status, output, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = RunStatusStarted
	}

	result, err := s.db.ExecContext(ctx, query,
		r.MachineID, r.Guest, r.Capability, r.Args, r.Status, r.Output, r.Error, r.StartedAt)
	if err != nil {
		return fmt.Errorf("recording capability run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting capability run ID: %w", err)
	}
	r.ID = id
	return nil
}

// CompleteCapabilityRun finalizes a run with its outcome.
func (s *SQLiteStore) CompleteCapabilityRun(ctx context.Context, id int64, status RunStatus, output, errMsg string) error {
	query := `
		UPDATE capability_runs
		SET status = ?, output = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, output, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("completing capability run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("capability run not found: %d", id)
	}
	return nil
}

// ListCapabilityRuns lists runs for a machine, newest first.
func (s *SQLiteStore) ListCapabilityRuns(ctx context.Context, machineID string, limit, offset int) ([]*CapabilityRun, error) {
	query := `
		SELECT id, machine_id, guest, capability, args, status, output, error, started_at, completed_at
		FROM capability_runs
		WHERE machine_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, machineID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing capability runs: %w", err)
	}
	defer rows.Close()

	runs := []*CapabilityRun{}
	for rows.Next() {
		r := &CapabilityRun{}
		if err := rows.Scan(&r.ID, &r.MachineID, &r.Guest, &r.Capability, &r.Args,
			&r.Status, &r.Output, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning capability run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating capability runs: %w", err)
	}
	return runs, nil
}
