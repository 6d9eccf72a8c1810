// Package journal appends the event stream of every investigation to
// Postgres. The journal is optional layered persistence: the core runs
// without it, and replaying a journaled stream reconstructs the
// investigation byte-exactly because the wire bytes are stored verbatim.
package journal

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql

	"github.com/shipsight/shipsight/pkg/events"
)

//go:embed migrations
var migrationsFS embed.FS

// recordTimeout bounds each insert so a slow database cannot stall the
// publishing supervisor.
const recordTimeout = 5 * time.Second

// Journal is the append-only event log. It implements events.Recorder;
// insert failures are logged, never surfaced to the publisher.
type Journal struct {
	db     *stdsql.DB
	logger *slog.Logger
}

// Open connects, applies pending migrations, and returns the journal.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Journal, error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run journal migrations: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger.With("component", "journal")}, nil
}

// NewFromDB wraps an existing connection. Used by tests.
func NewFromDB(db *stdsql.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger.With("component", "journal")}
}

func runMigrations(db *stdsql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "journal", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Close only the source driver. m.Close() would also close the shared
	// *sql.DB through the database driver.
	return sourceDriver.Close()
}

// Record implements events.Recorder. Called on the publisher's goroutine
// for every event, in order.
func (j *Journal) Record(investigationID string, env events.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	payload, err := json.Marshal(env.Payload)
	if err != nil {
		j.logger.Error("Failed to marshal event payload", "kind", env.Kind, "error", err)
		return
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO investigation_events (investigation_id, seq, kind, payload, wire, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (investigation_id, seq) DO NOTHING`,
		investigationID, env.Seq, env.Kind, payload, env.Wire, time.Now().UTC())
	if err != nil {
		j.logger.Error("Failed to journal event",
			"investigation_id", investigationID,
			"seq", env.Seq,
			"kind", env.Kind,
			"error", err)
	}
}

// Health pings the journal database.
func (j *Journal) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Replay returns the journaled wire records of an investigation in publish
// order. Each record already carries its trailing newline.
func (j *Journal) Replay(ctx context.Context, investigationID string) ([][]byte, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT wire FROM investigation_events
		WHERE investigation_id = $1
		ORDER BY seq`, investigationID)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var wire []byte
		if err := rows.Scan(&wire); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, wire)
	}
	return out, rows.Err()
}

// Investigations lists journaled investigation ids, most recent first.
func (j *Journal) Investigations(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT investigation_id FROM investigation_events
		GROUP BY investigation_id
		ORDER BY MAX(created_at) DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close releases the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
