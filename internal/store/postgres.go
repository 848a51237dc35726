// Package store provides storage backends for GoalPipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/GoalPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists GoalPipe state in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveSetupSession stores or replaces a user's setup session as one row.
func (s *PostgresStore) SaveSetupSession(ctx context.Context, session *models.SetupSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		slog.Error("PostgresStore SaveSetupSession marshal failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to encode session for %s: %w", session.UserID, err)
	}

	query := `
		INSERT INTO setup_sessions (user_id, step, session_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			step = EXCLUDED.step,
			session_data = EXCLUDED.session_data,
			updated_at = EXCLUDED.updated_at`
	_, err = s.db.ExecContext(ctx, query, session.UserID, string(session.Step), string(data), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSetupSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	slog.Debug("PostgresStore SaveSetupSession succeeded", "userID", session.UserID, "step", session.Step)
	return nil
}

// GetSetupSession retrieves a user's setup session, nil when absent.
func (s *PostgresStore) GetSetupSession(ctx context.Context, userID string) (*models.SetupSession, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT session_data FROM setup_sessions WHERE user_id = $1`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSetupSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSetupSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}

	var session models.SetupSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		slog.Error("PostgresStore GetSetupSession unmarshal failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to decode session for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore GetSetupSession found", "userID", userID, "step", session.Step)
	return &session, nil
}

// DeleteSetupSession removes a user's setup session.
func (s *PostgresStore) DeleteSetupSession(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM setup_sessions WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteSetupSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore DeleteSetupSession succeeded", "userID", userID)
	return nil
}

// ListSetupSessions returns every in-flight setup session ordered by last
// update.
func (s *PostgresStore) ListSetupSessions(ctx context.Context) ([]*models.SetupSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_data FROM setup_sessions ORDER BY updated_at`)
	if err != nil {
		slog.Error("PostgresStore ListSetupSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.SetupSession
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			slog.Error("PostgresStore ListSetupSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var session models.SetupSession
		if err := json.Unmarshal(data, &session); err != nil {
			slog.Error("PostgresStore ListSetupSessions unmarshal failed", "error", err)
			return nil, fmt.Errorf("failed to decode session row: %w", err)
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

// SaveMaterial stores or replaces a user's composed material.
func (s *PostgresStore) SaveMaterial(ctx context.Context, material *models.Material) error {
	data, err := json.Marshal(material)
	if err != nil {
		slog.Error("PostgresStore SaveMaterial marshal failed", "error", err, "userID", material.UserID)
		return fmt.Errorf("failed to encode material for %s: %w", material.UserID, err)
	}

	query := `
		INSERT INTO materials (user_id, plan, material_data, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			material_data = EXCLUDED.material_data`
	_, err = s.db.ExecContext(ctx, query, material.UserID, string(material.Plan), string(data), material.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveMaterial failed", "error", err, "userID", material.UserID)
		return fmt.Errorf("failed to save material for %s: %w", material.UserID, err)
	}
	slog.Debug("PostgresStore SaveMaterial succeeded", "userID", material.UserID, "totalTasks", material.TotalTasks)
	return nil
}

// GetMaterial retrieves a user's composed material, nil when absent.
func (s *PostgresStore) GetMaterial(ctx context.Context, userID string) (*models.Material, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT material_data FROM materials WHERE user_id = $1`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetMaterial not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetMaterial failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load material for %s: %w", userID, err)
	}

	var material models.Material
	if err := json.Unmarshal([]byte(data), &material); err != nil {
		slog.Error("PostgresStore GetMaterial unmarshal failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to decode material for %s: %w", userID, err)
	}
	return &material, nil
}

// SaveSubscription stores or replaces a user's active subscription.
func (s *PostgresStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, goal, plan, activated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			goal = EXCLUDED.goal,
			plan = EXCLUDED.plan,
			activated_at = EXCLUDED.activated_at`
	_, err := s.db.ExecContext(ctx, query, sub.UserID, sub.Goal, string(sub.Plan), sub.ActivatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSubscription failed", "error", err, "userID", sub.UserID)
		return fmt.Errorf("failed to save subscription for %s: %w", sub.UserID, err)
	}
	slog.Debug("PostgresStore SaveSubscription succeeded", "userID", sub.UserID, "plan", sub.Plan)
	return nil
}

// GetSubscription retrieves a user's subscription, nil when absent.
func (s *PostgresStore) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.QueryRowContext(ctx, `SELECT user_id, goal, plan, activated_at FROM subscriptions WHERE user_id = $1`, userID).
		Scan(&sub.UserID, &sub.Goal, &sub.Plan, &sub.ActivatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSubscription failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load subscription for %s: %w", userID, err)
	}
	return &sub, nil
}

// AddReceipt records a delivery receipt.
func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES ($1, $2, $3)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	return nil
}

// GetReceipts returns all recorded receipts.
func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts`)
	if err != nil {
		slog.Error("PostgresStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			slog.Error("PostgresStore GetReceipts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

// AddResponse records an inbound message.
func (s *PostgresStore) AddResponse(r models.Response) error {
	_, err := s.db.Exec(`INSERT INTO responses (sender, body, time) VALUES ($1, $2, $3)`, r.From, r.Body, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddResponse failed", "error", err, "from", r.From)
		return fmt.Errorf("failed to insert response from %s: %w", r.From, err)
	}
	return nil
}

// GetResponses returns all recorded inbound messages.
func (s *PostgresStore) GetResponses() ([]models.Response, error) {
	rows, err := s.db.Query(`SELECT sender, body, time FROM responses`)
	if err != nil {
		slog.Error("PostgresStore GetResponses query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		if err := rows.Scan(&r.From, &r.Body, &r.Time); err != nil {
			slog.Error("PostgresStore GetResponses scan failed", "error", err)
			return nil, err
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return responses, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
