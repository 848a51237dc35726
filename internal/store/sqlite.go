// Package store provides storage backends for GoalPipe.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/GoalPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists GoalPipe state in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the SQLite database file; the parent directory
// is created if it does not exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveSetupSession stores or replaces a user's setup session as one row.
func (s *SQLiteStore) SaveSetupSession(ctx context.Context, session *models.SetupSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		slog.Error("SQLiteStore SaveSetupSession marshal failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to encode session for %s: %w", session.UserID, err)
	}

	query := `
		INSERT OR REPLACE INTO setup_sessions (user_id, step, session_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, session.UserID, string(session.Step), string(data), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSetupSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	slog.Debug("SQLiteStore SaveSetupSession succeeded", "userID", session.UserID, "step", session.Step)
	return nil
}

// GetSetupSession retrieves a user's setup session, nil when absent.
func (s *SQLiteStore) GetSetupSession(ctx context.Context, userID string) (*models.SetupSession, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT session_data FROM setup_sessions WHERE user_id = ?`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSetupSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSetupSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}

	var session models.SetupSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		slog.Error("SQLiteStore GetSetupSession unmarshal failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to decode session for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore GetSetupSession found", "userID", userID, "step", session.Step)
	return &session, nil
}

// DeleteSetupSession removes a user's setup session.
func (s *SQLiteStore) DeleteSetupSession(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM setup_sessions WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSetupSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore DeleteSetupSession succeeded", "userID", userID)
	return nil
}

// ListSetupSessions returns every in-flight setup session ordered by last
// update.
func (s *SQLiteStore) ListSetupSessions(ctx context.Context) ([]*models.SetupSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_data FROM setup_sessions ORDER BY updated_at`)
	if err != nil {
		slog.Error("SQLiteStore ListSetupSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.SetupSession
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			slog.Error("SQLiteStore ListSetupSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var session models.SetupSession
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			slog.Error("SQLiteStore ListSetupSessions unmarshal failed", "error", err)
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
func (s *SQLiteStore) SaveMaterial(ctx context.Context, material *models.Material) error {
	data, err := json.Marshal(material)
	if err != nil {
		slog.Error("SQLiteStore SaveMaterial marshal failed", "error", err, "userID", material.UserID)
		return fmt.Errorf("failed to encode material for %s: %w", material.UserID, err)
	}

	query := `
		INSERT OR REPLACE INTO materials (user_id, plan, material_data, created_at)
		VALUES (?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, material.UserID, string(material.Plan), string(data), material.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveMaterial failed", "error", err, "userID", material.UserID)
		return fmt.Errorf("failed to save material for %s: %w", material.UserID, err)
	}
	slog.Debug("SQLiteStore SaveMaterial succeeded", "userID", material.UserID, "totalTasks", material.TotalTasks)
	return nil
}

// GetMaterial retrieves a user's composed material, nil when absent.
func (s *SQLiteStore) GetMaterial(ctx context.Context, userID string) (*models.Material, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT material_data FROM materials WHERE user_id = ?`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetMaterial not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetMaterial failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load material for %s: %w", userID, err)
	}

	var material models.Material
	if err := json.Unmarshal([]byte(data), &material); err != nil {
		slog.Error("SQLiteStore GetMaterial unmarshal failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to decode material for %s: %w", userID, err)
	}
	return &material, nil
}

// SaveSubscription stores or replaces a user's active subscription.
func (s *SQLiteStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT OR REPLACE INTO subscriptions (user_id, goal, plan, activated_at)
		VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, sub.UserID, sub.Goal, string(sub.Plan), sub.ActivatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSubscription failed", "error", err, "userID", sub.UserID)
		return fmt.Errorf("failed to save subscription for %s: %w", sub.UserID, err)
	}
	slog.Debug("SQLiteStore SaveSubscription succeeded", "userID", sub.UserID, "plan", sub.Plan)
	return nil
}

// GetSubscription retrieves a user's subscription, nil when absent.
func (s *SQLiteStore) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.QueryRowContext(ctx, `SELECT user_id, goal, plan, activated_at FROM subscriptions WHERE user_id = ?`, userID).
		Scan(&sub.UserID, &sub.Goal, &sub.Plan, &sub.ActivatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSubscription failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load subscription for %s: %w", userID, err)
	}
	return &sub, nil
}

// AddReceipt records a delivery receipt.
func (s *SQLiteStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES (?, ?, ?)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	return nil
}

// GetReceipts returns all recorded receipts.
func (s *SQLiteStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts`)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			slog.Error("SQLiteStore GetReceipts scan failed", "error", err)
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
func (s *SQLiteStore) AddResponse(r models.Response) error {
	_, err := s.db.Exec(`INSERT INTO responses (sender, body, time) VALUES (?, ?, ?)`, r.From, r.Body, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddResponse failed", "error", err, "from", r.From)
		return fmt.Errorf("failed to insert response from %s: %w", r.From, err)
	}
	return nil
}

// GetResponses returns all recorded inbound messages.
func (s *SQLiteStore) GetResponses() ([]models.Response, error) {
	rows, err := s.db.Query(`SELECT sender, body, time FROM responses`)
	if err != nil {
		slog.Error("SQLiteStore GetResponses query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		if err := rows.Scan(&r.From, &r.Body, &r.Time); err != nil {
			slog.Error("SQLiteStore GetResponses scan failed", "error", err)
			return nil, err
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return responses, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
