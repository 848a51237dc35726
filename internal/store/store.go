// Package store provides storage backends for GoalPipe.
//
// It persists setup sessions, composed materials, subscriptions, and the
// message log, with in-memory, SQLite, and PostgreSQL implementations.
package store

import (
	"context"
	"strings"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// Store is the persistence interface shared by all backends. Setup sessions
// are the workflow's sole continuation mechanism, so a session write must be
// fully applied or not at all; every backend stores the session as one row.
type Store interface {
	GetSetupSession(ctx context.Context, userID string) (*models.SetupSession, error)
	SaveSetupSession(ctx context.Context, session *models.SetupSession) error
	DeleteSetupSession(ctx context.Context, userID string) error
	ListSetupSessions(ctx context.Context) ([]*models.SetupSession, error)

	SaveMaterial(ctx context.Context, material *models.Material) error
	GetMaterial(ctx context.Context, userID string) (*models.Material, error)

	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)

	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	AddResponse(r models.Response) error
	GetResponses() ([]models.Response, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports which backend a DSN addresses: "postgres" for
// PostgreSQL URLs or key-value DSNs, otherwise "sqlite" (a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}
