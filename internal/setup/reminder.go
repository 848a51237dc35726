package setup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// DefaultIdleThreshold is how long a session may sit untouched before a
// reminder is sent.
const DefaultIdleThreshold = 24 * time.Hour

// SessionLister is the slice of the store the reminder needs.
type SessionLister interface {
	ListSetupSessions(ctx context.Context) ([]*models.SetupSession, error)
}

// Reminder nudges users whose setup session has gone quiet. It is run
// periodically by the scheduler; each run scans in-flight sessions and
// messages the ones idle past the threshold.
type Reminder struct {
	store     SessionLister
	presenter Presenter
	idleAfter time.Duration
}

// ReminderOption configures a Reminder.
type ReminderOption func(*Reminder)

// WithIdleThreshold overrides how long a session may idle before a nudge.
func WithIdleThreshold(d time.Duration) ReminderOption {
	return func(r *Reminder) { r.idleAfter = d }
}

// NewReminder creates a reminder over the given store and presenter.
func NewReminder(store SessionLister, presenter Presenter, opts ...ReminderOption) *Reminder {
	r := &Reminder{
		store:     store,
		presenter: presenter,
		idleAfter: DefaultIdleThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run scans in-flight sessions once and nudges the stalled ones. Send
// failures are logged per user and do not stop the scan.
func (r *Reminder) Run(ctx context.Context) error {
	sessions, err := r.store.ListSetupSessions(ctx)
	if err != nil {
		slog.Error("Reminder.Run: failed to list sessions", "error", err)
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	cutoff := time.Now().Add(-r.idleAfter)
	nudged := 0
	for _, session := range sessions {
		if session.Step.Terminal() {
			continue
		}
		if session.UpdatedAt.After(cutoff) {
			continue
		}
		if err := r.presenter.SendMessage(ctx, session.UserID, reminderMessage(session.Goal)); err != nil {
			slog.Error("Reminder.Run: failed to send reminder", "error", err, "userID", session.UserID)
			continue
		}
		nudged++
		slog.Info("Reminder.Run: reminder sent", "userID", session.UserID, "step", session.Step, "idle_since", session.UpdatedAt)
	}

	slog.Debug("Reminder.Run: scan complete", "sessions", len(sessions), "nudged", nudged)
	return nil
}

// reminderMessage is the nudge sent to a stalled session.
func reminderMessage(goal string) string {
	return fmt.Sprintf("Still with me? 🙂 Your setup for \"%s\" is waiting right where you left off. Just reply to continue.", goal)
}
