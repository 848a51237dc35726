package setup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// staticLister serves a fixed session list.
type staticLister struct {
	sessions []*models.SetupSession
	err      error
}

func (l *staticLister) ListSetupSessions(ctx context.Context) ([]*models.SetupSession, error) {
	return l.sessions, l.err
}

func TestReminderNudgesIdleSessions(t *testing.T) {
	now := time.Now()
	lister := &staticLister{sessions: []*models.SetupSession{
		{UserID: "+15550000001", Goal: "learn piano", Step: models.StepCollectPositive, UpdatedAt: now.Add(-48 * time.Hour)},
		{UserID: "+15550000002", Goal: "run daily", Step: models.StepTransform, UpdatedAt: now.Add(-time.Minute)},
		{UserID: "+15550000003", Goal: "read more", Step: models.StepComplete, UpdatedAt: now.Add(-48 * time.Hour)},
	}}
	presenter := &recordingPresenter{}
	reminder := NewReminder(lister, presenter)

	if err := reminder.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(presenter.messages) != 1 {
		t.Fatalf("expected 1 reminder, got %d: %v", len(presenter.messages), presenter.messages)
	}
	if !strings.Contains(presenter.messages[0], "learn piano") {
		t.Errorf("reminder should mention the user's goal, got %q", presenter.messages[0])
	}
}

func TestReminderCustomThreshold(t *testing.T) {
	lister := &staticLister{sessions: []*models.SetupSession{
		{UserID: "+15550000001", Goal: "learn piano", Step: models.StepCollectPositive, UpdatedAt: time.Now().Add(-2 * time.Hour)},
	}}
	presenter := &recordingPresenter{}

	reminder := NewReminder(lister, presenter, WithIdleThreshold(time.Hour))
	if err := reminder.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(presenter.messages) != 1 {
		t.Fatalf("session idle past a shortened threshold should be nudged, got %d messages", len(presenter.messages))
	}

	presenter.messages = nil
	reminder = NewReminder(lister, presenter, WithIdleThreshold(3*time.Hour))
	if err := reminder.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(presenter.messages) != 0 {
		t.Fatalf("session inside the threshold should not be nudged, got %v", presenter.messages)
	}
}

func TestReminderListFailure(t *testing.T) {
	lister := &staticLister{err: errors.New("db down")}
	reminder := NewReminder(lister, &recordingPresenter{})

	if err := reminder.Run(context.Background()); err == nil {
		t.Fatal("expected error when the session list cannot be loaded")
	}
}
