package setup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// ComposeMaterial builds the terminal Material record from a finished
// session: goal, tier, the full focus statement list, the per-category text
// lists, and either the selected working subset or the full generated task
// map. Pure; validation of the session invariants happens here so a
// defective session fails loudly instead of producing a hollow material.
func ComposeMaterial(session *models.SetupSession, cfg models.PlanConfig) (*models.Material, error) {
	if len(session.FocusStatements) == 0 {
		return nil, fmt.Errorf("%w: no focus statements", models.ErrInvariantViolation)
	}
	if cfg.RequiresSelection && len(session.SelectedTasks) != cfg.RequiredTasks {
		return nil, fmt.Errorf("%w: %d tasks selected, tier requires %d", models.ErrInvariantViolation, len(session.SelectedTasks), cfg.RequiredTasks)
	}
	if session.TotalTaskCount() == 0 {
		return nil, fmt.Errorf("%w: no tasks generated", models.ErrInvariantViolation)
	}

	material := &models.Material{
		UserID:          session.UserID,
		Goal:            session.Goal,
		Plan:            session.Plan,
		FocusStatements: session.FocusStatements,
		Positive:        statementTexts(session.Positive),
		Worries:         statementTexts(session.Worries),
		Opportunities:   statementTexts(session.Opportunities),
		Reframed:        session.Reframed,
		CreatedAt:       time.Now(),
	}

	if cfg.RequiresSelection {
		material.SelectedTasks = session.SelectedTasks
		material.TotalTasks = len(session.SelectedTasks)
	} else {
		material.GeneratedTasks = session.TasksByFocus
		material.TotalTasks = session.TotalTaskCount()
	}
	return material, nil
}

// composeAndAdvance persists the material and moves the session to schedule
// confirmation.
func (e *Engine) composeAndAdvance(ctx context.Context, session *models.SetupSession, cfg models.PlanConfig, out *replies) error {
	material, err := ComposeMaterial(session, cfg)
	if err != nil {
		return err
	}
	if err := e.store.SaveMaterial(ctx, material); err != nil {
		slog.Error("Engine.composeAndAdvance: failed to save material", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save material: %w", err)
	}

	session.Step = models.StepConfirmSchedule
	out.say(materialReady(material.TotalTasks, cfg.Cadence))

	slog.Info("Engine.composeAndAdvance: material composed", "userID", session.UserID, "plan", session.Plan, "totalTasks", material.TotalTasks)
	return nil
}

func statementTexts(entries []models.StatementEntry) []string {
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	return texts
}
