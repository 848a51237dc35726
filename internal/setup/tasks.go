package setup

import (
	"context"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// handleGenerateTasks collects 1..max tasks for the focus statement at the
// cursor. Tasks carry a composite id of focus index and 1-based ordinal.
// Single-task tiers auto-advance to the next focus statement; multi-task
// tiers advance on the flow-control token once at least one task exists.
func (e *Engine) handleGenerateTasks(ctx context.Context, session *models.SetupSession, cfg models.PlanConfig, input string, out *replies) error {
	current := session.TasksByFocus[session.FocusCursor]

	if e.tokens.IsReady(input) {
		if len(current) == 0 {
			out.say(taskNeedOne)
			return nil
		}
		return e.advanceFocus(ctx, session, cfg, out)
	}

	if normalizeText(input) == "" {
		out.say(genericHelp)
		return nil
	}

	if len(current) >= cfg.MaxTasksPerFocus {
		out.say(taskMaxHit)
		return nil
	}

	task := models.Task{
		ID:         models.TaskID(session.FocusCursor, len(current)+1),
		FocusIndex: session.FocusCursor,
		Text:       input,
		CreatedAt:  time.Now(),
	}
	if session.TasksByFocus == nil {
		session.TasksByFocus = make(map[int][]models.Task)
	}
	session.TasksByFocus[session.FocusCursor] = append(current, task)

	if len(current)+1 >= cfg.MaxTasksPerFocus {
		if cfg.MaxTasksPerFocus == 1 {
			return e.advanceFocus(ctx, session, cfg, out)
		}
		out.say(taskMaxHit)
		return nil
	}

	out.say(taskProgress(len(current)+1, cfg.MaxTasksPerFocus))
	return nil
}

// advanceFocus moves to the next focus statement, or leaves task generation
// when every focus statement has its tasks: selection tiers go to the
// selection interface, others straight to material composition.
func (e *Engine) advanceFocus(ctx context.Context, session *models.SetupSession, cfg models.PlanConfig, out *replies) error {
	session.FocusCursor++
	if session.FocusCursor < len(session.FocusStatements) {
		out.say(taskPrompt(session.FocusCursor, session.FocusStatements[session.FocusCursor], cfg.MaxTasksPerFocus))
		return nil
	}

	if cfg.RequiresSelection {
		session.Step = models.StepSelectTasks
		out.say(selectionIntro(cfg.RequiredTasks))
		out.say(selectionList(session.AllTasks(), session.SelectedTasks))
		return nil
	}

	return e.composeAndAdvance(ctx, session, cfg, out)
}
