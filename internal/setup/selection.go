package setup

import (
	"context"
	"strconv"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// handleSelectTasks lets selection tiers pick the fixed-size working subset
// of generated tasks. Three input shapes are accepted: a 1-based task number,
// the flow-control token, or the reset token. Numbering is stable over the
// full flattened task list, so re-displays never renumber.
func (e *Engine) handleSelectTasks(ctx context.Context, session *models.SetupSession, cfg models.PlanConfig, input string, out *replies) error {
	all := session.AllTasks()

	if e.tokens.IsReady(input) {
		if len(session.SelectedTasks) < cfg.RequiredTasks {
			out.say(selectionRemaining(cfg.RequiredTasks - len(session.SelectedTasks)))
			return nil
		}
		return e.composeAndAdvance(ctx, session, cfg, out)
	}

	if e.tokens.IsReset(input) {
		session.SelectedTasks = nil
		out.say(selectionResetDone)
		out.say(selectionList(all, nil))
		return nil
	}

	idx, err := strconv.Atoi(normalizeText(input))
	if err != nil || idx < 1 || idx > len(all) {
		out.say(selectionBadIndex(len(all)))
		return nil
	}

	task := all[idx-1]
	for _, sel := range session.SelectedTasks {
		if sel.ID == task.ID {
			out.say(selectionAlreadyPicked)
			return nil
		}
	}

	if len(session.SelectedTasks) >= cfg.RequiredTasks {
		out.say(selectionComplete(cfg.RequiredTasks))
		return nil
	}

	session.SelectedTasks = append(session.SelectedTasks, task)
	out.say(selectionList(all, session.SelectedTasks))
	if len(session.SelectedTasks) == cfg.RequiredTasks {
		out.say(selectionComplete(cfg.RequiredTasks))
	}
	return nil
}
