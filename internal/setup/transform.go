package setup

import (
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// enterTransform opens the transformation phase: one worry at a time, in
// collection order, starting at the current cursor.
func (e *Engine) enterTransform(session *models.SetupSession, out *replies) {
	out.say(transformIntro)
	out.say(transformPrompt(session.Worries[session.TransformCursor].Text))
}

// handleTransform records one reframing per accepted utterance and advances
// the cursor. Flow-control tokens have no meaning here; the pending worry is
// re-presented until it gets a reframing, so the cursor never skips.
// Reframings are not deduplicated.
func (e *Engine) handleTransform(session *models.SetupSession, input string, out *replies) {
	worry := session.Worries[session.TransformCursor]

	if e.tokens.IsReady(input) || e.tokens.IsReset(input) || normalizeText(input) == "" {
		out.say(transformPending(worry.Text))
		return
	}

	session.Reframed = append(session.Reframed, models.Reframing{
		OriginalWorry: worry.Text,
		Reframing:     input,
		CollectedAt:   time.Now(),
	})
	session.TransformCursor++

	if session.TransformCursor < len(session.Worries) {
		out.say(transformPrompt(session.Worries[session.TransformCursor].Text))
		return
	}

	// All worries reframed: derive the focus statement list once and park the
	// session until the material-creation trigger arrives.
	session.FocusStatements = AssembleFocusStatements(session.Positive, session.Opportunities, session.Reframed)
	session.Step = models.StepAwaitMaterial
	out.offer(focusSummary(session.FocusStatements), focusSummaryChoices())
}

// handleAwaitMaterial waits for the material-creation trigger and opens task
// generation.
func (e *Engine) handleAwaitMaterial(session *models.SetupSession, cfg models.PlanConfig, input string, out *replies) {
	if normalizeText(input) == TokenCreateMaterial || e.tokens.IsReady(input) {
		session.Step = models.StepGenerateTasks
		session.FocusCursor = 0
		out.say(taskPrompt(0, session.FocusStatements[0], cfg.MaxTasksPerFocus))
		return
	}
	out.offer(focusSummary(session.FocusStatements), focusSummaryChoices())
}
