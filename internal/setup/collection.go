package setup

import (
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// stepCategory maps a collection step to the statement category it gathers.
func stepCategory(step models.SetupStep) models.StatementCategory {
	switch step {
	case models.StepCollectPositive:
		return models.CategoryPositive
	case models.StepCollectWorries:
		return models.CategoryWorries
	case models.StepCollectOpportunities:
		return models.CategoryOpportunities
	default:
		return ""
	}
}

// categoryLimits returns the tier's minimum and maximum for a category.
func categoryLimits(cfg models.PlanConfig, c models.StatementCategory) (min, max int) {
	switch c {
	case models.CategoryPositive:
		return cfg.MinPositive, cfg.MaxPositive
	case models.CategoryWorries:
		return cfg.MinWorries, cfg.MaxWorries
	case models.CategoryOpportunities:
		return cfg.MinOpportunities, cfg.MaxOpportunities
	default:
		return 0, 0
	}
}

// enterCollection announces the collection phase the session just moved into.
func (e *Engine) enterCollection(session *models.SetupSession, out *replies) {
	out.say(collectionPrompts[stepCategory(session.Step)].intro)
}

// handleCollection implements the generic gather-N-to-M loop shared by the
// three free-text categories. Flow-control tokens force the minimum gate;
// statements are checked for near-duplicates within the category only.
func (e *Engine) handleCollection(session *models.SetupSession, cfg models.PlanConfig, input string, out *replies) {
	category := stepCategory(session.Step)
	min, max := categoryLimits(cfg, category)
	prompts := collectionPrompts[category]
	existing := session.Category(category)

	if e.tokens.IsReady(input) {
		if len(existing) < min {
			out.say(remainingPrompt(category, min-len(existing)))
			return
		}
		e.advanceFromCollection(session, out)
		return
	}

	if normalizeText(input) == "" {
		out.say(genericHelp)
		return
	}

	if IsDuplicate(input, existing) {
		out.say(prompts.duplicate)
		return
	}

	if len(existing) >= max {
		// Full: nothing is appended past the maximum; only the flow-control
		// token moves the phase forward.
		out.say(prompts.maxHit)
		return
	}

	session.AppendStatement(category, models.StatementEntry{
		Text:        input,
		CollectedAt: time.Now(),
	})

	count := len(existing) + 1
	switch {
	case count >= max:
		out.say(prompts.maxHit)
	case count < min:
		out.say(remainingPrompt(category, min-count))
	default:
		out.say(prompts.askMore)
	}
}

// advanceFromCollection moves to the phase following the finished category.
func (e *Engine) advanceFromCollection(session *models.SetupSession, out *replies) {
	switch session.Step {
	case models.StepCollectPositive:
		session.Step = models.StepCollectWorries
		e.enterCollection(session, out)
	case models.StepCollectWorries:
		session.Step = models.StepCollectOpportunities
		e.enterCollection(session, out)
	case models.StepCollectOpportunities:
		session.Step = models.StepTransform
		e.enterTransform(session, out)
	}
}
