package setup

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// All user-facing presentation text for the setup interview lives here, kept
// apart from the workflow logic so the copy can be revised without touching
// phase handlers.

// categoryPrompts bundles the per-category presentation text the collection
// phase is parameterized by.
type categoryPrompts struct {
	intro     string // shown on phase entry
	duplicate string // shown when a near-duplicate is rejected
	askMore   string // shown between minimum and maximum
	maxHit    string // shown when the maximum is reached
	example   string // appended to remaining-count re-prompts
}

var collectionPrompts = map[models.StatementCategory]categoryPrompts{
	models.CategoryPositive: {
		intro:     "Let's start with the good part. 🌟 Imagine your goal is already achieved. What positive feelings come up? Send them one at a time, each as a short message.",
		duplicate: "You've already mentioned something very similar. Try to describe a different feeling.",
		askMore:   "Noted! Add another feeling, or say \"ready\" to move on.",
		maxHit:    "That's a rich picture already. Say \"ready\" when you want to move on.",
		example:   "For example: \"I feel proud of myself\".",
	},
	models.CategoryWorries: {
		intro:     "Now the honest part. What worries or fears come up when you think about this goal? Send them one at a time.",
		duplicate: "That worry is very close to one you've already shared. Is there a different one?",
		askMore:   "Got it. Add another worry, or say \"ready\" to continue.",
		maxHit:    "That's enough worries to work with. Say \"ready\" to continue.",
		example:   "For example: \"I'm afraid I won't have enough time\".",
	},
	models.CategoryOpportunities: {
		intro:     "One more angle. What opportunities will open up for you once the goal is reached? Send them one at a time.",
		duplicate: "You've already named an opportunity very much like that one. Try another.",
		askMore:   "Nice. Add another opportunity, or say \"ready\" to continue.",
		maxHit:    "Great set of opportunities. Say \"ready\" to continue.",
		example:   "For example: \"I'll be able to travel more\".",
	},
}

// welcomeMessage opens the interview after enrollment.
func welcomeMessage(goal string) string {
	return fmt.Sprintf("Welcome! 👋 Your goal: \"%s\".\n\nTogether we'll turn it into a set of focus statements and daily tasks. The setup takes a few minutes. Press Start when you're ready.", goal)
}

// welcomeChoices is the single button attached to the welcome message.
func welcomeChoices() []models.Choice {
	return []models.Choice{{Label: "Start", Token: TokenStart}}
}

// remainingPrompt tells the user exactly how many more statements the current
// category needs before "ready" will be accepted.
func remainingPrompt(category models.StatementCategory, remaining int) string {
	p := collectionPrompts[category]
	if remaining == 1 {
		return fmt.Sprintf("One more to go. %s", p.example)
	}
	return fmt.Sprintf("I need %d more from you. %s", remaining, p.example)
}

// transformIntro is shown once when the transformation phase is entered.
const transformIntro = "Now let's turn each worry into its positive opposite. I'll show you a worry, and you answer with how you want things to be instead, as if it's already true."

// transformPrompt presents the worry currently awaiting a reframing.
func transformPrompt(worry string) string {
	return fmt.Sprintf("Your worry:\n\"%s\"\n\nHow do you want it to be instead? Write it as a positive statement.", worry)
}

// transformPending re-prompts the same worry after a flow-control token, which
// has no meaning mid-transformation.
func transformPending(worry string) string {
	return fmt.Sprintf("Let's finish this one first. Reply with a positive version of:\n\"%s\"", worry)
}

// focusSummary renders the assembled focus statement list and invites the
// material-creation trigger.
func focusSummary(statements []string) string {
	var b strings.Builder
	b.WriteString("Here are your focus statements: ✨\n\n")
	for i, s := range statements {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("\nThese will be the backbone of your program. Press the button when you're ready to build your task list.")
	return b.String()
}

// focusSummaryChoices is the single button attached to the focus summary.
func focusSummaryChoices() []models.Choice {
	return []models.Choice{{Label: "Create my material", Token: TokenCreateMaterial}}
}

// taskPrompt asks for the first task of a focus statement.
func taskPrompt(focusIndex int, statement string, maxTasks int) string {
	if maxTasks == 1 {
		return fmt.Sprintf("Focus statement %d:\n\"%s\"\n\nWhat is one concrete action that supports it? Send it as a short message.", focusIndex+1, statement)
	}
	return fmt.Sprintf("Focus statement %d:\n\"%s\"\n\nWhat concrete actions support it? Send up to %d, one at a time.", focusIndex+1, statement, maxTasks)
}

// taskProgress acknowledges an accepted task when the focus statement can
// still take more.
func taskProgress(accepted, maxTasks int) string {
	return fmt.Sprintf("Saved (%d of %d). Add another, or say \"ready\" for the next focus statement.", accepted, maxTasks)
}

// taskMaxHit is shown when a focus statement reached its task quota on
// multi-task plans and asks for the flow-control token.
const taskMaxHit = "That's the limit for this focus statement. Say \"ready\" to move on."

// taskNeedOne rejects a premature flow-control token during task generation.
const taskNeedOne = "Every focus statement needs at least one task. Send one first."

// selectionIntro opens the task selection phase.
func selectionIntro(required int) string {
	return fmt.Sprintf("Almost there. Out of everything you've written, pick the %d tasks you'll actually work on. Reply with a task number to select it, \"reset\" to start over, or \"ready\" when you're done.", required)
}

// selectionList renders the numbered task list with markers on selected
// entries. Numbering is stable across re-displays.
func selectionList(all []models.Task, selected []models.Task) string {
	chosen := make(map[string]struct{}, len(selected))
	for _, t := range selected {
		chosen[t.ID] = struct{}{}
	}
	var b strings.Builder
	b.WriteString("Your tasks:\n")
	for i, t := range all {
		if _, ok := chosen[t.ID]; ok {
			fmt.Fprintf(&b, "%d. ✓ %s\n", i+1, t.Text)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, t.Text)
		}
	}
	return b.String()
}

// selectionRemaining reports how many more selections "ready" still needs.
func selectionRemaining(remaining int) string {
	if remaining == 1 {
		return "Pick 1 more task before we wrap up."
	}
	return fmt.Sprintf("Pick %d more tasks before we wrap up.", remaining)
}

const selectionAlreadyPicked = "That task is already selected. Pick a different number."

// selectionBadIndex rejects unparsable or out-of-range selection input.
func selectionBadIndex(max int) string {
	return fmt.Sprintf("Send a task number from 1 to %d, \"reset\", or \"ready\".", max)
}

const selectionResetDone = "Selection cleared. Start picking again."

// selectionComplete confirms the quota is met and asks for the flow-control
// token.
func selectionComplete(required int) string {
	return fmt.Sprintf("All %d tasks picked. Say \"ready\" to lock them in, or \"reset\" to change your mind.", required)
}

// materialReady confirms the material was composed and previews the cadence.
func materialReady(totalTasks int, cadence string) string {
	return fmt.Sprintf("Your material is ready! 🎉 It holds %d tasks.\n\nYou'll receive %s. Reply with anything to confirm the schedule.", totalTasks, cadence)
}

// firstTaskTrial invites the user to try their first task right away.
func firstTaskTrial(task models.Task) string {
	return fmt.Sprintf("Schedule confirmed. Let's not wait for tomorrow. Your first task:\n\"%s\"\n\nTry it now, then tell me how it went.", task.Text)
}

// firstTaskFeelings follows up on the trial report.
const firstTaskFeelings = "Thank you for sharing. One last question: how do you feel after doing it?"

// farewell closes the interview and hands over to the delivery schedule.
const farewell = "That's it, your program is live. 🚀 From now on your tasks arrive on schedule. See you in the first message!"

// genericHelp is shown for input the current step cannot interpret.
const genericHelp = "I didn't catch that. Follow the last prompt, or use the buttons if any are shown."
