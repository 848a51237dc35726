// Package models defines the setup step machine for GoalPipe sessions.
package models

// SetupStep tags the phase a setup session is parked in. Exactly one value
// is active per session; the dispatcher routes each inbound utterance to the
// handler owning the current tag.
type SetupStep string

const (
	// StepWelcome greets the user after enrollment and waits for the start
	// confirmation.
	StepWelcome SetupStep = "WELCOME"
	// StepCollectPositive gathers feelings the user expects on reaching the
	// goal.
	StepCollectPositive SetupStep = "COLLECT_POSITIVE"
	// StepCollectWorries gathers worries and fears tied to the goal.
	StepCollectWorries SetupStep = "COLLECT_WORRIES"
	// StepCollectOpportunities gathers opportunities the goal would open.
	StepCollectOpportunities SetupStep = "COLLECT_OPPORTUNITIES"
	// StepTransform walks the worries one at a time, collecting a positive
	// reframing for each.
	StepTransform SetupStep = "TRANSFORM"
	// StepAwaitMaterial parks after focus statements are assembled, waiting
	// for the material-creation trigger.
	StepAwaitMaterial SetupStep = "AWAIT_MATERIAL"
	// StepGenerateTasks collects action items per focus statement.
	StepGenerateTasks SetupStep = "GENERATE_TASKS"
	// StepSelectTasks lets selection tiers pick the working task subset.
	StepSelectTasks SetupStep = "SELECT_TASKS"
	// StepConfirmSchedule presents the delivery cadence for confirmation.
	StepConfirmSchedule SetupStep = "CONFIRM_SCHEDULE"
	// StepFirstTaskTrial collects the user's report on their first movement.
	StepFirstTaskTrial SetupStep = "FIRST_TASK_TRIAL"
	// StepFirstTaskFeelings collects how that first movement felt.
	StepFirstTaskFeelings SetupStep = "FIRST_TASK_FEELINGS"
	// StepComplete is the terminal step; the session has been retired.
	StepComplete SetupStep = "COMPLETE"
)

// SetupSteps lists every step in workflow order.
var SetupSteps = []SetupStep{
	StepWelcome,
	StepCollectPositive,
	StepCollectWorries,
	StepCollectOpportunities,
	StepTransform,
	StepAwaitMaterial,
	StepGenerateTasks,
	StepSelectTasks,
	StepConfirmSchedule,
	StepFirstTaskTrial,
	StepFirstTaskFeelings,
	StepComplete,
}

// IsValidSetupStep checks if the given step is part of the workflow.
func IsValidSetupStep(s SetupStep) bool {
	for _, step := range SetupSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Terminal reports whether the step ends the workflow.
func (s SetupStep) Terminal() bool {
	return s == StepComplete
}
