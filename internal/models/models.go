// Package models defines the core data structures for GoalPipe.
//
// It includes the per-user setup session, plan tier definitions, tasks, and
// the final Material record, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// PlanTier identifies a subscription product. The tier fixes every quota of
// the setup interview; it is chosen before setup starts and is read-only
// during setup.
type PlanTier string

const (
	// PlanBasic is the extended tier: more statements, up to three tasks per
	// focus statement, no task selection.
	PlanBasic PlanTier = "basic"
	// PlanAccelerated is the two-week style tier: one task per focus
	// statement, then a selection of 2 working tasks.
	PlanAccelerated PlanTier = "accelerated"
	// PlanExpress is the intensive tier: one task per focus statement, then a
	// selection of 6 working tasks.
	PlanExpress PlanTier = "express"
)

// IsValidPlanTier checks if the given plan tier is supported.
func IsValidPlanTier(p PlanTier) bool {
	switch p {
	case PlanBasic, PlanAccelerated, PlanExpress:
		return true
	default:
		return false
	}
}

// PlanConfig holds every quota the setup workflow reads for one tier.
// The catalog mapping tiers to configs is supplied externally (see
// setup.DefaultPlanCatalog); phases look their tier up once on entry.
type PlanConfig struct {
	MinPositive       int    `json:"min_positive"`
	MaxPositive       int    `json:"max_positive"`
	MinWorries        int    `json:"min_worries"`
	MaxWorries        int    `json:"max_worries"`
	MinOpportunities  int    `json:"min_opportunities"`
	MaxOpportunities  int    `json:"max_opportunities"`
	MaxTasksPerFocus  int    `json:"max_tasks_per_focus"`
	RequiresSelection bool   `json:"requires_task_selection"`
	RequiredTasks     int    `json:"required_tasks"`
	MessagesPerDay    int    `json:"messages_per_day"`
	Cadence           string `json:"cadence"` // human-readable delivery cadence
}

// StatementEntry is one collected free-text statement in a category.
// Insertion order is significant: it determines focus statement ordering and
// transformation pairing order.
type StatementEntry struct {
	Text        string    `json:"text"`
	CollectedAt time.Time `json:"collected_at"`
}

// Reframing pairs a collected worry with its user-supplied positive
// transformation.
type Reframing struct {
	OriginalWorry string    `json:"original_worry"`
	Reframing     string    `json:"reframing"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Task is one concrete action item tied to a focus statement.
type Task struct {
	ID         string    `json:"id"` // composite "{focus_index}_{ordinal}"
	FocusIndex int       `json:"focus_index"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskID builds the composite task identifier from a focus index and a
// 1-based ordinal within that focus statement.
func TaskID(focusIndex, ordinal int) string {
	return fmt.Sprintf("%d_%d", focusIndex, ordinal)
}

// SetupSession is the complete persisted state of one user's setup interview.
// It is the sole continuation mechanism between inbound messages: the engine
// reads it, applies one utterance, and writes it back.
type SetupSession struct {
	UserID string   `json:"user_id"`
	Goal   string   `json:"goal"` // immutable once setup starts
	Plan   PlanTier `json:"plan"`

	Step SetupStep `json:"step"`

	Positive      []StatementEntry `json:"positive,omitempty"`
	Worries       []StatementEntry `json:"worries,omitempty"`
	Opportunities []StatementEntry `json:"opportunities,omitempty"`
	Reframed      []Reframing      `json:"reframed,omitempty"`

	// TransformCursor indexes Worries during the transformation phase;
	// terminal when equal to len(Worries).
	TransformCursor int `json:"transform_cursor"`

	// FocusStatements is derived once when all collection phases complete and
	// is immutable thereafter.
	FocusStatements []string `json:"focus_statements,omitempty"`

	// FocusCursor indexes FocusStatements during task generation.
	FocusCursor  int            `json:"focus_cursor"`
	TasksByFocus map[int][]Task `json:"tasks_by_focus,omitempty"`

	// SelectedTasks is only populated for tiers requiring selection; each
	// entry is unique by task id.
	SelectedTasks []Task `json:"selected_tasks,omitempty"`

	// FirstTaskReport holds the user's free-text report from the first task
	// trial, pending the follow-up feelings question.
	FirstTaskReport string `json:"first_task_report,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Category returns the named statement collection, allowing the collection
// phase to stay generic across categories.
func (s *SetupSession) Category(c StatementCategory) []StatementEntry {
	switch c {
	case CategoryPositive:
		return s.Positive
	case CategoryWorries:
		return s.Worries
	case CategoryOpportunities:
		return s.Opportunities
	default:
		return nil
	}
}

// AppendStatement appends an entry to the named collection.
func (s *SetupSession) AppendStatement(c StatementCategory, e StatementEntry) {
	switch c {
	case CategoryPositive:
		s.Positive = append(s.Positive, e)
	case CategoryWorries:
		s.Worries = append(s.Worries, e)
	case CategoryOpportunities:
		s.Opportunities = append(s.Opportunities, e)
	}
}

// AllTasks flattens TasksByFocus in focus-statement order, preserving task
// creation order within each focus statement. This is the ordering the task
// selection interface numbers its entries by.
func (s *SetupSession) AllTasks() []Task {
	var all []Task
	for i := range s.FocusStatements {
		all = append(all, s.TasksByFocus[i]...)
	}
	return all
}

// TotalTaskCount returns the number of generated tasks across all focus
// statements.
func (s *SetupSession) TotalTaskCount() int {
	n := 0
	for _, tasks := range s.TasksByFocus {
		n += len(tasks)
	}
	return n
}

// StatementCategory names one of the collected statement lists.
type StatementCategory string

const (
	CategoryPositive      StatementCategory = "positive"
	CategoryWorries       StatementCategory = "worries"
	CategoryOpportunities StatementCategory = "opportunities"
)

// Material is the terminal persisted bundle of goal, statements and tasks
// consumed by the external delivery/scheduling system. Created exactly once
// per session.
type Material struct {
	UserID          string      `json:"user_id"`
	Goal            string      `json:"goal"`
	Plan            PlanTier    `json:"plan"`
	FocusStatements []string    `json:"focus_statements"`
	Positive        []string    `json:"positive_feelings"`
	Worries         []string    `json:"worries"`
	Opportunities   []string    `json:"opportunities"`
	Reframed        []Reframing `json:"reframed"`

	// SelectedTasks is set for tiers with task selection; GeneratedTasks is
	// set otherwise. TotalTasks is derived from whichever is present.
	SelectedTasks  []Task         `json:"selected_tasks,omitempty"`
	GeneratedTasks map[int][]Task `json:"generated_tasks,omitempty"`
	TotalTasks     int            `json:"total_tasks"`

	CreatedAt time.Time `json:"created_at"`
}

// FirstTask returns the task presented during the first task trial: the
// first selected task for selection tiers, otherwise the first generated
// task in focus order.
func (m *Material) FirstTask() (Task, bool) {
	if len(m.SelectedTasks) > 0 {
		return m.SelectedTasks[0], true
	}
	for i := range m.FocusStatements {
		if tasks := m.GeneratedTasks[i]; len(tasks) > 0 {
			return tasks[0], true
		}
	}
	return Task{}, false
}

// Subscription is the active-subscription record that replaces a setup
// session once the workflow reaches its terminal step.
type Subscription struct {
	UserID      string    `json:"user_id"`
	Goal        string    `json:"goal"`
	Plan        PlanTier  `json:"plan"`
	ActivatedAt time.Time `json:"activated_at"`
}

// SetupCompleted is the terminal event emitted once per session for the
// subscription-activation collaborator.
type SetupCompleted struct {
	UserID   string   `json:"user_id"`
	Plan     PlanTier `json:"plan"`
	Material Material `json:"material"`
}

// Error variables for the setup error taxonomy and API validation.
var (
	// ErrInvariantViolation marks states that are unreachable through normal
	// input; callers treat it as a defect, not a user error.
	ErrInvariantViolation = errors.New("setup invariant violation")

	ErrEmptyUserID     = errors.New("user id cannot be empty")
	ErrEmptyGoal       = errors.New("goal cannot be empty")
	ErrInvalidPlanTier = errors.New("invalid plan tier")
	ErrUnknownStep     = errors.New("unknown setup step")
)

// EnrollmentRequest is the payload that starts a setup session. It arrives
// from the external payment flow once an order is confirmed.
type EnrollmentRequest struct {
	UserID string   `json:"user_id"`
	Goal   string   `json:"goal"`
	Plan   PlanTier `json:"plan"`
}

// Validate checks an EnrollmentRequest before a session is created.
func (r *EnrollmentRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if r.Goal == "" {
		return ErrEmptyGoal
	}
	if !IsValidPlanTier(r.Plan) {
		return ErrInvalidPlanTier
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional
// data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Receipt records the delivery status of an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a user.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
)

// Choice is one selectable option attached to an outbound prompt. Label is
// shown to the user; Token is what the core expects back when the option is
// picked.
type Choice struct {
	Label string `json:"label"`
	Token string `json:"token"`
}
