package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// ErrSessionExists is returned by StartSetup when the user already has a
// setup session in flight.
var ErrSessionExists = errors.New("setup session already exists")

// SessionStore is the persistence boundary the engine depends on. It is
// satisfied by store.Store; the engine only sees the session and material
// operations it needs.
type SessionStore interface {
	GetSetupSession(ctx context.Context, userID string) (*models.SetupSession, error)
	SaveSetupSession(ctx context.Context, session *models.SetupSession) error
	DeleteSetupSession(ctx context.Context, userID string) error
	SaveMaterial(ctx context.Context, material *models.Material) error
	GetMaterial(ctx context.Context, userID string) (*models.Material, error)
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
}

// Presenter renders text and optional choice buttons to the user. The engine
// never consumes a return value beyond the error; rendering is fire-and-forget.
type Presenter interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendChoices(ctx context.Context, to string, body string, choices []models.Choice) error
}

// CompletionFunc receives the terminal event emitted once per session when
// the workflow reaches its final step.
type CompletionFunc func(ctx context.Context, event models.SetupCompleted)

// Engine drives the setup interview. It is re-entrant across users: each
// inbound utterance is one read-modify-write of that user's persisted
// session, serialized per user so racing utterances cannot lose updates.
type Engine struct {
	store     SessionStore
	presenter Presenter
	plans     PlanCatalog
	tokens    TokenSet
	onDone    CompletionFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithPlanCatalog overrides the built-in plan tier configuration.
func WithPlanCatalog(c PlanCatalog) Option {
	return func(e *Engine) { e.plans = c }
}

// WithTokens overrides the flow-control token vocabulary.
func WithTokens(t TokenSet) Option {
	return func(e *Engine) { e.tokens = t }
}

// WithCompletionFunc registers the terminal-event consumer.
func WithCompletionFunc(f CompletionFunc) Option {
	return func(e *Engine) { e.onDone = f }
}

// NewEngine creates a setup workflow engine with the given store and
// presenter.
func NewEngine(st SessionStore, p Presenter, opts ...Option) *Engine {
	slog.Debug("setup.NewEngine: creating engine")
	e := &Engine{
		store:     st,
		presenter: p,
		plans:     DefaultPlanCatalog(),
		tokens:    DefaultTokenSet(),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// userLock returns the mutex serializing mutations for one user's session.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}

// StartSetup creates a new setup session for the user and sends the welcome
// message. It fails if a session is already in flight.
func (e *Engine) StartSetup(ctx context.Context, userID, goal string, plan models.PlanTier) error {
	slog.Debug("Engine.StartSetup: starting setup", "userID", userID, "plan", plan)

	req := models.EnrollmentRequest{UserID: userID, Goal: goal, Plan: plan}
	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := e.plans.Config(plan); err != nil {
		return err
	}

	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.GetSetupSession(ctx, userID)
	if err != nil {
		slog.Error("Engine.StartSetup: failed to load session", "error", err, "userID", userID)
		return fmt.Errorf("failed to load session: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: user %s", ErrSessionExists, userID)
	}

	now := time.Now()
	session := &models.SetupSession{
		UserID:    userID,
		Goal:      goal,
		Plan:      plan,
		Step:      models.StepWelcome,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.SaveSetupSession(ctx, session); err != nil {
		slog.Error("Engine.StartSetup: failed to save session", "error", err, "userID", userID)
		return fmt.Errorf("failed to save session: %w", err)
	}

	if err := e.presenter.SendChoices(ctx, userID, welcomeMessage(goal), welcomeChoices()); err != nil {
		slog.Error("Engine.StartSetup: failed to send welcome", "error", err, "userID", userID)
		return fmt.Errorf("failed to send welcome: %w", err)
	}

	slog.Info("Engine.StartSetup: setup session created", "userID", userID, "plan", plan)
	return nil
}

// HandleResponse processes one inbound utterance. It returns false when the
// user has no setup session in flight so the caller can fall through to other
// handlers. The session is saved before any reply is sent: a persistence
// failure means no state change happened and the invocation can be retried.
func (e *Engine) HandleResponse(ctx context.Context, from, body string) (bool, error) {
	lock := e.userLock(from)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.store.GetSetupSession(ctx, from)
	if err != nil {
		slog.Error("Engine.HandleResponse: failed to load session", "error", err, "from", from)
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		slog.Debug("Engine.HandleResponse: no session in flight", "from", from)
		return false, nil
	}

	slog.Debug("Engine.HandleResponse: dispatching", "from", from, "step", session.Step)

	out := &replies{}
	if err := e.dispatch(ctx, session, body, out); err != nil {
		slog.Error("Engine.HandleResponse: handler failed", "error", err, "from", from, "step", session.Step)
		return true, err
	}

	session.UpdatedAt = time.Now()
	if err := e.store.SaveSetupSession(ctx, session); err != nil {
		slog.Error("Engine.HandleResponse: failed to save session", "error", err, "from", from)
		return true, fmt.Errorf("failed to save session: %w", err)
	}

	if session.Step == models.StepComplete {
		if err := e.finalize(ctx, session); err != nil {
			slog.Error("Engine.HandleResponse: finalization failed", "error", err, "from", from)
			return true, err
		}
	}

	if err := e.flush(ctx, from, out); err != nil {
		return true, err
	}

	slog.Debug("Engine.HandleResponse: handled", "from", from, "step", session.Step)
	return true, nil
}

// dispatch routes the utterance to the handler owning the session's current
// step. The switch is exhaustive over the step enum; an unknown tag is an
// invariant violation, not user error.
func (e *Engine) dispatch(ctx context.Context, session *models.SetupSession, input string, out *replies) error {
	cfg, err := e.plans.Config(session.Plan)
	if err != nil {
		return err
	}

	switch session.Step {
	case models.StepWelcome:
		e.handleWelcome(session, input, out)
	case models.StepCollectPositive, models.StepCollectWorries, models.StepCollectOpportunities:
		e.handleCollection(session, cfg, input, out)
	case models.StepTransform:
		e.handleTransform(session, input, out)
	case models.StepAwaitMaterial:
		e.handleAwaitMaterial(session, cfg, input, out)
	case models.StepGenerateTasks:
		return e.handleGenerateTasks(ctx, session, cfg, input, out)
	case models.StepSelectTasks:
		return e.handleSelectTasks(ctx, session, cfg, input, out)
	case models.StepConfirmSchedule:
		e.handleConfirmSchedule(session, out)
	case models.StepFirstTaskTrial:
		e.handleFirstTaskTrial(session, input, out)
	case models.StepFirstTaskFeelings:
		e.handleFirstTaskFeelings(session, out)
	case models.StepComplete:
		// Finalization is re-attempted by HandleResponse; nothing to say.
	default:
		return fmt.Errorf("%w: %q", models.ErrUnknownStep, session.Step)
	}
	return nil
}

// handleWelcome waits for the start confirmation and opens the first
// collection phase.
func (e *Engine) handleWelcome(session *models.SetupSession, input string, out *replies) {
	if normalizeText(input) == TokenStart || e.tokens.IsReady(input) {
		session.Step = models.StepCollectPositive
		e.enterCollection(session, out)
		return
	}
	out.offer(welcomeMessage(session.Goal), welcomeChoices())
}

// handleConfirmSchedule treats any utterance as schedule confirmation and
// moves on to the first task trial.
func (e *Engine) handleConfirmSchedule(session *models.SetupSession, out *replies) {
	task, ok := firstTaskOf(session)
	if !ok {
		// Unreachable: material composition requires at least one task.
		out.say(genericHelp)
		return
	}
	session.Step = models.StepFirstTaskTrial
	out.say(firstTaskTrial(task))
}

// handleFirstTaskTrial records the trial report and asks the follow-up
// feelings question.
func (e *Engine) handleFirstTaskTrial(session *models.SetupSession, input string, out *replies) {
	session.FirstTaskReport = input
	session.Step = models.StepFirstTaskFeelings
	out.say(firstTaskFeelings)
}

// handleFirstTaskFeelings closes the interview. The terminal step is set
// here; subscription activation happens in finalize after the session is
// persisted.
func (e *Engine) handleFirstTaskFeelings(session *models.SetupSession, out *replies) {
	session.Step = models.StepComplete
	out.say(farewell)
}

// finalize retires a completed session: it activates the subscription, emits
// the terminal event, and deletes the session. Safe to re-run if a previous
// attempt failed partway; every operation is idempotent per user.
func (e *Engine) finalize(ctx context.Context, session *models.SetupSession) error {
	material, err := e.store.GetMaterial(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("failed to load material: %w", err)
	}
	if material == nil {
		return fmt.Errorf("%w: session completed without material", models.ErrInvariantViolation)
	}

	sub := &models.Subscription{
		UserID:      session.UserID,
		Goal:        session.Goal,
		Plan:        session.Plan,
		ActivatedAt: time.Now(),
	}
	if err := e.store.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	if e.onDone != nil {
		e.onDone(ctx, models.SetupCompleted{
			UserID:   session.UserID,
			Plan:     session.Plan,
			Material: *material,
		})
	}

	if err := e.store.DeleteSetupSession(ctx, session.UserID); err != nil {
		return fmt.Errorf("failed to retire session: %w", err)
	}

	slog.Info("Engine.finalize: setup complete", "userID", session.UserID, "plan", session.Plan, "totalTasks", material.TotalTasks)
	return nil
}

// firstTaskOf returns the task presented during the first task trial: the
// first selected task on selection tiers, otherwise the first generated task
// in focus order.
func firstTaskOf(session *models.SetupSession) (models.Task, bool) {
	if len(session.SelectedTasks) > 0 {
		return session.SelectedTasks[0], true
	}
	all := session.AllTasks()
	if len(all) > 0 {
		return all[0], true
	}
	return models.Task{}, false
}

// replies buffers outbound messages for one invocation so state is persisted
// before anything is rendered.
type replies struct {
	items []reply
}

type reply struct {
	text    string
	choices []models.Choice
}

func (r *replies) say(text string) {
	r.items = append(r.items, reply{text: text})
}

func (r *replies) offer(text string, choices []models.Choice) {
	r.items = append(r.items, reply{text: text, choices: choices})
}

// flush renders the buffered replies in order. A render failure is reported
// but state has already been saved; the user can nudge the flow with any
// message to get re-prompted.
func (e *Engine) flush(ctx context.Context, to string, out *replies) error {
	for _, r := range out.items {
		var err error
		if len(r.choices) > 0 {
			err = e.presenter.SendChoices(ctx, to, r.text, r.choices)
		} else {
			err = e.presenter.SendMessage(ctx, to, r.text)
		}
		if err != nil {
			slog.Error("Engine.flush: failed to send reply", "error", err, "to", to)
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}
	return nil
}
