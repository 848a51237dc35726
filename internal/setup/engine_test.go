package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// memStore is an in-memory SessionStore for engine tests. Save copies the
// value so later mutation of the caller's struct does not leak into the
// store.
type memStore struct {
	sessions  map[string]*models.SetupSession
	materials map[string]*models.Material
	subs      map[string]*models.Subscription
	saveErr   error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  make(map[string]*models.SetupSession),
		materials: make(map[string]*models.Material),
		subs:      make(map[string]*models.Subscription),
	}
}

func (m *memStore) GetSetupSession(ctx context.Context, userID string) (*models.SetupSession, error) {
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) SaveSetupSession(ctx context.Context, session *models.SetupSession) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *session
	m.sessions[session.UserID] = &cp
	return nil
}

func (m *memStore) DeleteSetupSession(ctx context.Context, userID string) error {
	delete(m.sessions, userID)
	return nil
}

func (m *memStore) SaveMaterial(ctx context.Context, material *models.Material) error {
	cp := *material
	m.materials[material.UserID] = &cp
	return nil
}

func (m *memStore) GetMaterial(ctx context.Context, userID string) (*models.Material, error) {
	mat, ok := m.materials[userID]
	if !ok {
		return nil, nil
	}
	cp := *mat
	return &cp, nil
}

func (m *memStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	cp := *sub
	m.subs[sub.UserID] = &cp
	return nil
}

// recordingPresenter captures outbound messages for assertions.
type recordingPresenter struct {
	messages []string
}

func (p *recordingPresenter) SendMessage(ctx context.Context, to, body string) error {
	p.messages = append(p.messages, body)
	return nil
}

func (p *recordingPresenter) SendChoices(ctx context.Context, to, body string, choices []models.Choice) error {
	p.messages = append(p.messages, body)
	return nil
}

func (p *recordingPresenter) last() string {
	if len(p.messages) == 0 {
		return ""
	}
	return p.messages[len(p.messages)-1]
}

const testUser = "+15551234567"

func newTestEngine(t *testing.T, plan models.PlanTier, opts ...Option) (*Engine, *memStore, *recordingPresenter) {
	t.Helper()
	st := newMemStore()
	pr := &recordingPresenter{}
	e := NewEngine(st, pr, opts...)
	if err := e.StartSetup(context.Background(), testUser, "run a marathon", plan); err != nil {
		t.Fatalf("StartSetup failed: %v", err)
	}
	return e, st, pr
}

// drive feeds utterances through the engine one at a time.
func drive(t *testing.T, e *Engine, inputs ...string) {
	t.Helper()
	for _, in := range inputs {
		handled, err := e.HandleResponse(context.Background(), testUser, in)
		if err != nil {
			t.Fatalf("HandleResponse(%q) failed: %v", in, err)
		}
		if !handled {
			t.Fatalf("HandleResponse(%q) not handled: no session in flight", in)
		}
	}
}

func stepOf(t *testing.T, st *memStore) models.SetupStep {
	t.Helper()
	s := st.sessions[testUser]
	if s == nil {
		t.Fatal("no session in store")
	}
	return s.Step
}

func TestStartSetupValidation(t *testing.T) {
	e := NewEngine(newMemStore(), &recordingPresenter{})
	ctx := context.Background()

	if err := e.StartSetup(ctx, "", "goal", models.PlanBasic); !errors.Is(err, models.ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
	if err := e.StartSetup(ctx, testUser, "", models.PlanBasic); !errors.Is(err, models.ErrEmptyGoal) {
		t.Errorf("expected ErrEmptyGoal, got %v", err)
	}
	if err := e.StartSetup(ctx, testUser, "goal", models.PlanTier("gold")); !errors.Is(err, models.ErrInvalidPlanTier) {
		t.Errorf("expected ErrInvalidPlanTier, got %v", err)
	}
}

func TestStartSetupRejectsSecondSession(t *testing.T) {
	e, _, _ := newTestEngine(t, models.PlanBasic)
	err := e.StartSetup(context.Background(), testUser, "another goal", models.PlanBasic)
	if !errors.Is(err, ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
}

func TestHandleResponseNoSession(t *testing.T) {
	e := NewEngine(newMemStore(), &recordingPresenter{})
	handled, err := e.HandleResponse(context.Background(), "+15550000000", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handled {
		t.Error("expected message for unknown user to fall through")
	}
}

// Scenario: minimum gate on the positive collection. Two statements then a
// flow-control token keeps the step in place with a remaining-count message;
// a third statement unlocks the gate.
func TestCollectionMinimumGate(t *testing.T) {
	e, st, pr := newTestEngine(t, models.PlanBasic)
	drive(t, e, "start", "I feel proud", "I feel free")

	drive(t, e, "ready")
	if got := stepOf(t, st); got != models.StepCollectPositive {
		t.Fatalf("expected to stay in CollectPositive, got %s", got)
	}
	if !strings.Contains(pr.last(), "One more") {
		t.Errorf("expected remaining-count message, got %q", pr.last())
	}

	drive(t, e, "I feel energized", "ready")
	if got := stepOf(t, st); got != models.StepCollectWorries {
		t.Fatalf("expected CollectWorries after minimum met, got %s", got)
	}
}

func TestCollectionPluralRemaining(t *testing.T) {
	e, _, pr := newTestEngine(t, models.PlanBasic)
	drive(t, e, "start", "ready")
	if !strings.Contains(pr.last(), "3 more") {
		t.Errorf("expected plural remaining count, got %q", pr.last())
	}
}

// Duplicate rejection is idempotent: submitting the same text twice in a row
// never grows the collection past one.
func TestCollectionDuplicateRejected(t *testing.T) {
	e, st, pr := newTestEngine(t, models.PlanBasic)
	drive(t, e, "start", "I feel proud", "I feel proud", "  i feel PROUD  ")

	s := st.sessions[testUser]
	if len(s.Positive) != 1 {
		t.Fatalf("expected 1 positive statement, got %d", len(s.Positive))
	}
	if !strings.Contains(pr.last(), "similar") {
		t.Errorf("expected duplicate message, got %q", pr.last())
	}
}

func TestCollectionMaximumStopsAppending(t *testing.T) {
	e, st, _ := newTestEngine(t, models.PlanExpress) // max positive 5
	drive(t, e, "start", "p one", "p two", "p three", "p four", "p five", "p six", "p seven")

	s := st.sessions[testUser]
	if len(s.Positive) != 5 {
		t.Fatalf("expected collection capped at 5, got %d", len(s.Positive))
	}
	if s.Step != models.StepCollectPositive {
		t.Fatalf("expected to wait for flow-control token at maximum, got %s", s.Step)
	}
}

// Worries are reframed one at a time in collection order; flow-control tokens
// mid-transformation re-prompt the pending worry instead of skipping it.
func TestTransformPhase(t *testing.T) {
	e, st, pr := newTestEngine(t, models.PlanBasic)
	drive(t, e,
		"start",
		"I feel proud", "I feel free", "I feel strong", "ready",
		"I'm afraid I won't succeed", "I worry about time", "ready",
		"I can travel", "I can teach others", "ready",
	)
	if got := stepOf(t, st); got != models.StepTransform {
		t.Fatalf("expected Transform, got %s", got)
	}

	// Flow-control token must not advance the cursor.
	drive(t, e, "ready")
	if s := st.sessions[testUser]; s.TransformCursor != 0 || len(s.Reframed) != 0 {
		t.Fatalf("expected cursor unchanged on flow-control token, got cursor=%d reframed=%d", s.TransformCursor, len(s.Reframed))
	}

	drive(t, e, "I will feel confident")
	s := st.sessions[testUser]
	if len(s.Reframed) != 1 || s.TransformCursor != 1 {
		t.Fatalf("expected one reframing recorded, got reframed=%d cursor=%d", len(s.Reframed), s.TransformCursor)
	}
	if s.Reframed[0].OriginalWorry != "I'm afraid I won't succeed" || s.Reframed[0].Reframing != "I will feel confident" {
		t.Errorf("unexpected reframing pair: %+v", s.Reframed[0])
	}

	drive(t, e, "I have all the time I need")
	s = st.sessions[testUser]
	if s.Step != models.StepAwaitMaterial {
		t.Fatalf("expected AwaitMaterial after last reframing, got %s", s.Step)
	}
	if len(s.FocusStatements) != 7 {
		t.Fatalf("expected 3+2+2 focus statements, got %d", len(s.FocusStatements))
	}
	// positive ++ opportunities ++ reframings, collection order preserved.
	if s.FocusStatements[0] != "I feel proud" || s.FocusStatements[3] != "I can travel" || s.FocusStatements[6] != "I have all the time I need" {
		t.Errorf("unexpected focus statement ordering: %v", s.FocusStatements)
	}
	if !strings.Contains(pr.last(), "focus statements") {
		t.Errorf("expected focus summary, got %q", pr.last())
	}
}

// driveToTasks completes welcome, collection, and transformation with the
// given statement counts, leaving the session in GenerateTasks.
func driveToTasks(t *testing.T, e *Engine, nPositive, nWorries, nOpportunities int) {
	t.Helper()
	inputs := []string{"start"}
	for i := 0; i < nPositive; i++ {
		inputs = append(inputs, fmt.Sprintf("positive feeling %d", i+1))
	}
	inputs = append(inputs, "ready")
	for i := 0; i < nWorries; i++ {
		inputs = append(inputs, fmt.Sprintf("worry number %d", i+1))
	}
	inputs = append(inputs, "ready")
	for i := 0; i < nOpportunities; i++ {
		inputs = append(inputs, fmt.Sprintf("opportunity number %d", i+1))
	}
	inputs = append(inputs, "ready")
	for i := 0; i < nWorries; i++ {
		inputs = append(inputs, fmt.Sprintf("reframed statement %d", i+1))
	}
	inputs = append(inputs, "create")
	drive(t, e, inputs...)
}

func TestTaskGenerationSingleTaskAutoAdvance(t *testing.T) {
	e, st, _ := newTestEngine(t, models.PlanExpress) // 1 task per focus
	driveToTasks(t, e, 3, 2, 2)                      // 7 focus statements

	if got := stepOf(t, st); got != models.StepGenerateTasks {
		t.Fatalf("expected GenerateTasks, got %s", got)
	}

	for i := 0; i < 7; i++ {
		drive(t, e, fmt.Sprintf("task for focus %d", i+1))
	}

	s := st.sessions[testUser]
	if s.Step != models.StepSelectTasks {
		t.Fatalf("expected SelectTasks after last focus statement, got %s", s.Step)
	}
	// One task per focus statement, bounded by the tier maximum.
	if got := s.TotalTaskCount(); got != len(s.FocusStatements) {
		t.Errorf("expected %d tasks, got %d", len(s.FocusStatements), got)
	}
	if s.TasksByFocus[0][0].ID != "0_1" {
		t.Errorf("unexpected task id %s", s.TasksByFocus[0][0].ID)
	}
}

func TestTaskGenerationMultiTask(t *testing.T) {
	e, st, pr := newTestEngine(t, models.PlanBasic) // up to 3 tasks per focus
	driveToTasks(t, e, 3, 2, 2)

	// Premature flow-control token: every focus statement needs one task.
	drive(t, e, "ready")
	if !strings.Contains(pr.last(), "at least one task") {
		t.Errorf("expected need-one message, got %q", pr.last())
	}

	drive(t, e, "first task", "second task")
	s := st.sessions[testUser]
	if s.FocusCursor != 0 || len(s.TasksByFocus[0]) != 2 {
		t.Fatalf("expected 2 tasks on first focus, got cursor=%d tasks=%d", s.FocusCursor, len(s.TasksByFocus[0]))
	}

	// Third task hits the maximum; a fourth is not appended.
	drive(t, e, "third task", "fourth task")
	s = st.sessions[testUser]
	if len(s.TasksByFocus[0]) != 3 {
		t.Fatalf("expected cap at 3 tasks per focus, got %d", len(s.TasksByFocus[0]))
	}
	if s.TasksByFocus[0][2].ID != "0_3" {
		t.Errorf("unexpected task id %s", s.TasksByFocus[0][2].ID)
	}

	drive(t, e, "ready")
	if s := st.sessions[testUser]; s.FocusCursor != 1 {
		t.Fatalf("expected cursor on second focus statement, got %d", s.FocusCursor)
	}
}

// Scenario: Express tier with 8 generated tasks and a required subset of 6.
func TestTaskSelection(t *testing.T) {
	e, st, pr := newTestEngine(t, models.PlanExpress)
	driveToTasks(t, e, 3, 2, 3) // 8 focus statements
	for i := 0; i < 8; i++ {
		drive(t, e, fmt.Sprintf("task %d", i+1))
	}
	if got := stepOf(t, st); got != models.StepSelectTasks {
		t.Fatalf("expected SelectTasks, got %s", got)
	}

	drive(t, e, "1", "2", "ready")
	if !strings.Contains(pr.last(), "4 more") {
		t.Errorf("expected 4-more-needed message, got %q", pr.last())
	}
	if got := stepOf(t, st); got != models.StepSelectTasks {
		t.Fatalf("expected to stay in SelectTasks, got %s", got)
	}

	// Re-selecting an already-selected index never mutates the subset.
	drive(t, e, "2")
	if s := st.sessions[testUser]; len(s.SelectedTasks) != 2 {
		t.Fatalf("expected re-selection to be rejected, got %d selected", len(s.SelectedTasks))
	}
	if !strings.Contains(pr.last(), "already selected") {
		t.Errorf("expected already-selected message, got %q", pr.last())
	}

	// Out-of-range and unparsable input leave the subset unchanged.
	drive(t, e, "9", "0", "banana")
	if s := st.sessions[testUser]; len(s.SelectedTasks) != 2 {
		t.Fatalf("expected invalid input rejected, got %d selected", len(s.SelectedTasks))
	}

	// Reset always empties the subset.
	drive(t, e, "reset")
	if s := st.sessions[testUser]; len(s.SelectedTasks) != 0 {
		t.Fatalf("expected empty subset after reset, got %d", len(s.SelectedTasks))
	}

	drive(t, e, "1", "2", "3", "4", "5", "6", "ready")
	s := st.sessions[testUser]
	if s.Step != models.StepConfirmSchedule {
		t.Fatalf("expected ConfirmSchedule after full selection, got %s", s.Step)
	}
	material := st.materials[testUser]
	if material == nil {
		t.Fatal("expected material persisted")
	}
	if len(material.SelectedTasks) != 6 || material.TotalTasks != 6 {
		t.Errorf("expected 6 selected tasks in material, got %d (total %d)", len(material.SelectedTasks), material.TotalTasks)
	}
}

// Full walkthrough of the Basic tier: no selection phase, material carries
// the complete generated task map, and completion retires the session.
func TestEndToEndBasic(t *testing.T) {
	var done *models.SetupCompleted
	completion := func(ctx context.Context, ev models.SetupCompleted) { done = &ev }

	st := newMemStore()
	pr := &recordingPresenter{}
	e := NewEngine(st, pr, WithCompletionFunc(completion))
	if err := e.StartSetup(context.Background(), testUser, "write a novel", models.PlanBasic); err != nil {
		t.Fatalf("StartSetup failed: %v", err)
	}

	driveToTasks(t, e, 3, 2, 2) // 7 focus statements
	for i := 0; i < 7; i++ {
		drive(t, e, fmt.Sprintf("task for focus %d", i+1), "ready")
	}
	if got := stepOf(t, st); got != models.StepConfirmSchedule {
		t.Fatalf("expected ConfirmSchedule, got %s", got)
	}

	material := st.materials[testUser]
	if material == nil {
		t.Fatal("expected material persisted")
	}
	if material.Goal != "write a novel" || material.Plan != models.PlanBasic {
		t.Errorf("unexpected material header: %+v", material)
	}
	if len(material.SelectedTasks) != 0 || material.TotalTasks != 7 {
		t.Errorf("expected 7 generated tasks and no selection, got %+v", material)
	}
	if len(material.FocusStatements) != 7 || len(material.Worries) != 2 {
		t.Errorf("unexpected material contents: %+v", material)
	}

	// Schedule confirmation, first task trial, feelings, then the terminal
	// step retires the session and activates the subscription.
	drive(t, e, "ok")
	if !strings.Contains(pr.messages[len(pr.messages)-1], "first task") {
		t.Errorf("expected first task trial prompt, got %q", pr.last())
	}
	drive(t, e, "went well", "I feel great")

	if st.sessions[testUser] != nil {
		t.Error("expected session retired after completion")
	}
	sub := st.subs[testUser]
	if sub == nil || sub.Plan != models.PlanBasic {
		t.Fatalf("expected active subscription, got %+v", sub)
	}
	if done == nil {
		t.Fatal("expected completion event")
	}
	if done.UserID != testUser || done.Material.TotalTasks != 7 {
		t.Errorf("unexpected completion event: %+v", done)
	}
	if !strings.Contains(pr.last(), "program is live") {
		t.Errorf("expected farewell, got %q", pr.last())
	}
}

// A failed session save must leave no visible state change so the invocation
// can be retried.
func TestSaveFailureLeavesStateUntouched(t *testing.T) {
	e, st, pr := newTestEngine(t, models.PlanBasic)
	drive(t, e, "start", "I feel proud")
	sent := len(pr.messages)

	st.saveErr = errors.New("disk full")
	handled, err := e.HandleResponse(context.Background(), testUser, "I feel free")
	if !handled || err == nil {
		t.Fatalf("expected handled with error, got handled=%v err=%v", handled, err)
	}
	st.saveErr = nil

	if s := st.sessions[testUser]; len(s.Positive) != 1 {
		t.Errorf("expected stored session unchanged, got %d positives", len(s.Positive))
	}
	if len(pr.messages) != sent {
		t.Error("expected no reply sent when the save failed")
	}

	// Retry succeeds from the stored state.
	drive(t, e, "I feel free")
	if s := st.sessions[testUser]; len(s.Positive) != 2 {
		t.Errorf("expected retry to apply, got %d positives", len(s.Positive))
	}
}

func TestEngineConcurrentUsers(t *testing.T) {
	st := newMemStore()
	e := NewEngine(st, &recordingPresenter{})
	ctx := context.Background()

	users := []string{"+15550000001", "+15550000002", "+15550000003"}
	for _, u := range users {
		if err := e.StartSetup(ctx, u, "goal for "+u, models.PlanBasic); err != nil {
			t.Fatalf("StartSetup(%s) failed: %v", u, err)
		}
	}

	done := make(chan error, len(users))
	for _, u := range users {
		go func(user string) {
			for _, in := range []string{"start", "statement one", "statement two"} {
				if _, err := e.HandleResponse(ctx, user, in); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(u)
	}
	for range users {
		if err := <-done; err != nil {
			t.Fatalf("concurrent HandleResponse failed: %v", err)
		}
	}

	for _, u := range users {
		s := st.sessions[u]
		if s == nil || len(s.Positive) != 2 {
			t.Errorf("user %s: expected 2 positives, got %+v", u, s)
		}
	}
}
