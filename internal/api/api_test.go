package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
	"github.com/BTreeMap/GoalPipe/internal/setup"
	"github.com/BTreeMap/GoalPipe/internal/store"
)

// stubService is a minimal messaging.Service for handler tests. Outbound
// messages are discarded; canonicalization mirrors the real transports.
type stubService struct {
	receipts  chan models.Receipt
	responses chan models.Response
}

func newStubService() *stubService {
	return &stubService{
		receipts:  make(chan models.Receipt, 10),
		responses: make(chan models.Response, 10),
	}
}

func (s *stubService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, recipient)
	if len(digits) < 6 {
		return "", errors.New("invalid recipient")
	}
	return "+" + digits, nil
}

func (s *stubService) SendMessage(ctx context.Context, to, body string) error { return nil }
func (s *stubService) SendChoices(ctx context.Context, to, body string, choices []models.Choice) error {
	return nil
}
func (s *stubService) Start(ctx context.Context) error   { return nil }
func (s *stubService) Stop() error                       { return nil }
func (s *stubService) Receipts() <-chan models.Receipt   { return s.receipts }
func (s *stubService) Responses() <-chan models.Response { return s.responses }

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	svc := newStubService()
	engine := setup.NewEngine(st, svc)
	return NewServer(st, svc, engine), st
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeAPIResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode API response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestEnrollHandler(t *testing.T) {
	srv, st := newTestServer(t)

	body := `{"user_id":"+1 (555) 123-4567","goal":"run a marathon","plan":"basic"}`
	rec := doRequest(t, srv, http.MethodPost, "/enroll", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("enroll status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	session, err := st.GetSetupSession(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("GetSetupSession failed: %v", err)
	}
	if session == nil {
		t.Fatal("enrollment should create a setup session under the canonical user id")
	}
	if session.Step != models.StepWelcome {
		t.Errorf("new session step = %q, want %q", session.Step, models.StepWelcome)
	}
	if session.Goal != "run a marathon" {
		t.Errorf("session goal = %q, want run a marathon", session.Goal)
	}
}

func TestEnrollHandlerConflict(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"user_id":"15551234567","goal":"learn piano","plan":"express"}`
	if rec := doRequest(t, srv, http.MethodPost, "/enroll", body); rec.Code != http.StatusCreated {
		t.Fatalf("first enroll status = %d, want 201", rec.Code)
	}
	rec := doRequest(t, srv, http.MethodPost, "/enroll", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second enroll status = %d, want 409", rec.Code)
	}
}

func TestEnrollHandlerValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{not json`},
		{"missing goal", `{"user_id":"15551234567","plan":"basic"}`},
		{"unknown plan", `{"user_id":"15551234567","goal":"x","plan":"platinum"}`},
		{"bad phone", `{"user_id":"abc","goal":"x","plan":"basic"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/enroll", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestEnrollHandlerMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/enroll", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestSessionHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := doRequest(t, srv, http.MethodGet, "/session", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/session?user_id=15550000000", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", rec.Code)
	}

	body := `{"user_id":"15551234567","goal":"write a novel","plan":"accelerated"}`
	if rec := doRequest(t, srv, http.MethodPost, "/enroll", body); rec.Code != http.StatusCreated {
		t.Fatalf("enroll failed: %d", rec.Code)
	}

	rec := doRequest(t, srv, http.MethodGet, "/session?user_id=15551234567", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("session status = %d, want 200", rec.Code)
	}
	resp := decodeAPIResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("response status = %q, want ok", resp.Status)
	}
}

func TestMaterialHandler(t *testing.T) {
	srv, st := newTestServer(t)

	if rec := doRequest(t, srv, http.MethodGet, "/material?user_id=15551234567", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing material status = %d, want 404", rec.Code)
	}

	material := &models.Material{
		UserID:          "+15551234567",
		Goal:            "run a marathon",
		Plan:            models.PlanBasic,
		FocusStatements: []string{"I feel strong"},
		TotalTasks:      3,
		CreatedAt:       time.Now(),
	}
	if err := st.SaveMaterial(context.Background(), material); err != nil {
		t.Fatalf("SaveMaterial failed: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/material?user_id=15551234567", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("material status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestSubscriptionHandler(t *testing.T) {
	srv, st := newTestServer(t)

	if rec := doRequest(t, srv, http.MethodGet, "/subscription?user_id=15551234567", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing subscription status = %d, want 404", rec.Code)
	}

	sub := &models.Subscription{
		UserID:      "+15551234567",
		Goal:        "run a marathon",
		Plan:        models.PlanExpress,
		ActivatedAt: time.Now(),
	}
	if err := st.SaveSubscription(context.Background(), sub); err != nil {
		t.Fatalf("SaveSubscription failed: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/subscription?user_id=15551234567", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("subscription status = %d, want 200", rec.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	srv, st := newTestServer(t)

	st.AddResponse(models.Response{From: "+15551234567", Body: "hello", Time: time.Now().Unix()})
	st.AddResponse(models.Response{From: "+15551234567", Body: "world!", Time: time.Now().Unix()})

	rec := doRequest(t, srv, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}
	resp := decodeAPIResponse(t, rec)
	stats, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("stats result has unexpected shape: %v", resp.Result)
	}
	if stats["total_responses"] != float64(2) {
		t.Errorf("total_responses = %v, want 2", stats["total_responses"])
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("health status field = %v, want healthy", health["status"])
	}
}
