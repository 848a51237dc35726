package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// mockService is an in-process Service for router tests.
type mockService struct {
	mu        sync.Mutex
	sent      []string
	receipts  chan models.Receipt
	responses chan models.Response
}

func newMockService() *mockService {
	return &mockService{
		receipts:  make(chan models.Receipt, 10),
		responses: make(chan models.Response, 10),
	}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

func (m *mockService) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, body)
	return nil
}

func (m *mockService) SendChoices(ctx context.Context, to, body string, choices []models.Choice) error {
	return m.SendMessage(ctx, to, RenderChoices(body, choices))
}

func (m *mockService) Start(ctx context.Context) error { return nil }
func (m *mockService) Stop() error                     { return nil }

func (m *mockService) Receipts() <-chan models.Receipt   { return m.receipts }
func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) sentMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// mockLog records responses and receipts passed to the router log.
type mockLog struct {
	mu        sync.Mutex
	responses []models.Response
	receipts  []models.Receipt
}

func (l *mockLog) AddResponse(r models.Response) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses = append(l.responses, r)
	return nil
}

func (l *mockLog) AddReceipt(r models.Receipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receipts = append(l.receipts, r)
	return nil
}

func TestProcessResponseDispatchesToHandler(t *testing.T) {
	svc := newMockService()
	log := &mockLog{}
	router := NewResponseRouter(svc, WithMessageLog(log))

	var gotFrom, gotBody string
	router.SetHandler(func(ctx context.Context, from, body string, timestamp int64) (bool, error) {
		gotFrom, gotBody = from, body
		return true, nil
	})

	resp := models.Response{From: "+1 (555) 123-4567", Body: "hello", Time: time.Now().Unix()}
	if err := router.ProcessResponse(context.Background(), resp); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}

	if gotFrom != "+15551234567" {
		t.Errorf("handler received sender %q, want canonical +15551234567", gotFrom)
	}
	if gotBody != "hello" {
		t.Errorf("handler received body %q, want hello", gotBody)
	}
	if len(svc.sentMessages()) != 0 {
		t.Errorf("handled message should not trigger the default reply, got %v", svc.sentMessages())
	}
	if len(log.responses) != 1 || log.responses[0].From != "+15551234567" {
		t.Errorf("response should be logged with canonical sender, got %+v", log.responses)
	}
}

func TestProcessResponseDefaultReply(t *testing.T) {
	svc := newMockService()
	router := NewResponseRouter(svc, WithDefaultMessage("nothing to do"))
	router.SetHandler(func(ctx context.Context, from, body string, timestamp int64) (bool, error) {
		return false, nil
	})

	resp := models.Response{From: "15551234567", Body: "hm", Time: time.Now().Unix()}
	if err := router.ProcessResponse(context.Background(), resp); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}

	sent := svc.sentMessages()
	if len(sent) != 1 || sent[0] != "nothing to do" {
		t.Errorf("unclaimed message should get the default reply, got %v", sent)
	}
}

func TestProcessResponseInvalidSender(t *testing.T) {
	svc := newMockService()
	router := NewResponseRouter(svc)
	router.SetHandler(func(ctx context.Context, from, body string, timestamp int64) (bool, error) {
		t.Error("handler should not run for an invalid sender")
		return true, nil
	})

	resp := models.Response{From: "not-a-number", Body: "hello"}
	if err := router.ProcessResponse(context.Background(), resp); err == nil {
		t.Fatal("expected error for invalid sender")
	}
}

func TestProcessResponseHandlerError(t *testing.T) {
	svc := newMockService()
	handlerErr := errors.New("boom")
	router := NewResponseRouter(svc)
	router.SetHandler(func(ctx context.Context, from, body string, timestamp int64) (bool, error) {
		return false, handlerErr
	})

	resp := models.Response{From: "15551234567", Body: "hello"}
	err := router.ProcessResponse(context.Background(), resp)
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
	if len(svc.sentMessages()) != 0 {
		t.Error("default reply should not be sent when the handler errors")
	}
}

func TestRouterStartDrainsChannels(t *testing.T) {
	svc := newMockService()
	log := &mockLog{}
	router := NewResponseRouter(svc, WithMessageLog(log))

	handled := make(chan string, 1)
	router.SetHandler(func(ctx context.Context, from, body string, timestamp int64) (bool, error) {
		handled <- body
		return true, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router.Start(ctx)

	svc.responses <- models.Response{From: "15551234567", Body: "ping", Time: time.Now().Unix()}
	svc.receipts <- models.Receipt{To: "+15551234567", Status: models.MessageStatusDelivered, Time: time.Now().Unix()}

	select {
	case body := <-handled:
		if body != "ping" {
			t.Errorf("handler got body %q, want ping", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the router to dispatch the response")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		log.mu.Lock()
		n := len(log.receipts)
		log.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the receipt to be logged")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
