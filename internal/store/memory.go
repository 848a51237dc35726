package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// InMemoryStore keeps everything in process memory. It serializes records to
// JSON the same way the SQL backends do, so callers never share mutable
// state with the store. Intended for tests and local development.
type InMemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string][]byte
	materials map[string][]byte
	subs      map[string]models.Subscription
	receipts  []models.Receipt
	responses []models.Response
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:  make(map[string][]byte),
		materials: make(map[string][]byte),
		subs:      make(map[string]models.Subscription),
	}
}

// GetSetupSession retrieves a setup session, nil when absent.
func (s *InMemoryStore) GetSetupSession(ctx context.Context, userID string) (*models.SetupSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	var session models.SetupSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session for %s: %w", userID, err)
	}
	return &session, nil
}

// SaveSetupSession stores or replaces a setup session.
func (s *InMemoryStore) SaveSetupSession(ctx context.Context, session *models.SetupSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session for %s: %w", session.UserID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = data
	return nil
}

// DeleteSetupSession removes a setup session. Deleting an absent session is
// not an error.
func (s *InMemoryStore) DeleteSetupSession(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// ListSetupSessions returns every in-flight setup session.
func (s *InMemoryStore) ListSetupSessions(ctx context.Context) ([]*models.SetupSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*models.SetupSession, 0, len(s.sessions))
	for userID, data := range s.sessions {
		var session models.SetupSession
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, fmt.Errorf("failed to decode session for %s: %w", userID, err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

// SaveMaterial stores or replaces a composed material.
func (s *InMemoryStore) SaveMaterial(ctx context.Context, material *models.Material) error {
	data, err := json.Marshal(material)
	if err != nil {
		return fmt.Errorf("failed to encode material for %s: %w", material.UserID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[material.UserID] = data
	return nil
}

// GetMaterial retrieves a composed material, nil when absent.
func (s *InMemoryStore) GetMaterial(ctx context.Context, userID string) (*models.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.materials[userID]
	if !ok {
		return nil, nil
	}
	var material models.Material
	if err := json.Unmarshal(data, &material); err != nil {
		return nil, fmt.Errorf("failed to decode material for %s: %w", userID, err)
	}
	return &material, nil
}

// SaveSubscription stores or replaces an active subscription.
func (s *InMemoryStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.UserID] = *sub
	return nil
}

// GetSubscription retrieves a subscription, nil when absent.
func (s *InMemoryStore) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

// AddReceipt records a delivery receipt.
func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

// GetReceipts returns all recorded receipts.
func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

// AddResponse records an inbound message.
func (s *InMemoryStore) AddResponse(r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

// GetResponses returns all recorded inbound messages.
func (s *InMemoryStore) GetResponses() ([]models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Response, len(s.responses))
	copy(out, s.responses)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	slog.Debug("InMemoryStore.Close: nothing to close")
	return nil
}
