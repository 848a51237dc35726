// Package api provides HTTP handlers for GoalPipe endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
	"github.com/BTreeMap/GoalPipe/internal/setup"
)

// enrollHandler starts a setup session for a paid order (POST /enroll).
func (s *Server) enrollHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.enrollHandler: processing enrollment request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.enrollHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.EnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.enrollHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := req.Validate(); err != nil {
		slog.Warn("Server.enrollHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	// Canonicalize the phone number so the session key matches inbound
	// message senders.
	canonicalUser, err := s.msgService.ValidateAndCanonicalizeRecipient(req.UserID)
	if err != nil {
		slog.Warn("Server.enrollHandler: recipient validation failed", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	req.UserID = canonicalUser

	if err := s.engine.StartSetup(r.Context(), req.UserID, req.Goal, req.Plan); err != nil {
		if errors.Is(err, setup.ErrSessionExists) {
			slog.Warn("Server.enrollHandler: session already exists", "user_id", req.UserID)
			writeJSONResponse(w, http.StatusConflict, models.Error("Setup session already in progress"))
			return
		}
		slog.Error("Server.enrollHandler: failed to start setup", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start setup"))
		return
	}

	slog.Info("Server.enrollHandler: setup started", "user_id", req.UserID, "plan", req.Plan)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Setup started", map[string]string{"user_id": req.UserID}))
}

// userIDParam extracts and canonicalizes the user_id query parameter shared
// by the read endpoints.
func (s *Server) userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required parameter: user_id"))
		return "", false
	}
	canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(userID)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return "", false
	}
	return canonical, true
}

// sessionHandler returns the in-progress setup session (GET /session?user_id=).
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sessionHandler: processing session request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.userIDParam(w, r)
	if !ok {
		return
	}

	session, err := s.st.GetSetupSession(r.Context(), userID)
	if err != nil {
		slog.Error("Server.sessionHandler: failed to fetch session", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch session"))
		return
	}
	if session == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No setup session in progress"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(session))
}

// materialHandler returns the composed material (GET /material?user_id=).
func (s *Server) materialHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.materialHandler: processing material request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.userIDParam(w, r)
	if !ok {
		return
	}

	material, err := s.st.GetMaterial(r.Context(), userID)
	if err != nil {
		slog.Error("Server.materialHandler: failed to fetch material", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch material"))
		return
	}
	if material == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No material composed for this user"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(material))
}

// subscriptionHandler returns the active subscription (GET /subscription?user_id=).
func (s *Server) subscriptionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.subscriptionHandler: processing subscription request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.userIDParam(w, r)
	if !ok {
		return
	}

	sub, err := s.st.GetSubscription(r.Context(), userID)
	if err != nil {
		slog.Error("Server.subscriptionHandler: failed to fetch subscription", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch subscription"))
		return
	}
	if sub == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No active subscription for this user"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sub))
}

// receiptsHandler returns all delivery receipts (GET /receipts).
func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.receiptsHandler: processing receipts request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.receiptsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	receipts, err := s.st.GetReceipts()
	if err != nil {
		slog.Error("Error fetching receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch receipts"))
		return
	}
	slog.Debug("receipts fetched", "count", len(receipts))
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}

// responsesHandler returns all collected responses (GET /responses).
func (s *Server) responsesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.responsesHandler: processing responses request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.responsesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	responses, err := s.st.GetResponses()
	if err != nil {
		slog.Error("Error fetching responses", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch responses"))
		return
	}
	slog.Debug("responses fetched", "count", len(responses))
	writeJSONResponse(w, http.StatusOK, models.Success(responses))
}

// statsHandler returns statistics about collected responses (GET /stats).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statsHandler: processing stats request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	responses, err := s.st.GetResponses()
	if err != nil {
		slog.Error("Error fetching responses in statsHandler", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch responses"))
		return
	}
	total := len(responses)
	perSender := make(map[string]int)
	var sumLen int
	for _, resp := range responses {
		perSender[resp.From]++
		sumLen += len(resp.Body)
	}
	avgLen := 0.0
	if total > 0 {
		avgLen = float64(sumLen) / float64(total)
	}
	stats := map[string]interface{}{
		"total_responses":      total,
		"responses_per_sender": perSender,
		"avg_response_length":  avgLen,
	}
	slog.Debug("stats computed", "total_responses", total, "avg_response_length", avgLen)
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// healthHandler provides a health check endpoint for monitoring and load
// balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// The message log doubles as a storage liveness probe.
	if _, err := s.st.GetReceipts(); err != nil {
		slog.Warn("Health check: store probe failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Storage probe failed"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
