package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kozaktomas/gatekeeper/internal/approval"
)

// ChatHandler exposes the visitor conversation and its status poll.
type ChatHandler struct {
	workflow *approval.Workflow
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(workflow *approval.Workflow) *ChatHandler {
	return &ChatHandler{workflow: workflow}
}

// ChatRequest is one conversational message. A missing session id starts
// a new session.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ChatResponse carries the reply and the session id to continue with.
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

// Message advances a visitor conversation by one message.
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, sessionID, err := h.workflow.HandleMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, approval.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not process message")
		return
	}

	respondJSON(w, http.StatusOK, ChatResponse{Reply: reply, SessionID: sessionID})
}

// StatusResponse reports whether a session has resolved and its outcome.
type StatusResponse struct {
	Status  string `json:"status"` // "pending" or "resolved"
	Outcome string `json:"outcome,omitempty"`
}

// Status is the non-blocking poll observing awaiting_reply -> resolved.
func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	outcome, done, err := h.workflow.Status(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, approval.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not read session status")
		return
	}

	if !done {
		respondJSON(w, http.StatusOK, StatusResponse{Status: "pending"})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "resolved", Outcome: outcome})
}
