package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/gatekeeper/internal/approval"
	"github.com/kozaktomas/gatekeeper/internal/messaging"
)

// WebhooksHandler receives inbound messaging provider callbacks.
type WebhooksHandler struct {
	hub *approval.CorrelationHub
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(hub *approval.CorrelationHub) *WebhooksHandler {
	return &WebhooksHandler{hub: hub}
}

// Reply receives an inbound WhatsApp reply (form-encoded, Twilio style) and
// correlates it with the sender's oldest outstanding approval request.
// Replies with no pending request are logged and discarded; the provider
// always gets a 200 so it does not retry.
func (h *WebhooksHandler) Reply(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	from := messaging.StripWhatsAppPrefix(r.PostForm.Get("From"))
	body := r.PostForm.Get("Body")
	if from == "" {
		respondError(w, http.StatusBadRequest, "From is required")
		return
	}

	sessionID, err := h.hub.CorrelateReply(from, body)
	if err != nil {
		if errors.Is(err, approval.ErrNoPendingRequest) {
			log.Printf("discarding reply from %s with no pending request", sanitizeForLog(from))
			respondTwiML(w)
			return
		}
		respondError(w, http.StatusInternalServerError, "could not correlate reply")
		return
	}

	log.Printf("correlated reply from %s to session %s", sanitizeForLog(from), sessionID)
	respondTwiML(w)
}

// DeliveryStatus receives delivery status callbacks. Informational only,
// no state transition.
func (h *WebhooksHandler) DeliveryStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	sid := r.PostForm.Get("MessageSid")
	status := r.PostForm.Get("MessageStatus")
	log.Printf("message %s delivery status: %s", sanitizeForLog(sid), sanitizeForLog(status))

	w.WriteHeader(http.StatusOK)
}

// respondTwiML acknowledges a Twilio webhook with an empty response document.
func respondTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}
