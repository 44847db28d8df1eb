// Package approval hosts the visitor approval workflow: per-recipient FIFO
// correlation of asynchronous replies, in-memory session state and the
// state machine driving extraction, dispatch and resolution.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kozaktomas/gatekeeper/internal/messaging"
)

var (
	// ErrNoPendingRequest is returned when a reply arrives for a recipient
	// with no outstanding approval request.
	ErrNoPendingRequest = errors.New("no pending request for sender")
	// ErrNotYetReplied is returned by Poll until a reply has been correlated.
	ErrNotYetReplied = errors.New("not yet replied")
)

// CorrelationHub pairs outbound approval requests with inbound replies that
// carry no session token. Each recipient channel gets its own FIFO queue:
// replies from a recipient are attributed to that recipient's oldest
// outstanding request, in dispatch order.
type CorrelationHub struct {
	sender messaging.Sender

	mu      sync.Mutex
	queues  map[string][]string // recipient key -> session ids, dispatch order
	replies map[string]string   // session id -> correlated reply body
	owners  map[string]string   // session id -> recipient key, for Abandon
}

func NewCorrelationHub(sender messaging.Sender) *CorrelationHub {
	return &CorrelationHub{
		sender:  sender,
		queues:  make(map[string][]string),
		replies: make(map[string]string),
		owners:  make(map[string]string),
	}
}

// Dispatch sends the approval request to the recipient and appends the
// session to the recipient's pending queue. Send failure queues nothing.
func (h *CorrelationHub) Dispatch(ctx context.Context, sessionID, recipient, message string) error {
	if _, err := h.sender.SendWhatsApp(ctx, recipient, message); err != nil {
		return fmt.Errorf("could not dispatch approval request: %w", err)
	}

	key := recipientKey(recipient)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.queues[key] = append(h.queues[key], sessionID)
	h.owners[sessionID] = key

	return nil
}

// CorrelateReply attributes an inbound reply to the sender's oldest
// outstanding request and stores the body in that session's mailbox.
// Returns ErrNoPendingRequest when the sender has no queue entries.
func (h *CorrelationHub) CorrelateReply(sender, body string) (string, error) {
	key := recipientKey(sender)

	h.mu.Lock()
	defer h.mu.Unlock()

	queue := h.queues[key]
	if len(queue) == 0 {
		return "", ErrNoPendingRequest
	}

	sessionID := queue[0]
	h.queues[key] = queue[1:]
	if len(h.queues[key]) == 0 {
		delete(h.queues, key)
	}
	delete(h.owners, sessionID)
	h.replies[sessionID] = body

	return sessionID, nil
}

// Poll returns the correlated reply for a session, consuming it, or
// ErrNotYetReplied when none has arrived.
func (h *CorrelationHub) Poll(sessionID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	body, ok := h.replies[sessionID]
	if !ok {
		return "", ErrNotYetReplied
	}
	delete(h.replies, sessionID)

	return body, nil
}

// Abandon drops a session's queue entry and mailbox. Used when a session
// expires so a late reply cannot be attributed to it.
func (h *CorrelationHub) Abandon(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if key, ok := h.owners[sessionID]; ok {
		queue := h.queues[key]
		for i, id := range queue {
			if id == sessionID {
				h.queues[key] = append(queue[:i], queue[i+1:]...)
				break
			}
		}
		if len(h.queues[key]) == 0 {
			delete(h.queues, key)
		}
		delete(h.owners, sessionID)
	}
	delete(h.replies, sessionID)
}

// Pending returns the number of outstanding requests for a recipient.
func (h *CorrelationHub) Pending(recipient string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queues[recipientKey(recipient)])
}

// recipientKey normalizes a channel identifier so that cosmetic variants
// (whatsapp: prefix, case, surrounding whitespace) address the same queue.
func recipientKey(recipient string) string {
	key := messaging.StripWhatsAppPrefix(strings.TrimSpace(recipient))
	return strings.ToLower(key)
}
