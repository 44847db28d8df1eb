package messaging

import "context"

// Sender delivers outbound messages to a recipient address.
type Sender interface {
	// SendWhatsApp sends a WhatsApp message and returns the provider's
	// message SID.
	SendWhatsApp(ctx context.Context, to, body string) (string, error)
}
