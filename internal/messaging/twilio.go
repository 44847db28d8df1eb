package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// Twilio is a client for the Twilio Messages API, scoped to WhatsApp.
type Twilio struct {
	baseURL     string
	accountSID  string
	authToken   string
	fromNumber  string
	callbackURL string // public URL for delivery status callbacks, optional
	client      *http.Client
}

// NewTwilio creates a Twilio client. fromNumber is the WhatsApp sender
// number without the "whatsapp:" prefix. publicURL, when non-empty, is the
// externally reachable base URL used for status callbacks.
func NewTwilio(accountSID, authToken, fromNumber, publicURL string) *Twilio {
	callbackURL := ""
	if publicURL != "" {
		callbackURL = strings.TrimSuffix(publicURL, "/") + "/webhooks/whatsapp/status"
	}
	return &Twilio{
		baseURL:     defaultTwilioBaseURL,
		accountSID:  accountSID,
		authToken:   authToken,
		fromNumber:  fromNumber,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL overrides the API base URL. Used in tests.
func (t *Twilio) SetBaseURL(baseURL string) {
	t.baseURL = strings.TrimSuffix(baseURL, "/")
}

// messageResponse is the subset of the Twilio message resource we care about.
type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"` // error message on failure responses
}

// SendWhatsApp sends a WhatsApp message to the given number and returns the
// message SID. The "whatsapp:" prefix is added when missing.
func (t *Twilio) SendWhatsApp(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("From", whatsAppAddress(t.fromNumber))
	form.Set("To", whatsAppAddress(to))
	form.Set("Body", body)
	if t.callbackURL != "" {
		form.Set("StatusCallback", t.callbackURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("could not create request: %w", err)
	}

	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("could not read response body: %w", err)
	}

	var result messageResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("could not unmarshal response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("message send failed with status %d: %s", resp.StatusCode, result.Message)
	}

	return result.SID, nil
}

// whatsAppAddress prefixes a phone number with the whatsapp: scheme unless
// it is already present.
func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// StripWhatsAppPrefix removes the whatsapp: scheme from an inbound address.
func StripWhatsAppPrefix(address string) string {
	return strings.TrimPrefix(address, "whatsapp:")
}
