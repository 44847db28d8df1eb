package ai

import (
	"context"
	"errors"
)

// ErrUnparseable is returned when the model response cannot be turned
// into the structured fields the caller asked for.
var ErrUnparseable = errors.New("model response could not be parsed")

// VisitorInfo holds the fields extracted from a visitor's free-form message.
type VisitorInfo struct {
	// Name of the visitor as they introduced themselves.
	Name string `json:"name"`
	// Host is the person the visitor wants to meet.
	Host string `json:"host"`
}

// SiteContext is a snapshot of facility data handed to the model when
// answering free-form questions.
type SiteContext struct {
	TodayEntries   []string // "name at time" lines for today's attendance
	IdentityCount  int
	IdentityNames  []string
	RecentVisitors []string // "name -> host: status" lines, newest first
}

// Provider defines the interface for LLM decision backends.
type Provider interface {
	Name() string

	// ExtractVisitor pulls the visitor's name and their host out of a
	// free-form message. Returns ErrUnparseable when the model cannot
	// produce both fields.
	ExtractVisitor(ctx context.Context, message string) (*VisitorInfo, error)

	// JudgeApproval decides whether the visitor should be let in, given
	// the host's reply text. Returns the verdict and the model's reason.
	JudgeApproval(ctx context.Context, visitorName, hostName, reply string) (bool, string, error)

	// AnswerQuery answers a free-form operator question using the
	// facility snapshot as context.
	AnswerQuery(ctx context.Context, question string, site *SiteContext) (string, error)

	// Usage tracking.
	GetUsage() *Usage
	ResetUsage()
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// RequestPricing holds input/output prices per 1M tokens.
type RequestPricing struct {
	Input  float64
	Output float64
}
