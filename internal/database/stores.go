package database

import (
	"context"

	"github.com/kozaktomas/gatekeeper/internal/recognition"
)

// IdentityStore persists enrolled identities and supplies the gallery.
type IdentityStore interface {
	// Enroll stores a new identity. Returns ErrDuplicateName on collision.
	Enroll(ctx context.Context, name string, encoding []float32, whatsapp string) (int64, error)
	// List returns all identities in stable (insertion) order.
	List(ctx context.Context) ([]EnrolledIdentity, error)
	// Remove deletes an identity by name. Returns ErrNotFound if absent.
	Remove(ctx context.Context, name string) error
	// Rename changes an identity's name. Returns ErrDuplicateName on collision,
	// ErrNotFound if the id does not exist.
	Rename(ctx context.Context, id int64, newName string) error
	// FindByNormalizedName looks up an identity by normalized name,
	// returns nil when no identity matches.
	FindByNormalizedName(ctx context.Context, name string) (*EnrolledIdentity, error)
	// Gallery returns matching candidates for a probe in gallery order.
	// Implementations may preselect via an index for large galleries.
	Gallery(ctx context.Context, probe []float32) ([]recognition.Candidate, error)
	// Count returns the number of enrolled identities.
	Count(ctx context.Context) (int, error)
}

// AttendanceStore is the idempotent one-record-per-identity-per-day ledger.
type AttendanceStore interface {
	// MarkIfAbsent records attendance unless a record for (name, date)
	// already exists. Returns true when a new record was written.
	// The check-then-insert is atomic with respect to concurrent callers.
	MarkIfAbsent(ctx context.Context, name, date, tm string) (bool, error)
	// Entries returns the (name, time) pairs recorded for a date.
	Entries(ctx context.Context, date string) ([]AttendanceEntry, error)
	// Recent returns up to limit records, newest first, optionally
	// filtered by name substring and exact date.
	Recent(ctx context.Context, limit int, name, date string) ([]AttendanceRecord, error)
}

// VisitorStore is the durable log of resolved visitor sessions.
type VisitorStore interface {
	Insert(ctx context.Context, rec VisitorDecision) error
	Recent(ctx context.Context, limit int) ([]VisitorDecision, error)
}
