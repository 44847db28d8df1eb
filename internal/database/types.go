// Package database defines the persisted domain types and store contracts.
package database

import "time"

// EnrolledIdentity is one gallery entry. Encodings are immutable once
// stored; re-enrollment under the same name is rejected (delete first).
type EnrolledIdentity struct {
	ID        int64
	Name      string
	Encoding  []float32
	WhatsApp  string // optional channel for approval requests, e.g. +4207...
	CreatedAt time.Time
}

// AttendanceEntry is the (name, time) projection used for daily views.
type AttendanceEntry struct {
	Name string
	Time string
}

// AttendanceRecord is one row of the attendance ledger. At most one record
// exists per (Name, Date) pair.
type AttendanceRecord struct {
	ID   int64
	Name string
	Date string // YYYY-MM-DD
	Time string // HH:MM:SS
}

// VisitorDecision is the durable record of one resolved visitor session.
type VisitorDecision struct {
	ID               int64
	VisitorName      string
	ResponsibleParty string
	Status           string // Approved, Denied or Expired
	Date             string
	Time             string
}

// Decision statuses.
const (
	StatusApproved = "Approved"
	StatusDenied   = "Denied"
	StatusExpired  = "Expired"
)
