package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/database"
)

const (
	defaultRecentLimit  = 50
	defaultVisitorLimit = 20
	maxRecentLimit      = 500
)

// AttendanceHandler exposes the read-only ledger projections.
type AttendanceHandler struct {
	attendance database.AttendanceStore
	visitors   database.VisitorStore
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(attendance database.AttendanceStore, visitors database.VisitorStore) *AttendanceHandler {
	return &AttendanceHandler{
		attendance: attendance,
		visitors:   visitors,
	}
}

// EntryResponse is one (name, time) attendance entry.
type EntryResponse struct {
	Name string `json:"name"`
	Time string `json:"time"`
}

// RecordResponse is one attendance ledger row.
type RecordResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// VisitorResponse is one resolved visitor decision.
type VisitorResponse struct {
	ID               int64  `json:"id"`
	VisitorName      string `json:"visitor_name"`
	ResponsibleParty string `json:"responsible_party"`
	Status           string `json:"status"`
	Date             string `json:"date"`
	Time             string `json:"time"`
}

// Today returns the (name, time) pairs recorded today.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	date := time.Now().Format(dateFormat)
	entries, err := h.attendance.Entries(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not read attendance")
		return
	}

	response := make([]EntryResponse, len(entries))
	for i, entry := range entries {
		response[i] = EntryResponse{Name: entry.Name, Time: entry.Time}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"entries": response,
	})
}

// Recent returns attendance records newest first, optionally filtered by
// name substring and exact date.
func (h *AttendanceHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), defaultRecentLimit)
	name := r.URL.Query().Get("name")
	date := r.URL.Query().Get("date")

	records, err := h.attendance.Recent(r.Context(), limit, name, date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not read attendance")
		return
	}

	response := make([]RecordResponse, len(records))
	for i, rec := range records {
		response[i] = RecordResponse{ID: rec.ID, Name: rec.Name, Date: rec.Date, Time: rec.Time}
	}

	respondJSON(w, http.StatusOK, map[string]any{"records": response})
}

// RecentVisitors returns visitor decisions newest first.
func (h *AttendanceHandler) RecentVisitors(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), defaultVisitorLimit)

	decisions, err := h.visitors.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not read visitor decisions")
		return
	}

	response := make([]VisitorResponse, len(decisions))
	for i, d := range decisions {
		response[i] = VisitorResponse{
			ID:               d.ID,
			VisitorName:      d.VisitorName,
			ResponsibleParty: d.ResponsibleParty,
			Status:           d.Status,
			Date:             d.Date,
			Time:             d.Time,
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{"visitors": response})
}

func parseLimit(raw string, fallback int) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}
