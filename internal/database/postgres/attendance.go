package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/gatekeeper/internal/database"
)

// AttendanceRepository provides the PostgreSQL-backed attendance ledger.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// MarkIfAbsent records attendance unless a record for (name, date) already
// exists. The unique index on (name, date) makes the check-then-insert
// atomic under concurrent callers; losers of the race see AlreadyPresent.
func (r *AttendanceRepository) MarkIfAbsent(ctx context.Context, name, date, tm string) (bool, error) {
	query := `
		INSERT INTO attendance (name, date, time)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, date) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query, name, date, tm)
	if err != nil {
		return false, fmt.Errorf("mark attendance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark attendance rows affected: %w", err)
	}
	return affected > 0, nil
}

// Entries returns the (name, time) pairs recorded for a date.
func (r *AttendanceRepository) Entries(ctx context.Context, date string) ([]database.AttendanceEntry, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT name, time FROM attendance WHERE date = $1 ORDER BY id", date)
	if err != nil {
		return nil, fmt.Errorf("query attendance entries: %w", err)
	}
	defer rows.Close()

	var out []database.AttendanceEntry
	for rows.Next() {
		var e database.AttendanceEntry
		if err := rows.Scan(&e.Name, &e.Time); err != nil {
			return nil, fmt.Errorf("scan attendance entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance entries: %w", err)
	}
	return out, nil
}

// Recent returns up to limit records, newest first. name filters by
// substring, date by exact match; empty filters are ignored.
func (r *AttendanceRepository) Recent(ctx context.Context, limit int, name, date string) ([]database.AttendanceRecord, error) {
	query := "SELECT id, name, date, time FROM attendance WHERE 1=1"
	args := []any{}

	if name != "" {
		args = append(args, "%"+name+"%")
		query += fmt.Sprintf(" AND name LIKE $%d", len(args))
	}
	if date != "" {
		args = append(args, date)
		query += fmt.Sprintf(" AND date = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent attendance: %w", err)
	}
	defer rows.Close()

	var out []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Date, &rec.Time); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return out, nil
}
