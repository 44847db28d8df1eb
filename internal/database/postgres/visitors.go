package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/gatekeeper/internal/database"
)

// VisitorRepository provides the PostgreSQL-backed visitor decision log.
type VisitorRepository struct {
	pool *Pool
}

// NewVisitorRepository creates a new PostgreSQL visitor repository.
func NewVisitorRepository(pool *Pool) *VisitorRepository {
	return &VisitorRepository{pool: pool}
}

// Insert writes one resolved session's decision record.
func (r *VisitorRepository) Insert(ctx context.Context, rec database.VisitorDecision) error {
	query := `
		INSERT INTO visitor_decisions (visitor_name, responsible_party, status, date, time)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.VisitorName, rec.ResponsibleParty, rec.Status, rec.Date, rec.Time)
	if err != nil {
		return fmt.Errorf("insert visitor decision: %w", err)
	}
	return nil
}

// Recent returns up to limit decision records, newest first.
func (r *VisitorRepository) Recent(ctx context.Context, limit int) ([]database.VisitorDecision, error) {
	query := `
		SELECT id, visitor_name, responsible_party, status, date, time
		FROM visitor_decisions
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query visitor decisions: %w", err)
	}
	defer rows.Close()

	var out []database.VisitorDecision
	for rows.Next() {
		var rec database.VisitorDecision
		if err := rows.Scan(&rec.ID, &rec.VisitorName, &rec.ResponsibleParty,
			&rec.Status, &rec.Date, &rec.Time); err != nil {
			return nil, fmt.Errorf("scan visitor decision: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visitor decisions: %w", err)
	}
	return out, nil
}
