package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/kozaktomas/gatekeeper/internal/database"
	"github.com/kozaktomas/gatekeeper/internal/recognition"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// hnswSearchK is how many neighbors the index preselects per probe.
const hnswSearchK = 16

// IdentityRepository provides PostgreSQL-backed identity storage with an
// optional in-memory HNSW index over the gallery.
type IdentityRepository struct {
	pool        *Pool
	hnswIndex   *recognition.GalleryIndex
	hnswEnabled bool
	hnswCutoff  int
	hnswMu      sync.RWMutex
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Enroll stores a new identity. Name collisions return database.ErrDuplicateName.
func (r *IdentityRepository) Enroll(ctx context.Context, name string, encoding []float32, whatsapp string) (int64, error) {
	query := `
		INSERT INTO identities (name, normalized_name, encoding, whatsapp)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		name, recognition.NormalizeName(name), pgvector.NewVector(encoding), whatsapp,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, database.ErrDuplicateName
	}
	if err != nil {
		return 0, fmt.Errorf("enroll identity: %w", err)
	}

	r.hnswMu.RLock()
	enabled := r.hnswEnabled && r.hnswIndex != nil
	r.hnswMu.RUnlock()
	if enabled {
		if err := r.hnswIndex.Add(recognition.Candidate{ID: id, Name: name, Encoding: encoding}); err != nil {
			return id, fmt.Errorf("index enrolled identity: %w", err)
		}
	}
	return id, nil
}

// List returns all identities ordered by enrollment (gallery order).
func (r *IdentityRepository) List(ctx context.Context) ([]database.EnrolledIdentity, error) {
	query := `
		SELECT id, name, encoding, whatsapp, created_at
		FROM identities
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var out []database.EnrolledIdentity
	for rows.Next() {
		var ident database.EnrolledIdentity
		var vec pgvector.Vector
		if err := rows.Scan(&ident.ID, &ident.Name, &vec, &ident.WhatsApp, &ident.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ident.Encoding = vec.Slice()
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// Remove deletes an identity by name.
func (r *IdentityRepository) Remove(ctx context.Context, name string) error {
	var id int64
	err := r.pool.QueryRow(ctx, "DELETE FROM identities WHERE name = $1 RETURNING id", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("remove identity: %w", err)
	}

	r.hnswMu.RLock()
	enabled := r.hnswEnabled && r.hnswIndex != nil
	r.hnswMu.RUnlock()
	if enabled {
		r.hnswIndex.Remove(id)
	}
	return nil
}

// Rename changes an identity's display name. The encoding is untouched.
func (r *IdentityRepository) Rename(ctx context.Context, id int64, newName string) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE identities SET name = $1, normalized_name = $2 WHERE id = $3",
		newName, recognition.NormalizeName(newName), id,
	)
	if isUniqueViolation(err) {
		return database.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("rename identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename identity rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// FindByNormalizedName looks up an identity by normalized name.
// Returns nil when no identity matches.
func (r *IdentityRepository) FindByNormalizedName(ctx context.Context, name string) (*database.EnrolledIdentity, error) {
	query := `
		SELECT id, name, encoding, whatsapp, created_at
		FROM identities
		WHERE normalized_name = $1
		ORDER BY id
		LIMIT 1
	`

	var ident database.EnrolledIdentity
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, query, recognition.NormalizeName(name)).Scan(
		&ident.ID, &ident.Name, &vec, &ident.WhatsApp, &ident.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}

	ident.Encoding = vec.Slice()
	return &ident, nil
}

// Count returns the number of enrolled identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Gallery returns matching candidates for a probe in gallery order. When the
// HNSW index is enabled and the gallery is above the cutoff, it preselects
// the nearest entries; the caller recomputes exact distances, so the index
// never changes which identity wins among the candidates.
func (r *IdentityRepository) Gallery(ctx context.Context, probe []float32) ([]recognition.Candidate, error) {
	r.hnswMu.RLock()
	idx := r.hnswIndex
	enabled := r.hnswEnabled && idx != nil
	r.hnswMu.RUnlock()

	if enabled && idx.Count() >= r.hnswCutoff {
		candidates, err := idx.Candidates(probe, hnswSearchK)
		if err == nil {
			return candidates, nil
		}
		// Index failure falls back to the full gallery scan.
	}

	identities, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]recognition.Candidate, len(identities))
	for i, ident := range identities {
		candidates[i] = recognition.Candidate{ID: ident.ID, Name: ident.Name, Encoding: ident.Encoding}
	}
	return candidates, nil
}

// EnableHNSW builds the in-memory gallery index from the database. cutoff is
// the gallery size below which Gallery keeps using exact full scans.
func (r *IdentityRepository) EnableHNSW(ctx context.Context, cutoff int) error {
	identities, err := r.List(ctx)
	if err != nil {
		return fmt.Errorf("load gallery for index: %w", err)
	}

	gallery := make([]recognition.Candidate, len(identities))
	for i, ident := range identities {
		gallery[i] = recognition.Candidate{ID: ident.ID, Name: ident.Name, Encoding: ident.Encoding}
	}

	idx := recognition.NewGalleryIndex()
	if err := idx.Build(gallery); err != nil {
		return fmt.Errorf("build gallery index: %w", err)
	}

	r.hnswMu.Lock()
	r.hnswIndex = idx
	r.hnswEnabled = true
	r.hnswCutoff = cutoff
	r.hnswMu.Unlock()
	return nil
}

// HNSWCount returns the number of indexed identities.
func (r *IdentityRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
