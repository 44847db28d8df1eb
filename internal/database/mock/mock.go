// Package mock provides in-memory implementations of the store interfaces
// for testing.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/gatekeeper/internal/database"
	"github.com/kozaktomas/gatekeeper/internal/recognition"
)

// MockIdentityStore is an in-memory implementation of database.IdentityStore.
type MockIdentityStore struct {
	mu         sync.RWMutex
	nextID     int64
	identities map[int64]*database.EnrolledIdentity

	// Error injection
	EnrollError error
	ListError   error
	FindError   error
}

// NewMockIdentityStore creates a new mock identity store.
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{
		nextID:     1,
		identities: make(map[int64]*database.EnrolledIdentity),
	}
}

// Enroll stores a new identity, rejecting duplicate names.
func (m *MockIdentityStore) Enroll(ctx context.Context, name string, encoding []float32, whatsapp string) (int64, error) {
	if m.EnrollError != nil {
		return 0, m.EnrollError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, identity := range m.identities {
		if identity.Name == name {
			return 0, database.ErrDuplicateName
		}
	}

	id := m.nextID
	m.nextID++
	m.identities[id] = &database.EnrolledIdentity{
		ID:       id,
		Name:     name,
		Encoding: append([]float32(nil), encoding...),
		WhatsApp: whatsapp,
	}
	return id, nil
}

// List returns all identities ordered by id.
func (m *MockIdentityStore) List(ctx context.Context) ([]database.EnrolledIdentity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.EnrolledIdentity, 0, len(m.identities))
	for _, identity := range m.identities {
		out = append(out, *identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Remove deletes an identity by name.
func (m *MockIdentityStore) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, identity := range m.identities {
		if identity.Name == name {
			delete(m.identities, id)
			return nil
		}
	}
	return database.ErrNotFound
}

// Rename changes an identity's name, rejecting collisions.
func (m *MockIdentityStore) Rename(ctx context.Context, id int64, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for otherID, identity := range m.identities {
		if otherID != id && identity.Name == newName {
			return database.ErrDuplicateName
		}
	}

	identity, ok := m.identities[id]
	if !ok {
		return database.ErrNotFound
	}
	identity.Name = newName
	return nil
}

// FindByNormalizedName looks up an identity by its normalized name.
func (m *MockIdentityStore) FindByNormalizedName(ctx context.Context, name string) (*database.EnrolledIdentity, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, identity := range m.identities {
		if recognition.NormalizeName(identity.Name) == name {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, nil
}

// Gallery returns all identities as candidates in id order.
func (m *MockIdentityStore) Gallery(ctx context.Context, probe []float32) ([]recognition.Candidate, error) {
	identities, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]recognition.Candidate, 0, len(identities))
	for _, identity := range identities {
		candidates = append(candidates, recognition.Candidate{
			ID:       identity.ID,
			Name:     identity.Name,
			Encoding: identity.Encoding,
		})
	}
	return candidates, nil
}

// Count returns the number of enrolled identities.
func (m *MockIdentityStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// MockAttendanceStore is an in-memory implementation of database.AttendanceStore.
type MockAttendanceStore struct {
	mu      sync.Mutex
	nextID  int64
	records []database.AttendanceRecord

	// Error injection
	MarkError    error
	EntriesError error
}

// NewMockAttendanceStore creates a new mock attendance store.
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{nextID: 1}
}

// MarkIfAbsent records attendance unless (name, date) already exists.
func (m *MockAttendanceStore) MarkIfAbsent(ctx context.Context, name, date, tm string) (bool, error) {
	if m.MarkError != nil {
		return false, m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.records {
		if rec.Name == name && rec.Date == date {
			return false, nil
		}
	}

	m.records = append(m.records, database.AttendanceRecord{
		ID:   m.nextID,
		Name: name,
		Date: date,
		Time: tm,
	})
	m.nextID++
	return true, nil
}

// Entries returns the (name, time) pairs recorded for a date.
func (m *MockAttendanceStore) Entries(ctx context.Context, date string) ([]database.AttendanceEntry, error) {
	if m.EntriesError != nil {
		return nil, m.EntriesError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []database.AttendanceEntry
	for _, rec := range m.records {
		if rec.Date == date {
			out = append(out, database.AttendanceEntry{Name: rec.Name, Time: rec.Time})
		}
	}
	return out, nil
}

// Recent returns up to limit records, newest first.
func (m *MockAttendanceStore) Recent(ctx context.Context, limit int, name, date string) ([]database.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []database.AttendanceRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := m.records[i]
		if name != "" && !strings.Contains(strings.ToLower(rec.Name), strings.ToLower(name)) {
			continue
		}
		if date != "" && rec.Date != date {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// MockVisitorStore is an in-memory implementation of database.VisitorStore.
type MockVisitorStore struct {
	mu        sync.Mutex
	nextID    int64
	decisions []database.VisitorDecision

	// Error injection
	InsertError error
}

// NewMockVisitorStore creates a new mock visitor store.
func NewMockVisitorStore() *MockVisitorStore {
	return &MockVisitorStore{nextID: 1}
}

// Insert appends a visitor decision record.
func (m *MockVisitorStore) Insert(ctx context.Context, rec database.VisitorDecision) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = m.nextID
	m.nextID++
	m.decisions = append(m.decisions, rec)
	return nil
}

// Recent returns up to limit decisions, newest first.
func (m *MockVisitorStore) Recent(ctx context.Context, limit int) ([]database.VisitorDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []database.VisitorDecision
	for i := len(m.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.decisions[i])
	}
	return out, nil
}

// All returns every stored decision in insertion order.
func (m *MockVisitorStore) All() []database.VisitorDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.VisitorDecision(nil), m.decisions...)
}
