package approval

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// Step is the conversation step of a visitor session.
type Step string

const (
	StepGreeting      Step = "greeting"
	StepCollecting    Step = "collecting"
	StepAwaitingReply Step = "awaiting_reply"
	StepResolved      Step = "resolved"
)

// Outcome is the final decision of a resolved session.
type Outcome string

const (
	OutcomeApproved Outcome = "Approved"
	OutcomeDenied   Outcome = "Denied"
	OutcomeExpired  Outcome = "Expired"
)

// Session is one visitor conversation. Fields are guarded by mu and must
// only be touched while holding it; the workflow locks a session for the
// duration of each transition so a late reply and a concurrent message
// cannot interleave.
type Session struct {
	mu sync.Mutex

	ID               string
	Step             Step
	VisitorName      string
	ResponsibleParty string
	Recipient        string // resolved channel address the request went to
	Outcome          Outcome
	Resolution       string // final outcome text shown to the visitor

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Lock acquires the session's own lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's own lock.
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}

// SessionStore keeps active sessions in memory keyed by id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Create makes a new session in the greeting step.
func (st *SessionStore) Create() *Session {
	now := time.Now()
	session := &Session{
		ID:        uuid.NewString(),
		Step:      StepGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[session.ID] = session

	return session
}

// Get returns the session with the given id or ErrSessionNotFound.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	session, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes a session from the store.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Count returns the number of active sessions.
func (st *SessionStore) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Stale returns sessions stuck in awaiting_reply for longer than ttl.
// The returned sessions are not locked; callers transition them one by one.
func (st *SessionStore) Stale(ttl time.Duration) []*Session {
	cutoff := time.Now().Add(-ttl)

	st.mu.RLock()
	defer st.mu.RUnlock()

	var stale []*Session
	for _, session := range st.sessions {
		session.mu.Lock()
		if session.Step == StepAwaitingReply && session.UpdatedAt.Before(cutoff) {
			stale = append(stale, session)
		}
		session.mu.Unlock()
	}
	return stale
}
