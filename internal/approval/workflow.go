package approval

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/ai"
	"github.com/kozaktomas/gatekeeper/internal/database"
	"github.com/kozaktomas/gatekeeper/internal/recognition"
)

const (
	dateFormat = "2006-01-02"
	timeFormat = "15:04:05"

	recentVisitorsLimit = 10
)

// Workflow drives visitor sessions through greeting, extraction, approval
// dispatch and resolution. All entry points are safe for concurrent use.
type Workflow struct {
	sessions   *SessionStore
	hub        *CorrelationHub
	provider   ai.Provider
	identities database.IdentityStore
	attendance database.AttendanceStore
	visitors   database.VisitorStore

	// defaultRecipient receives approval requests when the responsible
	// party has no channel of their own.
	defaultRecipient string
	sessionTTL       time.Duration
}

func NewWorkflow(
	sessions *SessionStore,
	hub *CorrelationHub,
	provider ai.Provider,
	identities database.IdentityStore,
	attendance database.AttendanceStore,
	visitors database.VisitorStore,
	defaultRecipient string,
	sessionTTL time.Duration,
) *Workflow {
	return &Workflow{
		sessions:         sessions,
		hub:              hub,
		provider:         provider,
		identities:       identities,
		attendance:       attendance,
		visitors:         visitors,
		defaultRecipient: defaultRecipient,
		sessionTTL:       sessionTTL,
	}
}

// StartSession creates a fresh session in the greeting step and returns it.
func (w *Workflow) StartSession() *Session {
	return w.sessions.Create()
}

// HandleMessage advances a session's conversation by one message. An empty
// session id creates a new session. The returned reply is always a valid
// response for the visitor; upstream failures degrade to a retry prompt
// without advancing the session.
func (w *Workflow) HandleMessage(ctx context.Context, sessionID, message string) (reply, id string, err error) {
	var session *Session
	if sessionID == "" {
		session = w.sessions.Create()
	} else {
		session, err = w.sessions.Get(sessionID)
		if err != nil {
			return "", "", err
		}
	}

	session.Lock()
	defer session.Unlock()

	switch session.Step {
	case StepGreeting:
		session.Step = StepCollecting
		session.touch()
		return "Hello! Please tell me your name and who you are here to meet.", session.ID, nil

	case StepCollecting:
		return w.collect(ctx, session, message), session.ID, nil

	case StepAwaitingReply:
		return fmt.Sprintf(
			"I am still waiting for %s to reply. Please check the status again in a moment.",
			session.ResponsibleParty,
		), session.ID, nil

	case StepResolved:
		return w.answerQuery(ctx, message), session.ID, nil
	}

	return "", "", fmt.Errorf("session %s is in unknown step %q", session.ID, session.Step)
}

// collect runs extraction and, on success, dispatches the approval request.
// Caller holds the session lock.
func (w *Workflow) collect(ctx context.Context, session *Session, message string) string {
	info, err := w.provider.ExtractVisitor(ctx, message)
	if err != nil {
		log.Printf("extraction failed for session %s: %v", session.ID, err)
		return "Sorry, I could not catch your name or who you are here to meet. " +
			"Please tell me both, for example: I am John Doe, here to see Alice."
	}

	recipient := w.resolveRecipient(ctx, info.Host)
	if recipient == "" {
		log.Printf("no approval channel for host %q (session %s)", info.Host, session.ID)
		return fmt.Sprintf("I have no way to reach %s right now. Please ask the front desk for help.", info.Host)
	}

	request := fmt.Sprintf("Visitor %s is here to meet you. Reply to approve or deny entry.", info.Name)
	if err := w.hub.Dispatch(ctx, session.ID, recipient, request); err != nil {
		log.Printf("dispatch failed for session %s: %v", session.ID, err)
		return fmt.Sprintf("I could not reach %s right now. Please send your message again in a moment.", info.Host)
	}

	session.VisitorName = info.Name
	session.ResponsibleParty = info.Host
	session.Recipient = recipient
	session.Step = StepAwaitingReply
	session.touch()

	return fmt.Sprintf("Thank you %s. I have asked %s. Check back shortly for the decision.", info.Name, info.Host)
}

// resolveRecipient maps a responsible party's name to their channel address.
// Enrolled identities with a WhatsApp number take precedence; otherwise the
// configured default approver receives the request.
func (w *Workflow) resolveRecipient(ctx context.Context, host string) string {
	identity, err := w.identities.FindByNormalizedName(ctx, recognition.NormalizeName(host))
	if err != nil {
		log.Printf("recipient lookup failed for %q: %v", host, err)
	}
	if identity != nil && identity.WhatsApp != "" {
		return identity.WhatsApp
	}
	return w.defaultRecipient
}

// Status reports a session's outcome. While the session awaits a reply it
// checks the correlation hub and, when a reply has arrived, resolves the
// session. done is false until the session is resolved.
func (w *Workflow) Status(ctx context.Context, sessionID string) (outcome string, done bool, err error) {
	session, err := w.sessions.Get(sessionID)
	if err != nil {
		return "", false, err
	}

	session.Lock()
	defer session.Unlock()

	switch session.Step {
	case StepResolved:
		return session.Resolution, true, nil

	case StepAwaitingReply:
		reply, err := w.hub.Poll(session.ID)
		if err != nil {
			// ErrNotYetReplied keeps the session untouched.
			return "", false, nil
		}
		w.resolve(ctx, session, reply)
		return session.Resolution, true, nil
	}

	return "", false, nil
}

// resolve judges the correlated reply and writes the decision record.
// Judgment transport failure degrades to Denied rather than leaving the
// session unresolved. Caller holds the session lock.
func (w *Workflow) resolve(ctx context.Context, session *Session, reply string) {
	approved, reason, err := w.provider.JudgeApproval(ctx, session.VisitorName, session.ResponsibleParty, reply)
	if err != nil {
		log.Printf("approval judgment failed for session %s: %v", session.ID, err)
		approved = false
		reason = "the approval service was unavailable"
	}

	outcome := OutcomeDenied
	if approved {
		outcome = OutcomeApproved
	}

	now := time.Now()
	record := database.VisitorDecision{
		VisitorName:      session.VisitorName,
		ResponsibleParty: session.ResponsibleParty,
		Status:           string(outcome),
		Date:             now.Format(dateFormat),
		Time:             now.Format(timeFormat),
	}
	if err := w.visitors.Insert(ctx, record); err != nil {
		log.Printf("could not store visitor decision for session %s: %v", session.ID, err)
	}

	session.Outcome = outcome
	if approved {
		session.Resolution = fmt.Sprintf("Approved. %s said: %s", session.ResponsibleParty, reply)
	} else {
		session.Resolution = fmt.Sprintf("Denied. %s", reason)
	}
	session.Step = StepResolved
	session.touch()
}

// answerQuery handles free-form questions on a resolved session using a
// snapshot of the ledger. A "mark attendance for <name>" request also writes
// a manual attendance record.
func (w *Workflow) answerQuery(ctx context.Context, question string) string {
	site := w.siteContext(ctx)

	reply, err := w.provider.AnswerQuery(ctx, question, site)
	if err != nil {
		log.Printf("query answering failed: %v", err)
		reply = "Sorry, I cannot answer questions right now. Please try again later."
	}

	lower := strings.ToLower(question)
	if strings.Contains(lower, "mark attendance") && strings.Contains(lower, "for") {
		idx := strings.LastIndex(lower, "for")
		name := strings.TrimSpace(question[idx+len("for"):])
		if name != "" {
			reply += "\n" + w.markManualAttendance(ctx, name)
		}
	}

	return reply
}

func (w *Workflow) markManualAttendance(ctx context.Context, name string) string {
	now := time.Now()
	recorded, err := w.attendance.MarkIfAbsent(ctx, name, now.Format(dateFormat), now.Format(timeFormat))
	if err != nil {
		log.Printf("manual attendance mark failed for %q: %v", name, err)
		return fmt.Sprintf("Could not mark attendance for %s.", name)
	}
	if recorded {
		return fmt.Sprintf("Attendance marked for %s.", name)
	}
	return fmt.Sprintf("Attendance already marked for %s today.", name)
}

// siteContext snapshots the ledger for the query prompt. Failed reads leave
// the corresponding section empty rather than failing the query.
func (w *Workflow) siteContext(ctx context.Context) *ai.SiteContext {
	site := &ai.SiteContext{}

	today := time.Now().Format(dateFormat)
	if entries, err := w.attendance.Entries(ctx, today); err == nil {
		for _, entry := range entries {
			site.TodayEntries = append(site.TodayEntries, fmt.Sprintf("%s at %s", entry.Name, entry.Time))
		}
	} else {
		log.Printf("could not read today's entries: %v", err)
	}

	if identities, err := w.identities.List(ctx); err == nil {
		site.IdentityCount = len(identities)
		for _, identity := range identities {
			site.IdentityNames = append(site.IdentityNames, identity.Name)
		}
	} else {
		log.Printf("could not list identities: %v", err)
	}

	if decisions, err := w.visitors.Recent(ctx, recentVisitorsLimit); err == nil {
		for _, d := range decisions {
			site.RecentVisitors = append(site.RecentVisitors,
				fmt.Sprintf("%s -> %s: %s (%s %s)", d.VisitorName, d.ResponsibleParty, d.Status, d.Date, d.Time))
		}
	} else {
		log.Printf("could not read recent visitors: %v", err)
	}

	return site
}

// ExpireStale resolves sessions stuck in awaiting_reply for longer than the
// session TTL as Expired and drops their correlation entries so a late reply
// cannot be attributed to them. Returns the number of expired sessions.
func (w *Workflow) ExpireStale(ctx context.Context) int {
	stale := w.sessions.Stale(w.sessionTTL)

	expired := 0
	for _, session := range stale {
		session.Lock()
		if session.Step != StepAwaitingReply {
			session.Unlock()
			continue
		}

		w.hub.Abandon(session.ID)

		now := time.Now()
		record := database.VisitorDecision{
			VisitorName:      session.VisitorName,
			ResponsibleParty: session.ResponsibleParty,
			Status:           database.StatusExpired,
			Date:             now.Format(dateFormat),
			Time:             now.Format(timeFormat),
		}
		if err := w.visitors.Insert(ctx, record); err != nil {
			log.Printf("could not store expiry record for session %s: %v", session.ID, err)
		}

		session.Outcome = OutcomeExpired
		session.Resolution = fmt.Sprintf("Expired. %s did not reply in time.", session.ResponsibleParty)
		session.Step = StepResolved
		session.touch()
		session.Unlock()

		log.Printf("session %s expired without a reply", session.ID)
		expired++
	}

	return expired
}

// RunSweeper expires stale sessions on the given interval until ctx is done.
func (w *Workflow) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ExpireStale(ctx)
		}
	}
}
