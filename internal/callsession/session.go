package callsession

import (
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle phase of a call session.
type State string

const (
	StateAnswering           State = "answering"
	StatePrompting           State = "prompting"
	StateAwaitingRecognition State = "awaiting_recognition"
	StateResponding          State = "responding"
	StateTerminated          State = "terminated"
)

// Session is the per-call conversational state. All mutators are safe for
// concurrent use; callback events for one call may race with each other.
type Session struct {
	mu sync.Mutex

	CallID     uuid.UUID
	Connection string
	Caller     string

	state       State
	retriesLeft int
	lastPrompt  string
	endReason   string
}

func NewSession(callID uuid.UUID, connectionID, callerID string, retryBudget int) *Session {
	return &Session{
		CallID:      callID,
		Connection:  connectionID,
		Caller:      callerID,
		state:       StateAnswering,
		retriesLeft: retryBudget,
	}
}

func (s *Session) ConnectionID() string { return s.Connection }
func (s *Session) CallerID() string     { return s.Caller }

// TakeRetry consumes one silence retry. It reports false once the budget is
// spent; the budget never goes negative.
func (s *Session) TakeRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retriesLeft <= 0 {
		return false
	}
	s.retriesLeft--
	return true
}

func (s *Session) RetriesLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retriesLeft
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// LastPrompt is the text most recently spoken to the caller; silence retries
// replay it verbatim.
func (s *Session) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrompt
}

func (s *Session) SetLastPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPrompt = prompt
}

// EndReason records why the call ended; the first writer wins.
func (s *Session) SetEndReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endReason == "" {
		s.endReason = reason
	}
}

func (s *Session) EndReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// Registry tracks live sessions keyed by call connection ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Connection] = session
}

func (r *Registry) Get(connectionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[connectionID]
	return session, ok
}

// Remove deletes the session and reports whether it was present. Repeated
// removals of the same connection are harmless.
func (r *Registry) Remove(connectionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[connectionID]
	if ok {
		delete(r.sessions, connectionID)
	}
	return session, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
