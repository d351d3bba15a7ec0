package session

import "time"

// State classifies a session's position in its inactivity lifecycle.
type State int

const (
	StateActive  State = iota // Recent interaction
	StateWarning              // Approaching the inactivity timeout
	StateExpired              // Past the inactivity timeout
	StateEnded                // Terminated; terminal state
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Session is one user's in-flight game, bound to a Telegram chat and,
// once posted, to the single message carrying its inline keyboard.
//
// Its fields are owned by the Manager's lock; nothing outside this
// package mutates a Session directly.
type Session struct {
	userID          int64
	chatID          int64
	lastInteraction time.Time
	messageID       int // 0 means no message bound yet
	state           State
	warningSent     bool
}

func newSession(userID, chatID int64, now time.Time) *Session {
	return &Session{
		userID:          userID,
		chatID:          chatID,
		lastInteraction: now,
		state:           StateActive,
	}
}

// UserID returns the owning user. Immutable after creation.
func (s *Session) UserID() int64 { return s.userID }

// ChatID returns the chat the session's messages are posted in.
func (s *Session) ChatID() int64 { return s.chatID }

// LastInteraction returns the time of the most recent qualifying action.
func (s *Session) LastInteraction() time.Time { return s.lastInteraction }

// MessageID returns the currently bound message, or 0 if none.
func (s *Session) MessageID() int { return s.messageID }

// Touch records a fresh interaction: the activity clock resets, the state
// returns to Active and any pending warning is re-armed. Touching an Ended
// session is a no-op; a terminated session is never resurrected.
func (s *Session) Touch(now time.Time) {
	if s.state == StateEnded {
		return
	}
	s.lastInteraction = now
	s.state = StateActive
	s.warningSent = false
}

// BindMessage records the message currently showing this session's UI,
// replacing any prior binding. The ID is an opaque key from the caller.
func (s *Session) BindMessage(messageID int) {
	s.messageID = messageID
}

// StateAt classifies the session against the two inactivity thresholds.
//
// Not a pure accessor: the computed state is written back to the session,
// so a session read as Expired stays Expired until the next Touch. Ended
// short-circuits unconditionally. The caller guarantees warn < timeout.
func (s *Session) StateAt(now time.Time, warn, timeout time.Duration) State {
	if s.state == StateEnded {
		return StateEnded
	}

	elapsed := now.Sub(s.lastInteraction)
	switch {
	case elapsed > timeout:
		s.state = StateExpired
	case elapsed > warn:
		s.state = StateWarning
	}
	return s.state
}
