package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aviklund/questline/internal/config"
)

// Notifier delivers a short notice to a chat, addressed to a user.
// expireAfter is a hint that the notice may be deleted after that long;
// implementations are free to ignore it. Delivery errors are returned to
// the caller, never panicked.
type Notifier interface {
	Notify(ctx context.Context, chatID, userID int64, text string, expireAfter time.Duration) error
}

// Manager is the process-wide registry of game sessions, keyed by owning
// user and, through a secondary index, by the message carrying each
// session's live keyboard. It owns the inactivity sweep and the
// authorization gate every inline-button press passes through.
//
// One mutex guards both maps; every mutation of the registry happens as a
// single locked step, so the sweep and in-flight interactions can
// interleave without breaking the one-session-per-user invariant.
type Manager struct {
	cfg config.SessionConfig
	now func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session // userID -> session
	messages map[int]int64      // messageID -> owning userID
}

// NewManager creates an empty registry with the given thresholds.
func NewManager(cfg config.SessionConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[int64]*Session),
		messages: make(map[int]int64),
	}
}

// Create starts a new session for the user. It is rejected if the user
// already has a live one; the existing session is left untouched and the
// returned text tells the user how to end it. The reply text is meant to
// be shown to the user verbatim.
func (m *Manager) Create(userID, chatID int64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok && s.state != StateEnded {
		return false, "You already have an active game! Use /end to finish your current game first."
	}

	m.sessions[userID] = newSession(userID, chatID, m.now())
	slog.Info("session created", "user_id", userID, "chat_id", chatID)
	return true, "A new adventure begins!"
}

// End terminates and removes the user's session. Missing sessions are a
// no-op; callers never need to check first.
func (m *Manager) End(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endLocked(userID)
}

func (m *Manager) endLocked(userID int64) {
	s, ok := m.sessions[userID]
	if !ok {
		return
	}
	if s.messageID != 0 {
		slog.Info("unbinding message", "message_id", s.messageID, "user_id", userID)
		delete(m.messages, s.messageID)
	}
	s.state = StateEnded
	delete(m.sessions, userID)
	slog.Info("session ended", "user_id", userID)
}

// Get returns the user's live session, or nil if there is none.
//
// Not a pure accessor: a successful Get counts as an interaction and
// resets the session's activity clock. Any code path that legitimately
// acts on a user's session should reach it through here.
func (m *Manager) Get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(userID)
}

func (m *Manager) getLocked(userID int64) *Session {
	s, ok := m.sessions[userID]
	if !ok || s.state == StateEnded {
		return nil
	}
	s.Touch(m.now())
	return s
}

// RegisterMessage binds messageID to the user's session and records the
// reverse mapping used by Authorize. A session's previous binding is
// dropped from the index first, so each session maps back from at most
// one message. Last write wins if two sessions ever claim the same
// message ID; the caller is responsible for per-message uniqueness.
func (m *Manager) RegisterMessage(userID int64, messageID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		slog.Warn("register message for missing session", "user_id", userID, "message_id", messageID)
		return
	}

	if s.messageID != 0 {
		delete(m.messages, s.messageID)
	}
	s.BindMessage(messageID)
	m.messages[messageID] = userID
	slog.Info("message registered", "user_id", userID, "message_id", messageID)
}

// notice is a pending delivery collected during a sweep. Notifier I/O
// happens after the registry lock is released.
type notice struct {
	userID int64
	chatID int64
}

// Sweep classifies every session, warns users nearing the timeout and
// ends the ones past it. Returns the user IDs whose sessions expired.
//
// The sweep is two-phase: expired sessions are collected during
// iteration and ended afterwards, and each is re-checked under the lock
// before removal so an interaction racing the sweep wins.
func (m *Manager) Sweep(ctx context.Context, n Notifier) []int64 {
	var warnings, expiries []notice

	m.mu.Lock()
	now := m.now()
	for userID, s := range m.sessions {
		switch s.StateAt(now, m.cfg.WarningThreshold, m.cfg.TimeoutThreshold) {
		case StateWarning:
			if !s.warningSent {
				warnings = append(warnings, notice{userID: userID, chatID: s.chatID})
			}
		case StateExpired:
			expiries = append(expiries, notice{userID: userID, chatID: s.chatID})
		}
	}
	m.mu.Unlock()

	remaining := int((m.cfg.TimeoutThreshold - m.cfg.WarningThreshold).Minutes())
	for _, w := range warnings {
		text := fmt.Sprintf(
			"Your game will expire in %d minutes due to inactivity. Make a move to keep playing!",
			remaining)
		if err := n.Notify(ctx, w.chatID, w.userID, text, m.cfg.NoticeTTL); err != nil {
			slog.Error("warning notice failed", "user_id", w.userID, "error", err)
			continue
		}
		m.markWarned(w.userID)
	}

	expired := make([]int64, 0, len(expiries))
	for _, e := range expiries {
		expired = append(expired, e.userID)
		text := "Your game has expired due to inactivity. Use /start to begin a new adventure!"
		if err := n.Notify(ctx, e.chatID, e.userID, text, m.cfg.NoticeTTL); err != nil {
			slog.Error("expiry notice failed", "user_id", e.userID, "error", err)
		}
	}

	for _, e := range expiries {
		m.endIfExpired(e.userID)
	}

	return expired
}

// markWarned flags the session so the current inactivity window produces
// no second warning. Skipped if the user interacted in the meantime: the
// flag belongs to the window the warning was issued for.
func (m *Manager) markWarned(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok && s.state == StateWarning {
		s.warningSent = true
	}
}

// endIfExpired removes the session only if it is still past the timeout,
// tolerating an interaction that slipped in after the sweep's collect
// phase.
func (m *Manager) endIfExpired(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return
	}
	if s.StateAt(m.now(), m.cfg.WarningThreshold, m.cfg.TimeoutThreshold) != StateExpired {
		return
	}
	m.endLocked(userID)
}

// Authorize is the gate every inline-button press passes through before
// any game logic runs. It reports whether the press should proceed; when
// it should not, the returned text explains why and is safe to show to
// the pressing user.
//
// Ownership is verified before the session is touched, so a stranger
// probing someone else's keyboard never refreshes the owner's clock.
func (m *Manager) Authorize(userID int64, messageID int) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ownerID, ok := m.messages[messageID]
	if !ok {
		slog.Warn("interaction on unknown message", "message_id", messageID, "user_id", userID)
		return false, "This game is no longer active."
	}

	if userID != ownerID {
		slog.Warn("interaction on foreign session", "user_id", userID, "owner_id", ownerID)
		return false, "This is not your game!"
	}

	s := m.getLocked(ownerID)
	if s == nil {
		slog.Warn("session missing for bound message", "user_id", ownerID, "message_id", messageID)
		return false, "This game has expired. Use /start to begin a new adventure."
	}

	if s.StateAt(m.now(), m.cfg.WarningThreshold, m.cfg.TimeoutThreshold) == StateExpired {
		slog.Info("session expired on interaction", "user_id", ownerID)
		m.endLocked(ownerID)
		return false, "This game has expired due to inactivity. Use /start to begin a new adventure."
	}

	s.Touch(m.now())
	return true, ""
}
