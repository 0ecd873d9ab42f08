package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/scout/pkg/logging"
)

// ErrNoSessionKey is returned when a tool runs without a session key in its context.
var ErrNoSessionKey = errors.New("no browser session key in context")

type sessionKeyType struct{}

// WithSessionKey returns a context whose browser tools use the session for key.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyType{}, key)
}

// SessionKey returns the session key carried by ctx.
func SessionKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKeyType{}).(string)
	return key, ok && key != ""
}

// Session is a browser page bound to one conversation key. Operations on a
// session are serialized.
type Session struct {
	Key       string
	CreatedAt time.Time

	mu         sync.Mutex
	page       Page
	lastUsedAt time.Time
}

// Do runs fn with exclusive access to the page.
func (s *Session) Do(fn func(Page) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsedAt = time.Now()
	return fn(s.page)
}

// LastUsedAt returns the time of the last operation.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// SessionInfo contains metadata about a browser session.
type SessionInfo struct {
	Key        string    `json:"key"`
	CurrentURL string    `json:"currentUrl"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// SessionManager holds one browser session per conversation key and
// launches it on first use.
type SessionManager struct {
	driver      Driver
	opts        SessionOptions
	logger      *logging.Logger
	maxSessions int
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithMaxSessions caps the number of concurrent sessions.
func WithMaxSessions(n int) ManagerOption {
	return func(m *SessionManager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// WithIdleTimeout sets how long a session may stay unused before
// CleanupIdleSessions closes it.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *logging.Logger) ManagerOption {
	return func(m *SessionManager) {
		m.logger = l
	}
}

// NewSessionManager creates a manager that launches pages with driver.
func NewSessionManager(driver Driver, opts SessionOptions, options ...ManagerOption) *SessionManager {
	m := &SessionManager{
		driver:      driver,
		opts:        opts.withDefaults(),
		maxSessions: DefaultMaxSessions,
		idleTimeout: DefaultIdleTimeout,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.NewLogger("browser")
	}
	return m
}

// Options returns the options used for new sessions.
func (m *SessionManager) Options() SessionOptions {
	return m.opts
}

// Session returns the session for key, launching it if needed.
func (m *SessionManager) Session(ctx context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s, nil
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("maximum number of browser sessions (%d) reached", m.maxSessions)
	}

	page, err := m.driver.NewPage(ctx, m.opts)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s := &Session{Key: key, CreatedAt: now, page: page, lastUsedAt: now}
	m.sessions[key] = s
	m.logger.Infof("browser session started for %s", key)
	return s, nil
}

// FromContext returns the session for the key carried by ctx.
func (m *SessionManager) FromContext(ctx context.Context) (*Session, error) {
	key, ok := SessionKey(ctx)
	if !ok {
		return nil, ErrNoSessionKey
	}
	return m.Session(ctx, key)
}

// CloseSession closes the session for key. Closing an unknown key is a no-op.
func (m *SessionManager) CloseSession(key string) error {
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Do(func(p Page) error { return p.Close() })
}

// ListSessions returns information about all active sessions.
func (m *SessionManager) ListSessions() []SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		infos = append(infos, SessionInfo{
			Key:        s.Key,
			CurrentURL: s.page.URL(),
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.lastUsedAt,
		})
		s.mu.Unlock()
	}
	return infos
}

// CleanupIdleSessions closes sessions unused for longer than the idle
// timeout and returns their keys.
func (m *SessionManager) CleanupIdleSessions() ([]string, error) {
	now := time.Now()

	m.mu.Lock()
	var idle []*Session
	for key, s := range m.sessions {
		if now.Sub(s.LastUsedAt()) > m.idleTimeout {
			idle = append(idle, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	var errs []error
	keys := make([]string, 0, len(idle))
	for _, s := range idle {
		keys = append(keys, s.Key)
		if err := s.Do(func(p Page) error { return p.Close() }); err != nil {
			errs = append(errs, err)
		}
	}
	if len(keys) > 0 {
		m.logger.Debugf("closed %d idle browser sessions", len(keys))
	}
	return keys, errors.Join(errs...)
}

// RunCleanup calls CleanupIdleSessions every interval until ctx is done.
func (m *SessionManager) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CleanupIdleSessions(); err != nil {
				m.logger.Warnf("idle session cleanup: %v", err)
			}
		}
	}
}

// Shutdown closes all sessions and the driver.
func (m *SessionManager) Shutdown() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Do(func(p Page) error { return p.Close() }); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.driver.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
