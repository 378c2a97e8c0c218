package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopboost/shopboost/internal/store"
)

// Manager keeps one Session per open page.
type Manager struct {
	mu       sync.Mutex
	store    store.Store
	products ProductSource
	logger   *slog.Logger
	opts     []Option
	sessions map[string]*Session
}

// NewManager creates a Manager whose sessions are built with opts. When
// products is non-nil, newly opened sessions reconnect to the stored
// storefront in the background.
func NewManager(st store.Store, products ProductSource, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    st,
		products: products,
		logger:   logger,
		opts:     append([]Option{WithLogger(logger)}, opts...),
		sessions: make(map[string]*Session),
	}
}

// Open returns the session for id, loading it on first use.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s, err := Load(ctx, m.store, id, m.opts...)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = s
	m.logger.Info("session opened", "page", id)

	if m.products != nil {
		go func() {
			if err := s.Reconnect(context.Background(), m.products); err != nil && !errors.Is(err, ErrStale) {
				m.logger.Warn("storefront reconnect failed", "page", id, "error", err)
			}
		}()
	}
	return s, nil
}

// Get returns an already open session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// IDs lists open page ids in order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close flushes and closes the session for id. Closing a page that is not
// open is a no-op.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	err := s.Flush(ctx)
	s.Close()
	m.logger.Info("session closed", "page", id)
	return err
}

// Discard closes the session for id without saving, e.g. after the page
// was deleted.
func (m *Manager) Discard(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Shutdown flushes and closes every session. It returns the first flush
// error after trying them all.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		if err := s.Flush(ctx); err != nil {
			m.logger.Error("failed to flush session", "page", id, "error", err)
			errs = append(errs, err)
		}
		s.Close()
	}
	return errors.Join(errs...)
}
