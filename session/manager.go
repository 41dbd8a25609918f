package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
)

// Manager keeps one Controller per classroom section. Sections match
// ignoring case, like the store lookup.
type Manager struct {
	store    RosterStore
	cfg      Config
	sessions map[string]*Controller
	mu       sync.Mutex
}

// NewManager creates a new session manager
func NewManager(store RosterStore, cfg Config) *Manager {
	return &Manager{
		store:    store,
		cfg:      cfg,
		sessions: make(map[string]*Controller),
	}
}

func key(section string) string {
	return strings.ToLower(strings.TrimSpace(section))
}

// Get returns the session for a section, creating it on first use
func (m *Manager) Get(section string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(section)
	if c, ok := m.sessions[k]; ok {
		return c
	}
	c := New(m.store, strings.TrimSpace(section), m.cfg)
	m.sessions[k] = c
	log.Printf("Opened session for section %s", section)
	return c
}

// Lookup returns an existing session without creating one
func (m *Manager) Lookup(section string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[key(section)]
	return c, ok
}

// Drop closes and forgets the session for a section
func (m *Manager) Drop(section string) {
	m.mu.Lock()
	c, ok := m.sessions[key(section)]
	delete(m.sessions, key(section))
	m.mu.Unlock()

	if ok {
		c.Close()
	}
}

// RosterMutated reloads the live session for a section, if there is one
func (m *Manager) RosterMutated(ctx context.Context, section string) {
	c, ok := m.Lookup(section)
	if !ok {
		return
	}
	if _, err := c.RosterMutated(ctx); err != nil && !errors.Is(err, ErrStaleLoad) {
		log.Printf("Error reloading section %s after roster change: %v", section, err)
	}
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every session
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
}
