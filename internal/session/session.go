// Package session owns the process-wide session state: who is authenticated
// and whether hydration has finished.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/credential"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/domain"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/issuer"
)

// MePath returns the authenticated user's profile.
const MePath = "/api/me/"

// State is a snapshot of the session.
type State struct {
	Identity *domain.Identity
	Ready    bool
}

// Authenticated reports whether an identity is present.
func (s State) Authenticated() bool {
	return s.Identity != nil
}

// PairIssuer exchanges username and password for a credential pair.
type PairIssuer interface {
	ObtainPair(ctx context.Context, username, password string) (*issuer.Pair, error)
}

// JSONRequester performs an authenticated JSON call. *gateway.Gateway
// satisfies it.
type JSONRequester interface {
	JSON(ctx context.Context, method, target string, in, out interface{}) (int, error)
}

// Manager is the session state for one process. It is safe for concurrent
// use; network calls run without holding the state lock.
type Manager struct {
	issuer      PairIssuer
	api         JSONRequester
	store       credential.Store
	logger      *slog.Logger
	identity    *domain.Identity
	subscribers map[int]chan State
	readyCh     chan struct{}
	hydrateOnce sync.Once
	nextSub     int
	generation  uint64
	ready       bool
	mu          sync.RWMutex
}

// NewManager creates a session manager in the not-ready, logged-out state.
func NewManager(pairIssuer PairIssuer, api JSONRequester, store credential.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		issuer:      pairIssuer,
		api:         api,
		store:       store,
		logger:      logger.With("component", "session"),
		subscribers: make(map[int]chan State),
		readyCh:     make(chan struct{}),
	}
}

// State returns a snapshot of the current session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot()
}

// Hydrate discovers a persisted session. With no stored access credential it
// makes no network call. Any failure to fetch the profile leaves the session
// logged out with credentials cleared. Ready is true afterwards whatever the
// outcome. Only the first call does any work.
func (m *Manager) Hydrate(ctx context.Context) {
	m.hydrateOnce.Do(func() {
		m.hydrate(ctx)
	})
}

func (m *Manager) hydrate(ctx context.Context) {
	gen := m.currentGeneration()

	if _, ok := m.store.Get(ctx, credential.Access); !ok {
		m.logger.Debug("no stored session")
		m.update(func() { m.markReady() })
		return
	}

	identity, err := m.fetchIdentity(ctx)
	if err != nil {
		m.logger.Info("stored session rejected, logging out", "error", err)
		if m.currentGeneration() == gen {
			m.store.Clear(ctx)
		}
		m.update(func() {
			if m.generation == gen {
				m.identity = nil
			}
			m.markReady()
		})
		return
	}

	m.update(func() {
		if m.generation == gen {
			m.identity = identity
			m.logger.Info("session restored", "user_id", identity.ID, "role", identity.Role)
		} else {
			m.logger.Info("session changed during hydrate, restored identity dropped")
		}
		m.markReady()
	})
}

// Login exchanges credentials for a token pair, persists it and loads the
// profile. A rejected exchange returns an InvalidCredentials error and leaves
// both state and stored credentials untouched. If the profile fetch fails the
// tokens stay persisted, the identity becomes absent and an error is returned.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	pair, err := m.issuer.ObtainPair(ctx, username, password)
	if err != nil {
		m.logger.Info("login rejected", "username", username, "error", err)
		return err
	}

	gen := m.advanceGeneration()
	m.store.Put(ctx, pair.Access, pair.Refresh)

	identity, err := m.fetchIdentity(ctx)
	if err != nil {
		m.logger.Warn("login profile fetch failed", "username", username, "error", err)
		m.update(func() {
			if m.generation == gen {
				m.identity = nil
			}
		})
		return fmt.Errorf("failed to fetch user profile: %w", err)
	}

	m.update(func() {
		if m.generation == gen {
			m.identity = identity
		}
		m.markReady()
	})
	m.logger.Info("logged in", "user_id", identity.ID, "role", identity.Role)

	return nil
}

// Logout clears stored credentials and the identity. Ready stays true. A
// hydrate or login still in flight cannot bring the identity back.
func (m *Manager) Logout(ctx context.Context) {
	m.advanceGeneration()
	m.store.Clear(ctx)
	m.update(func() {
		m.identity = nil
		m.markReady()
	})
	m.logger.Info("logged out")
}

// WaitReady blocks until hydration has finished or ctx ends.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel receiving the state after every change, starting
// with the current state. Slow subscribers only see the latest state. The
// returned func unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = ch
	ch <- m.snapshot()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			close(ch)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) fetchIdentity(ctx context.Context) (*domain.Identity, error) {
	var identity domain.Identity
	status, err := m.api.JSON(ctx, http.MethodGet, MePath, nil, &identity)
	if err != nil {
		if status == http.StatusUnauthorized {
			return nil, domain.NewSessionExpiredError("SESSION_EXPIRED", "Please log in again", status)
		}
		return nil, err
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	return &identity, nil
}

// currentGeneration returns the number of credential replacements so far.
func (m *Manager) currentGeneration() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// advanceGeneration marks the stored credentials as replaced, which makes any
// identity fetched for the previous ones stale.
func (m *Manager) advanceGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	return m.generation
}

// update applies fn under the lock and publishes the resulting state.
func (m *Manager) update(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn()
	state := m.snapshot()
	for _, ch := range m.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

// markReady must be called with m.mu held.
func (m *Manager) markReady() {
	if m.ready {
		return
	}
	m.ready = true
	close(m.readyCh)
}

// snapshot must be called with m.mu held.
func (m *Manager) snapshot() State {
	state := State{Ready: m.ready}
	if m.identity != nil {
		identity := *m.identity
		state.Identity = &identity
	}
	return state
}
