// Package credential persists the access and refresh credentials of the
// current session.
//
// Stores never fail: an unavailable medium is logged and reported as an
// absent credential, so callers only ever branch on presence.
package credential

import (
	"context"
	"sync"
)

// Kind identifies one of the two stored credentials.
type Kind string

const (
	// Access is the short-lived bearer credential sent on every request.
	Access Kind = "access"
	// Refresh is the longer-lived credential used only to mint a new Access.
	Refresh Kind = "refresh"
)

// Key returns the durable entry name for the credential kind.
func (k Kind) Key() string {
	return "lf_" + string(k)
}

// Kinds lists every credential kind in storage order.
var Kinds = []Kind{Access, Refresh}

// Store is durable key/value persistence for the credential pair.
type Store interface {
	// Get returns the stored token for kind. Empty values count as absent.
	Get(ctx context.Context, kind Kind) (string, bool)
	// Put stores access unconditionally and refresh only when non-empty,
	// so rotating the access credential keeps a valid refresh credential.
	Put(ctx context.Context, access, refresh string)
	// Clear removes both credentials.
	Clear(ctx context.Context)
}

// MemoryStore keeps credentials in process memory. It is the fallback when no
// durable medium is configured.
type MemoryStore struct {
	values map[Kind]string
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Kind]string)}
}

// Get returns the stored token for kind.
func (s *MemoryStore) Get(_ context.Context, kind Kind) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.values[kind]
	return v, v != ""
}

// Put stores the access token and, when supplied, the refresh token.
func (s *MemoryStore) Put(_ context.Context, access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[Access] = access
	if refresh != "" {
		s.values[Refresh] = refresh
	}
}

// Clear removes both tokens.
func (s *MemoryStore) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[Kind]string)
}
