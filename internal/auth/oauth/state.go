package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/models"
)

const stateTTL = 10 * time.Minute

// pendingConnect is what the connect step remembers until the provider redirects back.
type pendingConnect struct {
	OrganizationID string
	UserID         string
	DisplayName    string
	Description    string
	Provider       models.Provider
	CreatedAt      time.Time
}

type stateStore struct {
	mu      sync.Mutex
	pending map[string]pendingConnect
	now     func() time.Time
}

func newStateStore() *stateStore {
	return &stateStore{pending: make(map[string]pendingConnect), now: time.Now}
}

func (s *stateStore) put(p pendingConnect) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.pending {
		if now.Sub(v.CreatedAt) > stateTTL {
			delete(s.pending, k)
		}
	}
	p.CreatedAt = now
	s.pending[state] = p
	return state
}

// take consumes a state token. Each token is valid once.
func (s *stateStore) take(state string) (pendingConnect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[state]
	if !ok {
		return pendingConnect{}, false
	}
	delete(s.pending, state)
	if s.now().Sub(p.CreatedAt) > stateTTL {
		return pendingConnect{}, false
	}
	return p, true
}
