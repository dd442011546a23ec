// Package lease provides per-search execution leases so a search is executed
// by at most one worker at a time.
//
// Acquire returns sentinel.ErrConflict while another holder's lease is live.
// Leases expire after their TTL so a crashed holder never blocks a search forever.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"recon/pkg/platform/sentinel"
)

const DefaultTTL = 5 * time.Minute

type entry struct {
	token   string
	expires time.Time
}

// Memory is a process-local lease table.
type Memory struct {
	mu   sync.Mutex
	held map[string]entry
	ttl  time.Duration
	now  func() time.Time
}

type MemoryOption func(*Memory)

// WithClock overrides the expiry time source. Used in tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{held: make(map[string]entry), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Acquire(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if current, ok := m.held[key]; ok && now.Before(current.expires) {
		return "", sentinel.ErrConflict
	}
	token := uuid.NewString()
	m.held[key] = entry{token: token, expires: now.Add(m.ttl)}
	return token, nil
}

// Release drops the lease only if token still owns it.
func (m *Memory) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.held[key]; ok && current.token == token {
		delete(m.held, key)
	}
	return nil
}
