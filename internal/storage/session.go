package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"topwr_rag/internal/metrics"
)

// Session store backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and bounds the session store
type Config struct {
	Backend     string        `yaml:"backend" envconfig:"SESSION_BACKEND"`
	RedisURL    string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	TTL         time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
	MaxSessions int           `yaml:"max_sessions" envconfig:"SESSION_MAX_SESSIONS"`
	MaxHistory  int           `yaml:"max_history" envconfig:"SESSION_MAX_HISTORY"`
}

// DefaultConfig returns the default session store settings
func DefaultConfig() Config {
	return Config{
		Backend:     BackendMemory,
		TTL:         time.Hour,
		MaxSessions: 1000,
		MaxHistory:  10,
	}
}

// MemorySessionStore keeps session summaries in process memory. Idle sessions
// expire after ttl and the least recently updated session is evicted once
// more than maxSessions are held.
type MemorySessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*memorySession
	ttl         time.Duration
	maxSessions int
	maxHistory  int
	now         func() time.Time
}

type memorySession struct {
	history   []string
	updatedAt time.Time
}

// NewMemorySessionStore creates an in-memory store. Zero values disable the
// matching bound.
func NewMemorySessionStore(ttl time.Duration, maxSessions, maxHistory int) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:    make(map[string]*memorySession),
		ttl:         ttl,
		maxSessions: maxSessions,
		maxHistory:  maxHistory,
		now:         time.Now,
	}
}

// Get returns a copy of the session history; unknown or expired sessions are empty
func (m *MemorySessionStore) Get(ctx context.Context, sessionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return []string{}, nil
	}
	if m.expired(s) {
		delete(m.sessions, sessionID)
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
		return []string{}, nil
	}
	return slices.Clone(s.history), nil
}

// Put replaces the session history
func (m *MemorySessionStore) Put(ctx context.Context, sessionID string, history []string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[sessionID] = &memorySession{
		history:   trimHistory(history, m.maxHistory),
		updatedAt: m.now(),
	}
	m.evict()
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return nil
}

// Delete removes a session
func (m *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return nil
}

func (m *MemorySessionStore) expired(s *memorySession) bool {
	return m.ttl > 0 && m.now().Sub(s.updatedAt) > m.ttl
}

// evict drops expired sessions, then the oldest ones over the limit. Callers hold mu.
func (m *MemorySessionStore) evict() {
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
		}
	}
	for m.maxSessions > 0 && len(m.sessions) > m.maxSessions {
		var oldestID string
		var oldest time.Time
		for id, s := range m.sessions {
			if oldestID == "" || s.updatedAt.Before(oldest) {
				oldestID, oldest = id, s.updatedAt
			}
		}
		delete(m.sessions, oldestID)
	}
}

// trimHistory copies history keeping at most the newest limit entries
func trimHistory(history []string, limit int) []string {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]string, len(history))
	copy(out, history)
	return out
}
