package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinika/medanswer/internal/circuitbreaker"
	"github.com/clinika/medanswer/internal/metrics"
)

// Options configures the session manager.
type Options struct {
	TTL        time.Duration // Session lifetime; zero means 24h
	MaxHistory int           // History cap per session; zero means 50
	MaxCached  int           // Local cache bound; zero means 10000
}

// Manager stores per-session conversation history in Redis. Concurrent
// requests for the same session serialize through LockSession; requests for
// different sessions need no coordination.
type Manager struct {
	client *circuitbreaker.RedisWrapper
	logger *zap.Logger
	opts   Options

	mu          sync.RWMutex
	localCache  map[string]*Session
	cacheAccess map[string]time.Time

	lockMu sync.Mutex
	locks  map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager connects to Redis and verifies the connection.
func NewManager(redisAddr, redisPassword string, db int, opts Options, logger *zap.Logger) (*Manager, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     redisPassword,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client := circuitbreaker.NewRedisWrapper(redisClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newManager(client, opts, logger), nil
}

// NewManagerWithClient wires an existing Redis client; used by tests.
func NewManagerWithClient(redisClient *redis.Client, opts Options, logger *zap.Logger) *Manager {
	return newManager(circuitbreaker.NewRedisWrapper(redisClient, logger), opts, logger)
}

func newManager(client *circuitbreaker.RedisWrapper, opts Options, logger *zap.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 50
	}
	if opts.MaxCached <= 0 {
		opts.MaxCached = 10000
	}
	return &Manager{
		client:      client,
		logger:      logger,
		opts:        opts,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		locks:       make(map[string]*sessionLock),
	}
}

// LockSession takes the exclusive lock for a session id and returns the
// unlock function. Callers doing read-modify-append must hold this lock for
// the whole exchange.
func (m *Manager) LockSession(sessionID string) func() {
	m.lockMu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		m.locks[sessionID] = l
	}
	l.refs++
	m.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.lockMu.Unlock()
	}
}

// GetOrCreate returns the session for id, creating it if absent or expired.
// An empty id gets a generated one.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID != "" {
		s, err := m.Get(ctx, sessionID)
		if err == nil {
			return s, nil
		}
		if err != ErrSessionNotFound && err != ErrSessionExpired {
			return nil, err
		}
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := time.Now()
	s := &Session{
		ID:        sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.opts.TTL),
		History:   make([]Turn, 0),
	}
	if err := m.save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.cachePut(s)
	metrics.SessionsCreated.Inc()
	m.logger.Info("Created session", zap.String("session_id", sessionID))
	return s, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	cached, ok := m.localCache[sessionID]
	m.mu.RUnlock()
	if ok {
		metrics.SessionCacheHits.Inc()
		if cached.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		m.mu.Lock()
		m.cacheAccess[sessionID] = time.Now()
		m.mu.Unlock()
		return cached, nil
	}
	metrics.SessionCacheMisses.Inc()

	data, err := m.client.Get(ctx, m.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.cachePut(&s)
	return &s, nil
}

// AppendTurns appends turns to a session's history, trimming the oldest
// entries past the configured cap. Ordering is never changed.
func (m *Manager) AppendTurns(ctx context.Context, sessionID string, turns ...Turn) (*Session, error) {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.History = append(s.History, turns...)
	if len(s.History) > m.opts.MaxHistory {
		s.History = s.History[len(s.History)-m.opts.MaxHistory:]
	}
	s.UpdatedAt = time.Now()

	if err := m.save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	m.cachePut(s)
	return s, nil
}

// Delete removes a session from Redis and the local cache.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, m.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, sessionID)
	delete(m.cacheAccess, sessionID)
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()
	return nil
}

// Close closes the Redis connection.
func (m *Manager) Close() error {
	return m.client.Close()
}

// RedisWrapper exposes the breaker-wrapped client for health checks.
func (m *Manager) RedisWrapper() *circuitbreaker.RedisWrapper {
	return m.client
}

func (m *Manager) key(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = m.opts.TTL
	}
	return m.client.Set(ctx, m.key(s.ID), data, ttl).Err()
}

func (m *Manager) cachePut(s *Session) {
	m.mu.Lock()
	m.localCache[s.ID] = s
	m.cacheAccess[s.ID] = time.Now()
	m.evictLocked()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()
}

// evictLocked drops the least recently accessed half of the cache when it
// grows past the bound. Callers hold m.mu.
func (m *Manager) evictLocked() {
	if len(m.localCache) <= m.opts.MaxCached {
		return
	}

	type accessEntry struct {
		id   string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(m.localCache))
	for id := range m.localCache {
		entries = append(entries, accessEntry{id: id, time: m.cacheAccess[id]})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	toRemove := m.opts.MaxCached / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(m.localCache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
		metrics.SessionCacheEvictions.Inc()
	}
}
