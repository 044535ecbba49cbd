package governance

import (
	"hash/fnv"
	"sync"
	"time"
)

const sessionShardCount = 32

// session holds the consumption state for one chat session. All fields are
// guarded by mu; the sliding-window timestamps are kept sorted ascending and
// trimmed to the rate window on every admission check.
type session struct {
	mu         sync.Mutex
	createdAt  time.Time
	lastSeen   time.Time
	timestamps []time.Time
	dayStart   time.Time
	tokensUsed int64
}

type sessionShard struct {
	mu        sync.Mutex
	sessions  map[string]*session
	lastSweep time.Time
}

// SessionStore is a sharded map of session consumption state. Shards are
// selected by FNV hash of the session id so concurrent requests for
// unrelated sessions never touch the same lock.
type SessionStore struct {
	shards      [sessionShardCount]*sessionShard
	idleTimeout time.Duration
	sweepEvery  time.Duration
	now         func() time.Time
}

// NewSessionStore creates a store that garbage-collects sessions idle longer
// than idleTimeout. Sweeping is opportunistic: each shard is swept at most
// once per sweep interval, during regular access.
func NewSessionStore(idleTimeout time.Duration) *SessionStore {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	s := &SessionStore{
		idleTimeout: idleTimeout,
		sweepEvery:  idleTimeout / 4,
		now:         time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &sessionShard{sessions: make(map[string]*session)}
	}
	return s
}

func (s *SessionStore) shardFor(sessionID string) *sessionShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return s.shards[h.Sum32()%sessionShardCount]
}

// acquire returns the session for the given id, creating it on first use,
// with its mutex held. The caller must release it.
func (s *SessionStore) acquire(sessionID string) *session {
	now := s.now()
	shard := s.shardFor(sessionID)

	shard.mu.Lock()
	if now.Sub(shard.lastSweep) >= s.sweepEvery {
		shard.lastSweep = now
		for id, sess := range shard.sessions {
			if now.Sub(sess.lastSeen) > s.idleTimeout {
				delete(shard.sessions, id)
			}
		}
	}

	sess, ok := shard.sessions[sessionID]
	if !ok {
		sess = &session{
			createdAt: now,
			dayStart:  dayStartUTC(now),
		}
		shard.sessions[sessionID] = sess
	}
	// lastSeen is read by the sweep above, so it is refreshed under the
	// shard lock rather than the session lock.
	sess.lastSeen = now
	shard.mu.Unlock()

	sess.mu.Lock()
	return sess
}

// Len reports the number of live sessions across all shards.
func (s *SessionStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.sessions)
		shard.mu.Unlock()
	}
	return total
}

func dayStartUTC(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
