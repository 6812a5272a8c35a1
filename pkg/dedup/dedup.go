package dedup

import (
	"sync"
	"time"
)

// Suppressor rate-limits user-facing notifications: a failure that keeps
// recurring within the TTL produces one notification, not a cascade. Keys
// are arbitrary notification identities (e.g. "cycle-failed:12345").
type Suppressor struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
}

func New(ttl time.Duration, max int) *Suppressor {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Suppressor{ttl: ttl, max: max, seen: make(map[string]time.Time, max)}
}

// ShouldNotify reports whether this key has not fired within the TTL, and
// marks it as fired.
func (s *Suppressor) ShouldNotify(key string) bool {
	if key == "" {
		return true
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.seen[key]; ok && now.Before(exp) {
		return false
	}
	s.seen[key] = now.Add(s.ttl)
	if len(s.seen) > s.max {
		for k, v := range s.seen {
			if now.After(v) {
				delete(s.seen, k)
			}
			if len(s.seen) <= s.max {
				break
			}
		}
	}
	return true
}

// Reset forgets a key so the next occurrence notifies again; called when the
// underlying condition recovers.
func (s *Suppressor) Reset(key string) {
	s.mu.Lock()
	delete(s.seen, key)
	s.mu.Unlock()
}
