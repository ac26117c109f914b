package api

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/dialogue"
)

// SessionRegistry holds live dialogue sessions. Idle sessions expire after
// the TTL and the least recently used one is dropped when the registry is full.
type SessionRegistry struct {
	sessions   *expirable.LRU[string, *dialogue.Session]
	newSession func() *dialogue.Session
}

func NewSessionRegistry(size int, ttl time.Duration, newSession func() *dialogue.Session) *SessionRegistry {
	if size <= 0 {
		size = 1
	}
	onEvict := func(id string, s *dialogue.Session) {
		log.WithFields(log.Fields{"session_id": id, "state": s.View().State}).Debug("Dialogue session evicted")
	}
	return &SessionRegistry{
		sessions:   expirable.NewLRU[string, *dialogue.Session](size, onEvict, ttl),
		newSession: newSession,
	}
}

func (r *SessionRegistry) Create() *dialogue.Session {
	s := r.newSession()
	r.sessions.Add(s.ID(), s)
	return s
}

// Get refreshes the session's position in the LRU.
func (r *SessionRegistry) Get(id string) (*dialogue.Session, bool) {
	return r.sessions.Get(id)
}

func (r *SessionRegistry) Len() int {
	return r.sessions.Len()
}
