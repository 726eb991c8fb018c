// Package session keeps the per-browser dataset in memory. Nothing is written
// to disk; an expired session falls back to the default dataset.
package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"gradeboard/internal/cache"
	"gradeboard/internal/core"
)

// CookieName carries the session ID.
const CookieName = "gradeboard_session"

// Session is the mutable context of one browser session.
type Session struct {
	ID string
	// Table is the last successfully uploaded table. It is only meaningful
	// when Uploaded is true.
	Table     core.Table
	Uploaded  bool
	Source    string
	LoadedAt  time.Time
	LastError string
}

// Store holds sessions in a sliding TTL LRU cache.
type Store struct {
	cache  *cache.LRUCache[Session]
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewStore keeps at most maxSessions sessions for ttl since last use.
func NewStore(maxSessions int, ttl time.Duration) *Store {
	return &Store{
		cache: cache.NewSlidingCache[Session](maxSessions, ttl),
		ttl:   ttl,
		now:   time.Now,
	}
}

// SetSecureCookies marks the session cookie Secure, for TLS deployments.
func (s *Store) SetSecureCookies(secure bool) {
	s.secure = secure
}

// Cleaner exposes the underlying cache to a cache.Manager.
func (s *Store) Cleaner() cache.Cleaner {
	return s.cache
}

// Len is the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Size()
}

// Get returns the session with id.
func (s *Store) Get(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	return s.cache.Get(id)
}

// New starts an empty session on the default dataset.
func (s *Store) New() Session {
	sess := Session{ID: uuid.NewString()}
	s.cache.Set(sess.ID, sess)
	return sess
}

// Replace installs t as the session table and clears the last error.
func (s *Store) Replace(id string, t core.Table, source string) Session {
	now := s.now()
	return s.cache.Update(id, func(cur Session, _ bool) Session {
		cur.ID = id
		cur.Table = t
		cur.Uploaded = true
		cur.Source = source
		cur.LoadedAt = now
		cur.LastError = ""
		return cur
	})
}

// Fail records err and keeps the previous table.
func (s *Store) Fail(id string, err error) Session {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return s.cache.Update(id, func(cur Session, _ bool) Session {
		cur.ID = id
		cur.LastError = msg
		return cur
	})
}

// Reset returns the session to the default dataset.
func (s *Store) Reset(id string) Session {
	return s.cache.Update(id, func(_ Session, _ bool) Session {
		return Session{ID: id}
	})
}

// FromRequest looks up the session named by the request cookie.
func (s *Store) FromRequest(r *http.Request) (Session, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Session{}, false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return Session{}, false
	}
	return s.Get(c.Value)
}

// Ensure returns the request's session, starting one and setting the cookie
// when it is missing or expired.
func (s *Store) Ensure(w http.ResponseWriter, r *http.Request) Session {
	if sess, ok := s.FromRequest(r); ok {
		return sess
	}
	sess := s.New()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}
