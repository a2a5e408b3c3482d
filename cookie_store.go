package authsync

import (
	"context"
	"sync"
	"time"
)

type cookieKey struct {
	name   string
	domain string
	path   string
}

// MemoryCookieStore models the cookie-like session mirror with domain/path
// scoping. Hosts embedding a real browser or HTTP stack supply their own
// CookieStore; this one serves native hosts and tests.
type MemoryCookieStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	cookies map[cookieKey]Cookie
}

var _ CookieStore = (*MemoryCookieStore)(nil)

// NewMemoryCookieStore returns an empty cookie store.
func NewMemoryCookieStore() *MemoryCookieStore {
	return &MemoryCookieStore{
		now:     time.Now,
		cookies: map[cookieKey]Cookie{},
	}
}

// List returns all unexpired cookies.
func (s *MemoryCookieStore) List(_ context.Context) ([]Cookie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]Cookie, 0, len(s.cookies))
	for _, cookie := range s.cookies {
		if !cookie.Expires.IsZero() && cookie.Expires.Before(now) {
			continue
		}
		out = append(out, cookie)
	}
	return out, nil
}

func (s *MemoryCookieStore) Set(_ context.Context, cookie Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies[cookieKey{cookie.Name, cookie.Domain, cookie.Path}] = cookie
	return nil
}

func (s *MemoryCookieStore) Delete(_ context.Context, name, domain, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cookies, cookieKey{name, domain, path})
	return nil
}
