package authsync

import (
	"github.com/goliatone/hashid/pkg/hashid"
)

// HasUserUUID reports whether Session.UserUUID will succeed.
func HasUserUUID(session *Session) bool {
	if session == nil {
		return false
	}
	_, err := session.UserUUID()
	return err == nil
}

// MirrorKeyForUser derives the deterministic persistent-store key for a
// user's mirror record. Hosts writing mirrors use this so the resolver's
// prefix scan finds them.
func MirrorKeyForUser(cfg Config, userID string) string {
	prefix := cfg.GetMirrorKeyPrefix()
	if id, err := hashid.NewUUID(userID); err == nil {
		return prefix + id.String()
	}
	return prefix + userID
}
