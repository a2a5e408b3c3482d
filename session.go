package authsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the claim set the identity provider encodes in access
// tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Session is the bearer credential pair plus the identified user. Ephemeral;
// superseded on every refresh or sign-in event.
type Session struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	User         User      `json:"user,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// UserUUID parses the session user ID as a UUID.
func (s *Session) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.User.ID)
}

func (s Session) String() string {
	return fmt.Sprintf("user=%s exp=%s", s.User.ID, s.ExpiresAt.Format(time.RFC1123))
}

// NewSessionFromTokens reconstructs a Session from a bearer token pair by
// decoding the access token's claims without signature verification. Used
// when a storage mirror holds only tokens.
func NewSessionFromTokens(accessToken, refreshToken string) (*Session, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, ErrSessionInvalid.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	session := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: User{
			ID:    claims.Subject,
			Email: claims.Email,
		},
	}

	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	return session, nil
}

// decodeStoredSession parses a storage blob back into a Session. Malformed
// blobs yield an error so callers can treat the entry as absent.
func decodeStoredSession(blob string) (*Session, error) {
	session := &Session{}
	if err := json.Unmarshal([]byte(blob), session); err != nil {
		return nil, ErrSessionInvalid.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}
	if session.AccessToken == "" {
		return nil, ErrSessionInvalid.WithMetadata(map[string]any{
			"reason": "stored session has no access token",
		})
	}
	return session, nil
}

// encodeStoredSession serializes a Session for a storage mirror.
func encodeStoredSession(session *Session) (string, error) {
	if session == nil {
		return "", ErrSessionInvalid.WithMetadata(map[string]any{
			"reason": "session is nil",
		})
	}
	blob, err := json.Marshal(session)
	if err != nil {
		return "", ErrSessionInvalid.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}
	return string(blob), nil
}

// WritePendingSession records the short-lived handoff blob that bridges the
// gap between interactive sign-in and the provider's own persistence. The
// resolver consumes it as its second source.
func WritePendingSession(ctx context.Context, store KeyValueStore, cfg Config, session *Session) error {
	blob, err := encodeStoredSession(session)
	if err != nil {
		return err
	}
	return store.Set(ctx, cfg.GetPendingSessionKey(), blob)
}
