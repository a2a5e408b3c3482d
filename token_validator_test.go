package authsync_test

import (
	"testing"
	"time"

	authsync "github.com/goliatone/go-authsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenValidator_IsExpired(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tests := []struct {
		name    string
		expiry  time.Time
		buffer  time.Duration
		expired bool
	}{
		{
			name:    "expiry well in the future",
			expiry:  now.Add(time.Hour),
			buffer:  30 * time.Second,
			expired: false,
		},
		{
			name:    "expiry in the past",
			expiry:  now.Add(-time.Minute),
			buffer:  30 * time.Second,
			expired: true,
		},
		{
			name:    "expiry inside the safety buffer",
			expiry:  now.Add(20 * time.Second),
			buffer:  30 * time.Second,
			expired: true,
		},
		{
			name:    "expiry just outside the safety buffer",
			expiry:  now.Add(31 * time.Second),
			buffer:  30 * time.Second,
			expired: false,
		},
		{
			name:    "expiry exactly at the buffer boundary",
			expiry:  now.Add(30 * time.Second),
			buffer:  30 * time.Second,
			expired: true,
		},
		{
			name:    "zero buffer uses the raw expiry",
			expiry:  now.Add(time.Second),
			buffer:  0,
			expired: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := authsync.NewTokenValidator(
				authsync.WithExpiryBuffer(tt.buffer),
				authsync.WithValidatorClock(clock),
			)
			token := signedToken(t, "user-1", tt.expiry)
			assert.Equal(t, tt.expired, validator.IsExpired(token))
		})
	}
}

func TestTokenValidator_MalformedTokensAreExpired(t *testing.T) {
	validator := authsync.NewTokenValidator()

	assert.True(t, validator.IsExpired(""))
	assert.True(t, validator.IsExpired("not-a-jwt"))
	assert.True(t, validator.IsExpired("aaa.bbb.ccc"))
}

func TestTokenValidator_ExpiresAt(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, "user-1", expiry)

	validator := authsync.NewTokenValidator()
	got, err := validator.ExpiresAt(token)
	require.NoError(t, err)
	assert.True(t, got.Equal(expiry), "expected %s, got %s", expiry, got)

	_, err = validator.ExpiresAt("garbage")
	require.Error(t, err)
	assert.Equal(t, "SESSION_ERROR", authsync.TextCodeOf(err))
}

func TestIsTokenExpired_Convenience(t *testing.T) {
	token := signedToken(t, "user-1", time.Now().Add(time.Hour))
	assert.False(t, authsync.IsTokenExpired(token, 30*time.Second))

	stale := signedToken(t, "user-1", time.Now().Add(-time.Hour))
	assert.True(t, authsync.IsTokenExpired(stale, 30*time.Second))
}
