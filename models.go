package authsync

import (
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// User is the identity carried inside a Session.
type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
}

// ResolvedFrom tags which source produced a resolved session.
type ResolvedFrom string

const (
	// SourceProvided is a session supplied directly by an identity event.
	SourceProvided ResolvedFrom = "provided"
	// SourcePending is the short-lived handoff record written after
	// interactive sign-in, before the provider's own persistence completes.
	SourcePending ResolvedFrom = "pending"
	// SourceMirror is the provider's persisted record in platform storage.
	SourceMirror ResolvedFrom = "mirror"
	// SourceAuthoritative is the provider's own session accessor.
	SourceAuthoritative ResolvedFrom = "authoritative"
)

// Profile is the user's directory record. It is fetched, never mutated here;
// writes happen elsewhere and are picked up on the next cycle.
type Profile struct {
	ID        uuid.UUID  `json:"id,omitempty"`
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Phone     string     `json:"phone_number,omitempty"`
	OrgID     *uuid.UUID `json:"org_id,omitempty"`
}

// Organization is the tenant record associated to a profile via OrgID.
type Organization struct {
	ID          uuid.UUID         `json:"id,omitempty"`
	Name        string            `json:"name,omitempty"`
	Slug        string            `json:"slug,omitempty"`
	LogoURL     string            `json:"logo_url,omitempty"`
	BrandColors map[string]string `json:"brand_colors,omitempty"`
}

// AuthSnapshot is the single source of truth handed to consumers. It is
// replaced wholesale on every completed cycle, never field-mutated in place,
// so readers never observe a torn intermediate state.
type AuthSnapshot struct {
	Version         uint64
	IsLoading       bool
	IsAuthenticated bool
	Error           *errors.Error
	User            *User
	Session         *Session
	Profile         *Profile
	Organization    *Organization
	Roles           []Role
	PrimaryRole     Role
	Departments     []string
	IsOrgAdmin      bool
	IsSuperAdmin    bool
	NeedsOnboarding bool
}
