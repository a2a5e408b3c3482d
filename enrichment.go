package authsync

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// Enrichment is everything needed to turn a bare session into a fully
// contextualized identity. ProfileError is the only user-visible failure;
// every other field degrades to its zero value on fetch failure, recorded in
// Degraded for observability.
type Enrichment struct {
	Profile      *Profile
	ProfileError *errors.Error
	Roles        []Role
	Organization *Organization
	Departments  []string
	Degraded     []string
}

// EnrichmentFetcher fetches profile, roles, organization, and department
// assignments with bounded, independently cancellable parallel requests.
type EnrichmentFetcher struct {
	directory   DirectoryClient
	cfg         Config
	logger      Logger
	phoneRegion string
}

// EnrichmentOption customizes fetcher construction.
type EnrichmentOption func(*EnrichmentFetcher)

// WithEnrichmentLogger overrides the logger.
func WithEnrichmentLogger(logger Logger) EnrichmentOption {
	return func(f *EnrichmentFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithPhoneRegion sets the default region used to normalize profile phone
// numbers that lack a country prefix.
func WithPhoneRegion(region string) EnrichmentOption {
	return func(f *EnrichmentFetcher) {
		if region != "" {
			f.phoneRegion = region
		}
	}
}

// NewEnrichmentFetcher wires the fetcher to the directory endpoints.
func NewEnrichmentFetcher(directory DirectoryClient, cfg Config, opts ...EnrichmentOption) *EnrichmentFetcher {
	f := &EnrichmentFetcher{
		directory:   directory,
		cfg:         cfg,
		logger:      defLogger{},
		phoneRegion: "US",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Enrich fetches profile and roles in parallel, then conditionally fans out
// to organization and department lookups. Partial success is preserved: a
// profile failure is recorded but never discards a successful roles result,
// and roles/org/department failures degrade silently.
func (f *EnrichmentFetcher) Enrich(ctx context.Context, session *Session) *Enrichment {
	result := &Enrichment{Roles: []Role{}, Departments: []string{}}
	token := session.AccessToken
	userID := session.User.ID

	var (
		wg         sync.WaitGroup
		profile    *Profile
		profileErr error
		roles      []Role
		rolesErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		cctx, cancel := f.boundedContext(ctx)
		defer cancel()
		profile, profileErr = f.directory.FetchProfile(cctx, token, userID)
	}()
	go func() {
		defer wg.Done()
		cctx, cancel := f.boundedContext(ctx)
		defer cancel()
		roles, rolesErr = f.directory.FetchRoles(cctx, token, userID)
	}()
	wg.Wait()

	if profileErr != nil {
		result.ProfileError = f.classifyProfileError(profileErr)
		f.logger.Warn("profile fetch failed for user %s: %v", userID, profileErr)
	} else if profile == nil {
		result.ProfileError = ErrProfileNotFound
	} else {
		result.Profile = profile
		f.normalizePhone(profile)
	}

	if rolesErr != nil {
		result.Degraded = append(result.Degraded, "roles")
		f.logger.Warn("roles fetch degraded to empty set for user %s: %v", userID, rolesErr)
	} else if roles != nil {
		result.Roles = roles
	}

	f.fetchSecondary(ctx, token, userID, result)

	return result
}

// fetchSecondary runs the organization and department lookups, each gated on
// the primary results and each independently bounded and degradable.
func (f *EnrichmentFetcher) fetchSecondary(ctx context.Context, token, userID string, result *Enrichment) {
	wantOrg := result.Profile != nil && result.Profile.OrgID != nil
	wantDepartments := HasDepartmentScopedRole(result.Roles)

	if !wantOrg && !wantDepartments {
		return
	}

	var (
		wg          sync.WaitGroup
		org         *Organization
		orgErr      error
		departments []string
		deptErr     error
	)

	if wantOrg {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := f.boundedContext(ctx)
			defer cancel()
			org, orgErr = f.directory.FetchOrganization(cctx, token, *result.Profile.OrgID)
		}()
	}
	if wantDepartments {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := f.boundedContext(ctx)
			defer cancel()
			departments, deptErr = f.directory.FetchDepartments(cctx, token, userID)
		}()
	}
	wg.Wait()

	if wantOrg {
		if orgErr != nil {
			result.Degraded = append(result.Degraded, "organization")
			f.logger.Warn("organization fetch degraded for user %s: %v", userID, orgErr)
		} else {
			result.Organization = org
		}
	}
	if wantDepartments {
		if deptErr != nil {
			result.Degraded = append(result.Degraded, "departments")
			f.logger.Warn("departments fetch degraded for user %s: %v", userID, deptErr)
		} else if departments != nil {
			result.Departments = departments
		}
	}
}

func (f *EnrichmentFetcher) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.cfg.GetEnrichTimeout())
}

// classifyProfileError maps a raw fetch failure onto the error taxonomy:
// missing row, timeout, or generic fetch failure.
func (f *EnrichmentFetcher) classifyProfileError(err error) *errors.Error {
	if IsNotFoundError(err) {
		return ErrProfileNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, ErrNetwork.Category, ErrNetwork.Message).
			WithTextCode(ErrNetwork.TextCode).
			WithCode(errors.CodeInternal)
	}
	return errors.Wrap(err, ErrProfileFetch.Category, ErrProfileFetch.Message).
		WithTextCode(ErrProfileFetch.TextCode).
		WithCode(errors.CodeInternal)
}

// normalizePhone rewrites the profile phone into E.164 when it parses;
// unparseable numbers are left untouched.
func (f *EnrichmentFetcher) normalizePhone(profile *Profile) {
	if profile.Phone == "" {
		return
	}
	parsed, err := phonenumbers.Parse(profile.Phone, f.phoneRegion)
	if err != nil {
		f.logger.Debug("leaving unparseable phone as-is for profile %s", profile.ID)
		return
	}
	profile.Phone = phonenumbers.Format(parsed, phonenumbers.E164)
}
