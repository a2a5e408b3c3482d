package authsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// HTTPDirectory is the default DirectoryClient: bearer-authenticated JSON
// reads against the platform's data endpoints. Every request inherits its
// caller's context, so the enrichment fetcher's per-call timeouts cancel the
// underlying request.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	logger  Logger
}

var _ DirectoryClient = (*HTTPDirectory)(nil)

// HTTPDirectoryOption customizes the directory client.
type HTTPDirectoryOption func(*HTTPDirectory)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) HTTPDirectoryOption {
	return func(d *HTTPDirectory) {
		if client != nil {
			d.client = client
		}
	}
}

// WithDirectoryLogger overrides the logger.
func WithDirectoryLogger(logger Logger) HTTPDirectoryOption {
	return func(d *HTTPDirectory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewHTTPDirectory builds a client rooted at baseURL.
func NewHTTPDirectory(baseURL string, opts ...HTTPDirectoryOption) *HTTPDirectory {
	d := &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *HTTPDirectory) FetchProfile(ctx context.Context, accessToken, userID string) (*Profile, error) {
	profile := &Profile{}
	err := d.getJSON(ctx, accessToken, fmt.Sprintf("/profiles/%s", userID), profile)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (d *HTTPDirectory) FetchRoles(ctx context.Context, accessToken, userID string) ([]Role, error) {
	var payload struct {
		Roles []string `json:"roles"`
	}
	if err := d.getJSON(ctx, accessToken, fmt.Sprintf("/profiles/%s/roles", userID), &payload); err != nil {
		return nil, err
	}

	roles := make([]Role, 0, len(payload.Roles))
	for _, raw := range payload.Roles {
		if role, ok := ParseRole(raw); ok {
			roles = append(roles, role)
		} else {
			d.logger.Debug("dropping unknown role token %q", raw)
		}
	}
	return roles, nil
}

func (d *HTTPDirectory) FetchOrganization(ctx context.Context, accessToken string, orgID uuid.UUID) (*Organization, error) {
	org := &Organization{}
	if err := d.getJSON(ctx, accessToken, fmt.Sprintf("/organizations/%s", orgID), org); err != nil {
		return nil, err
	}
	return org, nil
}

func (d *HTTPDirectory) FetchDepartments(ctx context.Context, accessToken, userID string) ([]string, error) {
	var payload struct {
		Departments []string `json:"departments"`
	}
	if err := d.getJSON(ctx, accessToken, fmt.Sprintf("/profiles/%s/departments", userID), &payload); err != nil {
		return nil, err
	}
	return payload.Departments, nil
}

func (d *HTTPDirectory) getJSON(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to build directory request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	res, err := d.client.Do(req)
	if err != nil {
		// Context timeouts pass through so callers can classify them.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, errors.CategoryInternal, "directory request failed")
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return errors.New("record not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound).
			WithMetadata(map[string]any{"path": path})
	case res.StatusCode >= 400:
		return errors.New("directory request rejected", errors.CategoryInternal).
			WithCode(res.StatusCode).
			WithMetadata(map[string]any{"path": path, "status": res.StatusCode})
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to decode directory response")
	}
	return nil
}
