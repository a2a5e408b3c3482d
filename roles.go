package authsync

// Role is one token from the closed role vocabulary.
type Role = string

const (
	// RolePlatformAdmin administers every tenant on the platform.
	RolePlatformAdmin Role = "platform-admin"
	// RoleOrgAdmin administers a single organization.
	RoleOrgAdmin Role = "org-admin"
	// RoleHRManager manages hiring workflows org-wide.
	RoleHRManager Role = "hr-manager"
	// RoleRecruiter owns requisitions and candidate pipelines.
	RoleRecruiter Role = "recruiter"
	// RoleHiringManager owns hiring decisions for assigned departments.
	RoleHiringManager Role = "hiring-manager"
	// RoleInterviewer participates in interviews for assigned departments.
	RoleInterviewer Role = "interviewer"
)

// rolePriority is the single total ordering used everywhere a "higher role"
// decision is made. Highest priority first.
var rolePriority = []Role{
	RolePlatformAdmin,
	RoleOrgAdmin,
	RoleHRManager,
	RoleRecruiter,
	RoleHiringManager,
	RoleInterviewer,
}

// departmentScoped marks the roles whose visibility is limited to assigned
// departments; only these trigger a department-assignment fetch.
var departmentScoped = map[Role]struct{}{
	RoleHiringManager: {},
	RoleInterviewer:   {},
}

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r Role) bool {
	for _, known := range rolePriority {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, IsValidRole(role)
}

// GetAllRoles returns the closed vocabulary in priority order
func GetAllRoles() []Role {
	out := make([]Role, len(rolePriority))
	copy(out, rolePriority)
	return out
}

// rolePriorityIndex returns the position of the role in the priority order,
// or -1 for unknown roles.
func rolePriorityIndex(r Role) int {
	for i, known := range rolePriority {
		if r == known {
			return i
		}
	}
	return -1
}

// RoleIsAtLeast checks if role meets the minimum required priority level
func RoleIsAtLeast(role, minRole Role) bool {
	current := rolePriorityIndex(role)
	min := rolePriorityIndex(minRole)
	if current < 0 || min < 0 {
		return false
	}
	return current <= min
}

// HasRole checks if the role set contains a specific role
func HasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsDepartmentScoped reports whether the role limits visibility to assigned
// departments.
func IsDepartmentScoped(r Role) bool {
	_, ok := departmentScoped[r]
	return ok
}

// HasDepartmentScopedRole reports whether any role in the set is
// department-scoped.
func HasDepartmentScopedRole(roles []Role) bool {
	for _, r := range roles {
		if IsDepartmentScoped(r) {
			return true
		}
	}
	return false
}

// DerivedState is the pure projection of a raw role set used for UI gating.
type DerivedState struct {
	PrimaryRole  Role
	IsOrgAdmin   bool
	IsSuperAdmin bool
}

// ComputeDerivedState maps a role set to its primary role and admin flags.
// The primary role is the first entry of the fixed priority list present in
// the set; it is empty when no known role is held.
func ComputeDerivedState(roles []Role) DerivedState {
	state := DerivedState{}
	for _, candidate := range rolePriority {
		if HasRole(roles, candidate) {
			state.PrimaryRole = candidate
			break
		}
	}
	state.IsSuperAdmin = HasRole(roles, RolePlatformAdmin)
	state.IsOrgAdmin = state.IsSuperAdmin || HasRole(roles, RoleOrgAdmin)
	return state
}

// NeedsOnboarding reports whether the user must complete organization
// onboarding: no organization on the profile and not a platform admin.
func NeedsOnboarding(profile *Profile, isSuperAdmin bool) bool {
	if isSuperAdmin {
		return false
	}
	if profile == nil {
		return false
	}
	return profile.OrgID == nil
}
