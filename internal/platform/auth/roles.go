package auth

import "sort"

// Role names. Anything else is an unknown role and is always denied.
const (
	RoleSuperAdmin = "SuperAdmin"
	RoleClinic     = "Clinic"
	RoleDoctor     = "Doctor"
)

// Capability strings, "resource:action".
const (
	PermOrganizationsCreate = "organizations:create"
	PermOrganizationsRead   = "organizations:read"
	PermOrganizationsUpdate = "organizations:update"
	PermOrganizationsDelete = "organizations:delete"
	PermContractsManage     = "contracts:manage"
	PermOrganizationRead    = "organization:read"
	PermRenewalsRequest     = "renewals:request"
	PermRenewalsRead        = "renewals:read"
	PermRenewalsDecide      = "renewals:decide"

	PermUsersCreate = "users:create"
	PermUsersRead   = "users:read"
	PermUsersUpdate = "users:update"

	PermPatientsCreate = "patients:create"
	PermPatientsRead   = "patients:read"
	PermPatientsUpdate = "patients:update"
	PermPatientsDelete = "patients:delete"

	PermDoctorsCreate = "doctors:create"
	PermDoctorsRead   = "doctors:read"
	PermDoctorsUpdate = "doctors:update"
	PermDoctorsDelete = "doctors:delete"

	PermAssessmentCreate = "assessmentRequest:create"
	PermAssessmentRead   = "assessmentRequest:read"
	PermAssessmentUpdate = "assessmentRequest:update"
	PermAssessmentDelete = "assessmentRequest:delete"

	PermAuditRead = "audit:read"
)

var rolePermissions = map[string][]string{
	RoleSuperAdmin: {
		PermOrganizationsCreate, PermOrganizationsRead, PermOrganizationsUpdate, PermOrganizationsDelete,
		PermContractsManage, PermRenewalsRead, PermRenewalsDecide,
		PermUsersCreate, PermUsersRead, PermUsersUpdate,
		PermPatientsRead, PermDoctorsRead, PermAssessmentRead,
		PermAuditRead,
	},
	RoleClinic: {
		PermPatientsCreate, PermPatientsRead, PermPatientsUpdate, PermPatientsDelete,
		PermDoctorsCreate, PermDoctorsRead, PermDoctorsUpdate, PermDoctorsDelete,
		PermAssessmentCreate, PermAssessmentRead, PermAssessmentUpdate, PermAssessmentDelete,
		PermOrganizationRead, PermRenewalsRequest, PermRenewalsRead,
		PermUsersCreate, PermUsersRead, PermUsersUpdate,
		PermAuditRead,
	},
	RoleDoctor: {
		PermAssessmentRead,
		PermAuditRead,
	},
}

// permissionSets is rolePermissions indexed for membership tests.
var permissionSets = func() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(rolePermissions))
	for role, perms := range rolePermissions {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		out[role] = set
	}
	return out
}()

// IsKnownRole reports whether role is one of the three defined roles.
func IsKnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// Roles returns the defined role names, sorted.
func Roles() []string {
	out := make([]string, 0, len(rolePermissions))
	for r := range rolePermissions {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Permissions returns a copy of the capability list for role. Unknown roles
// have none.
func Permissions(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether role grants perm.
func HasPermission(role, perm string) bool {
	set, ok := permissionSets[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// HasAnyPermission reports whether role grants at least one of perms.
func HasAnyPermission(role string, perms ...string) bool {
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role grants every one of perms.
func HasAllPermissions(role string, perms ...string) bool {
	if !IsKnownRole(role) {
		return false
	}
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}
