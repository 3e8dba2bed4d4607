package core

import "fmt"

// Role is a closed enumeration of privilege tiers. The numeric value is the tier.
type Role int

const (
	RoleInvestor Role = iota + 1
	RoleIssuer
	RoleAdmin
	RoleSuperAdmin
)

// DefaultRole is assigned to identities created by wallet login or registration.
const DefaultRole = RoleInvestor

var roleNames = map[Role]string{
	RoleInvestor:   "investor",
	RoleIssuer:     "issuer",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Tier is the privilege level used for "at least as privileged as" checks.
func (r Role) Tier() int {
	if !r.Valid() {
		return 0
	}
	return int(r)
}

// ParseRole maps a role name to a Role.
func ParseRole(name string) (Role, error) {
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// Permission is a named capability independent of the tier order.
type Permission string

const (
	PermissionAll Permission = "*"

	PermAssetsView       Permission = "assets:view"
	PermAssetsInvest     Permission = "assets:invest"
	PermProfileEdit      Permission = "profile:edit"
	PermPoolsCreate      Permission = "pools:create"
	PermPoolsManage      Permission = "pools:manage"
	PermDividendsManage  Permission = "dividends:manage"
	PermKYCReview        Permission = "kyc:review"
	PermUsersView        Permission = "users:view"
	PermUsersManageRoles Permission = "users:manage_roles"
)

// PermissionSet is an explicit set of permissions granted to a role.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from a list.
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports membership; a wildcard entry grants everything.
func (s PermissionSet) Has(p Permission) bool {
	if _, ok := s[PermissionAll]; ok {
		return true
	}
	_, ok := s[p]
	return ok
}

// Policy maps roles to permission sets. Permissions are not inherited
// through the tier order; every role lists its set explicitly.
type Policy struct {
	permissions map[Role]PermissionSet
}

// NewPolicy creates a policy from an explicit table.
func NewPolicy(table map[Role]PermissionSet) *Policy {
	p := &Policy{permissions: make(map[Role]PermissionSet, len(table))}
	for role, set := range table {
		cp := make(PermissionSet, len(set))
		for perm := range set {
			cp[perm] = struct{}{}
		}
		p.permissions[role] = cp
	}
	return p
}

// DefaultPolicy is the production permission table.
func DefaultPolicy() *Policy {
	return NewPolicy(map[Role]PermissionSet{
		RoleInvestor: NewPermissionSet(
			PermAssetsView,
			PermAssetsInvest,
			PermProfileEdit,
		),
		RoleIssuer: NewPermissionSet(
			PermAssetsView,
			PermProfileEdit,
			PermPoolsCreate,
			PermPoolsManage,
			PermDividendsManage,
		),
		RoleAdmin: NewPermissionSet(
			PermAssetsView,
			PermAssetsInvest,
			PermProfileEdit,
			PermPoolsCreate,
			PermPoolsManage,
			PermDividendsManage,
			PermKYCReview,
			PermUsersView,
			PermUsersManageRoles,
		),
		RoleSuperAdmin: NewPermissionSet(PermissionAll),
	})
}

// HasRole reports whether the identity's tier is at least the required tier.
// An unresolved identity or unknown role never passes.
func (p *Policy) HasRole(identity *Identity, required Role) bool {
	if identity == nil || !identity.Role.Valid() || !required.Valid() {
		return false
	}
	return identity.Role.Tier() >= required.Tier()
}

// HasPermission reports whether the identity's role grants perm.
// An unresolved identity never passes.
func (p *Policy) HasPermission(identity *Identity, perm Permission) bool {
	if p == nil || identity == nil {
		return false
	}
	set, ok := p.permissions[identity.Role]
	if !ok {
		return false
	}
	return set.Has(perm)
}
