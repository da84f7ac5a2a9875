package identity

// RoleName is a role from the closed catalog.
type RoleName string

const (
	// RoleAdministrator is granted to the first account ever created
	RoleAdministrator RoleName = "Administrator"
	// RoleMember is granted to every account
	RoleMember RoleName = "Member"
)

// firstAdministratorSlot is the role_claims key that can be taken once.
const firstAdministratorSlot = "first-administrator"

// RoleCatalog lists every role the system knows about.
func RoleCatalog() []RoleName {
	return []RoleName{RoleAdministrator, RoleMember}
}

// IsValid reports whether r is part of the catalog.
func (r RoleName) IsValid() bool {
	switch r {
	case RoleAdministrator, RoleMember:
		return true
	default:
		return false
	}
}

func (r RoleName) String() string {
	return string(r)
}

// HasRole reports whether roles contains role.
func HasRole(roles []string, role RoleName) bool {
	for _, r := range roles {
		if r == string(role) {
			return true
		}
	}
	return false
}
