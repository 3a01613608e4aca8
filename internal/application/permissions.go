package application

// Permission names a capability checked before a service acts.
type Permission string

const (
	PermViewBooks         Permission = "view_books"
	PermManageBooks       Permission = "manage_books"
	PermManageCategories  Permission = "manage_categories"
	PermBorrowBooks       Permission = "borrow_books"
	PermReturnBooks       Permission = "return_books"
	PermViewOwnBorrowings Permission = "view_own_borrowings"
	PermViewBorrowings    Permission = "view_borrowings"
	PermManageBorrowings  Permission = "manage_borrowings"
	PermViewOwnProfile    Permission = "view_own_profile"
	PermUpdateOwnProfile  Permission = "update_own_profile"
	PermViewUsers         Permission = "view_users"
	PermManageUsers       Permission = "manage_users"
	PermViewReports       Permission = "view_reports"
)

var rolePermissions = map[Role]map[Permission]bool{
	RoleStudent: {
		PermViewBooks:         true,
		PermBorrowBooks:       true,
		PermViewOwnBorrowings: true,
		PermReturnBooks:       true,
		PermViewOwnProfile:    true,
		PermUpdateOwnProfile:  true,
	},
	RoleLibrarian: {
		PermViewBooks:        true,
		PermManageBooks:      true,
		PermViewBorrowings:   true,
		PermManageBorrowings: true,
		PermViewUsers:        true,
		PermViewReports:      true,
		PermManageCategories: true,
	},
}

// Can reports whether the principal holds perm. Administrators hold every permission.
func (p Principal) Can(perm Permission) bool {
	if p.UserID == "" {
		return false
	}
	if p.Role == RoleAdmin {
		return true
	}
	return rolePermissions[p.Role][perm]
}

// canActFor reports whether p may act on records owned by userID, using own when
// acting on itself and others when acting for someone else.
func (p Principal) canActFor(userID string, own, others Permission) bool {
	if userID == p.UserID && p.Can(own) {
		return true
	}
	return p.Can(others)
}
