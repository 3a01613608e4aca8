package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrincipal_Can(t *testing.T) {
	t.Parallel()

	tests := []struct {
		principal Principal
		perm      Permission
		want      bool
	}{
		{Principal{UserID: "s", Role: RoleStudent}, PermBorrowBooks, true},
		{Principal{UserID: "s", Role: RoleStudent}, PermManageBooks, false},
		{Principal{UserID: "s", Role: RoleStudent}, PermViewBorrowings, false},
		{Principal{UserID: "l", Role: RoleLibrarian}, PermManageBorrowings, true},
		{Principal{UserID: "l", Role: RoleLibrarian}, PermManageUsers, false},
		{Principal{UserID: "l", Role: RoleLibrarian}, PermBorrowBooks, false},
		{Principal{UserID: "a", Role: RoleAdmin}, PermManageUsers, true},
		{Principal{UserID: "a", Role: RoleAdmin}, PermBorrowBooks, true},
		{Principal{Role: RoleAdmin}, PermViewBooks, false},
		{Principal{UserID: "x", Role: "guest"}, PermViewBooks, false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.principal.Can(tc.perm), "%s/%s", tc.principal.Role, tc.perm)
	}
}

func TestPrincipal_CanActFor(t *testing.T) {
	t.Parallel()

	student := Principal{UserID: "s", Role: RoleStudent}
	assert.True(t, student.canActFor("s", PermBorrowBooks, PermManageBorrowings))
	assert.False(t, student.canActFor("t", PermBorrowBooks, PermManageBorrowings))

	staff := Principal{UserID: "l", Role: RoleLibrarian}
	assert.True(t, staff.canActFor("s", PermBorrowBooks, PermManageBorrowings))
	assert.True(t, staff.IsStaff())
	assert.False(t, student.IsStaff())
}
