// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"

	"github.com/dmitrijs2005/voicemfa/internal/common"
)

// Role is the closed set of identity roles. Call sites ask a Role what it
// may do rather than comparing names.
type Role uint8

const (
	RoleEmployee Role = iota + 1
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleEmployee:
		return "employee"
	case RoleAdmin:
		return "admin"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r == RoleEmployee || r == RoleAdmin
}

// CanManageTasks reports whether r may assign tasks to other identities.
func (r Role) CanManageTasks() bool { return r == RoleAdmin }

// CanViewAttendance reports whether r may read other identities' attendance.
func (r Role) CanViewAttendance() bool { return r == RoleAdmin }

// ParseRole maps the stored name back to a Role. An empty name defaults to
// RoleEmployee.
func ParseRole(s string) (Role, error) {
	switch s {
	case "", "employee":
		return RoleEmployee, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, common.Validationf("unknown role %q", s)
}
