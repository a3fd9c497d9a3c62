package reduction

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role names the part a data folder plays in a reduction.
type Role string

// Folder roles.
const (
	RoleBias     Role = "bias"
	RoleDark     Role = "dark"
	RoleFlat     Role = "flat"
	RoleFlatOff  Role = "flatoff"
	RoleScience  Role = "science"
	RoleSky      Role = "sky"
	RoleStandard Role = "standard"
)

// Roles lists every role in processing order.
var Roles = []Role{RoleBias, RoleDark, RoleFlat, RoleFlatOff, RoleScience, RoleSky, RoleStandard}

var titleCaser = cases.Title(language.English)

// Label renders the role for console messages.
func (r Role) Label() string {
	if r == RoleFlatOff {
		return "Flat (off)"
	}
	return titleCaser.String(string(r))
}

// ParseRole returns the role named s.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}
