package store

import "strings"

// UserContext identifies the caller on whose behalf a query runs. Row-level
// security policies read it from the transaction-local settings
// app.current_user_id and app.current_user_roles.
type UserContext struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles,omitempty"`
}

// Valid reports whether a user id is present.
func (u UserContext) Valid() bool {
	return strings.TrimSpace(u.UserID) != ""
}

// RolesCSV is the roles setting value as seen by RLS policies.
func (u UserContext) RolesCSV() string {
	return strings.Join(u.Roles, ",")
}

// ParseRoles splits a comma separated role list, dropping blanks.
func ParseRoles(raw string) []string {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
