// Package roles answers "can user U perform operation O?" from an immutable
// role table supplied at construction.
package roles

import (
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Permission tokens understood by the built-in operations.
const (
	PermExecute   = "execute"
	PermExplain   = "explain"
	PermViewRoles = "view_roles"
)

// Built-in role names.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultRole is applied to users with no assignment.
const DefaultRole = RoleUser

// Table holds role→permissions and user→role mappings. It is never mutated
// after NewTable returns. Role and user names are case-insensitive and stored
// lower-cased; permission tokens are matched exactly.
type Table struct {
	defaultRole string
	permissions map[string]sets.Set[string]
	assignments map[string]string
}

// NewTable copies the given mappings into a new Table. An empty defaultRole
// falls back to DefaultRole.
func NewTable(defaultRole string, permissions map[string][]string, assignments map[string]string) *Table {
	defaultRole = normalize(defaultRole)
	if defaultRole == "" {
		defaultRole = DefaultRole
	}
	t := &Table{
		defaultRole: defaultRole,
		permissions: make(map[string]sets.Set[string], len(permissions)),
		assignments: make(map[string]string, len(assignments)),
	}
	for role, tokens := range permissions {
		role = normalize(role)
		if role == "" {
			continue
		}
		set, ok := t.permissions[role]
		if !ok {
			set = sets.New[string]()
		}
		for _, tok := range tokens {
			if tok = strings.TrimSpace(tok); tok != "" {
				set.Insert(tok)
			}
		}
		t.permissions[role] = set
	}
	for user, role := range assignments {
		user = normalize(user)
		if user == "" {
			continue
		}
		t.assignments[user] = normalize(role)
	}
	return t
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultTable returns the built-in table: admins may execute, explain and
// view roles, plain users may only execute. alice is an admin and bob a user.
func DefaultTable() *Table {
	return NewTable(DefaultRole, DefaultPermissions(), DefaultAssignments())
}

// DefaultAssignments returns a fresh copy of the built-in user assignments.
func DefaultAssignments() map[string]string {
	return map[string]string{
		"alice": RoleAdmin,
		"bob":   RoleUser,
	}
}

// DefaultPermissions returns a fresh copy of the built-in role permissions.
func DefaultPermissions() map[string][]string {
	return map[string][]string{
		RoleAdmin: {PermExecute, PermExplain, PermViewRoles},
		RoleUser:  {PermExecute},
	}
}

// Store resolves roles and permissions against a Table.
type Store struct {
	table *Table
}

func NewStore(table *Table) *Store {
	if table == nil {
		table = NewTable("", nil, nil)
	}
	return &Store{table: table}
}

// Role returns the role assigned to user, or the table's default role.
func (s *Store) Role(user string) string {
	if role, ok := s.table.assignments[normalize(user)]; ok && role != "" {
		return role
	}
	return s.table.defaultRole
}

// Permissions returns the sorted permission tokens of role. Unknown roles
// have no permissions.
func (s *Store) Permissions(role string) []string {
	set, ok := s.table.permissions[normalize(role)]
	if !ok {
		return []string{}
	}
	out := set.UnsortedList()
	sort.Strings(out)
	return out
}

// HasPermission reports whether user's role grants permission. Unknown users,
// roles and permissions all yield false.
func (s *Store) HasPermission(user, permission string) bool {
	set, ok := s.table.permissions[s.Role(user)]
	if !ok {
		return false
	}
	return set.Has(permission)
}
