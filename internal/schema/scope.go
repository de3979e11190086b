package schema

import "github.com/chatquery/chatquery/internal/domain"

// Scope maps entity names to the operations a role may perform on them.
type Scope map[string]map[domain.OperationKind]bool

// Allows reports whether the scope permits kind on entity.
func (s Scope) Allows(entity string, kind domain.OperationKind) bool {
	ops, ok := s[entity]
	if !ok {
		return false
	}
	return ops[kind]
}

var roleScopes = map[domain.Role]Scope{
	domain.RoleAdmin: {
		"employees": {domain.OpCreate: true, domain.OpRead: true, domain.OpUpdate: true, domain.OpDelete: true},
		"products":  {domain.OpCreate: true, domain.OpRead: true, domain.OpUpdate: true, domain.OpDelete: true},
	},
	domain.RoleGeneralUser: {
		"employees": {domain.OpRead: true},
		"products":  {domain.OpCreate: true, domain.OpRead: true, domain.OpUpdate: true},
	},
}

// ScopeFor returns the authorization scope for a role. Unknown roles get an
// empty scope, which permits nothing.
func ScopeFor(role domain.Role) Scope {
	if s, ok := roleScopes[role]; ok {
		return s
	}
	return Scope{}
}
