// Package policy holds the role capability table for ticket operations.
// Every authorization decision goes through this table so the rules stay
// auditable in one place instead of scattered through handlers.
package policy

import "github.com/spec-kit/helpdesk/internal/domain"

// Action enumerates ticket operations subject to access control.
type Action string

const (
	ActionList           Action = "list"
	ActionView           Action = "view"
	ActionUpdateStatus   Action = "update_status"
	ActionUpdatePriority Action = "update_priority"
	ActionReassign       Action = "reassign"
	ActionDelete         Action = "delete"
	ActionStats          Action = "stats"
)

// Scope bounds which tickets an allowed action reaches.
type Scope int

const (
	// ScopeNone denies the action outright.
	ScopeNone Scope = iota
	// ScopeAssigned limits the action to tickets assigned to the caller.
	ScopeAssigned
	// ScopeAll grants the action on every ticket.
	ScopeAll
)

var capabilities = map[domain.Role]map[Action]Scope{
	domain.RoleAdmin: {
		ActionList:           ScopeAll,
		ActionView:           ScopeAll,
		ActionUpdateStatus:   ScopeAll,
		ActionUpdatePriority: ScopeAll,
		ActionReassign:       ScopeAll,
		ActionDelete:         ScopeAll,
		ActionStats:          ScopeAll,
	},
	domain.RoleAgent: {
		ActionList:           ScopeAssigned,
		ActionView:           ScopeAssigned,
		ActionUpdateStatus:   ScopeAssigned,
		ActionUpdatePriority: ScopeNone,
		ActionReassign:       ScopeNone,
		ActionDelete:         ScopeNone,
		ActionStats:          ScopeAssigned,
	},
}

// ScopeFor returns the scope granted to the role for the action.
func ScopeFor(role domain.Role, action Action) Scope {
	return capabilities[role][action]
}

// Allows reports whether the role may perform the action on a ticket with
// the given assignee.
func Allows(role domain.Role, action Action, requesterID, assigneeID string) bool {
	switch ScopeFor(role, action) {
	case ScopeAll:
		return true
	case ScopeAssigned:
		return requesterID == assigneeID
	default:
		return false
	}
}
