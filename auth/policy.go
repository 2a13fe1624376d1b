package auth

// Action enumerates the access decisions the policy understands.
type Action string

const (
	ActionCreateUser    Action = "create_user"
	ActionDeleteUser    Action = "delete_user"
	ActionUpdateUser    Action = "update_user"
	ActionListUsers     Action = "list_users"
	ActionDeleteDispute Action = "delete_dispute"
	ActionUpdateDispute Action = "update_dispute"
	ActionCreateReply   Action = "create_reply"
)

// Allowed is the role-derived access decision. ownerID is the owning user of
// the target resource where ownership matters; it is ignored otherwise.
//
// Dispute updates are gated on ownership alone: an admin cannot edit another
// user's dispute.
func Allowed(action Action, sub Subject, ownerID string) bool {
	switch action {
	case ActionCreateUser, ActionDeleteUser:
		return sub.Role == RoleSuperAdmin
	case ActionUpdateUser:
		return sub.Role == RoleSuperAdmin || sub.Role == RoleAdmin
	case ActionListUsers, ActionCreateReply:
		// Any authenticated subject.
		return sub.UserID != ""
	case ActionDeleteDispute:
		return sub.Role == RoleSuperAdmin || (ownerID != "" && ownerID == sub.UserID)
	case ActionUpdateDispute:
		return ownerID != "" && ownerID == sub.UserID
	default:
		return false
	}
}

// SeesAllDisputes reports whether the subject's dispute reads are unscoped.
// Everyone else sees only disputes they own.
func SeesAllDisputes(role Role) bool {
	return role == RoleSuperAdmin || role == RoleAdmin
}
