package domain

import "time"

// TeamRole 团队内角色，与身份提供方的 realm role 同名
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleMember TeamRole = "member"
)

// TeamMember 团队成员
type TeamMember struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	Role     TeamRole   `json:"role"`
	Pending  bool       `json:"pending"` // 邀请尚未接受
	JoinedAt *time.Time `json:"joinedAt,omitempty"`
}

// InviteRequest 邀请成员
type InviteRequest struct {
	Email string   `json:"email"`
	Role  TeamRole `json:"role"`
}
