// Database models for users, projects and membership
package db

import "time"

// User is the local projection of an identity-provider account.
// Authentication itself happens outside this service; AuthUID carries the
// provider's subject so repeated sign-ups resolve to the same row.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Email     string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	AuthUID   *string   `json:"auth_uid,omitempty" gorm:"uniqueIndex;size:128"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Project is one inheritance consultation case.
type Project struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Title       string    `json:"title" gorm:"size:200;not null"`
	Description string    `json:"description" gorm:"type:text"`
	OwnerUserID string    `json:"owner_user_id" gorm:"index;size:36;not null"`
	Status      string    `json:"status" gorm:"size:20;default:'active'"` // active, pending, completed
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

// Project status
const (
	ProjectStatusActive    = "active"
	ProjectStatusPending   = "pending"
	ProjectStatusCompleted = "completed"
)

// ProjectMember ties a user to a project with a fixed role.
// The role is immutable for the lifetime of the membership.
type ProjectMember struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ProjectID string    `json:"project_id" gorm:"index:idx_member_project_user,unique;size:36;not null"`
	UserID    string    `json:"user_id" gorm:"index:idx_member_project_user,unique;size:36;not null"`
	Role      string    `json:"role" gorm:"size:20;default:'member'"` // owner, member
	Name      string    `json:"name" gorm:"size:100"`
	Relation  string    `json:"relation,omitempty" gorm:"size:50"` // e.g. eldest son, spouse
	Email     string    `json:"email" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProjectMember) TableName() string {
	return "project_members"
}

// Member roles
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// ProjectInvitation is a single-use token inviting an heir into a project.
type ProjectInvitation struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	ProjectID string     `json:"project_id" gorm:"index;size:36;not null"`
	Email     string     `json:"email" gorm:"size:255;not null"`
	Token     string     `json:"-" gorm:"uniqueIndex;size:64;not null"`
	Name      string     `json:"name" gorm:"size:100"`
	Relation  string     `json:"relation,omitempty" gorm:"size:50"`
	Role      string     `json:"role" gorm:"size:20;default:'member'"`
	Used      bool       `json:"used" gorm:"default:false"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (ProjectInvitation) TableName() string {
	return "project_invitations"
}

// ========== Request/Response Types ==========

// CreateProjectRequest creates a new consultation project.
type CreateProjectRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// UpdateProjectRequest updates owner-editable project fields.
type UpdateProjectRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateUserRequest registers the local projection of an authenticated user.
type CreateUserRequest struct {
	Email   string  `json:"email" binding:"required"`
	Name    string  `json:"name" binding:"required"`
	AuthUID *string `json:"auth_uid,omitempty"`
}

// CreateInvitationRequest invites an heir by email.
type CreateInvitationRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Relation  string `json:"relation"`
	Role      string `json:"role"`
}

// InvitationPreview is returned when an invitee opens an invitation link.
type InvitationPreview struct {
	ProjectID    string `json:"project_id"`
	ProjectTitle string `json:"project_title"`
	InviteeEmail string `json:"invitee_email"`
	InviteeName  string `json:"invitee_name"`
	Relation     string `json:"relation,omitempty"`
	Token        string `json:"token"`
}
