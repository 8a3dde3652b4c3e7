package models

import (
	"fmt"
	"time"
)

// Role is a user's access level on one document.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole validates a role name coming from a request body.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOwner, RoleEditor, RoleViewer:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// CanWrite reports whether the role may save the document.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanShare reports whether the role may add members.
func (r Role) CanShare() bool {
	return r == RoleOwner
}

// DocumentMember grants a user access to a document.
type DocumentMember struct {
	DocumentID string    `json:"document_id" gorm:"type:char(27);primaryKey"`
	UserID     string    `json:"user_id" gorm:"type:varchar(64);primaryKey;index"`
	Role       Role      `json:"role" gorm:"type:varchar(16);not null;default:'viewer'"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName override
func (DocumentMember) TableName() string {
	return "document_members"
}
