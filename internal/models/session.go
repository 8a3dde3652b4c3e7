package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Session identifies one client's live connection to a document.
// Learning: a user with two tabs open has two sessions, each with its own ID.
type Session struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	ConnectedAt time.Time `json:"connected_at"`
}

// UserInfo is the identity attached to a request by the auth layer.
type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func NewSession(documentID string, user UserInfo) *Session {
	return &Session{
		ID:          ksuid.New().String(),
		DocumentID:  documentID,
		UserID:      user.ID,
		UserName:    user.Name,
		ConnectedAt: time.Now(),
	}
}
