package services

import (
	"context"
	"errors"
	"fmt"

	"codecollab/internal/models"
	"codecollab/internal/repository"
)

// ErrForbidden is returned when a user may not perform an action on a document.
var ErrForbidden = errors.New("forbidden")

// Permission is an action checked by the access gate.
type Permission int

const (
	PermRead  Permission = iota // open, fetch, join the live session
	PermWrite                   // explicit save
	PermShare                   // add members
)

// AccessService is the access gate consulted before a document is served
// or a live connection is accepted. Deltas on accepted connections are
// not checked again.
type AccessService struct {
	members MemberStore
}

func NewAccessService(members MemberStore) *AccessService {
	return &AccessService{members: members}
}

// Authorize returns the user's role if it grants perm, ErrForbidden otherwise.
func (s *AccessService) Authorize(ctx context.Context, documentID, userID string, perm Permission) (models.Role, error) {
	role, err := s.members.GetRole(ctx, documentID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("user %s on document %s: %w", userID, documentID, ErrForbidden)
	}
	if err != nil {
		return "", err
	}

	allowed := false
	switch perm {
	case PermRead:
		allowed = true
	case PermWrite:
		allowed = role.CanWrite()
	case PermShare:
		allowed = role.CanShare()
	}
	if !allowed {
		return role, fmt.Errorf("role %s on document %s: %w", role, documentID, ErrForbidden)
	}
	return role, nil
}
