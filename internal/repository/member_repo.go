package repository

import (
	"context"
	"errors"
	"fmt"

	"codecollab/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemberRepositoryImpl stores who may open which document, and with what role
type MemberRepositoryImpl struct {
	db *gorm.DB
}

// NewMemberRepository creates a new membership repository
func NewMemberRepository(db *gorm.DB) *MemberRepositoryImpl {
	return &MemberRepositoryImpl{db: db}
}

// AddMember grants role to userID, replacing any previous role
func (r *MemberRepositoryImpl) AddMember(ctx context.Context, documentID, userID string, role models.Role) (*models.DocumentMember, error) {
	member := &models.DocumentMember{
		DocumentID: documentID,
		UserID:     userID,
		Role:       role,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).
		Create(member).Error
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	return member, nil
}

// GetRole returns userID's role on documentID
func (r *MemberRepositoryImpl) GetRole(ctx context.Context, documentID, userID string) (models.Role, error) {
	var member models.DocumentMember

	err := r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("member %s of %s: %w", userID, documentID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get member: %w", err)
	}

	return member.Role, nil
}

// ListMembers returns all members of a document
func (r *MemberRepositoryImpl) ListMembers(ctx context.Context, documentID string) ([]*models.DocumentMember, error) {
	var members []*models.DocumentMember

	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}
