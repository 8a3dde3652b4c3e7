package api

import (
	"context"

	"codecollab/internal/models"
	"codecollab/internal/services"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

This package is the CONSUMER of the repositories and services, so the
interfaces it needs live HERE. Handlers declare only the methods they call,
which keeps them testable with small in-memory fakes.
*/

// DocumentStore is what handlers need from the document repository
type DocumentStore interface {
	Create(ctx context.Context, doc *models.DocumentCreate, ownerID string) (*models.Document, error)
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Document, error)
	Update(ctx context.Context, id string, update *models.DocumentUpdate) (*models.Document, error)
}

// MemberStore manages who may open a document
type MemberStore interface {
	AddMember(ctx context.Context, documentID, userID string, role models.Role) (*models.DocumentMember, error)
	ListMembers(ctx context.Context, documentID string) ([]*models.DocumentMember, error)
}

// AccessChecker is the per-document access gate
type AccessChecker interface {
	Authorize(ctx context.Context, documentID, userID string, perm services.Permission) (models.Role, error)
}

// LiveContent exposes the content of documents that are being edited right now.
type LiveContent interface {
	Snapshot(documentID string) (string, bool)
}
