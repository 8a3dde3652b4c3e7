package services

import (
	"context"

	"codecollab/internal/models"
)

/*
LEARNING: GO INTERFACE BEST PRACTICE

"Accept interfaces, return structs" - Rob Pike

Interfaces are declared here, in the package that USES them, and list only
the methods this package calls. The repository package returns concrete
*XRepositoryImpl types and knows nothing about these interfaces.
*/

// ContentStore is what the snapshot writer needs from document storage
type ContentStore interface {
	UpdateContent(ctx context.Context, id, content string) error
}

// MemberStore is what the access service needs from membership storage
type MemberStore interface {
	GetRole(ctx context.Context, documentID, userID string) (models.Role, error)
}
