package collaboration

import (
	"context"
	"errors"
	"log"
	"net/http"

	"codecollab/internal/middleware"
	"codecollab/internal/models"
	"codecollab/internal/repository"
	"codecollab/internal/services"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

// AccessChecker is the access gate consulted before a socket is accepted.
type AccessChecker interface {
	Authorize(ctx context.Context, documentID, userID string, perm services.Permission) (models.Role, error)
}

// WebSocketHandler accepts live connections for document collaboration
type WebSocketHandler struct {
	hub       *Hub
	docs      DocumentLoader
	access    AccessChecker
	queueSize int
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *Hub, docs DocumentLoader, access AccessChecker, queueSize int) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		docs:      docs,
		access:    access,
		queueSize: queueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by the gateway that authenticates users.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleDocumentConnection upgrades an authorized request into a live connection.
// Not-found and forbidden are answered over plain HTTP; no socket is opened.
func (h *WebSocketHandler) HandleDocumentConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID := mux.Vars(r)["id"]

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("document.id", documentID),
		attribute.String("user.id", user.ID),
	)
	defer span.End()

	if _, err := h.docs.GetByID(ctx, documentID); err != nil {
		middleware.AddSpanError(ctx, err)
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if _, err := h.access.Authorize(ctx, documentID, user.ID, services.PermRead); err != nil {
		middleware.AddSpanError(ctx, err)
		if errors.Is(err, services.ErrForbidden) {
			http.Error(w, "no access to document", http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	c := NewConnection(models.NewSession(documentID, user), conn, h.queueSize)
	span.SetAttributes(attribute.String("session.id", c.ID))

	// The pumps outlive this request.
	connCtx := context.WithoutCancel(ctx)
	h.hub.Connect(connCtx, c)

	go c.writePump()
	go c.readPump(connCtx, h.hub)

	log.Printf("✓ WebSocket connection established for document %s (user: %s, session: %s)",
		documentID, user.Name, c.ID)
}
