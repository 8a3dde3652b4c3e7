package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"codecollab/internal/middleware"
	"codecollab/internal/models"
	"codecollab/internal/repository"
	"codecollab/internal/services"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
)

// Handler handles HTTP requests
// Learning: Uses INTERFACES defined in this package (consumer-driven)
type Handler struct {
	docs    DocumentStore
	members MemberStore
	access  AccessChecker
	live    LiveContent // nil when no live mirror is running
}

func NewHandler(docs DocumentStore, members MemberStore, access AccessChecker, live LiveContent) *Handler {
	return &Handler{
		docs:    docs,
		members: members,
		access:  access,
		live:    live,
	}
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Document handlers

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req models.DocumentCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	created, err := h.docs.Create(r.Context(), &req, user.ID)
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("✓ Document %s created by %s", created.ID, user.ID)
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	// Parse pagination parameters
	limit := 50 // default
	offset := 0

	if parsedLimit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsedLimit > 0 {
		limit = parsedLimit
	}
	if parsedOffset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && parsedOffset >= 0 {
		offset = parsedOffset
	}

	documents, err := h.docs.ListForUser(r.Context(), user.ID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": documents,
		"limit":     limit,
		"offset":    offset,
	})
}

// GetDocument returns the document; while a live session is open the
// content reflects the edits relayed so far.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, ok := h.authorizedDocument(w, r, id, services.PermRead)
	if !ok {
		return
	}

	if h.live != nil {
		if content, live := h.live.Snapshot(id); live {
			doc.Content = content
			middleware.AddSpanEvent(r.Context(), "document.live_content")
		}
	}

	respondJSON(w, http.StatusOK, doc)
}

func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var update models.DocumentUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := h.authorizedDocument(w, r, id, services.PermWrite); !ok {
		return
	}

	updated, err := h.docs.Update(r.Context(), id, &update)
	if err != nil {
		writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// Member handlers

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := h.authorizedDocument(w, r, id, services.PermShare); !ok {
		return
	}

	if role != models.RoleOwner {
		last, err := h.isLastOwner(r, id, req.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if last {
			http.Error(w, "a document needs at least one owner", http.StatusConflict)
			return
		}
	}

	member, err := h.members.AddMember(r.Context(), id, req.UserID, role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Printf("✓ Document %s shared with %s as %s", id, req.UserID, role)
	respondJSON(w, http.StatusCreated, member)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, ok := h.authorizedDocument(w, r, id, services.PermRead); !ok {
		return
	}

	members, err := h.members.ListMembers(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// isLastOwner reports whether userID is the only owner of documentID.
func (h *Handler) isLastOwner(r *http.Request, documentID, userID string) (bool, error) {
	members, err := h.members.ListMembers(r.Context(), documentID)
	if err != nil {
		return false, err
	}
	owners, target := 0, false
	for _, m := range members {
		if m.Role != models.RoleOwner {
			continue
		}
		owners++
		if m.UserID == userID {
			target = true
		}
	}
	return target && owners == 1, nil
}

// authorizedDocument loads id and checks perm for the caller. It writes the
// error response itself and reports whether the handler may continue.
// Unknown documents answer 404 before any access check.
func (h *Handler) authorizedDocument(w http.ResponseWriter, r *http.Request, id string, perm services.Permission) (*models.Document, bool) {
	ctx, span := middleware.StartSpan(r.Context(), "Handler.authorize",
		attribute.String("document.id", id),
	)
	defer span.End()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}

	doc, err := h.docs.GetByID(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}

	if _, err := h.access.Authorize(ctx, id, user.ID, perm); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return doc, true
}

// writeError maps repository and access errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "document not found", http.StatusNotFound)
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, "no access to document", http.StatusForbidden)
	default:
		middleware.AddSpanError(r.Context(), err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
