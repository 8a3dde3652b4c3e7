package api

import (
	"net/http"

	"codecollab/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the HTTP surface. ws serves the live document socket.
func SetupRoutes(h *Handler, ws http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	// Learning: Middleware runs in order - tracing first, then recovery, then CORS, then identity
	r.Use(middleware.TracingMiddleware)       // Add tracing spans to all requests
	r.Use(middleware.ErrorRecoveryMiddleware) // Catch panics
	r.Use(middleware.CORSMiddleware)          // Handle CORS
	r.Use(middleware.IdentityMiddleware)      // Who is calling

	// Unauthenticated endpoints
	r.HandleFunc("/api/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.RequireUser)

	// Document endpoints
	api.HandleFunc("/documents", h.CreateDocument).Methods("POST")
	api.HandleFunc("/documents", h.ListDocuments).Methods("GET")
	api.HandleFunc("/documents/{id}", h.GetDocument).Methods("GET")
	api.HandleFunc("/documents/{id}", h.UpdateDocument).Methods("PUT")

	// Sharing
	api.HandleFunc("/documents/{id}/members", h.AddMember).Methods("POST")
	api.HandleFunc("/documents/{id}/members", h.ListMembers).Methods("GET")

	// WebSocket routes
	wsRouter := r.PathPrefix("/ws").Subrouter()
	wsRouter.Use(middleware.RequireUser)
	wsRouter.HandleFunc("/documents/{id}", ws)

	return r
}
