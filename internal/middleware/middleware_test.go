package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"codecollab/internal/models"
)

func TestIdentityFromHeaderAndQuery(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header map[string]string
		want   models.UserInfo
		ok     bool
	}{
		{"header", "/", map[string]string{"X-User-ID": "u1", "X-User-Name": "Ann"}, models.UserInfo{ID: "u1", Name: "Ann"}, true},
		{"query", "/?user_id=u2&user_name=Bob", nil, models.UserInfo{ID: "u2", Name: "Bob"}, true},
		{"name defaults to id", "/?user_id=u3", nil, models.UserInfo{ID: "u3", Name: "u3"}, true},
		{"anonymous", "/", nil, models.UserInfo{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got models.UserInfo
			var ok bool
			h := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, ok = UserFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if ok != tt.ok || got != tt.want {
				t.Errorf("got %+v (%v), want %+v (%v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	h := IdentityMiddleware(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?user_id=u", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("identified status = %d, want 204", rec.Code)
	}
}

func TestTracingSetsRequestID(t *testing.T) {
	var id string
	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if id == "" || id == "unknown" {
		t.Fatalf("request id = %q", id)
	}
	if rec.Header().Get("X-Request-ID") != id {
		t.Errorf("header id = %q, want %q", rec.Header().Get("X-Request-ID"), id)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRouteNameUsesTemplate(t *testing.T) {
	var got string
	router := mux.NewRouter()
	router.HandleFunc("/ws/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = routeName(r)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws/documents/abc", nil))
	if got != "/ws/documents/{id}" {
		t.Errorf("routeName = %q, want the template", got)
	}

	plain := httptest.NewRequest(http.MethodGet, "/unrouted", nil)
	if name := routeName(plain); name != "/unrouted" {
		t.Errorf("routeName without a route = %q", name)
	}
}
