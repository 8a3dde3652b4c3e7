package collaboration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"codecollab/internal/middleware"
	"codecollab/internal/models"
	"codecollab/internal/services"
)

type fakeAccess struct {
	roles map[string]models.Role // userID → role on every document
}

func (a fakeAccess) Authorize(ctx context.Context, documentID, userID string, perm services.Permission) (models.Role, error) {
	role, ok := a.roles[userID]
	if !ok {
		return "", services.ErrForbidden
	}
	return role, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	srv, hub := newTestHubServer(t)
	return srv, hub.registry
}

func newTestHubServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()

	reg := NewRegistry()
	hub := NewHub(reg, NewRelay(reg), time.Minute)
	handler := NewWebSocketHandler(hub,
		fakeLoader{docs: map[string]string{"doc-1": "print(1)"}},
		fakeAccess{roles: map[string]models.Role{"alice": models.RoleOwner, "bob": models.RoleEditor}},
		16,
	)

	router := mux.NewRouter()
	router.Use(middleware.IdentityMiddleware)
	router.HandleFunc("/ws/documents/{id}", handler.HandleDocumentConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Shutdown(context.Background())
		srv.Close()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, doc, user string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/documents/" + doc
	header := http.Header{}
	if user != "" {
		header.Set("X-User-ID", user)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func waitForMembers(t *testing.T, reg *Registry, doc string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for reg.Count(doc) != n {
		if time.Now().After(deadline) {
			t.Fatalf("room %s has %d members, want %d", doc, reg.Count(doc), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEditorsSeeEachOthersDeltas(t *testing.T) {
	srv, reg := newTestServer(t)

	a, _, err := dial(t, srv, "doc-1", "alice")
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer a.Close()
	b, _, err := dial(t, srv, "doc-1", "bob")
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer b.Close()
	waitForMembers(t, reg, "doc-1", 2)

	if err := a.WriteMessage(websocket.TextMessage, []byte(printTwo)); err != nil {
		t.Fatalf("write: %v", err)
	}

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("bob read: %v", err)
	}
	if string(msg) != printTwo {
		t.Errorf("bob received %s, want %s", msg, printTwo)
	}

	// the sender gets nothing back
	a.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, msg, err := a.ReadMessage(); err == nil {
		t.Errorf("alice received her own delta: %s", msg)
	}
}

func TestMalformedMessageKeepsConnection(t *testing.T) {
	srv, reg := newTestServer(t)

	a, _, err := dial(t, srv, "doc-1", "alice")
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer a.Close()
	b, _, err := dial(t, srv, "doc-1", "bob")
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer b.Close()
	waitForMembers(t, reg, "doc-1", 2)

	a.WriteMessage(websocket.TextMessage, []byte(`{"oops":true}`))
	a.WriteMessage(websocket.TextMessage, []byte(printTwo))

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("bob read: %v", err)
	}
	if string(msg) != printTwo {
		t.Errorf("bob received %s, want only the valid delta", msg)
	}
	if got := reg.Count("doc-1"); got != 2 {
		t.Errorf("members after malformed message = %d, want 2", got)
	}
}

func TestDisconnectLeavesRoom(t *testing.T) {
	srv, reg := newTestServer(t)

	a, _, err := dial(t, srv, "doc-1", "alice")
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	waitForMembers(t, reg, "doc-1", 1)

	a.Close()
	waitForMembers(t, reg, "doc-1", 0)
}

func TestConnectionRejections(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name, doc, user string
		want            int
	}{
		{"anonymous", "doc-1", "", http.StatusUnauthorized},
		{"unknown document", "doc-404", "alice", http.StatusNotFound},
		{"not a member", "doc-1", "mallory", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := dial(t, srv, tt.doc, tt.user)
			if err == nil {
				conn.Close()
				t.Fatal("dial succeeded")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Errorf("status = %v, want %d", resp, tt.want)
			}
		})
	}
}

func member(reg *Registry, doc, user string) *Connection {
	for _, c := range reg.Members(doc) {
		if c.UserID == user {
			return c
		}
	}
	return nil
}

func TestPongsDoNotKeepIdleConnectionAlive(t *testing.T) {
	srv, hub := newTestHubServer(t)
	reg := hub.registry

	a, _, err := dial(t, srv, "doc-1", "alice")
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer a.Close()
	b, _, err := dial(t, srv, "doc-1", "bob")
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer b.Close()
	waitForMembers(t, reg, "doc-1", 2)

	alice := member(reg, "doc-1", "alice")
	idleSince := time.Now().Add(-2 * time.Minute)
	alice.lastActive.Store(idleSince.UnixNano())

	// the server answers the ping after it has handled the pong before it
	answered := make(chan struct{}, 1)
	a.SetPongHandler(func(string) error {
		select {
		case answered <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := a.ReadMessage(); err != nil {
				return
			}
		}
	}()
	deadline := time.Now().Add(time.Second)
	if err := a.WriteControl(websocket.PongMessage, nil, deadline); err != nil {
		t.Fatalf("pong: %v", err)
	}
	if err := a.WriteControl(websocket.PingMessage, []byte("sync"), deadline); err != nil {
		t.Fatalf("ping: %v", err)
	}
	select {
	case <-answered:
	case <-time.After(2 * time.Second):
		t.Fatal("server never answered the ping")
	}

	if got := alice.LastActive(); !got.Equal(time.Unix(0, idleSince.UnixNano())) {
		t.Errorf("pong refreshed LastActive to %v", got)
	}

	hub.cleanup()

	if got := member(reg, "doc-1", "alice"); got != nil {
		t.Error("idle connection answering pings survived cleanup")
	}
	if got := member(reg, "doc-1", "bob"); got == nil {
		t.Error("recently joined connection was cleaned up")
	}
}
