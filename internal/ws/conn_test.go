package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/service"
	"github.com/dilwearus-ops/neochat-server/internal/store"
	"github.com/dilwearus-ops/neochat-server/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func startServer(t *testing.T, opts Options) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.New(testutil.OpenDB(t))
	users := service.NewUserService(st, "test-secret", time.Minute, time.Hour)
	hub := NewHub(Deps{Store: st, Auth: users}, opts)

	r := gin.New()
	r.GET("/ws", hub.Serve())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestServe_Handshake(t *testing.T) {
	url := startServer(t, Options{})

	alice := dial(t, url)
	if err := alice.WriteJSON(map[string]string{"type": "auth_req", "username": "alice_01", "password": "pw", "action": "register"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, alice); ev["type"] != "auth_success" || ev["nick"] != "alice_01" {
		t.Fatalf("first event = %v", ev)
	}
	if ev := readEvent(t, alice); ev["type"] != "rooms_list" {
		t.Fatalf("second event = %v", ev)
	}

	dup := dial(t, url)
	if err := dup.WriteJSON(map[string]string{"type": "auth_req", "username": "alice_01", "password": "pw", "action": "login"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, dup); ev["type"] != "auth_error" || ev["text"] != "already online" {
		t.Fatalf("duplicate login = %v", ev)
	}
	_ = dup.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := dup.ReadMessage(); err == nil {
		t.Fatal("duplicate session should be closed")
	}
}

func TestServe_AuthTimeoutClosesConnection(t *testing.T) {
	url := startServer(t, Options{AuthTimeout: 100 * time.Millisecond})
	conn := dial(t, url)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the server to close an unauthenticated connection")
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		t.Fatalf("client deadline hit before server closed: %v", err)
	}
}
