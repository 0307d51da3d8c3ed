package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/config"
	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/service"
	"github.com/dilwearus-ops/neochat-server/internal/store"
	"github.com/dilwearus-ops/neochat-server/internal/testutil"
	"github.com/dilwearus-ops/neochat-server/internal/ws"

	"github.com/gin-gonic/gin"
)

func newRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Port: "0", JWTSecret: "secret", Env: "dev"}
	st := store.New(testutil.OpenDB(t))
	users := service.NewUserService(st, cfg.JWTSecret, time.Minute, time.Hour)
	hub := ws.NewHub(ws.Deps{Store: st, Auth: users}, ws.Options{})
	return SetupRouter(cfg, st, users, hub), st
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHealthz(t *testing.T) {
	r, _ := newRouter(t)
	w, body := do(t, r, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", w.Code, body)
	}
}

func TestAuthFlow(t *testing.T) {
	r, _ := newRouter(t)
	creds := map[string]string{"username": "alice_01", "password": "pw"}

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"register", "/api/v1/auth/register", creds, http.StatusOK},
		{"register again", "/api/v1/auth/register", creds, http.StatusConflict},
		{"bad handle", "/api/v1/auth/register", map[string]string{"username": "a!", "password": "pw"}, http.StatusBadRequest},
		{"empty payload", "/api/v1/auth/register", map[string]string{}, http.StatusBadRequest},
		{"wrong password", "/api/v1/auth/login", map[string]string{"username": "alice_01", "password": "x"}, http.StatusUnauthorized},
		{"bad refresh", "/api/v1/auth/refresh", map[string]string{"refresh_token": "nope"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		if w, body := do(t, r, http.MethodPost, tt.path, "", tt.body); w.Code != tt.want {
			t.Errorf("%s: status %d (%v), want %d", tt.name, w.Code, body, tt.want)
		}
	}

	w, login := do(t, r, http.MethodPost, "/api/v1/auth/login", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %v", w.Code, login)
	}
	rt := login["refresh_token"].(string)
	w, refreshed := do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": rt})
	if w.Code != http.StatusOK || refreshed["access_token"] == "" {
		t.Fatalf("refresh: %d %v", w.Code, refreshed)
	}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": rt}); w.Code != http.StatusUnauthorized {
		t.Errorf("reused refresh token: status %d", w.Code)
	}
}

func TestRoomsAndMessages(t *testing.T) {
	r, st := newRouter(t)
	creds := map[string]string{"username": "alice_01", "password": "pw"}
	do(t, r, http.MethodPost, "/api/v1/auth/register", "", creds)
	do(t, r, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "bob_02", "password": "pw"})
	_, login := do(t, r, http.MethodPost, "/api/v1/auth/login", "", creds)
	token := login["access_token"].(string)

	if w, _ := do(t, r, http.MethodGet, "/api/v1/rooms", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d", w.Code)
	}

	ctx := context.Background()
	room, err := st.CreateRoom(ctx, "Team", "alice_01", models.RoomGroup)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SaveMessage(ctx, &models.Message{Context: models.ContextRoom, Target: room.ID, Sender: "alice_01", Type: models.TypeMsg, Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateRoom(ctx, "Private", "bob_02", models.RoomGroup); err != nil {
		t.Fatal(err)
	}

	w, body := do(t, r, http.MethodGet, "/api/v1/rooms", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rooms: %d %v", w.Code, body)
	}
	rooms := body["rooms"].([]any)
	if len(rooms) != 1 || rooms[0].(map[string]any)["id"] != "@team" {
		t.Errorf("rooms = %v", rooms)
	}

	w, body = do(t, r, http.MethodGet, "/api/v1/rooms/@team/messages?limit=10", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("messages: %d %v", w.Code, body)
	}
	if msgs := body["messages"].([]any); len(msgs) != 1 || msgs[0].(map[string]any)["text"] != "hi" {
		t.Errorf("messages = %v", msgs)
	}

	if w, _ := do(t, r, http.MethodGet, "/api/v1/rooms/@private/messages", token, nil); w.Code != http.StatusForbidden {
		t.Errorf("non-member: status %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/api/v1/rooms/@none/messages", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing room: status %d", w.Code)
	}
}
