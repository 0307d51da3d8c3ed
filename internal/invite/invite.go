// Package invite 签发和兑换房间邀请码。邀请码在过期前可以被多次兑换。
package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/clock"
	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/store"
)

const DefaultTTL = 24 * time.Hour

var (
	ErrNotFound = errors.New("invite: code not found")
	ErrExpired  = errors.New("invite: code expired")
	ErrBanned   = errors.New("invite: banned from room")
)

type Store interface {
	CreateInvite(ctx context.Context, inv *models.InviteCode) error
	Invite(ctx context.Context, code string) (*models.InviteCode, error)
	Room(ctx context.Context, idOrName string) (*models.Room, error)
	IsBanned(ctx context.Context, roomID, username string) (bool, error)
	JoinRoom(ctx context.Context, roomID, username, role string) error
}

type Manager struct {
	store Store
	clock clock.Clock
	ttl   time.Duration
}

func NewManager(s Store, c clock.Clock, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: s, clock: c, ttl: ttl}
}

// Issue 生成新的邀请码，过期时间为 now + ttl。
func (m *Manager) Issue(ctx context.Context, roomID, creator string) (*models.InviteCode, error) {
	code, err := newCode()
	if err != nil {
		return nil, err
	}
	now := m.clock.Now().UTC()
	inv := &models.InviteCode{
		Code:      code,
		RoomID:    roomID,
		Creator:   creator,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.CreateInvite(ctx, inv); err != nil {
		return nil, fmt.Errorf("save invite: %w", err)
	}
	return inv, nil
}

// Redeem 校验邀请码并以 member 身份加入房间。已是成员时返回 store.ErrConflict。
func (m *Manager) Redeem(ctx context.Context, code, username string) (*models.Room, error) {
	inv, err := m.store.Invite(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !m.clock.Now().Before(inv.ExpiresAt) {
		return nil, ErrExpired
	}
	room, err := m.store.Room(ctx, inv.RoomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	banned, err := m.store.IsBanned(ctx, room.ID, username)
	if err != nil {
		return nil, err
	}
	if banned {
		return room, ErrBanned
	}
	if err := m.store.JoinRoom(ctx, room.ID, username, models.RoleMember); err != nil {
		return room, err
	}
	return room, nil
}

func newCode() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
