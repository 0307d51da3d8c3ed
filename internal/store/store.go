// Package store 持有所有持久化实体（用户、房间、成员、消息、反应、投票、收藏、
// 邀请码、封禁、删除日志、定时消息），不感知任何在线连接。
//
// 所有写操作串行执行（容量为 1 的 writeSem），保证 toggle 这类先查后写的操作不会与自身竞争；
// 读操作不加锁。每个方法都接受 context，等待写锁和数据库调用都受它的截止时间约束。
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrConflict  = errors.New("store: conflict")
	ErrForbidden = errors.New("store: forbidden")
)

type Store struct {
	db       *gorm.DB
	writeSem chan struct{}
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, writeSem: make(chan struct{}, 1)}
}

// DB 暴露底层连接，供健康检查使用。
func (s *Store) DB() *gorm.DB { return s.db }

// RoomID 由房间名推导出稳定 ID：去掉空格、转小写、加 @ 前缀。纯函数。
func RoomID(name string) string {
	return "@" + strings.ToLower(strings.ReplaceAll(name, " ", ""))
}

func (s *Store) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	select {
	case s.writeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.writeSem }()
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) read(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// translate 把 gorm 的错误映射为 store 的哨兵错误。
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func prefixPattern(q string) string {
	return likeEscaper.Replace(q) + "%"
}

func utc(t time.Time) time.Time { return t.UTC() }
