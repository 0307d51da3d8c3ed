// Package presence 维护在线状态与最近在线时间，并为每个在线用户组装联系人列表。
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/clock"
	"github.com/dilwearus-ops/neochat-server/internal/models"
)

// Directory 是组装联系人列表需要的持久化查询。
type Directory interface {
	Contacts(ctx context.Context, username string) ([]string, error)
	UsersByName(ctx context.Context, names []string) (map[string]models.User, error)
}

// Contact 是 contacts_list 中的一项。LastSeen 只对本进程生命周期内见过的离线用户非空。
type Contact struct {
	Nick       string   `json:"nick"`
	Avatar     string   `json:"avatar"`
	Bio        string   `json:"bio"`
	UserStatus string   `json:"user_status"`
	Online     bool     `json:"online"`
	LastSeen   *float64 `json:"last_seen"`
}

// Tracker 不持久化任何数据，进程重启后清空。
type Tracker struct {
	mu     sync.Mutex
	clock  clock.Clock
	active map[string]time.Time
	left   map[string]time.Time
}

func NewTracker(c clock.Clock) *Tracker {
	return &Tracker{clock: c, active: make(map[string]time.Time), left: make(map[string]time.Time)}
}

func (t *Tracker) Connected(nick string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[nick] = t.clock.Now()
	delete(t.left, nick)
}

// Disconnected 删除活跃记录并记下离开时间。
func (t *Tracker) Disconnected(nick string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, nick)
	t.left[nick] = t.clock.Now()
}

// Touch 刷新在线用户的最近活动时间，对未连接的用户无效。
func (t *Tracker) Touch(nick string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[nick]; ok {
		t.active[nick] = t.clock.Now()
	}
}

func (t *Tracker) LastSeen(nick string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts, ok := t.active[nick]; ok {
		return ts, true
	}
	ts, ok := t.left[nick]
	return ts, ok
}

// ContactList 先列出 viewer 的私聊联系人，再追加其他不在列表中的在线用户（按名称排序）。
// online 是当前在线的用户名集合，由连接表提供。没有资料的用户名会被跳过。
func (t *Tracker) ContactList(ctx context.Context, dir Directory, viewer string, online []string) ([]Contact, error) {
	isOnline := make(map[string]bool, len(online))
	for _, n := range online {
		isOnline[n] = true
	}

	names, err := dir.Contacts(ctx, viewer)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{viewer: true}
	ordered := make([]string, 0, len(names)+len(online))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			ordered = append(ordered, n)
		}
	}
	others := make([]string, 0, len(online))
	for _, n := range online {
		if !seen[n] {
			seen[n] = true
			others = append(others, n)
		}
	}
	sort.Strings(others)
	ordered = append(ordered, others...)

	profiles, err := dir.UsersByName(ctx, ordered)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Contact, 0, len(ordered))
	for _, n := range ordered {
		u, ok := profiles[n]
		if !ok {
			continue
		}
		c := Contact{Nick: n, Avatar: u.Avatar, Bio: u.Bio, UserStatus: u.Status, Online: isOnline[n]}
		if !c.Online {
			if ts, ok := t.left[n]; ok {
				v := float64(ts.Unix()) + float64(ts.Nanosecond())/1e9
				c.LastSeen = &v
			}
		}
		out = append(out, c)
	}
	return out, nil
}
