// Package moderation 实现发送频率限制和内容过滤。
package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/clock"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// Limiter 判断某个发送者此刻能否再发送一条内容消息。
// 返回 false 时调用方应丢弃消息，且这次尝试不计入窗口。
type Limiter interface {
	Allow(ctx context.Context, sender string) (bool, error)
}

// SlidingWindow 是进程内的滑动窗口限流器，每个发送者保存窗口内的发送时间（升序）。
type SlidingWindow struct {
	mu     sync.Mutex
	clock  clock.Clock
	limit  int
	window time.Duration
	hits   map[string][]time.Time
}

func NewSlidingWindow(c clock.Clock, limit int, window time.Duration) *SlidingWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &SlidingWindow{clock: c, limit: limit, window: window, hits: make(map[string][]time.Time)}
}

func (w *SlidingWindow) Allow(_ context.Context, sender string) (bool, error) {
	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	ts := w.evict(w.hits[sender], now)
	if len(ts) >= w.limit {
		w.hits[sender] = ts
		return false, nil
	}
	w.hits[sender] = append(ts, now)
	return true, nil
}

// evict 丢弃超出窗口的时间戳。切片按时间升序，只需找到第一个仍在窗口内的位置。
func (w *SlidingWindow) evict(ts []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= w.window {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// Sweep 清理窗口内已无记录的发送者，返回清理的数量。
func (w *SlidingWindow) Sweep() int {
	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for k, ts := range w.hits {
		if len(w.evict(ts, now)) == 0 {
			delete(w.hits, k)
			n++
		}
	}
	return n
}

// RunSweeper 周期性调用 Sweep，直到 ctx 结束。
func (w *SlidingWindow) RunSweeper(ctx context.Context, every time.Duration) {
	t := w.clock.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Sweep()
		}
	}
}
