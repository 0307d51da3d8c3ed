package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type keyLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// IPLimiter 为每个 IP+路由维护一个令牌桶，长时间不活跃的桶由 gc 回收。
type IPLimiter struct {
	mu    sync.Mutex
	m     map[string]*keyLimiter
	r     rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

func NewIPLimiter(r rate.Limit, burst int, ttl time.Duration) *IPLimiter {
	return &IPLimiter{
		m:     make(map[string]*keyLimiter),
		r:     r,
		burst: burst,
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
}

func (l *IPLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if kl, ok := l.m[key]; ok {
		kl.seen = now
		return kl.lim
	}
	lim := rate.NewLimiter(l.r, l.burst)
	l.m[key] = &keyLimiter{lim: lim, seen: now}
	return lim
}

// Sweep 删除超过 ttl 未使用的桶，返回删除数量。
func (l *IPLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, v := range l.m {
		if now.Sub(v.seen) > l.ttl {
			delete(l.m, k)
			n++
		}
	}
	return n
}

func (l *IPLimiter) gc(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Stop 停止 GC goroutine，用于优雅停服。
func (l *IPLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Middleware 超限时返回 429 并带上 Retry-After。
func (l *IPLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		lim := l.get(c.ClientIP() + "|" + path)
		if !lim.Allow() {
			wait := 1.0
			if l.r > 0 {
				wait = math.Ceil(1 / float64(l.r))
			}
			c.Header("Retry-After", strconv.Itoa(int(wait)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// RateLimit 返回一个基于 IP+路径的令牌桶限速中间件。
func RateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	l := NewIPLimiter(r, burst, 2*time.Minute)
	go l.gc(30 * time.Second)
	return l.Middleware()
}
