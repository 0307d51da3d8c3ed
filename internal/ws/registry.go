package ws

import (
	"sort"
	"sync"
)

// Registry 是在线用户名到连接的映射，每个用户名同时最多一个会话。
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Reserve 在用户名空闲时登记 c，已被占用返回 false。
func (r *Registry) Reserve(nick string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[nick]; ok {
		return false
	}
	r.clients[nick] = c
	return true
}

// Release 只在 nick 仍由 c 持有时删除登记，返回是否删除。
func (r *Registry) Release(nick string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[nick]; ok && cur == c {
		delete(r.clients, nick)
		return true
	}
	return false
}

func (r *Registry) Get(nick string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[nick]
	return c, ok
}

// Clients 返回当前连接的快照。
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Handles 返回按名称排序的在线用户名。
func (r *Registry) Handles() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.clients))
	for n := range r.clients {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
