package moderation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/clock"
)

func TestSlidingWindow_RejectsEleventh(t *testing.T) {
	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	w := NewSlidingWindow(c, DefaultLimit, DefaultWindow)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := w.Allow(ctx, "alice_01")
		if err != nil || !ok {
			t.Fatalf("send %d rejected: %v", i+1, err)
		}
		c.Advance(time.Second)
	}
	if ok, _ := w.Allow(ctx, "alice_01"); ok {
		t.Fatal("11th send within the window should be rejected")
	}
	if ok, _ := w.Allow(ctx, "bob_02"); !ok {
		t.Fatal("limits must be per sender")
	}
}

func TestSlidingWindow_RejectionIsNotRecorded(t *testing.T) {
	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	w := NewSlidingWindow(c, 2, time.Minute)
	ctx := context.Background()

	w.Allow(ctx, "a")
	c.Advance(30 * time.Second)
	w.Allow(ctx, "a")
	for i := 0; i < 5; i++ {
		if ok, _ := w.Allow(ctx, "a"); ok {
			t.Fatal("expected rejection at cap")
		}
	}
	// the first send leaves the window; the rejected attempts must not hold the slot
	c.Advance(30 * time.Second)
	if ok, _ := w.Allow(ctx, "a"); !ok {
		t.Fatal("slot should free once the oldest send is a full window old")
	}
	if ok, _ := w.Allow(ctx, "a"); ok {
		t.Fatal("window should be full again")
	}
}

func TestSlidingWindow_Sweep(t *testing.T) {
	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	w := NewSlidingWindow(c, 10, time.Minute)
	ctx := context.Background()
	w.Allow(ctx, "idle")
	c.Advance(30 * time.Second)
	w.Allow(ctx, "active")
	c.Advance(40 * time.Second)

	if n := w.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, ok := w.hits["active"]; !ok {
		t.Error("active sender was swept")
	}
}

func TestFilter(t *testing.T) {
	f := NewFilter(DefaultBlocklist...)
	tests := []struct {
		text string
		want bool
	}{
		{"hello team", false},
		{"this is SPAM", true},
		{"no Abuse please", true},
		{"banana", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := f.Blocked(tt.text); got != tt.want {
				t.Errorf("Blocked(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	got := Sanitize(`<script>alert("x")</script> & 'y'`)
	want := "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt; &amp; &#39;y&#39;"
	if got != want {
		t.Errorf("Sanitize() = %q, want %q", got, want)
	}
}

func TestRedisWindow(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("skip: REDIS_ADDR not set")
	}
	rdb, err := NewRedisClient(context.Background(), addr)
	if err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	defer rdb.Close()

	c := clock.Fake(time.Now())
	w := NewRedisWindow(rdb, c, 3, time.Minute)
	w.prefix = "neochat:test:" + t.Name()
	ctx := context.Background()
	defer rdb.Del(ctx, w.prefix+":alice_01")

	for i := 0; i < 3; i++ {
		if ok, err := w.Allow(ctx, "alice_01"); err != nil || !ok {
			t.Fatalf("send %d = %v, %v", i+1, ok, err)
		}
	}
	if ok, _ := w.Allow(ctx, "alice_01"); ok {
		t.Fatal("4th send should be rejected")
	}
	c.Advance(time.Minute)
	if ok, _ := w.Allow(ctx, "alice_01"); !ok {
		t.Fatal("send after the window should be allowed")
	}
}
