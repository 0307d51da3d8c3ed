package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/clock"
	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/store"
	"github.com/dilwearus-ops/neochat-server/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	got  []string
	fail map[string]bool
	ch   chan string
}

func newRecorder() *recorder {
	return &recorder{fail: map[string]bool{}, ch: make(chan string, 16)}
}

func (r *recorder) DeliverScheduled(_ context.Context, sm models.ScheduledMessage) error {
	if r.fail[sm.Text] {
		return errors.New("sender lost permission")
	}
	r.mu.Lock()
	r.got = append(r.got, sm.Text)
	r.mu.Unlock()
	r.ch <- sm.Text
	return nil
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func schedule(t *testing.T, s *store.Store, text string, at time.Time) {
	t.Helper()
	err := s.ScheduleMessage(context.Background(), &models.ScheduledMessage{
		Context:      models.ContextPM,
		Target:       "bob_02",
		Sender:       "alice_01",
		Type:         models.TypeMsg,
		Text:         text,
		ScheduledFor: at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTick_DeliversDueOnlyOnce(t *testing.T) {
	s := store.New(testutil.OpenDB(t))
	clk := clock.Fake(t0)
	rec := newRecorder()
	d := New(s, rec, clk, time.Second)

	schedule(t, s, "first", t0.Add(time.Minute))
	schedule(t, s, "second", t0.Add(2*time.Minute))
	schedule(t, s, "later", t0.Add(time.Hour))

	tests := []struct {
		name    string
		advance time.Duration
		want    int
	}{
		{"nothing due", 0, 0},
		{"one due", time.Minute, 1},
		{"second due", time.Minute, 1},
		{"already claimed", 0, 0},
		{"last due", time.Hour, 1},
	}
	for _, tt := range tests {
		clk.Advance(tt.advance)
		if got := d.Tick(context.Background()); got != tt.want {
			t.Errorf("%s: delivered %d, want %d", tt.name, got, tt.want)
		}
	}
	got := rec.texts()
	want := []string{"first", "second", "later"}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTick_FailedDeliveryIsNotRetried(t *testing.T) {
	s := store.New(testutil.OpenDB(t))
	clk := clock.Fake(t0)
	rec := newRecorder()
	rec.fail["revoked"] = true
	d := New(s, rec, clk, time.Second)

	schedule(t, s, "revoked", t0)
	if got := d.Tick(context.Background()); got != 0 {
		t.Fatalf("delivered %d, want 0", got)
	}
	rows, err := s.DueScheduled(context.Background(), t0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("failed row is still pending: %+v", rows)
	}
}

func TestRun_TicksOnInterval(t *testing.T) {
	s := store.New(testutil.OpenDB(t))
	clk := clock.Fake(t0)
	rec := newRecorder()
	d := New(s, rec, clk, 10*time.Second)
	schedule(t, s, "hello", t0.Add(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	// Run 在 goroutine 中注册 ticker，推进时钟直到第一次 tick 生效。
	deadline := time.Now().Add(2 * time.Second)
	for {
		clk.Advance(10 * time.Second)
		select {
		case text := <-rec.ch:
			if text != "hello" {
				t.Fatalf("delivered %q", text)
			}
			cancel()
			testutil.RequireReceive(t, done, time.Second, "dispatcher exit")
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("dispatcher never delivered")
		}
	}
}
