package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/clock"
	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/service"
	"github.com/dilwearus-ops/neochat-server/internal/store"
	"github.com/dilwearus-ops/neochat-server/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	hub   *Hub
	store *store.Store
	clock *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.New(testutil.OpenDB(t))
	clk := clock.Fake(t0)
	users := service.NewUserService(st, "test-secret", time.Minute, time.Hour)
	hub := NewHub(Deps{Store: st, Auth: users, Clock: clk}, Options{})
	return &harness{t: t, hub: hub, store: st, clock: clk}
}

// connect 注册并登录一个不带网络连接的会话，清空握手阶段的输出。
func (hs *harness) connect(nick string) *Client {
	hs.t.Helper()
	c := newClient(nil, 512)
	frame := fmt.Sprintf(`{"type":"auth_req","username":%q,"password":"pw","action":"register"}`, nick)
	if err := hs.hub.login(context.Background(), c, []byte(frame)); err != nil {
		hs.t.Fatalf("login %s: %v", nick, err)
	}
	drain(c)
	return c
}

func (hs *harness) send(c *Client, v map[string]any) {
	hs.t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		hs.t.Fatal(err)
	}
	hs.hub.HandleFrame(context.Background(), c, b)
}

func drain(c *Client) []map[string]any {
	var out []map[string]any
	for {
		select {
		case b := <-c.send:
			var m map[string]any
			_ = json.Unmarshal(b, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

// expect 取出队列中第一个 type 匹配的事件，之前的其他事件被丢弃。
func expect(t *testing.T, c *Client, typ string) map[string]any {
	t.Helper()
	for {
		select {
		case b := <-c.send:
			var m map[string]any
			if err := json.Unmarshal(b, &m); err != nil {
				t.Fatalf("bad outbound frame %s: %v", b, err)
			}
			if m["type"] == typ {
				return m
			}
		default:
			t.Fatalf("%s: no %q event queued", c.nick, typ)
			return nil
		}
	}
}

func expectNone(t *testing.T, c *Client, typ string) {
	t.Helper()
	for _, m := range drain(c) {
		if m["type"] == typ {
			t.Fatalf("%s: unexpected %q event: %v", c.nick, typ, m)
		}
	}
}

// teamRoom 让 alice 创建 Team，bob 加入。
func (hs *harness) teamRoom(alice, bob *Client) {
	hs.t.Helper()
	hs.send(alice, map[string]any{"type": "create_room", "name": "Team", "rtype": "group"})
	rooms := expect(hs.t, alice, "rooms_list")["rooms"].([]any)
	if len(rooms) != 1 || rooms[0].(map[string]any)["id"] != "@team" {
		hs.t.Fatalf("rooms_list = %v", rooms)
	}
	hs.send(bob, map[string]any{"type": "join_room", "room_id": "@team"})
	expect(hs.t, bob, "room_joined")
	drain(alice)
	drain(bob)
}

func TestLogin_AuthSuccessThenRoomsList(t *testing.T) {
	hs := newHarness(t)
	c := newClient(nil, 16)
	err := hs.hub.login(context.Background(), c, []byte(`{"type":"auth_req","username":"alice_01","password":"pw","action":"register"}`))
	if err != nil {
		t.Fatal(err)
	}
	events := drain(c)
	if len(events) < 3 {
		t.Fatalf("got %d events, want auth_success, rooms_list, contacts_list", len(events))
	}
	if events[0]["type"] != "auth_success" || events[0]["nick"] != "alice_01" || events[0]["token"] == "" {
		t.Errorf("first event = %v", events[0])
	}
	if events[0]["status"] != models.DefaultStatus {
		t.Errorf("status = %v", events[0]["status"])
	}
	if events[1]["type"] != "rooms_list" {
		t.Errorf("second event = %v", events[1])
	}
	if !hs.hub.IsOnline("alice_01") {
		t.Error("alice should be online")
	}
}

func TestLogin_Failures(t *testing.T) {
	hs := newHarness(t)
	hs.connect("alice_01")

	tests := []struct {
		name  string
		frame string
		text  string
	}{
		{"not auth", `{"type":"msg","text":"hi","room_name":"@x"}`, "authentication required"},
		{"bad handle", `{"type":"auth_req","username":"a!","password":"pw","action":"login"}`, "invalid handle"},
		{"short handle", `{"type":"auth_req","username":"ab","password":"pw","action":"register"}`, "invalid handle"},
		{"taken", `{"type":"auth_req","username":"alice_01","password":"pw","action":"register"}`, "handle already taken"},
		{"wrong password", `{"type":"auth_req","username":"alice_01","password":"nope","action":"login"}`, "invalid credentials"},
		{"unknown user", `{"type":"auth_req","username":"ghost_9","password":"pw","action":"login"}`, "invalid credentials"},
		{"already online", `{"type":"auth_req","username":"alice_01","password":"pw","action":"login"}`, "already online"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(nil, 4)
			if err := hs.hub.login(context.Background(), c, []byte(tt.frame)); err == nil {
				t.Fatal("login should fail")
			}
			ev := expect(t, c, "auth_error")
			if ev["text"] != tt.text {
				t.Errorf("text = %v, want %q", ev["text"], tt.text)
			}
		})
	}
	if got := hs.hub.Online(); !reflect.DeepEqual(got, []string{"alice_01"}) {
		t.Errorf("online = %v", got)
	}
}

func TestScenario_RoomMessageAndReactionToggle(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)

	hs.send(alice, map[string]any{"type": "msg", "text": "hi", "room_name": "@team"})
	var id float64
	for _, c := range []*Client{alice, bob} {
		m := expect(t, c, "msg")
		if m["text"] != "hi" || m["sender"] != "alice_01" || m["room_name"] != "@team" {
			t.Errorf("%s got %v", c.nick, m)
		}
		if m["is_edited"] != float64(0) {
			t.Errorf("is_edited = %v", m["is_edited"])
		}
		if r := m["reactions"].(map[string]any); len(r) != 0 {
			t.Errorf("reactions = %v", r)
		}
		id = m["id"].(float64)
	}
	if id <= 0 {
		t.Fatalf("message id = %v", id)
	}

	hs.send(bob, map[string]any{"type": "reaction", "message_id": id, "emoji": ":+1:"})
	for _, c := range []*Client{alice, bob} {
		u := expect(t, c, "reaction_update")
		want := map[string]any{":+1:": []any{"bob_02"}}
		if u["id"] != id || !reflect.DeepEqual(u["reactions"], want) {
			t.Errorf("%s got %v", c.nick, u)
		}
	}

	hs.send(bob, map[string]any{"type": "reaction", "message_id": id, "emoji": ":+1:"})
	for _, c := range []*Client{alice, bob} {
		u := expect(t, c, "reaction_update")
		if r := u["reactions"].(map[string]any); len(r) != 0 {
			t.Errorf("%s reactions after second toggle = %v", c.nick, r)
		}
	}
}

func TestScenario_BannedUserCannotPost(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)

	hs.send(alice, map[string]any{"type": "ban_user", "room_name": "@team", "user": "bob_02"})
	expect(t, bob, "info")
	drain(alice)

	hs.send(bob, map[string]any{"type": "msg", "text": "let me in", "room_name": "@team"})
	if ev := expect(t, bob, "error"); ev["text"] != "you are banned in this room" {
		t.Errorf("error = %v", ev)
	}
	expectNone(t, alice, "msg")

	msgs, err := hs.store.History(context.Background(), store.HistoryQuery{Context: models.ContextRoom, Target: "@team"})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("banned post was persisted: %+v", msgs)
	}
}

func TestScenario_RateLimit(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)

	for i := 0; i < 10; i++ {
		hs.send(alice, map[string]any{"type": "msg", "text": fmt.Sprintf("m%d", i), "room_name": "@team"})
		expect(t, alice, "msg")
	}
	hs.send(alice, map[string]any{"type": "msg", "text": "eleventh", "room_name": "@team"})
	if ev := expect(t, alice, "error"); ev["text"] != "you are sending messages too fast" {
		t.Errorf("error = %v", ev)
	}

	msgs, _ := hs.store.History(context.Background(), store.HistoryQuery{Context: models.ContextRoom, Target: "@team"})
	if len(msgs) != 10 {
		t.Errorf("persisted %d messages, want 10", len(msgs))
	}

	hs.clock.Advance(61 * time.Second)
	hs.send(alice, map[string]any{"type": "msg", "text": "later", "room_name": "@team"})
	expect(t, alice, "msg")
}

func TestScenario_BlockedContent(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)

	hs.send(alice, map[string]any{"type": "msg", "text": "buy SPAM now", "room_name": "@team"})
	if ev := expect(t, alice, "error"); ev["text"] != "message contains blocked content" {
		t.Errorf("error = %v", ev)
	}
	expectNone(t, bob, "msg")
}

func TestScenario_PollVoteReplaces(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)

	hs.send(alice, map[string]any{"type": "poll", "text": "lunch?", "options": []string{"pizza", "sushi"}, "room_name": "@team"})
	poll := expect(t, bob, "poll")
	if !reflect.DeepEqual(poll["options"], []any{"pizza", "sushi"}) {
		t.Errorf("options = %v", poll["options"])
	}
	if r, ok := poll["poll_results"].(map[string]any); !ok || len(r) != 0 {
		t.Errorf("poll_results = %v", poll["poll_results"])
	}
	id := poll["id"]

	hs.send(bob, map[string]any{"type": "vote_poll", "message_id": id, "option_index": 0})
	expect(t, alice, "poll_update")
	hs.send(bob, map[string]any{"type": "vote_poll", "message_id": id, "option_index": 1})
	u := expect(t, alice, "poll_update")
	want := map[string]any{"1": []any{"bob_02"}}
	if !reflect.DeepEqual(u["results"], want) {
		t.Errorf("results = %v, want %v", u["results"], want)
	}

	hs.send(bob, map[string]any{"type": "vote_poll", "message_id": id, "option_index": 5})
	expect(t, bob, "error")
}

func TestScenario_PrivateMessages(t *testing.T) {
	hs := newHarness(t)
	alice, bob, carol := hs.connect("alice_01"), hs.connect("bob_02"), hs.connect("carol")

	hs.send(alice, map[string]any{"type": "msg", "text": "psst", "recipient": "bob_02"})
	for _, c := range []*Client{alice, bob} {
		m := expect(t, c, "msg")
		if m["recipient"] != "bob_02" || m["context"] != "pm" {
			t.Errorf("%s got %v", c.nick, m)
		}
	}
	expectNone(t, carol, "msg")

	hs.send(alice, map[string]any{"type": "msg", "text": "me", "recipient": "alice_01"})
	expect(t, alice, "error")
	hs.send(alice, map[string]any{"type": "msg", "text": "who", "recipient": "nobody"})
	expect(t, alice, "error")

	hs.send(bob, map[string]any{"type": "history_req", "context": "pm", "target": "alice_01"})
	hist := expect(t, bob, "history")
	if h := hist["history"].([]any); len(h) != 1 {
		t.Errorf("history = %v", h)
	}
	if r := expect(t, alice, "msgs_read_by_user"); r["reader"] != "bob_02" {
		t.Errorf("read receipt = %v", r)
	}
}

func TestScenario_ForwardKeepsTypeAndPrefixesText(t *testing.T) {
	hs := newHarness(t)
	alice, bob, carol := hs.connect("alice_01"), hs.connect("bob_02"), hs.connect("carol")
	hs.teamRoom(alice, bob)

	hs.send(alice, map[string]any{"type": "msg", "text": "hello team", "room_name": "@team"})
	id := expect(t, bob, "msg")["id"].(float64)
	drain(alice)
	drain(carol)

	hs.send(bob, map[string]any{"type": "forward_msg", "message_id": id, "target_type": "pm", "target": "alice_01"})
	fwd := expect(t, alice, "msg")
	if fwd["text"] != forwardPrefix+"hello team" || fwd["context"] != "pm" || fwd["sender"] != "bob_02" {
		t.Errorf("forwarded = %v", fwd)
	}

	hs.send(carol, map[string]any{"type": "forward_msg", "message_id": id, "target_type": "pm", "target": "alice_01"})
	expect(t, carol, "error")
	expectNone(t, alice, "msg")
}

func TestScenario_ThreadVisibleOnlyToParticipants(t *testing.T) {
	hs := newHarness(t)
	alice, bob, carol := hs.connect("alice_01"), hs.connect("bob_02"), hs.connect("carol")

	hs.send(alice, map[string]any{"type": "msg", "text": "question", "recipient": "bob_02"})
	root := expect(t, bob, "msg")["id"].(float64)
	hs.send(bob, map[string]any{"type": "msg", "text": "answer", "recipient": "alice_01", "thread_id": root})
	expect(t, alice, "msg")
	drain(alice)
	drain(bob)

	hs.send(alice, map[string]any{"type": "get_thread", "thread_id": root})
	if msgs := expect(t, alice, "thread_messages")["messages"].([]any); len(msgs) != 1 || msgs[0].(map[string]any)["text"] != "answer" {
		t.Errorf("thread = %v", msgs)
	}

	hs.send(carol, map[string]any{"type": "get_thread", "thread_id": root})
	if ev := expect(t, carol, "error"); ev["text"] != "not found" {
		t.Errorf("error = %v", ev)
	}
	expectNone(t, carol, "thread_messages")
}

func TestScenario_ReadReceiptOnlyWhenSomethingWasUnread(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")

	hs.send(alice, map[string]any{"type": "msg", "text": "ping", "recipient": "bob_02"})
	expect(t, bob, "msg")
	drain(alice)

	hs.send(bob, map[string]any{"type": "mark_read", "sender": "alice_01"})
	expect(t, alice, "msgs_read_by_user")

	hs.send(bob, map[string]any{"type": "mark_read", "sender": "alice_01"})
	expectNone(t, alice, "msgs_read_by_user")
}

func TestScenario_ChannelOnlyAdminsPost(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.send(alice, map[string]any{"type": "create_room", "name": "News", "rtype": "channel"})
	hs.send(bob, map[string]any{"type": "join_room", "room_id": "@news"})
	expect(t, bob, "room_joined")

	hs.send(bob, map[string]any{"type": "msg", "text": "hello", "room_name": "@news"})
	if ev := expect(t, bob, "error"); ev["text"] != "insufficient permissions" {
		t.Errorf("error = %v", ev)
	}
	hs.send(alice, map[string]any{"type": "msg", "text": "announcement", "room_name": "@news"})
	expect(t, bob, "msg")
}

func TestScenario_EditDeleteAndRoles(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)

	hs.send(alice, map[string]any{"type": "msg", "text": "draft", "room_name": "@team"})
	id := expect(t, bob, "msg")["id"]
	drain(alice)

	hs.send(bob, map[string]any{"type": "edit_msg", "id": id, "text": "hijack"})
	expect(t, bob, "error")

	hs.send(alice, map[string]any{"type": "edit_msg", "id": id, "text": "final <b>"})
	if ev := expect(t, bob, "msg_edited"); ev["text"] != "final &lt;b&gt;" {
		t.Errorf("msg_edited = %v", ev)
	}

	hs.send(bob, map[string]any{"type": "delete_msg", "id": id})
	if ev := expect(t, bob, "error"); ev["text"] != "insufficient permissions" {
		t.Errorf("error = %v", ev)
	}

	hs.send(alice, map[string]any{"type": "change_member_role", "room_name": "@team", "username": "bob_02", "role": "moderator"})
	expect(t, bob, "info")

	hs.send(bob, map[string]any{"type": "delete_msg", "id": id, "reason": "off topic"})
	if ev := expect(t, alice, "msg_deleted"); ev["id"] != id {
		t.Errorf("msg_deleted = %v", ev)
	}

	hs.send(alice, map[string]any{"type": "get_deleted_log", "room_name": "@team"})
	entries := expect(t, alice, "deleted_log")["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %v", entries)
	}
	e := entries[0].(map[string]any)
	if e["deleted_by"] != "bob_02" || e["reason"] != "off topic" || e["sender"] != "alice_01" {
		t.Errorf("entry = %v", e)
	}
}

func TestScenario_PinAndHistoryRoomInfo(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)

	hs.send(alice, map[string]any{"type": "msg", "text": "rules", "room_name": "@team"})
	id := expect(t, alice, "msg")["id"]

	hs.send(bob, map[string]any{"type": "pin_msg", "room_name": "@team", "id": id})
	expect(t, bob, "error")

	hs.send(alice, map[string]any{"type": "pin_msg", "room_name": "@team", "id": id})
	pinned := expect(t, bob, "pinned_update")
	if pinned["msg"].(map[string]any)["id"] != id {
		t.Errorf("pinned_update = %v", pinned)
	}

	hs.send(bob, map[string]any{"type": "history_req", "context": "room", "target": "@team"})
	hist := expect(t, bob, "history")
	info := hist["room_info"].(map[string]any)
	if info["member_count"] != float64(2) || len(info["members"].([]any)) != 2 {
		t.Errorf("room_info = %v", info)
	}
	if hist["pinned"].(map[string]any)["text"] != "rules" {
		t.Errorf("pinned = %v", hist["pinned"])
	}
}

func TestScenario_InviteFlow(t *testing.T) {
	hs := newHarness(t)
	alice, carol := hs.connect("alice_01"), hs.connect("carol")
	hs.send(alice, map[string]any{"type": "create_room", "name": "Team"})

	hs.send(alice, map[string]any{"type": "create_invite", "room_name": "@team"})
	inv := expect(t, alice, "invite_created")
	code := inv["code"].(string)
	if inv["link"] != "join/"+code {
		t.Errorf("link = %v", inv["link"])
	}

	hs.send(carol, map[string]any{"type": "join_with_invite", "code": code})
	if r := expect(t, carol, "join_result"); r["success"] != true || r["room_name"] != "@team" {
		t.Errorf("join_result = %v", r)
	}
	hs.send(carol, map[string]any{"type": "join_with_invite", "code": code})
	if r := expect(t, carol, "join_result"); r["success"] != false || r["message"] != "already a member" {
		t.Errorf("second join_result = %v", r)
	}

	dave := hs.connect("dave")
	hs.clock.Advance(25 * time.Hour)
	hs.send(dave, map[string]any{"type": "join_with_invite", "code": code})
	if r := expect(t, dave, "join_result"); r["success"] != false || r["message"] != "invite code has expired" {
		t.Errorf("expired join_result = %v", r)
	}
	if ok, _ := hs.store.IsMember(context.Background(), "@team", "dave"); ok {
		t.Error("expired invite granted membership")
	}
}

func TestScenario_KickRemovesMembership(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)

	hs.send(alice, map[string]any{"type": "kick_user", "room_name": "@team", "user": "bob_02"})
	expect(t, bob, "info")
	if rooms := expect(t, bob, "rooms_list")["rooms"].([]any); len(rooms) != 0 {
		t.Errorf("kicked user still sees %v", rooms)
	}
	hs.send(bob, map[string]any{"type": "msg", "text": "hello?", "room_name": "@team"})
	if ev := expect(t, bob, "error"); ev["text"] != "you are not a member of this room" {
		t.Errorf("error = %v", ev)
	}
}

func TestScenario_ScheduledMessage(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)

	due := unixSeconds(t0.Add(time.Minute))
	hs.send(alice, map[string]any{"type": "msg", "text": "later", "room_name": "@team", "scheduled_time": due})
	expect(t, alice, "message_scheduled")
	expectNone(t, bob, "msg")

	rows, err := hs.store.DueScheduled(context.Background(), t0.Add(2*time.Minute), 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("due rows = %v, %v", rows, err)
	}
	if err := hs.hub.DeliverScheduled(context.Background(), rows[0]); err != nil {
		t.Fatal(err)
	}
	if m := expect(t, bob, "msg"); m["text"] != "later" || m["sender"] != "alice_01" {
		t.Errorf("delivered = %v", m)
	}
}

func TestScenario_SearchAndDirectory(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.teamRoom(alice, bob)
	hs.send(alice, map[string]any{"type": "create_room", "name": "Team Two"})
	drain(alice)

	hs.send(bob, map[string]any{"type": "search_rooms", "query": "team"})
	results := expect(t, bob, "search_results")["results"].([]any)
	member := map[string]bool{}
	for _, r := range results {
		m := r.(map[string]any)
		member[m["id"].(string)] = m["is_member"].(bool)
	}
	if !member["@team"] || member["@teamtwo"] {
		t.Errorf("is_member = %v", member)
	}

	hs.send(bob, map[string]any{"type": "search_rooms", "query": "  "})
	if r := expect(t, bob, "search_results")["results"].([]any); len(r) != 0 {
		t.Errorf("empty query returned %v", r)
	}

	hs.send(bob, map[string]any{"type": "search_users", "query": "ali"})
	users := expect(t, bob, "search_users_results")["results"].([]any)
	if len(users) != 1 || users[0].(map[string]any)["username"] != "alice_01" {
		t.Errorf("search_users = %v", users)
	}
}

func TestLogout_BroadcastsPresence(t *testing.T) {
	hs := newHarness(t)
	alice, bob := hs.connect("alice_01"), hs.connect("bob_02")
	hs.send(alice, map[string]any{"type": "msg", "text": "hey", "recipient": "bob_02"})
	drain(alice)

	hs.clock.Advance(time.Second)
	hs.hub.logout(bob)
	if hs.hub.IsOnline("bob_02") {
		t.Fatal("bob still registered")
	}
	users := expect(t, alice, "contacts_list")["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("contacts = %v", users)
	}
	u := users[0].(map[string]any)
	if u["nick"] != "bob_02" || u["online"] != false || u["last_seen"] == nil {
		t.Errorf("contact = %v", u)
	}
}

func TestHandleFrame_InvalidInputKeepsSession(t *testing.T) {
	hs := newHarness(t)
	alice := hs.connect("alice_01")

	for _, frame := range []string{`{"type":"teleport"}`, `not json`, `{"type":"reaction","message_id":999,"emoji":"x"}`} {
		hs.hub.HandleFrame(context.Background(), alice, []byte(frame))
		expect(t, alice, "error")
	}
	hs.send(alice, map[string]any{"type": "get_recent_contacts"})
	expect(t, alice, "recent_contacts")
}
