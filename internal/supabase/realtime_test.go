package supabase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/Van103/fun-charity-sub001/internal/app/feed"
)

func TestDecodeChange(t *testing.T) {
	payload := `{
		"type": "INSERT",
		"table": "friendships",
		"commit_timestamp": "2024-03-01T10:00:00Z",
		"record": {"id": 7, "requester_id": "u2", "recipient_id": "u1", "status": "pending"},
		"old_record": {}
	}`

	ev, ok := decodeChange(gjson.Parse(payload))
	if !ok {
		t.Fatal("decode failed")
	}
	if ev.Table != feed.TableFriendships || ev.Kind != feed.KindInsert {
		t.Fatalf("table/kind = %s/%s", ev.Table, ev.Kind)
	}
	if ev.ActorID != "u2" || ev.RecipientID != "u1" || ev.Status != "pending" {
		t.Fatalf("unexpected fields: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("commit timestamp not parsed")
	}
}

func TestDecodeChange_DonationTransition(t *testing.T) {
	payload := `{
		"type": "UPDATE",
		"table": "donations",
		"record": {"id": 3, "donor_id": "u5", "campaign_id": "c1", "status": "completed"},
		"old_record": {"status": "pending"}
	}`

	ev, ok := decodeChange(gjson.Parse(payload))
	if !ok {
		t.Fatal("decode failed")
	}
	if ev.Kind != feed.KindUpdate || ev.ActorID != "u5" {
		t.Fatalf("unexpected fields: %+v", ev)
	}
	if ev.Status != "completed" || ev.OldStatus != "pending" {
		t.Fatalf("status transition lost: %+v", ev)
	}
}

func TestDecodeChange_RejectsIncompleteFrames(t *testing.T) {
	for _, payload := range []string{
		`{}`,
		`{"type": "INSERT"}`,
		`{"table": "friendships"}`,
		`{"type": "TRUNCATE", "table": "friendships"}`,
	} {
		if _, ok := decodeChange(gjson.Parse(payload)); ok {
			t.Errorf("decoded incomplete frame %s", payload)
		}
	}
}

// realtimeServer upgrades connections, acks joins, and lets the test push
// change frames to the connected client.
type realtimeServer struct {
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
	// readErrs, when set, receives the error that ended each connection's
	// read loop.
	readErrs chan error
}

func (s *realtimeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	go func() {
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				if s.readErrs != nil {
					s.readErrs <- err
				}
				return
			}
			if msg["event"] == "phx_join" {
				conn.WriteJSON(map[string]any{
					"topic":   msg["topic"],
					"event":   "phx_reply",
					"payload": map[string]any{"status": "ok"},
					"ref":     msg["ref"],
				})
			}
		}
	}()
	s.conns <- conn
}

func TestRealtimeFeed_PublishesDecodedChanges(t *testing.T) {
	rts := &realtimeServer{conns: make(chan *websocket.Conn, 1)}
	server := httptest.NewServer(rts)
	defer server.Close()

	client, err := New(Config{ProjectURL: server.URL, APIKey: "anon-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	bus := feed.NewBus(16)
	received := make(chan feed.Event, 1)
	bus.Subscribe(nil, func(ev feed.Event) { received <- ev })

	rt, err := NewRealtimeFeed(client, bus, nil, feed.TableFriendships)
	if err != nil {
		t.Fatalf("new realtime feed: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := rt.Stop(ctx); err != nil {
			t.Errorf("stop: %v", err)
		}
	}()

	var conn *websocket.Conn
	select {
	case conn = <-rts.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	frame := map[string]any{
		"topic": "realtime:public:friendships",
		"event": "postgres_changes",
		"payload": map[string]any{
			"data": map[string]any{
				"type":   "INSERT",
				"table":  "friendships",
				"record": map[string]any{"id": 1, "requester_id": "u2", "recipient_id": "u1", "status": "pending"},
			},
		},
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case ev := <-received:
		if ev.Table != feed.TableFriendships || ev.ActorID != "u2" || ev.RecipientID != "u1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change frame never reached the bus")
	}
}

func TestRealtimeFeed_StopSendsCloseFrame(t *testing.T) {
	rts := &realtimeServer{
		conns:    make(chan *websocket.Conn, 1),
		readErrs: make(chan error, 1),
	}
	server := httptest.NewServer(rts)
	defer server.Close()

	client, err := New(Config{ProjectURL: server.URL, APIKey: "anon-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	rt, err := NewRealtimeFeed(client, feed.NewBus(4), nil, feed.TableFriendships)
	if err != nil {
		t.Fatalf("new realtime feed: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-rts.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rt.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case err := <-rts.readErrs:
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("connection ended with %v, want normal closure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server read loop never ended")
	}
}

func TestRealtimeFeed_StartTwiceFails(t *testing.T) {
	rts := &realtimeServer{conns: make(chan *websocket.Conn, 4)}
	server := httptest.NewServer(rts)
	defer server.Close()

	client, _ := New(Config{ProjectURL: server.URL, APIKey: "anon-key"})
	rt, err := NewRealtimeFeed(client, feed.NewBus(4), nil)
	if err != nil {
		t.Fatalf("new realtime feed: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rt.Start(context.Background()); err == nil {
		t.Fatal("second start accepted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rt.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := rt.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
