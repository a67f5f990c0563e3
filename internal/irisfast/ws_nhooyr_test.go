package irisfast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestWebSocket_DeliversMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		_ = wsjson.Write(r.Context(), c, Message{Msg: "!ttt new", Room: "room-a", Callback: "11"})
		_, _, _ = c.Read(context.Background())
	}))
	defer srv.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), 0, 0)
	got := make(chan *Message, 1)
	ws.OnMessage(func(m *Message) { got <- m })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if ws.State() != WSStateConnected {
		t.Fatalf("state=%s", ws.State())
	}
	select {
	case m := <-got:
		if m.Msg != "!ttt new" || m.Callback != "11" {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-ctx.Done():
		t.Fatalf("no message received")
	}
	if err := ws.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWebSocket_CallbackRegistry(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:1", 0, 0)
	a := ws.OnMessage(func(*Message) {})
	b := ws.OnMessage(func(*Message) {})
	if a == b {
		t.Fatalf("callback ids must be unique")
	}
	ws.RemoveMessageCallback(a)
	if len(ws.msgCbs) != 1 || ws.msgCbs[0].id != b {
		t.Fatalf("wrong callback removed")
	}
	states := []WebSocketState{}
	ws.OnStateChange(func(s WebSocketState) { states = append(states, s) })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.Connect(ctx); err == nil {
		t.Fatalf("expected dial failure")
	}
	if len(states) < 2 || states[0] != WSStateConnecting || states[len(states)-1] != WSStateFailed {
		t.Fatalf("state transitions %v", states)
	}
}
