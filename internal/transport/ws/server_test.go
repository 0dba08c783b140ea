package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dyewash.ai/internal/protocol"
	"dyewash.ai/internal/sim/catalogs"
	"dyewash.ai/internal/sim/world"
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	p, err := catalogs.LookupProfile("v1_17")
	if err != nil {
		t.Fatalf("LookupProfile: %v", err)
	}
	cat, err := p.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	w, err := world.New(world.WorldConfig{
		ID:              "ws_test",
		TickRateHz:      50,
		MaxStack:        64,
		Profile:         p,
		ChargeThreshold: 1,
		ChargeCost:      1,
		DelayTicks:      5,
	}, cat, zerolog.Nop())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func newTestServer(t *testing.T, w *world.World) *Server {
	t.Helper()
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return NewServer(w, v, zerolog.Nop())
}

func runWorld(t *testing.T, w *world.World) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func serve(t *testing.T, s *Server) string {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startServer(t *testing.T) (*world.World, string) {
	t.Helper()
	w := newTestWorld(t)
	s := newTestServer(t, w)
	runWorld(t, w)
	return w, serve(t, s)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readType[T any](t *testing.T, conn *websocket.Conn, want string) T {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read %s: %v", want, err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil || base.Type != want {
		t.Fatalf("expected %s, got %s", want, string(b))
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode %s: %v", want, err)
	}
	return out
}

func hello(events bool) protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "paper-bridge",
		Capabilities:    protocol.HelloCapabilities{Events: events},
	}
}

func TestServer_HandshakeAndCommands(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	send(t, conn, hello(false))
	welcome := readType[protocol.WelcomeMsg](t, conn, protocol.TypeWelcome)
	if welcome.SessionID == "" || welcome.WorldID != "ws_test" {
		t.Fatalf("welcome: %+v", welcome)
	}
	if welcome.WorldParams.Profile != "v1_17" || welcome.WorldParams.WaterCauldron != "WATER_CAULDRON" {
		t.Fatalf("world params: %+v", welcome.WorldParams)
	}

	send(t, conn, protocol.CmdMsg{
		Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Ref: "c1",
		Op: protocol.OpSetCauldron, Pos: [3]int{0, 64, 0}, Block: "WATER_CAULDRON", Level: 3,
	})
	ack := readType[protocol.AckMsg](t, conn, protocol.TypeAck)
	if !ack.Accepted || ack.AckFor != "c1" {
		t.Fatalf("ack c1: %+v", ack)
	}

	send(t, conn, protocol.CmdMsg{
		Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Ref: "c2",
		Op: protocol.OpDropItem, Pos: [3]int{0, 64, 0}, Material: "RED_WOOL", Count: 4,
	})
	ack = readType[protocol.AckMsg](t, conn, protocol.TypeAck)
	if !ack.Accepted || ack.AckFor != "c2" || ack.ItemID == "" {
		t.Fatalf("ack c2: %+v", ack)
	}
}

func TestServer_RejectsInvalidCommand(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	send(t, conn, hello(false))
	_ = readType[protocol.WelcomeMsg](t, conn, protocol.TypeWelcome)

	// Lowercase material fails the schema before it reaches the world.
	send(t, conn, map[string]any{
		"type": protocol.TypeCmd, "protocol_version": protocol.Version, "ref": "bad",
		"op": protocol.OpDropItem, "pos": []int{0, 0, 0}, "material": "red_wool", "count": 1,
	})
	ack := readType[protocol.AckMsg](t, conn, protocol.TypeAck)
	if ack.Accepted || ack.Code != protocol.ErrProtoBadRequest || ack.AckFor != "bad" {
		t.Fatalf("ack: %+v", ack)
	}

	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "again"})
	ack = readType[protocol.AckMsg](t, conn, protocol.TypeAck)
	if ack.Accepted || ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("ack: %+v", ack)
	}
}

func TestServer_RequiresHello(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	send(t, conn, protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Op: protocol.OpPickupItem, ItemID: "IT000001"})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestServer_EventsForSubscribedSessions(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	send(t, conn, hello(true))
	_ = readType[protocol.WelcomeMsg](t, conn, protocol.TypeWelcome)

	send(t, conn, protocol.CmdMsg{
		Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Ref: "c1",
		Op: protocol.OpSetCauldron, Pos: [3]int{1, 2, 3}, Block: "WATER_CAULDRON", Level: 2,
	})

	// The ACK and the tick's EVENT batch may arrive in either order.
	var sawAck, sawEvent bool
	deadline := time.Now().Add(3 * time.Second)
	for !(sawAck && sawEvent) {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (ack=%v event=%v)", err, sawAck, sawEvent)
		}
		base, _ := protocol.DecodeBase(b)
		switch base.Type {
		case protocol.TypeAck:
			sawAck = true
		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(b, &ev); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			for _, e := range ev.Events {
				if e["type"] == "CAULDRON_CHANGED" {
					sawEvent = true
				}
			}
		}
	}
}

func TestServer_JoinTimeoutLeavesWorld(t *testing.T) {
	w := newTestWorld(t)
	s := newTestServer(t, w)
	s.joinTimeout = 50 * time.Millisecond
	url := serve(t, s)

	// The world is not running yet, so the join is queued but never answered.
	conn := dial(t, url)
	send(t, conn, hello(true))
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected close after join timeout, got %v", err)
	}

	runWorld(t, w)
	deadline := time.Now().Add(3 * time.Second)
	for w.Metrics().Tick < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("world did not tick")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if m := w.Metrics(); m.Clients != 0 {
		t.Fatalf("timed-out session still registered: clients=%d", m.Clients)
	}
}
