package worldtest

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"dyewash.ai/internal/protocol"
	"dyewash.ai/internal/sim/catalogs"
	world "dyewash.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join() registers a session via StepWithSessions()
// - Step()/StepFor() issue CMDs via StepOnce()
// - Per-session Out channels carry ACK and EVENT JSON
// - State() reads world state between steps
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T   *testing.T
	Cat *catalogs.MaterialCatalog
	W   *world.World

	DefaultSessionID string

	sessions map[string]*session
	nextRef  int
}

type session struct {
	ID     string
	Out    chan []byte
	acks   []protocol.AckMsg
	events []protocol.Event
}

// NewHarness builds a world for profile tag with default bleaching parameters
// (threshold 1, cost 1, delay 20) and joins one session subscribed to events.
func NewHarness(t *testing.T, tag string, mutate func(*world.WorldConfig)) *Harness {
	t.Helper()
	p, err := catalogs.LookupProfile(tag)
	if err != nil {
		t.Fatalf("LookupProfile: %v", err)
	}
	cat, err := p.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	cfg := world.WorldConfig{
		ID:              "harness",
		TickRateHz:      20,
		ItemTTLTicks:    6000,
		MaxStack:        64,
		Profile:         p,
		ChargeThreshold: 1,
		ChargeCost:      1,
		DelayTicks:      20,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := world.New(cfg, cat, zerolog.Nop())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w, cat)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
func NewHarnessWithWorld(t *testing.T, w *world.World, cat *catalogs.MaterialCatalog) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	h := &Harness{
		T:        t,
		Cat:      cat,
		W:        w,
		sessions: map[string]*session{},
	}
	h.DefaultSessionID = h.Join("S1", true)
	return h
}

// Join registers a session; joining takes one tick.
func (h *Harness) Join(sessionID string, events bool) string {
	h.T.Helper()
	out := make(chan []byte, 256)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepWithSessions([]world.JoinRequest{{
		SessionID: sessionID,
		Events:    events,
		Out:       out,
		Resp:      resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.SessionID != sessionID {
		h.T.Fatalf("welcome for %q, want %q", jr.Welcome.SessionID, sessionID)
	}
	h.sessions[sessionID] = &session{ID: sessionID, Out: out}
	h.drainAll()
	return sessionID
}

func (h *Harness) Leave(sessionID string) {
	h.T.Helper()
	_, _ = h.W.StepWithSessions(nil, []string{sessionID}, nil)
	h.drainAll()
	delete(h.sessions, sessionID)
}

// Step applies cmds from the default session in one tick and returns their ACKs.
func (h *Harness) Step(cmds ...protocol.CmdMsg) []protocol.AckMsg {
	return h.StepFor(h.DefaultSessionID, cmds...)
}

func (h *Harness) StepFor(sessionID string, cmds ...protocol.CmdMsg) []protocol.AckMsg {
	h.T.Helper()
	envs := make([]world.CommandEnvelope, 0, len(cmds))
	for _, c := range cmds {
		c.Type = protocol.TypeCmd
		c.ProtocolVersion = protocol.Version
		if c.Ref == "" {
			h.nextRef++
			c.Ref = fmt.Sprintf("R%d", h.nextRef)
		}
		envs = append(envs, world.CommandEnvelope{SessionID: sessionID, Cmd: c})
	}
	s := h.sessions[sessionID]
	before := 0
	if s != nil {
		before = len(s.acks)
	}
	_, _ = h.W.StepOnce(envs)
	h.drainAll()
	if s == nil {
		return nil
	}
	return append([]protocol.AckMsg(nil), s.acks[before:]...)
}

// StepNoop advances n ticks with no commands.
func (h *Harness) StepNoop(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		_, _ = h.W.StepOnce(nil)
	}
	h.drainAll()
}

// StepUntil advances tick by tick until the world reaches tick.
func (h *Harness) StepUntil(tick uint64) {
	h.T.Helper()
	for h.W.CurrentTick() < tick {
		_, _ = h.W.StepOnce(nil)
	}
	h.drainAll()
}

func (h *Harness) SetCauldron(pos [3]int, block string, level int) {
	h.T.Helper()
	acks := h.Step(protocol.CmdMsg{Op: protocol.OpSetCauldron, Pos: pos, Block: block, Level: level})
	if len(acks) != 1 || !acks[0].Accepted {
		h.T.Fatalf("SET_CAULDRON rejected: %+v", acks)
	}
}

// Drop drops a stack and returns its item id.
func (h *Harness) Drop(pos [3]int, material string, count int) string {
	h.T.Helper()
	acks := h.Step(protocol.CmdMsg{Op: protocol.OpDropItem, Actor: "steve", Pos: pos, Material: material, Count: count})
	if len(acks) != 1 || !acks[0].Accepted {
		h.T.Fatalf("DROP_ITEM rejected: %+v", acks)
	}
	return acks[0].ItemID
}

func (h *Harness) State() world.StateView { return h.W.StateNow() }

// Item returns the item with id from the current state.
func (h *Harness) Item(id string) (world.ItemState, bool) {
	for _, it := range h.State().Items {
		if it.ID == id {
			return it, true
		}
	}
	return world.ItemState{}, false
}

// ItemsAt lists the items at pos, ordered by id.
func (h *Harness) ItemsAt(pos [3]int) []world.ItemState {
	var out []world.ItemState
	for _, it := range h.State().Items {
		if it.Pos == pos {
			out = append(out, it)
		}
	}
	return out
}

func (h *Harness) Cauldron(pos [3]int) (world.CauldronState, bool) {
	for _, c := range h.State().Cauldrons {
		if c.Pos == pos {
			return c, true
		}
	}
	return world.CauldronState{}, false
}

// Events returns the events seen by sessionID of the given type, oldest first.
func (h *Harness) Events(sessionID, typ string) []protocol.Event {
	s := h.sessions[sessionID]
	if s == nil {
		return nil
	}
	var out []protocol.Event
	for _, e := range s.events {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *session) {
	h.T.Helper()
	for {
		var b []byte
		select {
		case b = <-s.Out:
		default:
			return
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			h.T.Fatalf("decode: %v", err)
		}
		switch base.Type {
		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(b, &ack); err != nil {
				h.T.Fatalf("unmarshal ACK: %v", err)
			}
			s.acks = append(s.acks, ack)
		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(b, &ev); err != nil {
				h.T.Fatalf("unmarshal EVENT: %v", err)
			}
			s.events = append(s.events, ev.Events...)
		}
	}
}
