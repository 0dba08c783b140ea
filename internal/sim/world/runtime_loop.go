package world

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dyewash.ai/internal/protocol"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.shutdown()

	var pendingCommands []CommandEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.adminState:
			w.handleAdminState(req)
		case env := <-w.inbox:
			pendingCommands = append(pendingCommands, env)
		case <-ticker.C:
			w.stepInternal(pendingJoins, pendingLeaves, pendingCommands)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingCommands = pendingCommands[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// shutdown drops every pending transformation; they are not persisted.
func (w *World) shutdown() {
	if n := w.engine.Shutdown(); n > 0 {
		w.log.Info().Int("pending", n).Uint64("tick", w.tick.Load()).Msg("world stopped with pending transformations")
	}
}

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(commands []CommandEnvelope) (tick uint64, digest string) {
	return w.StepWithSessions(nil, nil, commands)
}

// StepWithSessions is StepOnce with session joins and leaves applied at the tick boundary.
func (w *World) StepWithSessions(joins []JoinRequest, leaves []string, commands []CommandEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.stepInternal(joins, leaves, commands)
	return tick, digest
}

// newItemEntityID skips ids a host already claimed for its own drops.
func (w *World) newItemEntityID() string {
	for {
		n := w.nextItemNum.Add(1)
		id := fmt.Sprintf("IT%06d", n)
		if _, taken := w.items[id]; !taken {
			return id
		}
	}
}

func (w *World) emit(ev protocol.Event) {
	w.eventsThisTick = append(w.eventsThisTick, ev)
}

// flushEvents sends this tick's events as one EVENT message to subscribed sessions.
func (w *World) flushEvents(nowTick uint64) {
	if len(w.eventsThisTick) == 0 {
		return
	}
	defer func() { w.eventsThisTick = w.eventsThisTick[:0] }()
	if len(w.clients) == 0 {
		return
	}
	b, err := json.Marshal(protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		WorldID:         w.cfg.ID,
		Events:          w.eventsThisTick,
	})
	if err != nil {
		w.log.Error().Err(err).Msg("encode events")
		return
	}
	for _, cl := range w.clients {
		if !cl.Events {
			continue
		}
		if !sendLatest(cl.Out, b) {
			w.eventsDropped++
		}
	}
}

func (w *World) sendTo(sessionID string, v any) {
	cl := w.clients[sessionID]
	if cl == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if !sendLatest(cl.Out, b) {
		w.eventsDropped++
	}
}

// sendLatest makes room by dropping the oldest queued message. It reports false
// if something had to be dropped.
func sendLatest(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
	return false
}
