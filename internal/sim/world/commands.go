package world

import (
	"fmt"
	"strings"

	"dyewash.ai/internal/protocol"
	modelpkg "dyewash.ai/internal/sim/world/kernel/model"
)

func (w *World) applyCommand(cmd protocol.CmdMsg, nowTick uint64) protocol.AckMsg {
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          cmd.Ref,
		ServerTick:      nowTick,
	}
	reject := func(code, msg string) protocol.AckMsg {
		ack.Code = code
		ack.Message = msg
		w.log.Debug().Str("op", cmd.Op).Str("ref", cmd.Ref).Str("code", code).Msg(msg)
		return ack
	}
	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		actor = "HOST"
	}
	pos := modelpkg.FromArray(cmd.Pos)

	switch cmd.Op {
	case protocol.OpDropItem:
		material := strings.TrimSpace(cmd.Material)
		if material == "" {
			return reject(protocol.ErrBadRequest, "missing material")
		}
		if cmd.Count <= 0 || cmd.Count > w.cfg.MaxStack {
			return reject(protocol.ErrBadRequest, fmt.Sprintf("count must be in [1,%d]", w.cfg.MaxStack))
		}
		id := strings.TrimSpace(cmd.ItemID)
		if id == "" {
			id = w.newItemEntityID()
		} else if _, exists := w.items[id]; exists {
			return reject(protocol.ErrConflict, "item_id already in use")
		}
		w.spawnItem(nowTick, actor, id, pos, material, cmd.Count, "DROP")
		w.engine.OnDrop(nowTick, id, material)
		ack.ItemID = id

	case protocol.OpPickupItem:
		e := w.items[cmd.ItemID]
		if e == nil {
			return reject(protocol.ErrNotFound, "no such item")
		}
		if cmd.Count <= 0 || cmd.Count >= e.Count {
			w.removeItem(nowTick, actor, e.EntityID, "PICKUP")
		} else {
			w.setItemStack(nowTick, actor, e, e.Item, e.Count-cmd.Count, "PICKUP")
		}
		ack.ItemID = cmd.ItemID

	case protocol.OpMoveItem:
		if cmd.To == nil {
			return reject(protocol.ErrBadRequest, "missing destination")
		}
		e := w.items[cmd.ItemID]
		if e == nil {
			return reject(protocol.ErrNotFound, "no such item")
		}
		if e.Pos == modelpkg.FromArray(*cmd.To) {
			return reject(protocol.ErrInvalidTarget, "item is already there")
		}
		w.moveItem(nowTick, actor, cmd.ItemID, modelpkg.FromArray(*cmd.To), "HOST")
		ack.ItemID = cmd.ItemID

	case protocol.OpSetCauldron:
		if cmd.Level < 0 || cmd.Level > MaxCauldronLevel {
			return reject(protocol.ErrBadRequest, fmt.Sprintf("level must be in [0,%d]", MaxCauldronLevel))
		}
		block := strings.ToUpper(strings.TrimSpace(cmd.Block))
		if block == "" {
			return reject(protocol.ErrBadRequest, "missing block")
		}
		w.setCauldron(nowTick, actor, pos, block, cmd.Level, "HOST")

	default:
		return reject(protocol.ErrBadRequest, fmt.Sprintf("unknown op %q", cmd.Op))
	}

	ack.Accepted = true
	return ack
}
