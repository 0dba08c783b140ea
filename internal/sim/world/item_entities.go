package world

import (
	"dyewash.ai/internal/protocol"
	itemspkg "dyewash.ai/internal/sim/world/feature/entities/items"
)

func (w *World) itemStore() itemspkg.Store {
	s := itemspkg.Store{ByID: w.items, ByPos: w.itemsAt, Audit: w.auditEvent}
	if w.cfg.ItemTTLTicks > 0 {
		s.TTL = uint64(w.cfg.ItemTTLTicks)
	}
	return s
}

func (w *World) spawnItem(nowTick uint64, actor, id string, pos Vec3i, item string, count int, reason string) *ItemEntity {
	e := w.itemStore().Spawn(nowTick, actor, id, pos, item, count, reason)
	if e == nil {
		return nil
	}
	w.emit(protocol.Event{
		"type":     "ITEM_SPAWNED",
		"item_id":  e.EntityID,
		"material": e.Item,
		"count":    e.Count,
		"pos":      e.Pos.ToArray(),
		"reason":   reason,
	})
	return e
}

func (w *World) removeItem(nowTick uint64, actor, id, reason string) {
	if e := w.itemStore().Remove(nowTick, actor, id, reason); e != nil {
		w.emit(protocol.Event{"type": "ITEM_REMOVED", "item_id": id, "reason": reason})
	}
}

func (w *World) moveItem(nowTick uint64, actor, id string, to Vec3i, reason string) {
	if w.itemStore().Move(nowTick, actor, id, to, reason) {
		w.emit(protocol.Event{"type": "ITEM_MOVED", "item_id": id, "pos": to.ToArray()})
	}
}

func (w *World) setItemStack(nowTick uint64, actor string, e *ItemEntity, item string, count int, reason string) {
	if e.Item == item && e.Count == count {
		return
	}
	from, fromCount := e.Item, e.Count
	e.Item = item
	e.Count = count
	w.auditEvent(nowTick, actor, "ITEM_CHANGE", e.Pos, reason, map[string]any{
		"entity_id":  e.EntityID,
		"from":       from,
		"from_count": fromCount,
		"to":         item,
		"count":      count,
	})
	w.emit(protocol.Event{"type": "ITEM_CHANGED", "item_id": e.EntityID, "material": item, "count": count})
}

// systemMerge combines co-located stacks and tells the engine about each merge.
func (w *World) systemMerge(nowTick uint64) {
	for _, m := range w.itemStore().Merge(nowTick, w.cfg.MaxStack) {
		w.emit(protocol.Event{
			"type":      "ITEM_MERGED",
			"source_id": m.SourceID,
			"target_id": m.TargetID,
			"count":     w.items[m.TargetID].Count,
		})
		w.engine.OnMerge(nowTick, m.SourceID, m.TargetID, m.SourceItem, m.TargetItem)
	}
}

// systemItemExpiry despawns stacks past their TTL. Pending transformations on them are
// left to find the item gone when they fire.
func (w *World) systemItemExpiry(nowTick uint64) {
	for _, id := range w.itemStore().Expired(nowTick) {
		w.removeItem(nowTick, "WORLD", id, "EXPIRE")
	}
}
