package world

import (
	"dyewash.ai/internal/protocol"
	"dyewash.ai/internal/sim/bleach"
)

// The world is the engine's view of item stacks and cauldrons, and its recorder.
var (
	_ bleach.World    = (*World)(nil)
	_ bleach.Recorder = (*World)(nil)
)

func (w *World) Item(id string) (bleach.ItemView, bool) {
	e := w.items[id]
	if e == nil || e.Count <= 0 {
		return bleach.ItemView{}, false
	}
	return bleach.ItemView{Material: e.Item, Amount: e.Count, Pos: e.Pos}, true
}

func (w *World) ContainerAt(pos Vec3i) (bleach.ContainerView, bool) {
	c := w.cauldrons[pos]
	if c == nil {
		return bleach.ContainerView{}, false
	}
	return bleach.ContainerView{Kind: c.Kind, Level: c.Level}, true
}

func (w *World) SetContainerLevel(pos Vec3i, level int) {
	c := w.cauldrons[pos]
	if c == nil {
		return
	}
	w.setCauldron(w.tick.Load(), "WORLD", pos, c.Kind, level, "BLEACH")
}

// EmptyContainer drains the cauldron. Modern profiles swap the block kind, legacy ones
// keep it at level 0.
func (w *World) EmptyContainer(pos Vec3i) {
	c := w.cauldrons[pos]
	if c == nil {
		return
	}
	kind := c.Kind
	if w.cfg.Profile.SplitsOnEmpty() {
		kind = w.cfg.Profile.EmptyCauldron
	}
	w.setCauldron(w.tick.Load(), "WORLD", pos, kind, 0, "BLEACH")
}

func (w *World) SetItemStack(id, material string, amount int) {
	e := w.items[id]
	if e == nil {
		return
	}
	w.setItemStack(w.tick.Load(), "WORLD", e, material, amount, "BLEACH")
}

func (w *World) SpawnDrop(pos Vec3i, material string, amount int) string {
	id := w.newItemEntityID()
	if w.spawnItem(w.tick.Load(), "WORLD", id, pos, material, amount, "REMAINDER") == nil {
		return ""
	}
	return id
}

func (w *World) RecordTransform(t bleach.Transform) {
	w.transformsThisTick = append(w.transformsThisTick, t)
	w.emit(protocol.Event{
		"type":         "TRANSFORM",
		"item_id":      t.ItemID,
		"outcome":      t.Outcome,
		"from":         t.From,
		"to":           t.To,
		"converted":    t.Converted,
		"remaining":    t.Remaining,
		"level_after":  t.LevelAfter,
		"remainder_id": t.RemainderID,
	})
}

// flushTransforms audits this tick's transformations and hands them to the sinks.
func (w *World) flushTransforms(nowTick uint64) {
	if len(w.transformsThisTick) == 0 {
		return
	}
	for _, t := range w.transformsThisTick {
		w.auditEvent(nowTick, "WORLD", "TRANSFORM", Vec3i{X: t.Pos[0], Y: t.Pos[1], Z: t.Pos[2]}, t.Outcome, map[string]any{
			"entity_id":    t.ItemID,
			"from":         t.From,
			"to":           t.To,
			"amount":       t.Amount,
			"converted":    t.Converted,
			"remaining":    t.Remaining,
			"level_before": t.LevelBefore,
			"level_after":  t.LevelAfter,
			"remainder_id": t.RemainderID,
		})
		for _, s := range w.sinks {
			s.RecordTransform(t)
		}
		if t.Outcome == bleach.OutcomeTransformed {
			w.log.Debug().
				Str("item", t.ItemID).
				Str("to", t.To).
				Int("converted", t.Converted).
				Msg("bleached")
		}
	}
	w.transformsThisTick = w.transformsThisTick[:0]
}
