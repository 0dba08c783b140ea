package items

import (
	"sort"

	modelpkg "dyewash.ai/internal/sim/world/kernel/model"
)

const EntityTTLTicksDefault = 6000 // 5 minutes at 20Hz

type AuditFunc func(nowTick uint64, actor, action string, pos modelpkg.Vec3i, reason string, details map[string]any)

// Store keeps the id and position indexes of dropped stacks in step. The maps are
// shared with the owner; Store adds no state of its own.
type Store struct {
	ByID  map[string]*modelpkg.ItemEntity
	ByPos map[modelpkg.Vec3i][]string
	TTL   uint64
	Audit AuditFunc
}

func (s Store) audit(nowTick uint64, actor, action string, pos modelpkg.Vec3i, reason string, details map[string]any) {
	if s.Audit != nil {
		s.Audit(nowTick, actor, action, pos, reason, details)
	}
}

func (s Store) link(id string, pos modelpkg.Vec3i) {
	s.ByPos[pos] = append(s.ByPos[pos], id)
}

func (s Store) unlink(id string, pos modelpkg.Vec3i) {
	if ids := RemoveID(s.ByPos[pos], id); len(ids) > 0 {
		s.ByPos[pos] = ids
		return
	}
	delete(s.ByPos, pos)
}

func (s Store) entry(id string) (Entry, bool) {
	e := s.ByID[id]
	if e == nil {
		return Entry{}, false
	}
	return Entry{ID: e.EntityID, Item: e.Item, Count: e.Count, ExpiresTick: e.ExpiresTick}, true
}

// Spawn always creates a new entity. Co-located stacks are combined later by Merge.
// It returns nil for an empty stack or an id already in use.
func (s Store) Spawn(nowTick uint64, actor, id string, pos modelpkg.Vec3i, item string, count int, reason string) *modelpkg.ItemEntity {
	if id == "" || item == "" || count <= 0 || s.ByID[id] != nil {
		return nil
	}
	e := &modelpkg.ItemEntity{
		EntityID:    id,
		Pos:         pos,
		Item:        item,
		Count:       count,
		DroppedBy:   actor,
		CreatedTick: nowTick,
	}
	if s.TTL > 0 {
		e.ExpiresTick = nowTick + s.TTL
	}
	s.ByID[id] = e
	s.link(id, pos)
	s.audit(nowTick, actor, "ITEM_SPAWN", pos, reason, map[string]any{"entity_id": id, "item": item, "count": count})
	return e
}

func (s Store) Remove(nowTick uint64, actor, id, reason string) *modelpkg.ItemEntity {
	e := s.ByID[id]
	if e == nil {
		return nil
	}
	delete(s.ByID, id)
	s.unlink(id, e.Pos)
	s.audit(nowTick, actor, "ITEM_DESPAWN", e.Pos, reason, map[string]any{"entity_id": id, "item": e.Item, "count": e.Count})
	return e
}

// Move relocates a stack. Moving onto its own position is not a move.
func (s Store) Move(nowTick uint64, actor, id string, to modelpkg.Vec3i, reason string) bool {
	e := s.ByID[id]
	if e == nil || e.Pos == to {
		return false
	}
	from := e.Pos
	s.unlink(id, from)
	s.link(id, to)
	e.Pos = to
	s.audit(nowTick, actor, "ITEM_MOVE", from, reason, map[string]any{
		"entity_id": id,
		"to":        to.ToArray(),
		"item":      e.Item,
		"count":     e.Count,
	})
	return true
}

// Merge combines same-item stacks sharing a position, positions in sorted order.
// The absorbed stack is removed and the target's expiry is pushed out.
func (s Store) Merge(nowTick uint64, maxStack int) []Merge {
	var crowded []modelpkg.Vec3i
	for pos, ids := range s.ByPos {
		if len(ids) > 1 {
			crowded = append(crowded, pos)
		}
	}
	sort.Slice(crowded, func(i, j int) bool { return lessVec(crowded[i], crowded[j]) })

	var out []Merge
	for _, pos := range crowded {
		plan := PlanMerges(append([]string(nil), s.ByPos[pos]...), maxStack, s.entry)
		for _, m := range plan {
			tgt := s.ByID[m.TargetID]
			tgt.Count += m.Count
			if exp := nowTick + s.TTL; s.TTL > 0 && exp > tgt.ExpiresTick {
				tgt.ExpiresTick = exp
			}
			s.Remove(nowTick, "WORLD", m.SourceID, "MERGE")
		}
		out = append(out, plan...)
	}
	return out
}

// Expired lists stacks whose TTL has run out at nowTick, sorted by id.
func (s Store) Expired(nowTick uint64) []string {
	if len(s.ByID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(s.ByID))
	for id := range s.ByID {
		ids = append(ids, id)
	}
	return SortedExpired(ids, s.entry, nowTick)
}

func lessVec(a, b modelpkg.Vec3i) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
