package bleach

import "sort"

// Pending is a scheduled transformation for one dropped item.
type Pending struct {
	ItemID    string `json:"item_id"`
	Target    string `json:"target"`
	BatchSize int    `json:"batch_size"`
	DueTick   uint64 `json:"due_tick"`
	Seq       uint64 `json:"seq"` // cancel handle; unique per scheduling
}

// pendingTable holds at most one entry per item id.
type pendingTable struct {
	byItem  map[string]*Pending
	nextSeq uint64
}

func newPendingTable() pendingTable {
	return pendingTable{byItem: map[string]*Pending{}}
}

func (t *pendingTable) get(itemID string) (*Pending, bool) {
	p, ok := t.byItem[itemID]
	return p, ok
}

// put replaces any entry for the same item. The caller cancels first.
func (t *pendingTable) put(itemID, target string, batch int, due uint64) *Pending {
	t.nextSeq++
	p := &Pending{ItemID: itemID, Target: target, BatchSize: batch, DueTick: due, Seq: t.nextSeq}
	t.byItem[itemID] = p
	return p
}

func (t *pendingTable) remove(itemID string) (*Pending, bool) {
	p, ok := t.byItem[itemID]
	if ok {
		delete(t.byItem, itemID)
	}
	return p, ok
}

// due returns entries with DueTick <= nowTick ordered by (DueTick, Seq).
func (t *pendingTable) due(nowTick uint64) []*Pending {
	var out []*Pending
	for _, p := range t.byItem {
		if p.DueTick <= nowTick {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueTick != out[j].DueTick {
			return out[i].DueTick < out[j].DueTick
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (t *pendingTable) len() int { return len(t.byItem) }

// sorted returns a copy of every entry ordered by Seq.
func (t *pendingTable) sorted() []Pending {
	out := make([]Pending, 0, len(t.byItem))
	for _, p := range t.byItem {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (t *pendingTable) clear() int {
	n := len(t.byItem)
	t.byItem = map[string]*Pending{}
	return n
}
