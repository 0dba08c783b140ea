// Package bleach turns colored item stacks dropped into a water cauldron into
// their undyed form after a fixed delay, draining the cauldron as it goes.
//
// The engine is driven from the world goroutine: drop and merge notifications
// arrive first within a tick, then Tick fires whatever has come due. It is not
// safe for concurrent use.
package bleach

import (
	"github.com/rs/zerolog"

	"dyewash.ai/internal/sim/catalogs"
	"dyewash.ai/internal/sim/charge"
)

// DefaultDelayTicks is one second at 20Hz.
const DefaultDelayTicks = 20

type Config struct {
	ChargeThreshold int // 0, 1 or 2; see charge.Needed
	ChargeCost      int // levels drained per batch, 0..3
	DelayTicks      uint64
	WaterCauldron   string // block kind that holds water
}

// Outcomes of a fired transformation.
const (
	OutcomeTransformed = "TRANSFORMED"
	OutcomeNoCharge    = "NO_CHARGE"
	OutcomeNoCauldron  = "NO_CAULDRON"
	OutcomeItemGone    = "ITEM_GONE"
)

// Transform describes one fired entry, successful or not.
type Transform struct {
	Tick        uint64 `json:"tick"`
	ItemID      string `json:"item_id"`
	Pos         [3]int `json:"pos"`
	Outcome     string `json:"outcome"`
	From        string `json:"from,omitempty"`
	To          string `json:"to"`
	Amount      int    `json:"amount"`
	Converted   int    `json:"converted"`
	Remaining   int    `json:"remaining"`
	LevelBefore int    `json:"level_before"`
	LevelAfter  int    `json:"level_after"`
	Emptied     bool   `json:"emptied,omitempty"`
	RemainderID string `json:"remainder_id,omitempty"`
}

// Stats are cumulative engine counters.
type Stats struct {
	Pending        int    `json:"pending"`
	Scheduled      uint64 `json:"scheduled"`
	Ignored        uint64 `json:"ignored"`
	Cancelled      uint64 `json:"cancelled"`
	Rescheduled    uint64 `json:"rescheduled"`
	Fired          uint64 `json:"fired"`
	Transformed    uint64 `json:"transformed"`
	ItemsConverted uint64 `json:"items_converted"`
	NoCharge       uint64 `json:"no_charge"`
	NoCauldron     uint64 `json:"no_cauldron"`
	ItemGone       uint64 `json:"item_gone"`
}

type Engine struct {
	cfg     Config
	catalog *catalogs.MaterialCatalog
	world   World
	log     zerolog.Logger
	rec     Recorder

	pending pendingTable
	stats   Stats
}

func New(cfg Config, catalog *catalogs.MaterialCatalog, world World, log zerolog.Logger) *Engine {
	if cfg.DelayTicks == 0 {
		cfg.DelayTicks = DefaultDelayTicks
	}
	return &Engine{
		cfg:     cfg,
		catalog: catalog,
		world:   world,
		log:     log,
		pending: newPendingTable(),
	}
}

func (e *Engine) SetRecorder(r Recorder) { e.rec = r }

func (e *Engine) Config() Config { return e.cfg }

// OnDrop schedules a transformation for a freshly dropped stack. Materials with no
// catalog entry, and stacks already in their undyed form, are ignored.
func (e *Engine) OnDrop(nowTick uint64, itemID, material string) bool {
	entry, ok := e.catalog.FindByDroppedMaterial(material)
	if !ok {
		e.stats.Ignored++
		e.log.Debug().Str("item", itemID).Str("material", material).Msg("no material entry; not scheduling")
		return false
	}
	target, ok := e.catalog.ResolveUndyed(entry)
	if !ok {
		e.stats.Ignored++
		e.log.Debug().Str("item", itemID).Str("entry", entry.ConfigKey).Msg("entry has no undyed form; not scheduling")
		return false
	}
	if target == material {
		e.stats.Ignored++
		e.log.Debug().Str("item", itemID).Str("material", material).Msg("already undyed; not scheduling")
		return false
	}

	e.Cancel(itemID)
	p := e.pending.put(itemID, target, entry.BatchSize, nowTick+e.cfg.DelayTicks)
	e.stats.Scheduled++
	e.log.Debug().
		Str("item", itemID).
		Str("from", material).
		Str("to", target).
		Uint64("due", p.DueTick).
		Msg("transformation scheduled")
	return true
}

// OnMerge handles source being absorbed into target. If either stack had a pending
// transformation the merged stack is rescheduled from nowTick.
func (e *Engine) OnMerge(nowTick uint64, sourceID, targetID, sourceMaterial, targetMaterial string) bool {
	hadSource := e.Cancel(sourceID)
	hadTarget := e.Cancel(targetID)
	if !hadSource && !hadTarget {
		return false
	}
	e.stats.Rescheduled++
	e.log.Debug().
		Str("source", sourceID).
		Str("target", targetID).
		Str("source_material", sourceMaterial).
		Msg("rescheduling transformation after merge")
	return e.OnDrop(nowTick, targetID, targetMaterial)
}

// Cancel drops the pending entry for itemID and reports whether there was one.
func (e *Engine) Cancel(itemID string) bool {
	if _, ok := e.pending.remove(itemID); !ok {
		return false
	}
	e.stats.Cancelled++
	return true
}

func (e *Engine) Pending(itemID string) (Pending, bool) {
	p, ok := e.pending.get(itemID)
	if !ok {
		return Pending{}, false
	}
	return *p, true
}

func (e *Engine) PendingList() []Pending { return e.pending.sorted() }

func (e *Engine) Len() int { return e.pending.len() }

func (e *Engine) Stats() Stats {
	s := e.stats
	s.Pending = e.pending.len()
	return s
}

// Tick fires every entry due at or before nowTick, oldest first.
func (e *Engine) Tick(nowTick uint64) int {
	due := e.pending.due(nowTick)
	fired := 0
	for _, p := range due {
		// An earlier execution in this batch may have replaced or removed it.
		cur, ok := e.pending.get(p.ItemID)
		if !ok || cur.Seq != p.Seq {
			continue
		}
		e.pending.remove(p.ItemID)
		t := e.execute(nowTick, p)
		fired++
		e.stats.Fired++
		if e.rec != nil {
			e.rec.RecordTransform(t)
		}
	}
	return fired
}

// Shutdown cancels every pending entry. Nothing is persisted.
func (e *Engine) Shutdown() int {
	n := e.pending.clear()
	e.stats.Cancelled += uint64(n)
	if n > 0 {
		e.log.Info().Int("cancelled", n).Msg("pending transformations dropped on shutdown")
	}
	return n
}

func (e *Engine) execute(nowTick uint64, p *Pending) Transform {
	t := Transform{Tick: nowTick, ItemID: p.ItemID, To: p.Target}

	item, ok := e.world.Item(p.ItemID)
	if !ok {
		e.stats.ItemGone++
		t.Outcome = OutcomeItemGone
		e.log.Debug().Str("item", p.ItemID).Msg("item despawned before transformation")
		return t
	}
	t.Pos = item.Pos.ToArray()
	t.From = item.Material
	t.Amount = item.Amount

	c, ok := e.world.ContainerAt(item.Pos)
	if !ok || c.Kind != e.cfg.WaterCauldron {
		e.stats.NoCauldron++
		t.Outcome = OutcomeNoCauldron
		t.Remaining = item.Amount
		kind := ""
		if ok {
			kind = c.Kind
		}
		e.log.Debug().Str("item", p.ItemID).Str("block", kind).Msg("item did not land in a water cauldron")
		return t
	}

	res := charge.Apply(item.Amount, p.BatchSize, c.Level, e.cfg.ChargeThreshold, e.cfg.ChargeCost)
	t.Converted = res.Converted
	t.Remaining = res.Remaining
	t.LevelBefore = c.Level
	t.LevelAfter = c.Level
	if res.Converted == 0 {
		e.stats.NoCharge++
		t.Outcome = OutcomeNoCharge
		e.log.Debug().Str("item", p.ItemID).Int("level", c.Level).Msg("cauldron lacks charge")
		return t
	}

	if res.Exhausted {
		e.world.EmptyContainer(item.Pos)
		t.Emptied = true
		t.LevelAfter = 0
	} else {
		e.world.SetContainerLevel(item.Pos, res.NewLevel)
		t.LevelAfter = res.NewLevel
	}
	e.world.SetItemStack(p.ItemID, p.Target, res.Converted)
	if res.Remaining > 0 {
		t.RemainderID = e.world.SpawnDrop(item.Pos, item.Material, res.Remaining)
	}

	e.stats.Transformed++
	e.stats.ItemsConverted += uint64(res.Converted)
	t.Outcome = OutcomeTransformed
	e.log.Debug().
		Str("item", p.ItemID).
		Str("to", p.Target).
		Int("converted", res.Converted).
		Int("remaining", res.Remaining).
		Int("level", t.LevelAfter).
		Msg("transformation applied")
	return t
}
