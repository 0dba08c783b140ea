package world

import (
	"dyewash.ai/internal/protocol"
	"dyewash.ai/internal/sim/charge"
)

const MaxCauldronLevel = charge.MaxLevel

const blockAir = "AIR"

// normalizeCauldron maps a host-reported block onto the profile's kinds. On profiles
// where a drained cauldron changes kind, a water cauldron at level 0 is the empty kind,
// and the empty kind never holds water.
func (w *World) normalizeCauldron(kind string, level int) (string, int) {
	level = min(max(level, 0), MaxCauldronLevel)
	p := w.cfg.Profile
	if !p.SplitsOnEmpty() {
		return kind, level
	}
	switch kind {
	case p.WaterCauldron:
		if level == 0 {
			return p.EmptyCauldron, 0
		}
	case p.EmptyCauldron:
		return kind, 0
	}
	return kind, level
}

func (w *World) setCauldron(nowTick uint64, actor string, pos Vec3i, kind string, level int, reason string) {
	prev := w.cauldrons[pos]
	if kind == "" || kind == blockAir {
		if prev == nil {
			return
		}
		delete(w.cauldrons, pos)
		w.auditEvent(nowTick, actor, "CAULDRON_REMOVE", pos, reason, map[string]any{"from": prev.Kind, "level": prev.Level})
		w.emit(protocol.Event{"type": "CAULDRON_CHANGED", "pos": pos.ToArray(), "block": blockAir, "level": 0})
		return
	}

	kind, level = w.normalizeCauldron(kind, level)
	if prev != nil && prev.Kind == kind && prev.Level == level {
		return
	}
	details := map[string]any{"to": kind, "level": level}
	if prev != nil {
		details["from"] = prev.Kind
		details["from_level"] = prev.Level
	}
	w.cauldrons[pos] = &Cauldron{Kind: kind, Pos: pos, Level: level}
	w.auditEvent(nowTick, actor, "CAULDRON_SET", pos, reason, details)
	w.emit(protocol.Event{"type": "CAULDRON_CHANGED", "pos": pos.ToArray(), "block": kind, "level": level})
}
