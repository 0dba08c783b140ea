package world

import "dyewash.ai/internal/sim/bleach"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Items     int `json:"items"`
	Cauldrons int `json:"cauldrons"`
	Clients   int `json:"clients"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS        float64 `json:"step_ms"`
	FiredLastTick int     `json:"fired_last_tick"`
	EventsDropped uint64  `json:"events_dropped"`

	Bleach bleach.Stats `json:"bleach"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
