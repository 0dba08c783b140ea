package world

import (
	"context"
	"errors"
	"sort"

	"dyewash.ai/internal/sim/bleach"
)

type adminStateReq struct {
	Resp chan StateView
}

type ItemState struct {
	ID          string `json:"id"`
	Material    string `json:"material"`
	Count       int    `json:"count"`
	Pos         [3]int `json:"pos"`
	ExpiresTick uint64 `json:"expires_tick,omitempty"`
}

type CauldronState struct {
	Pos   [3]int `json:"pos"`
	Kind  string `json:"kind"`
	Level int    `json:"level"`
}

// StateView is a read-only copy of world state for admin endpoints.
type StateView struct {
	WorldID   string           `json:"world_id"`
	Tick      uint64           `json:"tick"`
	Profile   string           `json:"profile"`
	Items     []ItemState      `json:"items"`
	Cauldrons []CauldronState  `json:"cauldrons"`
	Pending   []bleach.Pending `json:"pending"`
	Stats     bleach.Stats     `json:"stats"`
}

// RequestState asks the world loop goroutine for a state copy.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestState(ctx context.Context) (StateView, error) {
	if w == nil || w.adminState == nil {
		return StateView{}, errors.New("admin state not available")
	}
	resp := make(chan StateView, 1)
	select {
	case w.adminState <- adminStateReq{Resp: resp}:
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
	select {
	case v := <-resp:
		return v, nil
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
}

// StateNow returns a state copy directly. Only call it from the goroutine that steps
// the world; everything else goes through RequestState.
func (w *World) StateNow() StateView { return w.stateView() }

func (w *World) handleAdminState(req adminStateReq) {
	if req.Resp == nil {
		return
	}
	req.Resp <- w.stateView()
}

func (w *World) stateView() StateView {
	v := StateView{
		WorldID:   w.cfg.ID,
		Tick:      w.tick.Load(),
		Profile:   w.cfg.Profile.Tag,
		Items:     make([]ItemState, 0, len(w.items)),
		Cauldrons: make([]CauldronState, 0, len(w.cauldrons)),
		Pending:   w.engine.PendingList(),
		Stats:     w.engine.Stats(),
	}
	for _, e := range w.items {
		v.Items = append(v.Items, ItemState{
			ID:          e.EntityID,
			Material:    e.Item,
			Count:       e.Count,
			Pos:         e.Pos.ToArray(),
			ExpiresTick: e.ExpiresTick,
		})
	}
	sort.Slice(v.Items, func(i, j int) bool { return v.Items[i].ID < v.Items[j].ID })
	for _, c := range w.cauldrons {
		v.Cauldrons = append(v.Cauldrons, CauldronState{Pos: c.Pos.ToArray(), Kind: c.Kind, Level: c.Level})
	}
	sort.Slice(v.Cauldrons, func(i, j int) bool {
		a, b := v.Cauldrons[i].Pos, v.Cauldrons[j].Pos
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return v
}
