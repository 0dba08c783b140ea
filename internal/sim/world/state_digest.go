package world

import digestfeaturepkg "dyewash.ai/internal/sim/world/feature/persistence/digest"

func (w *World) stateDigest(nowTick uint64) string {
	pending := w.engine.PendingList()
	refs := make([]digestfeaturepkg.PendingRef, 0, len(pending))
	for _, p := range pending {
		refs = append(refs, digestfeaturepkg.PendingRef{
			ItemID:    p.ItemID,
			Target:    p.Target,
			BatchSize: p.BatchSize,
			DueTick:   p.DueTick,
		})
	}
	return digestfeaturepkg.StateDigest(digestfeaturepkg.StateInput{
		NowTick:     nowTick,
		NextItemNum: w.nextItemNum.Load(),
		Items:       w.items,
		Cauldrons:   w.cauldrons,
		Pending:     refs,
	})
}
