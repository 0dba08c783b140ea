package digest

import (
	"testing"

	modelpkg "dyewash.ai/internal/sim/world/kernel/model"
)

func TestStateDigest_StableAcrossMapOrder(t *testing.T) {
	build := func() StateInput {
		return StateInput{
			NowTick:     7,
			NextItemNum: 3,
			Items: map[string]*modelpkg.ItemEntity{
				"IT000001": {EntityID: "IT000001", Item: "RED_WOOL", Count: 4, Pos: modelpkg.Vec3i{X: 1}},
				"IT000002": {EntityID: "IT000002", Item: "GLASS", Count: 8, Pos: modelpkg.Vec3i{X: 2}},
			},
			Cauldrons: map[modelpkg.Vec3i]*modelpkg.Cauldron{
				{X: 1}: {Kind: "WATER_CAULDRON", Level: 3},
				{X: 2}: {Kind: "CAULDRON"},
			},
			Pending: []PendingRef{
				{ItemID: "IT000002", Target: "GLASS", BatchSize: 8, DueTick: 20},
				{ItemID: "IT000001", Target: "WHITE_WOOL", BatchSize: 1, DueTick: 21},
			},
		}
	}
	a := build()
	b := build()
	b.Pending[0], b.Pending[1] = b.Pending[1], b.Pending[0]
	if StateDigest(a) != StateDigest(b) {
		t.Fatalf("digest depends on pending order")
	}

	b.Cauldrons[modelpkg.Vec3i{X: 1}].Level = 2
	if StateDigest(a) == StateDigest(b) {
		t.Fatalf("digest should change with cauldron level")
	}
}
