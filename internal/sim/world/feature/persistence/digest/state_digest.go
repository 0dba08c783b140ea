package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	modelpkg "dyewash.ai/internal/sim/world/kernel/model"
)

// PendingRef is the part of a scheduled transformation that affects future state.
type PendingRef struct {
	ItemID    string
	Target    string
	BatchSize int
	DueTick   uint64
}

type StateInput struct {
	NowTick     uint64
	NextItemNum uint64

	Items     map[string]*modelpkg.ItemEntity
	Cauldrons map[modelpkg.Vec3i]*modelpkg.Cauldron
	Pending   []PendingRef
}

// StateDigest hashes everything a replay must reproduce. Map iteration is always sorted.
func StateDigest(in StateInput) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, in.NowTick)
	digestWriteU64(h, &tmp, in.NextItemNum)
	digestItems(h, &tmp, in.Items)
	digestCauldrons(h, &tmp, in.Cauldrons)
	digestPending(h, &tmp, in.Pending)

	return hex.EncodeToString(h.Sum(nil))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestPos(h hashWriter, tmp *[8]byte, p modelpkg.Vec3i) {
	digestWriteI64(h, tmp, int64(p.X))
	digestWriteI64(h, tmp, int64(p.Y))
	digestWriteI64(h, tmp, int64(p.Z))
}

func digestItems(h hashWriter, tmp *[8]byte, items map[string]*modelpkg.ItemEntity) {
	ids := make([]string, 0, len(items))
	for id, e := range items {
		if e == nil || e.Item == "" || e.Count <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	digestWriteU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		e := items[id]
		digestWriteString(h, tmp, id)
		digestPos(h, tmp, e.Pos)
		digestWriteString(h, tmp, e.Item)
		digestWriteU64(h, tmp, uint64(e.Count))
		digestWriteU64(h, tmp, e.CreatedTick)
		digestWriteU64(h, tmp, e.ExpiresTick)
	}
}

func digestCauldrons(h hashWriter, tmp *[8]byte, cauldrons map[modelpkg.Vec3i]*modelpkg.Cauldron) {
	keys := make([]modelpkg.Vec3i, 0, len(cauldrons))
	for p, c := range cauldrons {
		if c == nil {
			continue
		}
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].Z < keys[j].Z
	})
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, p := range keys {
		c := cauldrons[p]
		digestPos(h, tmp, p)
		digestWriteString(h, tmp, c.Kind)
		digestWriteI64(h, tmp, int64(c.Level))
	}
}

func digestPending(h hashWriter, tmp *[8]byte, pending []PendingRef) {
	refs := append([]PendingRef(nil), pending...)
	sort.Slice(refs, func(i, j int) bool { return refs[i].ItemID < refs[j].ItemID })
	digestWriteU64(h, tmp, uint64(len(refs)))
	for _, p := range refs {
		digestWriteString(h, tmp, p.ItemID)
		digestWriteString(h, tmp, p.Target)
		digestWriteU64(h, tmp, uint64(p.BatchSize))
		digestWriteU64(h, tmp, p.DueTick)
	}
}
