package bleach

import modelpkg "dyewash.ai/internal/sim/world/kernel/model"

type ItemView struct {
	Material string
	Amount   int
	Pos      modelpkg.Vec3i
}

type ContainerView struct {
	Kind  string
	Level int
}

// World is the slice of world state the engine reads and writes. All calls happen
// on the world goroutine.
type World interface {
	Item(id string) (ItemView, bool)
	ContainerAt(pos modelpkg.Vec3i) (ContainerView, bool)
	SetContainerLevel(pos modelpkg.Vec3i, level int)
	EmptyContainer(pos modelpkg.Vec3i)
	SetItemStack(id, material string, amount int)
	SpawnDrop(pos modelpkg.Vec3i, material string, amount int) string
}

// Recorder receives one entry per fired transformation. Implementations must not
// block the world goroutine.
type Recorder interface {
	RecordTransform(t Transform)
}
