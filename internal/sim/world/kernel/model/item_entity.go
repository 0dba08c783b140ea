package model

// ItemEntity is a dropped item stack lying in the world.
// It is part of the authoritative sim state and is digest'd every tick.
type ItemEntity struct {
	EntityID    string
	Pos         Vec3i
	Item        string
	Count       int
	DroppedBy   string // empty for stacks the world spawned itself
	CreatedTick uint64
	ExpiresTick uint64
}

func (e *ItemEntity) ID() string { return e.EntityID }
