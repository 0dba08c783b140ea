package model

// Cauldron is a liquid-holding block. Level counts water levels (0..3).
type Cauldron struct {
	Kind  string
	Pos   Vec3i
	Level int
}

func (c *Cauldron) Filled() bool { return c != nil && c.Level > 0 }
