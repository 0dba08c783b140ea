package world

import (
	"dyewash.ai/internal/sim/catalogs"
	"dyewash.ai/internal/sim/tuning"
)

// ConfigFromTuning maps the loaded tuning onto a world config for profile.
func ConfigFromTuning(id string, tune tuning.Tuning, profile catalogs.Profile) WorldConfig {
	return WorldConfig{
		ID:              id,
		TickRateHz:      tune.TickRateHz,
		ItemTTLTicks:    tune.ItemTTLTicks,
		MaxStack:        tune.MaxStack,
		Profile:         profile,
		ChargeThreshold: tune.Cauldron.CheckEmpty,
		ChargeCost:      tune.Cauldron.ChangeWaterLevel,
		DelayTicks:      tune.DelayTicks,
	}
}
