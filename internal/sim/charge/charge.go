package charge

// Result is the outcome of draining a cauldron against a dropped stack.
type Result struct {
	Converted int  `json:"converted"`
	Remaining int  `json:"remaining"`
	NewLevel  int  `json:"new_level"`
	Exhausted bool `json:"exhausted"`
}

// Threshold values accepted by Apply.
const (
	ThresholdNone = 0 // any level, even 0, may start a conversion
	ThresholdOne  = 1 // at least one level must be present
	ThresholdCost = 2 // at least one full cost increment must be present
)

const (
	MaxCost  = 3
	MaxBatch = 64
	MaxLevel = 3 // full water cauldron
)

// Needed returns the minimum level required before a batch may be converted.
func Needed(threshold, cost int) int {
	if threshold == ThresholdCost {
		return cost
	}
	return threshold
}

// Apply converts initial items in batches of at most batch items. Each batch costs
// cost levels no matter how full it is; conversion stops when the remaining level
// drops below the needed charge.
func Apply(initial, batch, level, threshold, cost int) Result {
	if batch < 1 {
		batch = 1
	}
	needed := Needed(threshold, cost)

	remaining := initial
	converted := 0
	for remaining > 0 && needed <= max(0, level) {
		take := min(remaining, batch)
		remaining -= take
		converted += take
		level -= cost
	}

	res := Result{
		Converted: converted,
		Remaining: remaining,
		NewLevel:  level,
		Exhausted: level <= 0,
	}
	if res.Exhausted {
		res.NewLevel = max(0, level)
	}
	return res
}
