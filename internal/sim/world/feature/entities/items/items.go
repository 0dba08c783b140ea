package items

import "sort"

type Entry struct {
	ID          string
	Item        string
	Count       int
	ExpiresTick uint64
}

// Merge records source being absorbed whole into target.
type Merge struct {
	SourceID   string
	TargetID   string
	SourceItem string
	TargetItem string
	Count      int
}

// FindMergeTarget returns the first stack in ids holding item with room for count more.
func FindMergeTarget(ids []string, item string, count, maxStack int, load func(string) (Entry, bool)) (string, bool) {
	if load == nil || item == "" {
		return "", false
	}
	for _, id := range ids {
		e, ok := load(id)
		if !ok {
			continue
		}
		if e.Item == item && e.Count > 0 && e.Count+count <= maxStack {
			return e.ID, true
		}
	}
	return "", false
}

// PlanMerges walks the stacks at one position in order and folds each stack into the
// earliest one before it that can take it whole. Partial merges are never planned.
func PlanMerges(ids []string, maxStack int, load func(string) (Entry, bool)) []Merge {
	if load == nil || len(ids) < 2 {
		return nil
	}
	counts := map[string]int{}
	alive := make([]string, 0, len(ids))
	var out []Merge
	for _, id := range ids {
		e, ok := load(id)
		if !ok || e.Count <= 0 {
			continue
		}
		target, ok := FindMergeTarget(alive, e.Item, e.Count, maxStack, func(tid string) (Entry, bool) {
			te, ok := load(tid)
			if !ok {
				return Entry{}, false
			}
			te.Count = counts[tid]
			return te, true
		})
		if !ok {
			counts[id] = e.Count
			alive = append(alive, id)
			continue
		}
		counts[target] += e.Count
		out = append(out, Merge{
			SourceID:   id,
			TargetID:   target,
			SourceItem: e.Item,
			TargetItem: e.Item,
			Count:      e.Count,
		})
	}
	return out
}

func RemoveID(ids []string, id string) []string {
	for i := 0; i < len(ids); i++ {
		if ids[i] != id {
			continue
		}
		copy(ids[i:], ids[i+1:])
		return ids[:len(ids)-1]
	}
	return ids
}

func SortedExpired(ids []string, load func(string) (Entry, bool), nowTick uint64) []string {
	out := make([]string, 0)
	if load == nil {
		return out
	}
	for _, id := range ids {
		e, ok := load(id)
		if !ok {
			continue
		}
		if e.ExpiresTick != 0 && nowTick >= e.ExpiresTick {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
