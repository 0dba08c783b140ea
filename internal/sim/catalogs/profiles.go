package catalogs

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownProfile = errors.New("unknown server profile")

const DefaultProfileTag = "v1_17"

// Profile captures what differs between supported server versions.
type Profile struct {
	Tag string

	// WaterCauldron is the block kind that holds water.
	WaterCauldron string
	// EmptyCauldron is the block kind a drained cauldron becomes. When it equals
	// WaterCauldron the block keeps its kind and only its level drops to 0.
	EmptyCauldron string

	ColorPrefixes []string
	Materials     []MaterialEntry
}

// SplitsOnEmpty reports whether draining a cauldron swaps its block kind.
func (p Profile) SplitsOnEmpty() bool { return p.EmptyCauldron != p.WaterCauldron }

// Palette lists every colored variant of every material plus the explicit undyed forms.
func (p Profile) Palette() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(p.ColorPrefixes)*len(p.Materials))
	add := func(m string) {
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}
	for _, e := range p.Materials {
		for _, c := range p.ColorPrefixes {
			add(c + e.Colored)
		}
		add(e.Undyed)
	}
	sort.Strings(out)
	return out
}

// Catalog builds the profile's default material catalog.
func (p Profile) Catalog() (*MaterialCatalog, error) {
	return NewMaterialCatalog(p.Materials, p.Palette())
}

var colorPrefixes = []string{
	"BLACK_", "BLUE_", "BROWN_", "CYAN_", "GREEN_", "LIGHT_BLUE_", "LIGHT_GRAY_", "GRAY_",
	"LIME_", "MAGENTA_", "ORANGE_", "PINK_", "PURPLE_", "RED_", "WHITE_", "YELLOW_",
}

// legacyMaterials is the pre-1.17 material set. GLAZED_TERRACOTTA is registered ahead
// of TERRACOTTA because every glazed name also ends in TERRACOTTA. Banners joined in 1.16.
func legacyMaterials(paneDyeable, banners bool) []MaterialEntry {
	out := []MaterialEntry{
		{ConfigKey: "glazed_terracotta", Colored: "GLAZED_TERRACOTTA", BatchSize: 1, Group: "glazed_terracotta"},
		{ConfigKey: "terracotta", Colored: "TERRACOTTA", Undyed: "TERRACOTTA", BatchSize: 8, Group: "stained_terracotta"},
		{ConfigKey: "glass", Colored: "STAINED_GLASS", Undyed: "GLASS", BatchSize: 8, Group: "stained_glass"},
		{ConfigKey: "glass_pane", Colored: "STAINED_GLASS_PANE", Undyed: "GLASS_PANE", BatchSize: 8, Group: "stained_glass_pane", NaturallyDyeable: paneDyeable},
		{ConfigKey: "concrete", Colored: "CONCRETE", BatchSize: 8, Group: "concrete"},
		{ConfigKey: "concrete_powder", Colored: "CONCRETE_POWDER", BatchSize: 8, Group: "concrete_powder"},
		{ConfigKey: "wool", Colored: "WOOL", BatchSize: 1, Group: "wool"},
		{ConfigKey: "carpet", Colored: "CARPET", BatchSize: 8, Group: "carpet"},
	}
	if banners {
		out = append(out, MaterialEntry{ConfigKey: "banner", Colored: "BANNER", BatchSize: 1, Group: "banner"})
	}
	return out
}

func modernMaterials() []MaterialEntry {
	return append(legacyMaterials(false, true),
		MaterialEntry{ConfigKey: "candle", Colored: "CANDLE", Undyed: "CANDLE", BatchSize: 1, Group: "candle"},
	)
}

var profiles = map[string]Profile{
	"v1_13": {
		Tag:           "v1_13",
		WaterCauldron: "CAULDRON",
		EmptyCauldron: "CAULDRON",
		ColorPrefixes: colorPrefixes,
		Materials:     legacyMaterials(true, false),
	},
	"v1_16": {
		Tag:           "v1_16",
		WaterCauldron: "CAULDRON",
		EmptyCauldron: "CAULDRON",
		ColorPrefixes: colorPrefixes,
		Materials:     legacyMaterials(false, true),
	},
	"v1_17": {
		Tag:           "v1_17",
		WaterCauldron: "WATER_CAULDRON",
		EmptyCauldron: "CAULDRON",
		ColorPrefixes: colorPrefixes,
		Materials:     modernMaterials(),
	},
}

// LookupProfile resolves a version tag. The returned profile owns copies of its slices.
func LookupProfile(tag string) (Profile, error) {
	p, ok := profiles[tag]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, tag)
	}
	p.ColorPrefixes = append([]string(nil), p.ColorPrefixes...)
	p.Materials = append([]MaterialEntry(nil), p.Materials...)
	return p, nil
}

func ProfileTags() []string {
	out := make([]string, 0, len(profiles))
	for tag := range profiles {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
