package catalogs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dyewash.ai/internal/sim/charge"
)

func mustProfileCatalog(t *testing.T, tag string) *MaterialCatalog {
	t.Helper()
	p, err := LookupProfile(tag)
	if err != nil {
		t.Fatalf("LookupProfile(%s): %v", tag, err)
	}
	c, err := p.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	return c
}

func TestFindByDroppedMaterial_SuffixMatch(t *testing.T) {
	c := mustProfileCatalog(t, "v1_17")

	e, ok := c.FindByDroppedMaterial("LIGHT_BLUE_STAINED_GLASS_PANE")
	if !ok || e.ConfigKey != "glass_pane" {
		t.Fatalf("expected glass_pane, got %+v ok=%v", e, ok)
	}
	e, ok = c.FindByDroppedMaterial("RED_STAINED_GLASS")
	if !ok || e.ConfigKey != "glass" {
		t.Fatalf("expected glass, got %+v ok=%v", e, ok)
	}
	if _, ok := c.FindByDroppedMaterial("OAK_LOG"); ok {
		t.Fatalf("OAK_LOG should not match")
	}
	// memoized miss stays a miss
	if _, ok := c.FindByDroppedMaterial("OAK_LOG"); ok {
		t.Fatalf("OAK_LOG should not match on second lookup")
	}
}

func TestFindByDroppedMaterial_FirstRegisteredWins(t *testing.T) {
	c := mustProfileCatalog(t, "v1_17")
	e, ok := c.FindByDroppedMaterial("RED_GLAZED_TERRACOTTA")
	if !ok || e.ConfigKey != "glazed_terracotta" {
		t.Fatalf("expected glazed_terracotta, got %+v", e)
	}

	// Reverse the order: the broader suffix now shadows the narrower one.
	c2, err := NewMaterialCatalog([]MaterialEntry{
		{ConfigKey: "terracotta", Colored: "TERRACOTTA", Undyed: "TERRACOTTA", BatchSize: 8},
		{ConfigKey: "glazed_terracotta", Colored: "GLAZED_TERRACOTTA", BatchSize: 1},
	}, nil)
	if err != nil {
		t.Fatalf("NewMaterialCatalog: %v", err)
	}
	e, _ = c2.FindByDroppedMaterial("RED_GLAZED_TERRACOTTA")
	if e.ConfigKey != "terracotta" {
		t.Fatalf("expected first registered entry terracotta, got %s", e.ConfigKey)
	}
}

func TestResolveUndyed(t *testing.T) {
	c := mustProfileCatalog(t, "v1_17")

	glass, _ := c.Entry("glass")
	if m, ok := c.ResolveUndyed(glass); !ok || m != "GLASS" {
		t.Fatalf("glass undyed: %q ok=%v", m, ok)
	}
	concrete, _ := c.Entry("concrete")
	if m, ok := c.ResolveUndyed(concrete); !ok || m != "WHITE_CONCRETE" {
		t.Fatalf("concrete undyed: %q ok=%v", m, ok)
	}

	inert, err := NewMaterialCatalog([]MaterialEntry{
		{ConfigKey: "shulker", Colored: "SHULKER_BOX", BatchSize: 1},
	}, []string{"RED_SHULKER_BOX"})
	if err != nil {
		t.Fatalf("NewMaterialCatalog: %v", err)
	}
	e, _ := inert.Entry("shulker")
	if _, ok := inert.ResolveUndyed(e); ok {
		t.Fatalf("expected shulker entry to be inert without WHITE_SHULKER_BOX in palette")
	}
}

func TestEnabledKeepsOrderAndRejectsUnknown(t *testing.T) {
	c := mustProfileCatalog(t, "v1_17")
	sub, err := c.Enabled(map[string]bool{"wool": true, "glass": true, "carpet": false})
	if err != nil {
		t.Fatalf("Enabled: %v", err)
	}
	got := sub.Entries()
	if len(got) != 2 || got[0].ConfigKey != "glass" || got[1].ConfigKey != "wool" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if _, ok := sub.FindByDroppedMaterial("RED_CARPET"); ok {
		t.Fatalf("disabled carpet should not match")
	}
	if _, err := c.Enabled(map[string]bool{"nope": true}); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestWithOverrides(t *testing.T) {
	c := mustProfileCatalog(t, "v1_16")
	out, err := c.WithOverrides(map[string]Override{"glass": {BatchSize: 16, Group: "dyewash_stained_glass"}})
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}
	e, _ := out.Entry("glass")
	if e.BatchSize != 16 || e.Group != "dyewash_stained_glass" {
		t.Fatalf("override not applied: %+v", e)
	}
	orig, _ := c.Entry("glass")
	if orig.BatchSize != 8 {
		t.Fatalf("source catalog mutated: %+v", orig)
	}
	if out.Digest() == c.Digest() {
		t.Fatalf("digest should change with overrides")
	}
	if _, err := c.WithOverrides(map[string]Override{"glass": {BatchSize: charge.MaxBatch}}); err != nil {
		t.Fatalf("batch size %d should be accepted: %v", charge.MaxBatch, err)
	}
	if _, err := c.WithOverrides(map[string]Override{"glass": {BatchSize: charge.MaxBatch + 1}}); err == nil {
		t.Fatalf("expected batch size %d to be rejected", charge.MaxBatch+1)
	}
}

func TestNewMaterialCatalog_RejectsDuplicates(t *testing.T) {
	_, err := NewMaterialCatalog([]MaterialEntry{
		{ConfigKey: "wool", Colored: "WOOL", BatchSize: 1},
		{ConfigKey: "wool", Colored: "WOOL", BatchSize: 1},
	}, nil)
	if err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestLookupProfile(t *testing.T) {
	if _, err := LookupProfile("v0_1"); !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
	legacy, _ := LookupProfile("v1_13")
	if legacy.SplitsOnEmpty() {
		t.Fatalf("legacy cauldron keeps its block kind when drained")
	}
	modern, _ := LookupProfile("v1_17")
	if !modern.SplitsOnEmpty() || modern.WaterCauldron != "WATER_CAULDRON" {
		t.Fatalf("unexpected modern profile: %+v", modern)
	}
	if _, ok := mustProfileCatalog(t, "v1_16").Entry("candle"); ok {
		t.Fatalf("candles do not exist before v1_17")
	}
	if _, ok := mustProfileCatalog(t, "v1_13").FindByDroppedMaterial("RED_BANNER"); ok {
		t.Fatalf("banners are not bleached before v1_16")
	}
	if e, ok := mustProfileCatalog(t, "v1_16").FindByDroppedMaterial("RED_BANNER"); !ok || e.ConfigKey != "banner" {
		t.Fatalf("v1_16 should bleach banners, got %+v %v", e, ok)
	}
	pane, _ := mustProfileCatalog(t, "v1_13").Entry("glass_pane")
	if !pane.NaturallyDyeable {
		t.Fatalf("v1_13 glass panes are naturally dyeable")
	}
	if tags := ProfileTags(); len(tags) != 3 || tags[0] != "v1_13" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestLoadMaterials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "materials.json")
	raw := `[
	  {"config_key":"bed","colored":"BED","batch_size":1,"group":"bed"},
	  {"config_key":"terracotta","colored":"TERRACOTTA","undyed":"TERRACOTTA","batch_size":4,"group":"stained_terracotta"}
	]`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadMaterials(path, []string{"WHITE_BED", "RED_BED"})
	if err != nil {
		t.Fatalf("LoadMaterials: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	bed, _ := c.Entry("bed")
	if m, ok := c.ResolveUndyed(bed); !ok || m != "WHITE_BED" {
		t.Fatalf("bed undyed: %q ok=%v", m, ok)
	}
	if !c.HasMaterial("TERRACOTTA") {
		t.Fatalf("explicit undyed forms join the palette")
	}
}
