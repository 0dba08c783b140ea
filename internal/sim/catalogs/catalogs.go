package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/patrickmn/go-cache"

	"dyewash.ai/internal/sim/charge"
)

// NeutralPrefix is prepended to a colored material name to derive its undyed form
// when an entry does not name one explicitly.
const NeutralPrefix = "WHITE_"

// MaterialEntry is a colored material family and the form it bleaches into.
type MaterialEntry struct {
	ConfigKey        string `json:"config_key"`
	Colored          string `json:"colored"`
	Undyed           string `json:"undyed,omitempty"`
	BatchSize        int    `json:"batch_size"`
	Group            string `json:"group"`
	NaturallyDyeable bool   `json:"naturally_dyeable,omitempty"` // the undyed form can be dyed in vanilla
}

func (e MaterialEntry) HasUndyed() bool { return e.Undyed != "" }

// Override is a configuration-time change to an entry. Zero values keep the default.
type Override struct {
	BatchSize int
	Group     string
}

// MaterialCatalog is an ordered, read-only registry of material entries.
// Registration order is the tie-break for lookups.
type MaterialCatalog struct {
	entries []MaterialEntry
	byKey   map[string]int
	palette map[string]struct{}
	digest  string

	// dropped material name -> entry index (-1 for no match)
	memo *cache.Cache
}

// NewMaterialCatalog builds a catalog. palette lists every material name the world
// knows; it decides whether a derived undyed name exists.
func NewMaterialCatalog(entries []MaterialEntry, palette []string) (*MaterialCatalog, error) {
	c := &MaterialCatalog{
		entries: make([]MaterialEntry, 0, len(entries)),
		byKey:   make(map[string]int, len(entries)),
		palette: make(map[string]struct{}, len(palette)),
		memo:    cache.New(cache.NoExpiration, 0),
	}
	for _, m := range palette {
		m = strings.TrimSpace(m)
		if m != "" {
			c.palette[m] = struct{}{}
		}
	}
	for i, e := range entries {
		if strings.TrimSpace(e.ConfigKey) == "" {
			return nil, fmt.Errorf("materials[%d]: empty config_key", i)
		}
		if strings.TrimSpace(e.Colored) == "" {
			return nil, fmt.Errorf("materials[%d] %s: empty colored material", i, e.ConfigKey)
		}
		if _, dup := c.byKey[e.ConfigKey]; dup {
			return nil, fmt.Errorf("duplicate material config_key: %s", e.ConfigKey)
		}
		if e.BatchSize < 1 || e.BatchSize > charge.MaxBatch {
			return nil, fmt.Errorf("material %s: batch_size %d not in [1,%d]", e.ConfigKey, e.BatchSize, charge.MaxBatch)
		}
		c.byKey[e.ConfigKey] = len(c.entries)
		c.entries = append(c.entries, e)
	}

	b, err := json.Marshal(c.entries)
	if err != nil {
		return nil, err
	}
	c.digest = sha256Hex(b)
	return c, nil
}

// LoadMaterials reads a JSON array of entries, replacing a profile's defaults.
func LoadMaterials(path string, palette []string) (*MaterialCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []MaterialEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	palette = append([]string(nil), palette...)
	for _, e := range entries {
		if e.HasUndyed() {
			palette = append(palette, e.Undyed)
		}
	}
	return NewMaterialCatalog(entries, palette)
}

func (c *MaterialCatalog) Len() int { return len(c.entries) }

func (c *MaterialCatalog) Digest() string { return c.digest }

// Entries returns a copy in registration order.
func (c *MaterialCatalog) Entries() []MaterialEntry {
	return append([]MaterialEntry(nil), c.entries...)
}

func (c *MaterialCatalog) Entry(configKey string) (MaterialEntry, bool) {
	i, ok := c.byKey[configKey]
	if !ok {
		return MaterialEntry{}, false
	}
	return c.entries[i], true
}

func (c *MaterialCatalog) HasMaterial(name string) bool {
	_, ok := c.palette[name]
	return ok
}

// Palette returns the known material names, sorted.
func (c *MaterialCatalog) Palette() []string {
	out := make([]string, 0, len(c.palette))
	for m := range c.palette {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// FindByDroppedMaterial returns the first registered entry whose colored name is a
// suffix of material.
func (c *MaterialCatalog) FindByDroppedMaterial(material string) (MaterialEntry, bool) {
	if material == "" {
		return MaterialEntry{}, false
	}
	if v, ok := c.memo.Get(material); ok {
		i := v.(int)
		if i < 0 {
			return MaterialEntry{}, false
		}
		return c.entries[i], true
	}
	idx := -1
	for i, e := range c.entries {
		if strings.HasSuffix(material, e.Colored) {
			idx = i
			break
		}
	}
	c.memo.Set(material, idx, cache.NoExpiration)
	if idx < 0 {
		return MaterialEntry{}, false
	}
	return c.entries[idx], true
}

// ResolveUndyed returns the material an entry bleaches into. ok is false when the
// entry names none and the derived name is not a known material.
func (c *MaterialCatalog) ResolveUndyed(e MaterialEntry) (string, bool) {
	if e.HasUndyed() {
		return e.Undyed, true
	}
	derived := NeutralPrefix + e.Colored
	if len(c.palette) > 0 && !c.HasMaterial(derived) {
		return "", false
	}
	return derived, true
}

// Enabled returns a catalog holding only the entries whose key is enabled, in the
// same order. Unknown keys are reported.
func (c *MaterialCatalog) Enabled(enabled map[string]bool) (*MaterialCatalog, error) {
	for k := range enabled {
		if _, ok := c.byKey[k]; !ok {
			return nil, fmt.Errorf("unknown material config_key: %s", k)
		}
	}
	out := make([]MaterialEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if enabled[e.ConfigKey] {
			out = append(out, e)
		}
	}
	return NewMaterialCatalog(out, c.Palette())
}

// WithOverrides returns a catalog with batch sizes and group names replaced.
func (c *MaterialCatalog) WithOverrides(overrides map[string]Override) (*MaterialCatalog, error) {
	out := c.Entries()
	for k, o := range overrides {
		i, ok := c.byKey[k]
		if !ok {
			return nil, fmt.Errorf("unknown material config_key: %s", k)
		}
		if o.BatchSize != 0 {
			out[i].BatchSize = o.BatchSize
		}
		if o.Group != "" {
			out[i].Group = o.Group
		}
	}
	return NewMaterialCatalog(out, c.Palette())
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
