package tuning

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"dyewash.ai/internal/sim/catalogs"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version" validate:"required"`
	Profile         string `yaml:"profile" json:"profile" validate:"required"`

	TickRateHz   int `yaml:"tick_rate_hz" json:"tick_rate_hz" validate:"min=1,max=100"`
	DelayTicks   int `yaml:"delay_ticks" json:"delay_ticks" validate:"min=1"`
	ItemTTLTicks int `yaml:"item_ttl_ticks" json:"item_ttl_ticks" validate:"min=0"`
	MaxStack     int `yaml:"max_stack" json:"max_stack" validate:"min=1,max=64"`

	// MaterialsFile replaces the profile's default materials when set.
	MaterialsFile    string         `yaml:"materials_file,omitempty" json:"materials_file,omitempty"`
	GroupWithVanilla bool           `yaml:"group_with_vanilla" json:"group_with_vanilla"`
	BatchSizes       map[string]int `yaml:"batch_sizes,omitempty" json:"batch_sizes,omitempty" validate:"dive,min=1,max=64"`

	Cauldron Cauldron `yaml:"cauldron" json:"cauldron"`

	TickLog bool `yaml:"tick_log" json:"tick_log"`

	Log   Log   `yaml:"log" json:"log"`
	Index Index `yaml:"index" json:"index"`
	Redis Redis `yaml:"redis" json:"redis"`
}

type Cauldron struct {
	// CheckEmpty: 0 any level, 1 at least one level, 2 at least ChangeWaterLevel levels.
	CheckEmpty       int             `yaml:"check_empty" json:"check_empty" validate:"oneof=0 1 2"`
	ChangeWaterLevel int             `yaml:"change_waterlevel" json:"change_waterlevel" validate:"min=0,max=3"`
	Enable           map[string]bool `yaml:"enable" json:"enable"`
}

type Log struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=console json"`
}

type Index struct {
	Backend string `yaml:"backend" json:"backend" validate:"oneof=sqlite none"`
}

type Redis struct {
	Addr    string `yaml:"addr,omitempty" json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Channel string `yaml:"channel,omitempty" json:"channel,omitempty"`
}

const GroupPrefix = "dyewash_"

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:  "1.0",
		Profile:          catalogs.DefaultProfileTag,
		TickRateHz:       20,
		DelayTicks:       20,
		ItemTTLTicks:     6000,
		MaxStack:         64,
		GroupWithVanilla: true,
		Cauldron: Cauldron{
			CheckEmpty:       1,
			ChangeWaterLevel: 1,
		},
		TickLog: true,
		Log:     Log{Level: "info", Format: "console"},
		Index:   Index{Backend: "sqlite"},
		Redis:   Redis{Channel: "dyewash:transforms"},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.Profile = strings.TrimSpace(t.Profile)
	t.Log.Level = strings.ToLower(strings.TrimSpace(t.Log.Level))
	t.Log.Format = strings.ToLower(strings.TrimSpace(t.Log.Format))
	t.Index.Backend = strings.ToLower(strings.TrimSpace(t.Index.Backend))
	if t.Index.Backend == "" {
		t.Index.Backend = "sqlite"
	}
	if t.Redis.Addr != "" && t.Redis.Channel == "" {
		t.Redis.Channel = "dyewash:transforms"
	}
}

var validate = validator.New()

func (t Tuning) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%s: failed %q (value %v)", f.Namespace(), f.Tag(), f.Value())
		}
		return err
	}
	return nil
}

// ResolveProfile looks up the configured profile. An unknown tag resolves to the
// newest profile and the lookup error is returned alongside it.
func (t Tuning) ResolveProfile() (catalogs.Profile, error) {
	p, err := catalogs.LookupProfile(t.Profile)
	if err == nil {
		return p, nil
	}
	tags := catalogs.ProfileTags()
	newest, lerr := catalogs.LookupProfile(tags[len(tags)-1])
	if lerr != nil {
		return catalogs.Profile{}, lerr
	}
	return newest, err
}

// Catalog builds the enabled material catalog for this tuning. With no
// cauldron.enable section every material is enabled. Batch size overrides for
// materials the profile lacks are ignored.
func (t Tuning) Catalog(profile catalogs.Profile) (*catalogs.MaterialCatalog, error) {
	var (
		base *catalogs.MaterialCatalog
		err  error
	)
	if t.MaterialsFile != "" {
		base, err = catalogs.LoadMaterials(t.MaterialsFile, profile.Palette())
	} else {
		base, err = profile.Catalog()
	}
	if err != nil {
		return nil, err
	}

	overrides := map[string]catalogs.Override{}
	for _, e := range base.Entries() {
		o := catalogs.Override{BatchSize: t.BatchSizes[e.ConfigKey]}
		if !t.GroupWithVanilla {
			o.Group = GroupPrefix + e.Group
		}
		if o != (catalogs.Override{}) {
			overrides[e.ConfigKey] = o
		}
	}
	if len(overrides) > 0 {
		if base, err = base.WithOverrides(overrides); err != nil {
			return nil, err
		}
	}

	enabled := map[string]bool{}
	if len(t.Cauldron.Enable) == 0 {
		for _, e := range base.Entries() {
			enabled[e.ConfigKey] = true
		}
	} else {
		// Keys for materials the profile lacks (candle before v1_17) are skipped.
		for k, on := range t.Cauldron.Enable {
			if _, ok := base.Entry(k); ok {
				enabled[k] = on
			}
		}
	}
	return base.Enabled(enabled)
}

// EnabledKeys lists the cauldron.enable keys switched on, sorted.
func (t Tuning) EnabledKeys() []string {
	out := make([]string, 0, len(t.Cauldron.Enable))
	for k, on := range t.Cauldron.Enable {
		if on {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
