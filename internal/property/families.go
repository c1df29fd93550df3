package property

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Override replaces the meaning of property tags for a device series.
type Override struct {
	Series     string
	Tags       map[Tag]TagInfo
	Strategies map[Tag]Strategy
}

func (o *Override) strategy(tag Tag) (Strategy, bool) {
	if o == nil {
		return Strategy{}, false
	}
	s, ok := o.Strategies[tag]
	return s, ok
}

func (o *Override) tagInfo(tag Tag) (TagInfo, bool) {
	if o == nil {
		return TagInfo{}, false
	}
	ti, ok := o.Tags[tag]
	return ti, ok
}

// FamilyLookup resolves a device family to its property override, if any.
type FamilyLookup func(family string) (*Override, bool)

func verifyErase() Strategy {
	return Strategy{Kind: KindBool, TrueString: "ENABLE", FalseString: "DISABLE"}
}

var kw45Series = &Override{
	Series: "kw45_series",
	Tags: map[Tag]TagInfo{
		0x0A: {"VerifyErase", "Verify Erase"},
		0x14: {"BootStatusRegister", "Boot Status Register"},
		0x15: {"FirmwareVersion", "Firmware Version"},
		0x16: {"FuseProgramVoltage", "Fuse Program Voltage"},
	},
	Strategies: map[Tag]Strategy{
		0x0A: verifyErase(),
		0x14: {Kind: KindInt, Format: FormatHex},
		0x15: {Kind: KindInt, Format: FormatInt32},
		0x16: fuseVoltage(),
	},
}

var kw47Series = &Override{
	Series: "kw47_series",
	Tags: map[Tag]TagInfo{
		0x0A: {"VerifyErase", "Verify Erase"},
		0x14: {"BootStatusRegister", "Boot Status Register"},
		0x15: {"FirmwareVersion", "Firmware Version"},
		0x22: {"FuseProgramVoltage", "Fuse Program Voltage"},
	},
	Strategies: map[Tag]Strategy{
		0x0A: verifyErase(),
		0x14: {Kind: KindInt, Format: FormatHex},
		0x15: {Kind: KindInt, Format: FormatInt32},
		0x22: fuseVoltage(),
	},
}

var mcxa1Series = &Override{
	Series: "mcxa1_series",
	Tags: map[Tag]TagInfo{
		0x11: {"LifeCycleState", "Life Cycle State"},
	},
	Strategies: map[Tag]Strategy{
		0x11: securityState("development life cycle", "deployment life cycle"),
	},
}

var builtinSeries = map[string]*Override{
	kw45Series.Series:  kw45Series,
	kw47Series.Series:  kw47Series,
	mcxa1Series.Series: mcxa1Series,
}

// Series returns a built-in override by series name.
func Series(name string) (*Override, bool) {
	o, ok := builtinSeries[name]
	return o, ok
}

// FamilyDatabase maps device families to the property override series they use.
type FamilyDatabase struct {
	families map[string]string
}

var defaultFamilies = &FamilyDatabase{families: map[string]string{
	"kw45b41z5":  "kw45_series",
	"kw45b41z8":  "kw45_series",
	"k32w148":    "kw45_series",
	"kw47b42z83": "kw47_series",
	"kw47b42z96": "kw47_series",
	"kw47b42z97": "kw47_series",
	"kw47b42zb2": "kw47_series",
	"kw47b42zb3": "kw47_series",
	"kw47b42zb6": "kw47_series",
	"kw47b42zb7": "kw47_series",
	"mcxw727":    "kw47_series",
	"mcxa132":    "mcxa1_series",
	"mcxa133":    "mcxa1_series",
	"mcxa142":    "mcxa1_series",
	"mcxa143":    "mcxa1_series",
	"mcxa144":    "mcxa1_series",
	"mcxa145":    "mcxa1_series",
	"mcxa146":    "mcxa1_series",
	"mcxa152":    "mcxa1_series",
	"mcxa153":    "mcxa1_series",
	"mcxa154":    "mcxa1_series",
	"mcxa155":    "mcxa1_series",
	"mcxa156":    "mcxa1_series",
}}

// DefaultFamilies returns the built-in family database.
func DefaultFamilies() *FamilyDatabase {
	return defaultFamilies
}

// Lookup resolves a family name, or a series name, to its override.
// It matches the FamilyLookup signature.
func (db *FamilyDatabase) Lookup(family string) (*Override, bool) {
	key := strings.ToLower(strings.TrimSpace(family))
	if o, ok := builtinSeries[key]; ok {
		return o, true
	}
	if db == nil {
		return nil, false
	}
	series, ok := db.families[key]
	if !ok || series == "" {
		return nil, false
	}
	return Series(series)
}

// Families returns the known family names in order.
func (db *FamilyDatabase) Families() []string {
	names := make([]string, 0, len(db.families))
	for name := range db.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a database with the entries of other layered over db.
func (db *FamilyDatabase) Merge(other *FamilyDatabase) *FamilyDatabase {
	merged := &FamilyDatabase{families: make(map[string]string, len(db.families))}
	for k, v := range db.families {
		merged.families[k] = v
	}
	if other != nil {
		for k, v := range other.families {
			merged.families[k] = v
		}
	}
	return merged
}

type familyFile struct {
	Families map[string]struct {
		OverriddenProperties string `yaml:"overridden_properties"`
	} `yaml:"families"`
}

// LoadFamilyDatabase reads a YAML family database:
//
//	families:
//	  kw45b41z8:
//	    overridden_properties: kw45_series
//
// An empty overridden_properties means the family uses the base properties.
func LoadFamilyDatabase(r io.Reader) (*FamilyDatabase, error) {
	var file familyFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse family database: %w", err)
	}

	db := &FamilyDatabase{families: make(map[string]string, len(file.Families))}
	for name, entry := range file.Families {
		series := strings.TrimSpace(entry.OverriddenProperties)
		if series != "" {
			if _, ok := builtinSeries[series]; !ok {
				return nil, fmt.Errorf("family %s: unknown property series %q", name, series)
			}
		}
		db.families[strings.ToLower(name)] = series
	}
	return db, nil
}
