// Package risk maps detector sources to the static metadata shown in
// moderation reports: display name, description, and severity level. A
// default catalog ships embedded in the binary; deployments can overlay it
// with a TOML file.
package risk

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

//go:embed catalog.toml
var defaultCatalogTOML []byte

// Severity levels a definition may carry.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// Definition describes how one detector source is presented to operators.
type Definition struct {
	Source      string `toml:"source" json:"source"`
	Name        string `toml:"name" json:"name"`
	Description string `toml:"description" json:"description"`
	Level       string `toml:"level" json:"level"`
}

type catalogFile struct {
	Definitions []Definition `toml:"definitions"`
}

// Catalog resolves detector sources to their definitions. Lookups on a nil
// catalog miss rather than panic.
type Catalog struct {
	definitions map[string]Definition
	order       []string
}

var defaultCatalog = mustParse(defaultCatalogTOML)

// Default returns the embedded catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Load returns the embedded catalog overlaid with definitions from the TOML
// file at path. File entries replace embedded entries for the same source and
// append otherwise. An empty path returns the embedded catalog unchanged.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk catalog: %w", err)
	}
	overlay, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("risk catalog %s: %w", path, err)
	}

	merged := &Catalog{definitions: make(map[string]Definition, len(defaultCatalog.order)+len(overlay.order))}
	for _, source := range defaultCatalog.order {
		merged.definitions[source] = defaultCatalog.definitions[source]
		merged.order = append(merged.order, source)
	}
	for _, source := range overlay.order {
		if _, exists := merged.definitions[source]; !exists {
			merged.order = append(merged.order, source)
		}
		merged.definitions[source] = overlay.definitions[source]
	}
	return merged, nil
}

// Lookup returns the definition for a detector source.
func (c *Catalog) Lookup(source string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	def, ok := c.definitions[source]
	return def, ok
}

// Definitions returns every definition in catalog order.
func (c *Catalog) Definitions() []Definition {
	if c == nil {
		return nil
	}
	defs := make([]Definition, 0, len(c.order))
	for _, source := range c.order {
		defs = append(defs, c.definitions[source])
	}
	return defs
}

func parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse risk catalog: %w", err)
	}
	catalog := &Catalog{definitions: make(map[string]Definition, len(file.Definitions))}
	for i, def := range file.Definitions {
		def.Source = strings.ToLower(strings.TrimSpace(def.Source))
		def.Level = strings.ToLower(strings.TrimSpace(def.Level))
		if def.Source == "" {
			return nil, fmt.Errorf("definition %d: source is required", i)
		}
		switch def.Level {
		case LevelLow, LevelMedium, LevelHigh:
		default:
			return nil, fmt.Errorf("definition %q: level must be one of low, medium, high", def.Source)
		}
		if _, exists := catalog.definitions[def.Source]; !exists {
			catalog.order = append(catalog.order, def.Source)
		}
		catalog.definitions[def.Source] = def
	}
	return catalog, nil
}

func mustParse(raw []byte) *Catalog {
	catalog, err := parse(raw)
	if err != nil {
		panic(fmt.Sprintf("risk: embedded catalog invalid: %v", err))
	}
	return catalog
}
