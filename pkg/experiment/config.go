package experiment

import (
	"encoding/json"
	"fmt"
)

// TestType selects which presentation knob an experiment varies
type TestType string

const (
	TestTypeLayout            TestType = "layout"
	TestTypeCTAPlacement      TestType = "cta_placement"
	TestTypeThumbnail         TestType = "thumbnail"
	TestTypeCardStyle         TestType = "card_style"
	TestTypeDescriptionLength TestType = "description_length"
)

// VariantConfig is the concrete presentation configuration handed to the
// rendering layer. Each test type has exactly one config shape; the closed set
// below replaces the loosely typed per-test config bags of earlier iterations.
type VariantConfig interface {
	TestType() TestType
}

// LayoutConfig controls the orientation of resource lists
type LayoutConfig struct {
	Orientation string `json:"orientation"` // vertical or horizontal
}

func (LayoutConfig) TestType() TestType { return TestTypeLayout }

// CTAPlacementConfig controls where the call-to-action button renders
type CTAPlacementConfig struct {
	Placement string `json:"placement"` // top, bottom or inline
}

func (CTAPlacementConfig) TestType() TestType { return TestTypeCTAPlacement }

// ThumbnailConfig controls thumbnail visibility and size on resource cards
type ThumbnailConfig struct {
	ShowThumbnail bool   `json:"show_thumbnail"`
	Size          string `json:"size"` // small or large
}

func (ThumbnailConfig) TestType() TestType { return TestTypeThumbnail }

// CardStyleConfig controls the density of resource cards
type CardStyleConfig struct {
	Density string `json:"density"` // minimal or detailed
}

func (CardStyleConfig) TestType() TestType { return TestTypeCardStyle }

// DescriptionLengthConfig controls how much of a resource description is shown
type DescriptionLengthConfig struct {
	Truncation string `json:"truncation"` // short, medium or full
}

func (DescriptionLengthConfig) TestType() TestType { return TestTypeDescriptionLength }

// Catalog maps each test type to its control (variant A) and treatment
// (variant B) configurations. It is built once at startup and injected; the
// resolver never reads mutable global state.
type Catalog struct {
	entries map[TestType]catalogEntry
}

type catalogEntry struct {
	control   VariantConfig
	treatment VariantConfig
}

// NewCatalog returns an empty catalog. Register pins a test type's pair.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[TestType]catalogEntry)}
}

// Register adds a test type with its control and treatment configs.
// Registering the same test type twice replaces the earlier pair; callers are
// expected to finish registration before the catalog is shared.
func (c *Catalog) Register(control, treatment VariantConfig) *Catalog {
	c.entries[control.TestType()] = catalogEntry{control: control, treatment: treatment}
	return c
}

// Config returns the configuration for a variant of the given test type.
func (c *Catalog) Config(tt TestType, v Variant) (VariantConfig, error) {
	entry, ok := c.entries[tt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTestType, tt)
	}
	if v == VariantB {
		return entry.treatment, nil
	}
	return entry.control, nil
}

// Default returns the control configuration for a test type, used as the
// fallback whenever no assignment can be made. Unknown test types fall back to
// a vertical layout so the rendering layer always gets something usable.
func (c *Catalog) Default(tt TestType) VariantConfig {
	if entry, ok := c.entries[tt]; ok {
		return entry.control
	}
	return LayoutConfig{Orientation: "vertical"}
}

// DefaultCatalog returns the catalog of production test types with their
// pinned control values and treatment values.
func DefaultCatalog() *Catalog {
	return NewCatalog().
		Register(LayoutConfig{Orientation: "vertical"}, LayoutConfig{Orientation: "horizontal"}).
		Register(CTAPlacementConfig{Placement: "bottom"}, CTAPlacementConfig{Placement: "top"}).
		Register(ThumbnailConfig{ShowThumbnail: true, Size: "small"}, ThumbnailConfig{ShowThumbnail: true, Size: "large"}).
		Register(CardStyleConfig{Density: "detailed"}, CardStyleConfig{Density: "minimal"}).
		Register(DescriptionLengthConfig{Truncation: "medium"}, DescriptionLengthConfig{Truncation: "short"})
}

// configEnvelope is the persisted form of a VariantConfig snapshot. The test
// type tag makes the JSON self-describing so stores can decode without joining
// back to the experiment row.
type configEnvelope struct {
	TestType TestType        `json:"test_type"`
	Config   json.RawMessage `json:"config"`
}

// EncodeConfig serializes a VariantConfig snapshot for persistence.
func EncodeConfig(cfg VariantConfig) ([]byte, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return json.Marshal(configEnvelope{TestType: cfg.TestType(), Config: raw})
}

// DecodeConfig deserializes a persisted VariantConfig snapshot.
func DecodeConfig(data []byte) (VariantConfig, error) {
	var env configEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config envelope: %w", err)
	}

	var cfg VariantConfig
	switch env.TestType {
	case TestTypeLayout:
		var c LayoutConfig
		if err := json.Unmarshal(env.Config, &c); err != nil {
			return nil, err
		}
		cfg = c
	case TestTypeCTAPlacement:
		var c CTAPlacementConfig
		if err := json.Unmarshal(env.Config, &c); err != nil {
			return nil, err
		}
		cfg = c
	case TestTypeThumbnail:
		var c ThumbnailConfig
		if err := json.Unmarshal(env.Config, &c); err != nil {
			return nil, err
		}
		cfg = c
	case TestTypeCardStyle:
		var c CardStyleConfig
		if err := json.Unmarshal(env.Config, &c); err != nil {
			return nil, err
		}
		cfg = c
	case TestTypeDescriptionLength:
		var c DescriptionLengthConfig
		if err := json.Unmarshal(env.Config, &c); err != nil {
			return nil, err
		}
		cfg = c
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTestType, env.TestType)
	}

	return cfg, nil
}

// ValidTestType reports whether tt is one of the known test types.
func ValidTestType(tt TestType) bool {
	switch tt {
	case TestTypeLayout, TestTypeCTAPlacement, TestTypeThumbnail, TestTypeCardStyle, TestTypeDescriptionLength:
		return true
	}
	return false
}
