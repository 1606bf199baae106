package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"mdbundle/pkg/contracts"
)

// FeedSchemaVersion is the only schema-mapping version this build reads.
const FeedSchemaVersion = contracts.FeedSchemaVersion

// Feed roles
const (
	RolePrices  = "prices"
	RoleActions = "actions"
)

// Feed file formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Adjustment derivation modes
const (
	AdjustmentModeNone      = "none"
	AdjustmentModeExplicit  = "explicit"
	AdjustmentModeInference = "inference"
)

// Split column conventions. A "ratio" column already holds the price
// multiplier; a "multiplier" column holds new shares per old share.
const (
	SplitConventionRatio      = "ratio"
	SplitConventionMultiplier = "multiplier"
)

// FeedSchemas is the versioned schema-mapping file.
type FeedSchemas struct {
	Version int          `yaml:"version" validate:"eq=1"`
	Feeds   []FeedSchema `yaml:"feeds" validate:"required,min=1,dive"`
}

// FeedSchema maps one vendor's file layout onto raw feed rows. Columns are
// matched by exact header text.
type FeedSchema struct {
	Name     string `yaml:"name" validate:"required"`
	Role     string `yaml:"role" validate:"omitempty,oneof=prices actions"`
	Format   string `yaml:"format" validate:"required,oneof=csv xlsx"`
	Pattern  string `yaml:"pattern" validate:"required,glob"`
	Sheet    string `yaml:"sheet" validate:"required_if=Format xlsx"`
	Exchange string `yaml:"exchange" validate:"required"`

	DateColumn   string `yaml:"date_column" validate:"required"`
	DateLayout   string `yaml:"date_layout" validate:"datelayout"`
	TickerColumn string `yaml:"ticker_column" validate:"required"`
	NameColumn   string `yaml:"name_column"`

	OpenColumn   string `yaml:"open_column" validate:"required_unless=Role actions"`
	HighColumn   string `yaml:"high_column" validate:"required_unless=Role actions"`
	LowColumn    string `yaml:"low_column" validate:"required_unless=Role actions"`
	CloseColumn  string `yaml:"close_column" validate:"required_unless=Role actions"`
	VolumeColumn string `yaml:"volume_column" validate:"required_unless=Role actions"`

	Adjustments AdjustmentMapping `yaml:"adjustments"`
}

// AdjustmentMapping names the corporate-action columns of a feed.
type AdjustmentMapping struct {
	Mode                  string `yaml:"mode" validate:"omitempty,oneof=none explicit inference"`
	SplitColumn           string `yaml:"split_column"`
	SplitConvention       string `yaml:"split_convention" validate:"omitempty,oneof=ratio multiplier"`
	DividendColumn        string `yaml:"dividend_column"`
	AdjustedCloseColumn   string `yaml:"adjusted_close_column" validate:"required_if=Mode inference"`
	UnadjustedCloseColumn string `yaml:"unadjusted_close_column" validate:"required_if=Mode inference"`
}

// LoadFeedSchemas reads and validates a schema-mapping file.
func LoadFeedSchemas(path string) (*FeedSchemas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var schemas FeedSchemas
	if err := yaml.UnmarshalStrict(data, &schemas); err != nil {
		return nil, fmt.Errorf("failed to parse feed schemas %s: %w", path, err)
	}
	if schemas.Version != FeedSchemaVersion {
		return nil, fmt.Errorf("unsupported feed schema version %d (want %d)", schemas.Version, FeedSchemaVersion)
	}

	schemas.applyDefaults()

	if err := schemas.Validate(); err != nil {
		return nil, err
	}
	return &schemas, nil
}

func (s *FeedSchemas) applyDefaults() {
	for i := range s.Feeds {
		f := &s.Feeds[i]
		if f.Role == "" {
			f.Role = RolePrices
		}
		if f.DateLayout == "" {
			f.DateLayout = "2006-01-02"
		}
		if f.Adjustments.Mode == "" {
			f.Adjustments.Mode = AdjustmentModeNone
			if f.Role == RoleActions {
				f.Adjustments.Mode = AdjustmentModeExplicit
			}
		}
		if f.Adjustments.SplitConvention == "" {
			f.Adjustments.SplitConvention = SplitConventionRatio
		}
	}
}

// Validate checks tags and the rules tags cannot express.
func (s *FeedSchemas) Validate() error {
	if err := validateStruct(s); err != nil {
		return err
	}

	seen := make(map[string]bool, len(s.Feeds))
	for _, f := range s.Feeds {
		if seen[f.Name] {
			return fmt.Errorf("duplicate feed name %q", f.Name)
		}
		seen[f.Name] = true

		switch f.Adjustments.Mode {
		case AdjustmentModeExplicit:
			if f.Adjustments.SplitColumn == "" && f.Adjustments.DividendColumn == "" {
				return fmt.Errorf("feed %s: explicit mode needs split_column or dividend_column", f.Name)
			}
		case AdjustmentModeInference:
			if f.Role == RoleActions {
				return fmt.Errorf("feed %s: actions feeds cannot use inference mode", f.Name)
			}
		case AdjustmentModeNone:
			if f.Role == RoleActions {
				return fmt.Errorf("feed %s: actions feeds need an adjustment mode", f.Name)
			}
		}
	}
	return nil
}

// Matches reports whether a file name belongs to this feed.
func (f FeedSchema) Matches(name string) bool {
	ok, err := matchPattern(f.Pattern, name)
	return err == nil && ok
}

// Columns returns every mapped header the feed requires, in a stable order.
func (f FeedSchema) Columns() []string {
	cols := []string{f.DateColumn, f.TickerColumn}
	for _, c := range []string{
		f.NameColumn,
		f.OpenColumn, f.HighColumn, f.LowColumn, f.CloseColumn, f.VolumeColumn,
		f.Adjustments.SplitColumn, f.Adjustments.DividendColumn,
		f.Adjustments.AdjustedCloseColumn, f.Adjustments.UnadjustedCloseColumn,
	} {
		if c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// ForFile returns the first feed whose pattern matches name.
func (s *FeedSchemas) ForFile(name string) (FeedSchema, bool) {
	base := filepath.Base(name)
	for _, f := range s.Feeds {
		if f.Matches(base) {
			return f, true
		}
	}
	return FeedSchema{}, false
}

func matchPattern(pattern, name string) (bool, error) {
	return filepath.Match(strings.TrimSpace(pattern), name)
}
