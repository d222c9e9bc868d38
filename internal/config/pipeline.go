package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"retail-medallion/internal/domain"
	"retail-medallion/internal/normalize"
)

// Pipeline is the declarative definition of one medallion pipeline.
type Pipeline struct {
	Source    SourceConfig    `yaml:"source"`
	Layers    LayersConfig    `yaml:"layers"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// SourceConfig locates and describes the raw delimited file.
type SourceConfig struct {
	Path            string   `yaml:"path"`
	Delimiter       string   `yaml:"delimiter"`
	ExpectedColumns []string `yaml:"expected_columns"`
}

// LayersConfig holds one storage location per medallion layer.
type LayersConfig struct {
	Bronze string `yaml:"bronze"`
	Silver string `yaml:"silver"`
	Gold   string `yaml:"gold"`
}

// NormalizeConfig controls the Bronze → Silver stage.
type NormalizeConfig struct {
	DateFormats []string          `yaml:"date_formats"`
	Columns     map[string]string `yaml:"columns"`
	Workers     int               `yaml:"workers"`
}

// AggregateConfig controls the Silver → Gold stage.
type AggregateConfig struct {
	Views           []ViewConfig `yaml:"views"`
	AverageDiscount *bool        `yaml:"average_discount"`
}

// ViewConfig is one Gold dataset: a name and its grouping dimensions.
type ViewConfig struct {
	Name       string   `yaml:"name"`
	Dimensions []string `yaml:"dimensions"`
}

// ScheduleConfig holds the optional cron expression for the schedule command.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

// DefaultDateFormats is the ordered list of accepted Order Date formats.
var DefaultDateFormats = []string{"MM-DD-YYYY", "M/D/YYYY", "YYYY-MM-DD"}

// DefaultPipeline returns a pipeline that reads ./data/superstore.csv and
// writes the three layers under ./lake.
func DefaultPipeline() *Pipeline {
	p := &Pipeline{}
	p.applyDefaults()
	return p
}

// LoadPipeline reads a pipeline definition from a YAML file. Unknown fields are
// rejected. Missing fields take their defaults.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	p, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline config %s: %w", path, err)
	}
	return p, nil
}

// ParsePipeline decodes, defaults and validates a pipeline definition.
func ParsePipeline(data []byte) (*Pipeline, error) {
	p := &Pipeline{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) applyDefaults() {
	if p.Source.Path == "" {
		p.Source.Path = "data/superstore.csv"
	}
	if p.Source.Delimiter == "" {
		p.Source.Delimiter = ","
	}
	if len(p.Source.ExpectedColumns) == 0 {
		p.Source.ExpectedColumns = domain.DefaultExpectedColumns()
	}
	if p.Layers.Bronze == "" {
		p.Layers.Bronze = "lake/bronze"
	}
	if p.Layers.Silver == "" {
		p.Layers.Silver = "lake/silver"
	}
	if p.Layers.Gold == "" {
		p.Layers.Gold = "lake/gold"
	}
	if len(p.Normalize.DateFormats) == 0 {
		p.Normalize.DateFormats = slices.Clone(DefaultDateFormats)
	}
	// Partial column maps override only the fields they name.
	cols := domain.DefaultColumns()
	for field, column := range p.Normalize.Columns {
		cols[field] = column
	}
	p.Normalize.Columns = cols
	if len(p.Aggregate.Views) == 0 {
		p.Aggregate.Views = []ViewConfig{
			{Name: "sales_by_region", Dimensions: []string{domain.FieldRegion}},
			{Name: "sales_by_category", Dimensions: []string{domain.FieldCategory}},
			{Name: "sales_by_state", Dimensions: []string{domain.FieldState}},
		}
	}
	if p.Aggregate.AverageDiscount == nil {
		v := true
		p.Aggregate.AverageDiscount = &v
	}
}

// Validate checks that the pipeline definition is internally consistent.
// Column existence is checked against the real header by the normalizer.
func (p *Pipeline) Validate() error {
	if len([]rune(p.Source.Delimiter)) != 1 {
		return domain.ErrValidation("source.delimiter must be a single character, got %q", p.Source.Delimiter)
	}
	if p.Layers.Bronze == p.Layers.Silver || p.Layers.Silver == p.Layers.Gold || p.Layers.Bronze == p.Layers.Gold {
		return domain.ErrValidation("layers.bronze, layers.silver and layers.gold must be distinct locations")
	}
	for _, f := range p.Normalize.DateFormats {
		if strings.TrimSpace(f) == "" {
			return domain.ErrValidation("normalize.date_formats must not contain empty entries")
		}
		if _, err := normalize.DateLayout(f); err != nil {
			return domain.ErrValidation("normalize.date_formats: %s", err.Error())
		}
	}
	for field := range p.Normalize.Columns {
		if !slices.Contains(domain.CleanedFields, field) {
			return domain.ErrValidation("normalize.columns: unknown field %q", field)
		}
	}
	if p.Normalize.Workers < 0 {
		return domain.ErrValidation("normalize.workers must not be negative")
	}
	seen := make(map[string]bool, len(p.Aggregate.Views))
	for _, v := range p.Aggregate.Views {
		if v.Name == "" {
			return domain.ErrValidation("aggregate.views: name is required")
		}
		if seen[v.Name] {
			return domain.ErrValidation("aggregate.views: duplicate view %q", v.Name)
		}
		seen[v.Name] = true
		if len(v.Dimensions) == 0 {
			return domain.ErrValidation("aggregate.views[%s]: at least one dimension is required", v.Name)
		}
		for i, d := range v.Dimensions {
			if slices.Contains(v.Dimensions[:i], d) {
				return domain.ErrValidation("aggregate.views[%s]: duplicate dimension %q", v.Name, d)
			}
		}
	}
	return nil
}

// DelimiterRune returns the source delimiter as a rune.
func (p *Pipeline) DelimiterRune() rune {
	return []rune(p.Source.Delimiter)[0]
}
