package mapper

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// MetricDef declares one canonical metric. Min and Max, when set, bound the
// plausible range in the canonical unit; values outside it are discarded.
type MetricDef struct {
	Name     string   `yaml:"name" validate:"required"`
	Unit     string   `yaml:"unit" validate:"required"`
	Required bool     `yaml:"required"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
}

// FieldRule translates one provider field into a canonical metric. Unit is
// the unit the provider reports in; empty means the canonical unit.
type FieldRule struct {
	Field  string `yaml:"field" validate:"required"`
	Metric string `yaml:"metric" validate:"required"`
	Unit   string `yaml:"unit"`
}

// Rules is the canonical schema plus per-provider translation rules.
type Rules struct {
	Metrics   []MetricDef            `yaml:"metrics" validate:"required,min=1,dive"`
	Providers map[string][]FieldRule `yaml:"providers" validate:"required,min=1,dive,keys,required,endkeys,min=1,dive"`
}

// DefaultRules returns the built-in rules.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads rules from a YAML file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapper: read rules %s", path)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates YAML rules.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "mapper: parse rules")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the rule set is complete and self-consistent: unique metric
// names, rules that reference declared metrics through a known unit
// conversion, and no provider field declared twice.
func (r *Rules) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return eris.Wrap(err, "mapper: invalid rules")
	}

	var errs []string
	metrics := make(map[string]MetricDef, len(r.Metrics))
	for _, m := range r.Metrics {
		if _, dup := metrics[m.Name]; dup {
			errs = append(errs, fmt.Sprintf("metric %s declared twice", m.Name))
		}
		if m.Min != nil && m.Max != nil && *m.Min > *m.Max {
			errs = append(errs, fmt.Sprintf("metric %s has min > max", m.Name))
		}
		metrics[m.Name] = m
	}

	for _, provider := range sortedKeys(r.Providers) {
		seen := make(map[string]bool)
		for _, fr := range r.Providers[provider] {
			if seen[fr.Field] {
				errs = append(errs, fmt.Sprintf("%s: field %s declared twice", provider, fr.Field))
			}
			seen[fr.Field] = true

			def, ok := metrics[fr.Metric]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: field %s references unknown metric %s", provider, fr.Field, fr.Metric))
				continue
			}
			if _, ok := converter(fr.Metric, sourceUnit(fr, def), def.Unit); !ok {
				errs = append(errs, fmt.Sprintf("%s: no conversion from %s to %s for %s", provider, fr.Unit, def.Unit, fr.Metric))
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("mapper: invalid rules: %s", strings.Join(errs, "; "))
	}
	return nil
}

func sourceUnit(fr FieldRule, def MetricDef) string {
	if fr.Unit == "" {
		return def.Unit
	}
	return fr.Unit
}
