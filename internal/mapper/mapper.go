// Package mapper normalizes provider-specific extraction output into the
// canonical metric schema.
package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/healthmetrics-cli/internal/config"
	"github.com/sells-group/healthmetrics-cli/internal/model"
)

type compiledRule struct {
	field   string
	convert conversion
}

type compiledMetric struct {
	def   MetricDef
	rules []compiledRule
}

// Mapper applies a validated rule set. It holds no mutable state after
// construction: Map is a pure function of its arguments.
type Mapper struct {
	metrics   []MetricDef
	providers map[string][]compiledMetric
}

// New compiles rules into a Mapper.
func New(rules *Rules) (*Mapper, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	m := &Mapper{
		metrics:   append([]MetricDef(nil), rules.Metrics...),
		providers: make(map[string][]compiledMetric, len(rules.Providers)),
	}
	for name, frs := range rules.Providers {
		compiled := make([]compiledMetric, len(rules.Metrics))
		for i, def := range rules.Metrics {
			compiled[i].def = def
			for _, fr := range frs {
				if fr.Metric != def.Name {
					continue
				}
				conv, _ := converter(def.Name, sourceUnit(fr, def), def.Unit)
				compiled[i].rules = append(compiled[i].rules, compiledRule{field: fr.Field, convert: conv})
			}
		}
		m.providers[strings.ToLower(name)] = compiled
	}
	return m, nil
}

// NewDefault returns a Mapper over the built-in rules.
func NewDefault() (*Mapper, error) {
	rules, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	return New(rules)
}

// FromConfig returns a Mapper over cfg.RulesFile, or the built-in rules when
// no file is configured.
func FromConfig(cfg config.MappingConfig) (*Mapper, error) {
	if cfg.RulesFile == "" {
		return NewDefault()
	}
	rules, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	return New(rules)
}

// Providers returns the provider names that have mapping rules, sorted.
func (m *Mapper) Providers() []string {
	return sortedKeys(m.providers)
}

// Metrics returns the canonical schema in output order.
func (m *Mapper) Metrics() []MetricDef {
	return append([]MetricDef(nil), m.metrics...)
}

// HasProvider reports whether rules exist for provider.
func (m *Mapper) HasProvider(provider string) bool {
	_, ok := m.providers[strings.ToLower(provider)]
	return ok
}

// Map converts raw into a MetricSet ordered by the canonical schema. Fields
// that are missing or unusable are omitted unless their metric is required.
//
// It fails with an invalid_config ConfigurationError when no rules exist for
// provider, and a mapping_error ConfigurationError when a required metric
// cannot be produced.
func (m *Mapper) Map(provider string, raw *model.RawExtractionResult) (*model.MetricSet, error) {
	name := strings.ToLower(strings.TrimSpace(provider))
	compiled, ok := m.providers[name]
	if !ok {
		return nil, config.InvalidConfig("mapping.providers."+name, "no mapping rules for provider")
	}

	var fields map[string]any
	var modelName string
	if raw != nil {
		fields = raw.Fields
		modelName = raw.Model
	}

	set := model.NewMetricSet(name, modelName)
	for _, cm := range compiled {
		metric, found := resolveMetric(cm, fields)
		if !found {
			if cm.def.Required {
				return nil, config.MappingError(
					fmt.Sprintf("mapping.providers.%s.%s", name, cm.def.Name),
					fmt.Sprintf("required metric %s missing or unusable in provider output", cm.def.Name),
				)
			}
			continue
		}
		if err := set.Add(metric); err != nil {
			return nil, config.MappingError("mapping.metrics."+cm.def.Name, err.Error())
		}
	}
	return set, nil
}

// resolveMetric returns the metric from the first rule whose field holds a
// usable, in-range value.
func resolveMetric(cm compiledMetric, fields map[string]any) (model.Metric, bool) {
	for _, r := range cm.rules {
		v, ok := lookup(fields, r.field)
		if !ok {
			continue
		}
		value, confidence, ok := coerce(v)
		if !ok {
			continue
		}
		value = round2(r.convert(value))
		if !inRange(cm.def, value) {
			continue
		}
		return model.Metric{Name: cm.def.Name, Value: value, Unit: cm.def.Unit, Confidence: confidence}, true
	}
	return model.Metric{}, false
}

// lookup finds key exactly, falling back to a case-insensitive match over
// sorted keys so the result never depends on map order.
func lookup(fields map[string]any, key string) (any, bool) {
	if v, ok := fields[key]; ok {
		return v, true
	}
	for _, k := range sortedKeys(fields) {
		if strings.EqualFold(k, key) {
			return fields[k], true
		}
	}
	return nil, false
}

var (
	leadingNumber = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)
	// unitToken matches one unit word after a number: "mmHg", "%", "°F",
	// "/min", "mg/dL", "kg/m2". It never starts with a digit.
	unitToken = regexp.MustCompile(`^/?[\p{L}%°µ][\p{L}%°µ/.·]*[23²³]?$`)
)

// coerce reads a numeric value and optional confidence from a field. It
// accepts numbers, numeric strings ("120", "120 mmHg", "1,234") and objects
// of the form {"value": .., "confidence": ..}. A string carrying more than
// one number ("120/80", "36-37") is not usable.
func coerce(v any) (float64, *float64, bool) {
	if obj, ok := v.(map[string]any); ok {
		inner, ok := lookup(obj, "value")
		if !ok {
			return 0, nil, false
		}
		value, _, ok := coerce(inner)
		if !ok {
			return 0, nil, false
		}
		var confidence *float64
		if c, ok := lookup(obj, "confidence"); ok {
			if cv, _, ok := coerce(c); ok && cv >= 0 && cv <= 1 {
				confidence = &cv
			}
		}
		return value, confidence, true
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, nil, false
		}
		f = parsed
	case string:
		parsed, ok := parseNumeric(t)
		if !ok {
			return 0, nil, false
		}
		f = parsed
	default:
		return 0, nil, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, nil, false
	}
	return f, nil, true
}

// parseNumeric reads a number with an optional unit suffix. Everything after
// the number must be unit words; any other text rejects the value.
func parseNumeric(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	num := leadingNumber.FindString(s)
	if num == "" {
		return 0, false
	}
	for _, tok := range strings.Fields(s[len(num):]) {
		if !unitToken.MatchString(tok) {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func inRange(def MetricDef, v float64) bool {
	if def.Min != nil && v < *def.Min {
		return false
	}
	if def.Max != nil && v > *def.Max {
		return false
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
