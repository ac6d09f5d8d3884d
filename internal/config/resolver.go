package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/sells-group/healthmetrics-cli/internal/model"
)

// ProviderEntry is the configuration schema for one provider, keyed by
// provider name under "providers".
type ProviderEntry struct {
	Credentials       string        `mapstructure:"credentials" validate:"required"`
	Endpoint          string        `mapstructure:"endpoint" validate:"required,url"`
	Model             string        `mapstructure:"model" validate:"required"`
	TimeoutMs         *int          `mapstructure:"timeout_ms" validate:"required,gt=0"`
	MaxRetries        *int          `mapstructure:"max_retries" validate:"required,min=0"`
	Priority          *int          `mapstructure:"priority" validate:"required"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Pricing           model.Pricing `mapstructure:"pricing"`
}

type resolution struct {
	cfg      model.ProviderConfig
	err      error
	priority int
}

// Resolver resolves per-provider settings. All entries are decoded and
// validated once by NewResolver; afterwards it is read-only and safe for
// concurrent use.
type Resolver struct {
	order    []string
	resolved map[string]resolution
}

// NewResolver builds a Resolver from cfg.
func NewResolver(cfg *Config) *Resolver {
	validate := newValidator()

	declared := normalizeNames(cfg.Extraction.Providers)
	if len(declared) == 0 {
		for name := range cfg.Providers {
			declared = append(declared, name)
		}
		declared = normalizeNames(declared)
		sort.Strings(declared)
	}

	r := &Resolver{resolved: make(map[string]resolution, len(cfg.Providers))}
	for name, raw := range cfg.Providers {
		name = normalizeName(name)
		r.resolved[name] = resolveEntry(validate, name, raw)
	}

	// Stable sort keeps declared order among equal priorities. Names without an
	// entry sort as priority 0 so the failure surfaces when they are reached.
	r.order = append(r.order, declared...)
	sort.SliceStable(r.order, func(i, j int) bool {
		return r.resolved[r.order[i]].priority < r.resolved[r.order[j]].priority
	})

	return r
}

// Resolve returns the configuration for name, or a *ConfigurationError when
// the entry is missing or invalid.
func (r *Resolver) Resolve(name string) (model.ProviderConfig, error) {
	res, ok := r.resolved[normalizeName(name)]
	if !ok {
		return model.ProviderConfig{}, MissingConfig(providerKey(name), "no configuration entry for provider")
	}
	if res.err != nil {
		return model.ProviderConfig{}, res.err
	}
	return res.cfg, nil
}

// PriorityOrder returns provider names in the order they should be tried.
func (r *Resolver) PriorityOrder() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate resolves every provider in priority order and returns the first
// error, for callers that want to fail at boot rather than on first use.
func (r *Resolver) Validate() error {
	if len(r.order) == 0 {
		return MissingConfig("extraction.providers", "no providers configured")
	}
	for _, name := range r.order {
		if _, err := r.Resolve(name); err != nil {
			return err
		}
	}
	return nil
}

func resolveEntry(validate *validator.Validate, name string, raw any) resolution {
	key := providerKey(name)

	var entry ProviderEntry
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &entry,
	})
	if err != nil {
		return resolution{err: InvalidConfig(key, err.Error())}
	}
	if err := dec.Decode(raw); err != nil {
		return resolution{err: InvalidConfig(key, err.Error())}
	}

	priority := 0
	if entry.Priority != nil {
		priority = *entry.Priority
	}

	entry.Credentials = strings.TrimSpace(os.ExpandEnv(entry.Credentials))
	if err := validate.Struct(entry); err != nil {
		return resolution{err: InvalidConfig(key, describeValidation(err)), priority: priority}
	}

	return resolution{
		priority: priority,
		cfg: model.ProviderConfig{
			Name:              name,
			Credentials:       entry.Credentials,
			Endpoint:          strings.TrimRight(entry.Endpoint, "/"),
			Model:             entry.Model,
			Timeout:           time.Duration(*entry.TimeoutMs) * time.Millisecond,
			MaxRetries:        *entry.MaxRetries,
			Priority:          priority,
			RequestsPerSecond: entry.RequestsPerSecond,
			Pricing:           entry.Pricing,
		},
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// describeValidation turns validator failures into a human-readable reason.
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			reasons = append(reasons, fmt.Sprintf("%s is required", field))
		case "url":
			reasons = append(reasons, fmt.Sprintf("%s must be a valid URL", field))
		case "gt":
			reasons = append(reasons, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		case "min", "gte":
			reasons = append(reasons, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		default:
			reasons = append(reasons, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return strings.Join(reasons, "; ")
}

func providerKey(name string) string {
	return "providers." + normalizeName(name)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// normalizeNames lowercases names and drops blanks and duplicates, keeping first occurrence.
func normalizeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = normalizeName(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
