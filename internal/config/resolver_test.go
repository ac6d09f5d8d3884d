package config

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerEntry(priority, retries int) map[string]any {
	return map[string]any{
		"credentials": "key",
		"endpoint":    "https://api.example.com/",
		"model":       "m-1",
		"timeout_ms":  3000,
		"max_retries": retries,
		"priority":    priority,
	}
}

func TestResolve_Valid(t *testing.T) {
	cfg := &Config{Providers: map[string]any{
		"claude": map[string]any{
			"credentials":         "sk-ant",
			"endpoint":            "https://api.anthropic.com/",
			"model":               "claude-haiku-4-5-20251001",
			"timeout_ms":          "2500",
			"max_retries":         "2",
			"priority":            1,
			"requests_per_second": 5,
			"pricing":             map[string]any{"input": 1.0, "output": 5.0},
		},
	}}

	pc, err := NewResolver(cfg).Resolve("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", pc.Name)
	assert.Equal(t, "sk-ant", pc.Credentials)
	assert.Equal(t, "https://api.anthropic.com", pc.Endpoint)
	assert.Equal(t, "claude-haiku-4-5-20251001", pc.Model)
	assert.Equal(t, 2500*time.Millisecond, pc.Timeout)
	assert.Equal(t, 2, pc.MaxRetries)
	assert.Equal(t, 1, pc.Priority)
	assert.InDelta(t, 5.0, pc.RequestsPerSecond, 0.001)
	assert.InDelta(t, 1.0, pc.Pricing.Input, 0.001)
	assert.InDelta(t, 5.0, pc.Pricing.Output, 0.001)
}

func TestResolve_CaseInsensitiveName(t *testing.T) {
	cfg := &Config{Providers: map[string]any{"claude": providerEntry(1, 0)}}
	pc, err := NewResolver(cfg).Resolve(" Claude ")
	require.NoError(t, err)
	assert.Equal(t, "claude", pc.Name)
}

func TestResolve_ExpandsCredentialsFromEnv(t *testing.T) {
	t.Setenv("TEST_DEEPSEEK_KEY", "ds-secret")
	entry := providerEntry(1, 0)
	entry["credentials"] = "${TEST_DEEPSEEK_KEY}"

	pc, err := NewResolver(&Config{Providers: map[string]any{"deepseek": entry}}).Resolve("deepseek")
	require.NoError(t, err)
	assert.Equal(t, "ds-secret", pc.Credentials)
}

func TestResolve_Missing(t *testing.T) {
	_, err := NewResolver(&Config{}).Resolve("openai")
	require.Error(t, err)

	ce, ok := AsConfigurationError(err)
	require.True(t, ok)
	assert.Equal(t, KindMissing, ce.Kind)
	assert.Equal(t, "providers.openai", ce.Key)
}

func TestResolve_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		reason string
	}{
		{"missing credentials", func(e map[string]any) { delete(e, "credentials") }, "credentials is required"},
		{"unset env credentials", func(e map[string]any) { e["credentials"] = "${TEST_UNSET_KEY_XYZ}" }, "credentials is required"},
		{"missing endpoint", func(e map[string]any) { delete(e, "endpoint") }, "endpoint is required"},
		{"bad endpoint", func(e map[string]any) { e["endpoint"] = "not a url" }, "endpoint must be a valid URL"},
		{"missing model", func(e map[string]any) { delete(e, "model") }, "model is required"},
		{"missing timeout", func(e map[string]any) { delete(e, "timeout_ms") }, "timeout_ms is required"},
		{"zero timeout", func(e map[string]any) { e["timeout_ms"] = 0 }, "timeout_ms must be greater than 0"},
		{"negative retries", func(e map[string]any) { e["max_retries"] = -1 }, "max_retries must be at least 0"},
		{"missing retries", func(e map[string]any) { delete(e, "max_retries") }, "max_retries is required"},
		{"missing priority", func(e map[string]any) { delete(e, "priority") }, "priority is required"},
		{"non-numeric timeout", func(e map[string]any) { e["timeout_ms"] = "soon" }, "timeout_ms"},
		{"negative pricing", func(e map[string]any) { e["pricing"] = map[string]any{"input": -1} }, "pricing.input must be at least 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := providerEntry(1, 0)
			tt.mutate(entry)

			_, err := NewResolver(&Config{Providers: map[string]any{"claude": entry}}).Resolve("claude")
			require.Error(t, err)

			ce, ok := AsConfigurationError(err)
			require.True(t, ok)
			assert.Equal(t, KindInvalid, ce.Kind)
			assert.Equal(t, "providers.claude", ce.Key)
			assert.Contains(t, ce.Context, tt.reason)
		})
	}
}

func TestResolve_NotAMap(t *testing.T) {
	_, err := NewResolver(&Config{Providers: map[string]any{"claude": "oops"}}).Resolve("claude")
	ce, ok := AsConfigurationError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalid, ce.Kind)
}

func TestPriorityOrder_SortsByPriority(t *testing.T) {
	cfg := &Config{
		Extraction: ExtractionConfig{Providers: []string{"claude", "openai", "deepseek"}},
		Providers: map[string]any{
			"claude":   providerEntry(3, 0),
			"openai":   providerEntry(2, 0),
			"deepseek": providerEntry(1, 0),
		},
	}
	assert.Equal(t, []string{"deepseek", "openai", "claude"}, NewResolver(cfg).PriorityOrder())
}

func TestPriorityOrder_TiesBrokenByDeclaredOrder(t *testing.T) {
	cfg := &Config{
		Extraction: ExtractionConfig{Providers: []string{"openai", "claude", "deepseek"}},
		Providers: map[string]any{
			"claude":   providerEntry(1, 0),
			"openai":   providerEntry(1, 0),
			"deepseek": providerEntry(0, 0),
		},
	}
	assert.Equal(t, []string{"deepseek", "openai", "claude"}, NewResolver(cfg).PriorityOrder())
}

func TestPriorityOrder_FallsBackToSortedKeys(t *testing.T) {
	cfg := &Config{Providers: map[string]any{
		"openai":   providerEntry(1, 0),
		"claude":   providerEntry(1, 0),
		"deepseek": providerEntry(1, 0),
	}}
	assert.Equal(t, []string{"claude", "deepseek", "openai"}, NewResolver(cfg).PriorityOrder())
}

func TestPriorityOrder_Deterministic(t *testing.T) {
	cfg := &Config{
		Extraction: ExtractionConfig{Providers: []string{"a", "b", "c", "d"}},
		Providers: map[string]any{
			"a": providerEntry(2, 0),
			"b": providerEntry(1, 0),
			"c": providerEntry(2, 0),
			"d": providerEntry(1, 0),
		},
	}
	first := NewResolver(cfg).PriorityOrder()
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, NewResolver(cfg).PriorityOrder())
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, first)
}

func TestPriorityOrder_DeduplicatesDeclaredNames(t *testing.T) {
	cfg := &Config{
		Extraction: ExtractionConfig{Providers: []string{"Claude", "claude", " ", "openai"}},
		Providers: map[string]any{
			"claude": providerEntry(1, 0),
			"openai": providerEntry(1, 0),
		},
	}
	assert.Equal(t, []string{"claude", "openai"}, NewResolver(cfg).PriorityOrder())
}

func TestPriorityOrder_UndeclaredEntryNotTried(t *testing.T) {
	cfg := &Config{
		Extraction: ExtractionConfig{Providers: []string{"claude"}},
		Providers: map[string]any{
			"claude": providerEntry(5, 0),
			"openai": providerEntry(1, 0),
		},
	}
	assert.Equal(t, []string{"claude"}, NewResolver(cfg).PriorityOrder())
}

func TestPriorityOrder_ReturnsCopy(t *testing.T) {
	cfg := &Config{Providers: map[string]any{"claude": providerEntry(1, 0)}}
	r := NewResolver(cfg)
	order := r.PriorityOrder()
	order[0] = "mutated"
	assert.Equal(t, []string{"claude"}, r.PriorityOrder())
}

func TestValidate_Resolver(t *testing.T) {
	assert.Error(t, NewResolver(&Config{}).Validate())

	cfg := &Config{
		Extraction: ExtractionConfig{Providers: []string{"claude", "ghost"}},
		Providers:  map[string]any{"claude": providerEntry(1, 0)},
	}
	err := NewResolver(cfg).Validate()
	ce, ok := AsConfigurationError(err)
	require.True(t, ok)
	assert.Equal(t, KindMissing, ce.Kind)
	assert.Equal(t, "providers.ghost", ce.Key)

	cfg.Extraction.Providers = []string{"claude"}
	assert.NoError(t, NewResolver(cfg).Validate())
}

func TestResolver_ConcurrentReads(t *testing.T) {
	cfg := &Config{Providers: map[string]any{
		"claude": providerEntry(1, 0),
		"openai": providerEntry(2, 0),
	}}
	r := NewResolver(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, name := range r.PriorityOrder() {
				_, err := r.Resolve(name)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
