package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Metric is a single canonical health measurement.
type Metric struct {
	Name       string   `json:"name"`
	Value      float64  `json:"value"`
	Unit       string   `json:"unit"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// MetricSet is an ordered collection of metrics, unique by name.
type MetricSet struct {
	Provider  string
	Model     string
	RequestID string

	metrics []Metric
	index   map[string]int
}

// NewMetricSet creates an empty MetricSet attributed to the given provider.
func NewMetricSet(provider, model string) *MetricSet {
	return &MetricSet{
		Provider: provider,
		Model:    model,
		index:    make(map[string]int),
	}
}

// Add appends m. A metric whose name is already present is rejected.
func (s *MetricSet) Add(m Metric) error {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[m.Name]; ok {
		return eris.Errorf("model: duplicate metric %q", m.Name)
	}
	s.index[m.Name] = len(s.metrics)
	s.metrics = append(s.metrics, m)
	return nil
}

// Get returns the metric with the given name.
func (s *MetricSet) Get(name string) (Metric, bool) {
	i, ok := s.index[name]
	if !ok {
		return Metric{}, false
	}
	return s.metrics[i], true
}

// Metrics returns a copy of the metrics in insertion order.
func (s *MetricSet) Metrics() []Metric {
	out := make([]Metric, len(s.metrics))
	copy(out, s.metrics)
	return out
}

// Names returns metric names in insertion order.
func (s *MetricSet) Names() []string {
	names := make([]string, len(s.metrics))
	for i, m := range s.metrics {
		names[i] = m.Name
	}
	return names
}

// Len returns the number of metrics.
func (s *MetricSet) Len() int {
	return len(s.metrics)
}

type metricSetJSON struct {
	Provider  string   `json:"provider"`
	Model     string   `json:"model,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
	Metrics   []Metric `json:"metrics"`
}

// MarshalJSON encodes the set with its metrics in insertion order.
func (s *MetricSet) MarshalJSON() ([]byte, error) {
	metrics := s.metrics
	if metrics == nil {
		metrics = []Metric{}
	}
	return json.Marshal(metricSetJSON{
		Provider:  s.Provider,
		Model:     s.Model,
		RequestID: s.RequestID,
		Metrics:   metrics,
	})
}

// UnmarshalJSON decodes a set, enforcing name uniqueness.
func (s *MetricSet) UnmarshalJSON(data []byte) error {
	var raw metricSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: unmarshal metric set")
	}
	*s = MetricSet{
		Provider:  raw.Provider,
		Model:     raw.Model,
		RequestID: raw.RequestID,
		index:     make(map[string]int, len(raw.Metrics)),
	}
	for _, m := range raw.Metrics {
		if err := s.Add(m); err != nil {
			return err
		}
	}
	return nil
}
