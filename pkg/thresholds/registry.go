// pkg/thresholds/registry.go
package thresholds

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"ihydro/internal/models"
)

// Default returns the recommended ranges for a leafy-greens hydroponic bed.
func Default() *Registry {
	return &Registry{
		Version: "1",
		Ranges: map[models.Metric]Range{
			models.MetricTemperature: {Min: 25, Max: 32, Unit: "°C", Label: "Temperature"},
			models.MetricHumidity:    {Min: 65, Max: 80, Unit: "%", Label: "Humidity"},
			models.MetricTDS:         {Min: 900, Max: 1200, Unit: "ppm", Label: "TDS"},
			models.MetricPH:          {Min: 5.8, Max: 6.8, Label: "pH"},
		},
	}
}

// LoadRegistry reads a thresholds file, validates it against the registry
// schema and fills metrics the file omits from Default.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(registrySchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validate thresholds: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid thresholds: %s", strings.Join(msgs, "; "))
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}

	defaults := Default()
	if reg.Ranges == nil {
		reg.Ranges = make(map[models.Metric]Range, len(models.AllMetrics))
	}
	for _, m := range models.AllMetrics {
		r, ok := reg.Ranges[m]
		if !ok {
			reg.Ranges[m] = defaults.Ranges[m]
			continue
		}
		if r.Min > r.Max {
			return nil, fmt.Errorf("invalid thresholds: %s min %.2f exceeds max %.2f", m, r.Min, r.Max)
		}
		if r.Unit == "" {
			r.Unit = defaults.Ranges[m].Unit
		}
		if r.Label == "" {
			r.Label = defaults.Ranges[m].Label
		}
		reg.Ranges[m] = r
	}
	return &reg, nil
}

// Lookup returns the range for m.
func (r *Registry) Lookup(m models.Metric) (Range, bool) {
	rg, ok := r.Ranges[m]
	return rg, ok
}
