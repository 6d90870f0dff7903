// pkg/thresholds/schema.go
package thresholds

import "ihydro/internal/models"

// Range is the recommended band for one metric. Bounds are inclusive.
type Range struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Unit  string  `json:"unit,omitempty"`
	Label string  `json:"label,omitempty"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Registry maps each metric to its recommended range.
type Registry struct {
	Version     string                  `json:"version"`
	LastUpdated string                  `json:"lastUpdated,omitempty"`
	Ranges      map[models.Metric]Range `json:"ranges"`
}

// registrySchema is the JSON Schema a thresholds file must satisfy.
const registrySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "ranges"],
  "properties": {
    "version": {"type": "string"},
    "lastUpdated": {"type": "string"},
    "ranges": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "temperature": {"$ref": "#/definitions/range"},
        "humidity": {"$ref": "#/definitions/range"},
        "tds": {"$ref": "#/definitions/range"},
        "ph": {"$ref": "#/definitions/range"}
      }
    }
  },
  "definitions": {
    "range": {
      "type": "object",
      "required": ["min", "max"],
      "properties": {
        "min": {"type": "number"},
        "max": {"type": "number"},
        "unit": {"type": "string"},
        "label": {"type": "string"}
      }
    }
  }
}`
