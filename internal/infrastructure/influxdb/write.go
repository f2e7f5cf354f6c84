package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAttribute = "govee_attribute"
	MeasurementAPICall   = "govee_api_call"
)

// WriteAttributeChange records one published attribute change.
//
// Numeric and boolean values are stored in the "value" field, strings in
// "text", and anything else (colors) as JSON in "json".
func (c *Client) WriteAttributeChange(deviceID, deviceName, attribute string, value any, at time.Time) {
	c.writePoint(attributePoint(deviceID, deviceName, attribute, value, at))
}

// WriteVendorCall records the outcome and latency of one Govee API call.
// deviceID is empty for list calls.
func (c *Client) WriteVendorCall(op, deviceID, outcome string, duration time.Duration, at time.Time) {
	c.writePoint(vendorCallPoint(op, deviceID, outcome, duration, at))
}

func attributePoint(deviceID, deviceName, attribute string, value any, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementAttribute,
		map[string]string{
			"device_id":   deviceID,
			"device_name": deviceName,
			"attribute":   attribute,
		},
		attributeFields(value),
		at,
	)
}

func attributeFields(value any) map[string]any {
	switch v := value.(type) {
	case int:
		return map[string]any{"value": float64(v)}
	case int64:
		return map[string]any{"value": float64(v)}
	case float64:
		return map[string]any{"value": v}
	case bool:
		if v {
			return map[string]any{"value": 1.0}
		}
		return map[string]any{"value": 0.0}
	case string:
		return map[string]any{"text": v}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return map[string]any{"json": "null"}
		}
		return map[string]any{"json": string(b)}
	}
}

func vendorCallPoint(op, deviceID, outcome string, duration time.Duration, at time.Time) *write.Point {
	tags := map[string]string{
		"op":      op,
		"outcome": outcome,
	}
	if deviceID != "" {
		tags["device_id"] = deviceID
	}
	return write.NewPoint(
		MeasurementAPICall,
		tags,
		map[string]any{"duration_ms": float64(duration) / float64(time.Millisecond)},
		at,
	)
}
