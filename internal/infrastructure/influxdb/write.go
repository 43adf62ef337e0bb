package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// ReadingMeasurement is the measurement every device reading is written to.
const ReadingMeasurement = "gateway_readings"

// Reading is one device reading as returned by the gateway.
type Reading struct {
	Device string
	Plugin string
	Rack   string
	Board  string
	Type   string
	Unit   string
	Value  any
	Time   time.Time
}

// WriteReading queues a reading point. Readings whose value is neither
// numeric, boolean nor string are skipped. The write is non-blocking.
//
// Tags: device, plugin, rack, board, type, unit (when set).
// Fields: value (float), state (bool) or text (string).
func (c *Client) WriteReading(r Reading) {
	if !c.IsConnected() {
		return
	}
	point := readingPoint(r)
	if point == nil {
		return
	}
	c.writeAPI.WritePoint(point)
}

func readingPoint(r Reading) *write.Point {
	fields := readingFields(r.Value)
	if fields == nil {
		return nil
	}

	tags := map[string]string{
		"device": r.Device,
		"plugin": r.Plugin,
		"rack":   r.Rack,
		"board":  r.Board,
		"type":   r.Type,
	}
	if r.Unit != "" {
		tags["unit"] = r.Unit
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(ReadingMeasurement, tags, fields, ts)
}

func readingFields(v any) map[string]any {
	switch val := v.(type) {
	case float64:
		return map[string]any{"value": val}
	case float32:
		return map[string]any{"value": float64(val)}
	case int:
		return map[string]any{"value": float64(val)}
	case int64:
		return map[string]any{"value": float64(val)}
	case int32:
		return map[string]any{"value": float64(val)}
	case uint64:
		return map[string]any{"value": float64(val)}
	case bool:
		return map[string]any{"state": val}
	case string:
		return map[string]any{"text": val}
	default:
		return nil
	}
}
