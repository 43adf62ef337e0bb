package plugin

import (
	"math"
	"time"
)

// Location places a device in the rack/board hierarchy.
// Racks and boards are grouping labels; they only exist through the devices
// that reference them.
type Location struct {
	Rack  string `json:"rack"`
	Board string `json:"board"`
}

// Unit describes the unit of measure of an output.
type Unit struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Output describes one typed value a device can report.
type Output struct {
	// Type matches Reading.Type (e.g. "temperature", "state").
	Type string `json:"type"`

	Unit Unit `json:"unit"`

	// Precision is the number of decimal places numeric readings are rounded to.
	// Zero leaves values untouched.
	Precision int `json:"precision,omitempty"`

	// ScalingFactor is applied by the plugin before the value is reported.
	// It is carried for information only.
	ScalingFactor float64 `json:"scaling_factor,omitempty"`
}

// Round applies the output's precision to a numeric value.
func (o Output) Round(v float64) float64 {
	if o.Precision <= 0 {
		return v
	}
	p := math.Pow(10, float64(o.Precision))
	return math.Round(v*p) / p
}

// Device is one readable or controllable endpoint reported by a plugin.
type Device struct {
	// UID is assigned by the owning plugin.
	UID string `json:"uid"`

	// Kind is the device kind (e.g. "temperature", "led", "fan").
	Kind string `json:"kind"`

	// Info is a human readable description.
	Info string `json:"info,omitempty"`

	Location Location `json:"location"`
	Outputs  []Output `json:"outputs,omitempty"`

	// Plugin is the owning plugin's declared name. It is stamped by the
	// gateway when the device directory is built.
	Plugin string `json:"plugin"`
}

// Output returns the output declared for a reading type.
func (d *Device) Output(readingType string) (Output, bool) {
	for _, o := range d.Outputs {
		if o.Type == readingType {
			return o, true
		}
	}
	return Output{}, false
}

// Clone returns a copy that shares no slices with d.
func (d *Device) Clone() *Device {
	c := *d
	if d.Outputs != nil {
		c.Outputs = append([]Output(nil), d.Outputs...)
	}
	return &c
}

// Reading is one raw value returned by a plugin read.
type Reading struct {
	Type      string    `json:"type"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteData is the payload of one write.
type WriteData struct {
	Action string   `json:"action,omitempty"`
	Raw    [][]byte `json:"raw,omitempty"`
}

// WriteTransaction is returned by a plugin for every device-level write it
// accepted. One logical write may produce several.
type WriteTransaction struct {
	ID      string    `json:"id"`
	Context WriteData `json:"context"`
}

// Transaction states relayed from plugins. The gateway does not interpret them.
const (
	TransactionPending = "pending"
	TransactionWriting = "writing"
	TransactionDone    = "done"
)

// TransactionStatus is a plugin's view of an asynchronous write.
type TransactionStatus struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Status  string `json:"status"`
	Created string `json:"created,omitempty"`
	Updated string `json:"updated,omitempty"`
	Message string `json:"message,omitempty"`
}

// Metadata describes a plugin.
type Metadata struct {
	Name        string `json:"name"`
	Tag         string `json:"tag,omitempty"`
	Version     string `json:"version,omitempty"`
	Maintainer  string `json:"maintainer,omitempty"`
	Description string `json:"description,omitempty"`
}

// Plugin health states.
const (
	HealthOK       = "ok"
	HealthFailing  = "failing"
	HealthDegraded = "degraded"
)

// HealthCheck is one check reported by a plugin.
type HealthCheck struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health is a plugin's self-reported health.
type Health struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks"`
}
