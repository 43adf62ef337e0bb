package main

import (
	"sync"

	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
)

// eventSink is satisfied by the MQTT event publisher and the API hub.
type eventSink interface {
	PublishEvent(eventType string, payload any)
}

// fanout delivers every event to each attached sink. Sinks can be attached
// after the fanout has been handed to publishers.
type fanout struct {
	mu    sync.RWMutex
	sinks []eventSink
}

func (f *fanout) add(s eventSink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// PublishEvent implements the EventPublisher interfaces of the registry,
// directory, command router and process supervisor.
func (f *fanout) PublishEvent(eventType string, payload any) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, s := range sinks {
		s.PublishEvent(eventType, payload)
	}
}

// subscriber adapts the MQTT client to plugin.Subscriber. The handler
// types differ only by package.
type subscriber struct {
	client *mqtt.Client
}

func (s subscriber) Subscribe(topic string, qos byte, handler plugin.MessageHandler) error {
	return s.client.Subscribe(topic, qos, mqtt.MessageHandler(handler))
}

// influxRecorder writes every routed reading to InfluxDB.
type influxRecorder struct {
	client interface{ WriteReading(influxdb.Reading) }
}

func (r influxRecorder) RecordReading(dev *plugin.Device, rd command.Reading) {
	r.client.WriteReading(toInfluxReading(dev, rd))
}

func toInfluxReading(dev *plugin.Device, rd command.Reading) influxdb.Reading {
	unit := rd.Unit.Symbol
	if unit == "" {
		unit = rd.Unit.Name
	}
	return influxdb.Reading{
		Device: dev.UID,
		Plugin: dev.Plugin,
		Rack:   dev.Location.Rack,
		Board:  dev.Location.Board,
		Type:   rd.Type,
		Unit:   unit,
		Value:  rd.Value,
		Time:   rd.Timestamp,
	}
}
