// Package mqtt connects the gateway to an MQTT broker.
//
// The broker is optional. When enabled it carries two kinds of traffic:
//   - Gateway events (plugin registered/removed, directory rebuilt,
//     transaction issued) published to graylogic/gateway/event/{type}
//   - Retained plugin announcements on graylogic/gateway/announce/{plugin},
//     consumed by the announcement discovery strategy
//
// The client reconnects automatically, restores its subscriptions on every
// reconnect, and publishes a retained online/offline status with a Last Will
// so consumers can tell a crash from a clean shutdown.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	events := mqtt.NewEventPublisher(client, cfg.Gateway.ID)
//	events.PublishEvent("plugin.registered", info)
package mqtt
