// Package influxdb writes device reading telemetry to InfluxDB v2.
//
// Every reading the gateway returns can be mirrored as a point in the
// gateway_readings measurement, tagged with device, plugin, rack, board and
// reading type. Writes are non-blocking and batched according to
// influxdb.batch_size and influxdb.flush_interval; asynchronous failures are
// delivered to the SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading(influxdb.Reading{Device: "dev-1", Type: "temperature", Value: 21.5})
package influxdb
