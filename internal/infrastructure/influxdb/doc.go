// Package influxdb writes bridge telemetry to InfluxDB v2.
//
// Two measurements are recorded:
//   - govee_attribute: every published attribute change, tagged by device
//     and attribute
//   - govee_api_call: every vendor API call, tagged by operation and
//     outcome, with its latency
//
// Writes are non-blocking and batched per the batch_size and
// flush_interval settings, and every point carries the configured tags.
// Asynchronous write failures are delivered to the SetOnError callback and
// counted in Stats alongside points written and points dropped after Close.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAttributeChange("AA:BB", "Lamp", "brightness", 128, time.Now())
package influxdb
