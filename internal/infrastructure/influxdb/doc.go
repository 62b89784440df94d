// Package influxdb records hub telemetry in InfluxDB v2.
//
// Two series are written: tracker readings (power, temperature, humidity,
// illuminance, CO2) under device_metrics, and scene runs under scene_runs.
// Both are tagged with the site id. The client satisfies the tracker and
// automation metrics interfaces, so neither package imports this one.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceMetric("mqtt:plug-kitchen", "power_watts", 12.5)
//
// Writes are batched per batch_size and flush_interval and never block.
package influxdb
