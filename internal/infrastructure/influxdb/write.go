package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the hub.
const (
	MeasurementDevice = "device_metrics"
	MeasurementScene  = "scene_runs"
)

// WriteDeviceMetric records one tracker reading.
//
// Parameters:
//   - deviceID: Device the reading came from (e.g. "mqtt:plug-kitchen")
//   - measurement: Signal name (e.g. "power_watts", "temperature_c")
//   - value: The reading
func (c *Client) WriteDeviceMetric(deviceID, measurement string, value float64) {
	c.write(MeasurementDevice,
		map[string]string{"device_id": deviceID, "measurement": measurement},
		map[string]any{"value": value},
		time.Now())
}

// WriteSceneExecution records one scene run with its outcome and how long
// its actions took.
func (c *Client) WriteSceneExecution(sceneID, triggerType string, success bool, duration time.Duration) {
	c.write(MeasurementScene,
		map[string]string{"scene_id": sceneID, "trigger_type": triggerType},
		map[string]any{"success": success, "duration_ms": duration.Milliseconds()},
		time.Now())
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if c.site != "" {
		tags["site"] = c.site
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
