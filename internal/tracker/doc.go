// Package tracker watches device clusters, logs their history to SQLite and
// turns device events into scene triggers.
//
// One tracker exists per signal. Each creates its own table on
// construction and is handed devices through TrackDevices, which is
// idempotent per device instance.
//
//	┌──────────────┐  Listen/Subscribe   ┌──────────────┐
//	│   Devices    │ ──────────────────▶ │   Trackers   │──▶ SQLite tables
//	│  (clusters)  │                     │              │──▶ InfluxDB (numeric)
//	└──────────────┘                     └──────┬───────┘
//	                                            │ dispatcher (bounded queue)
//	┌──────────────┐  RunEntry                  ▼
//	│  Scheduler   │ ─────────────────▶  Scene engine (OnTrigger)
//	│ cron/location│
//	└──────────────┘
//
// Logging policy per signal:
//
//   - Occupancy: every state transition, forwarded as an occupancy trigger
//   - Switch: every press, forwarded as a button-press trigger
//   - Boolean state: every change after the first observed value
//   - Power, temperature, humidity, illuminance, CO2: a snapshot every
//     SnapshotInterval plus pushes that move far enough from the last
//     logged value
//   - Fridge, washer: snapshots only
//   - Power threshold: nothing is logged; crossings with 1 W hysteresis
//     are forwarded as power-threshold triggers
//
// Persistence failures are logged and never reach the device callback.
package tracker
