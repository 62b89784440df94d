// Package device provides the Device Registry for the Gray Logic hub.
//
// Vendor adapters describe each physical unit as a tree of Endpoints, each
// holding the capability clusters it exposes. The registry holds every
// known Device in one reactive map, lets each adapter replace only its own
// devices, and keeps a persisted side table of user metadata (display name,
// room) and online/offline bookkeeping that survives the device going away.
//
// # Architecture
//
//	┌──────────────────┐  SetDevices(devs, source)  ┌────────────────────────┐
//	│  Vendor adapter  │ ─────────────────────────▶ │        Registry        │
//	│ (mqtt, matter..) │                            │                        │
//	└──────────────────┘                            │ • Data[map[id]*Device] │
//	                                                │ • side table (bbolt)   │
//	┌──────────────────┐   Devices().Subscribe      │ • rooms index (bbolt)  │
//	│ Trackers, scenes │ ◀───────────────────────── │ • status history (SQL) │
//	│ thermostat, API  │                            └────────────────────────┘
//	└──────────────────┘
//
//	Device ── Endpoint (root)
//	           ├── OnOff, LevelControl          (clusters)
//	           └── Endpoint (child) ── Switch   (bridged sub-device)
//
// # Key Types
//
//   - Endpoint: Node of the capability tree, owns clusters and child endpoints
//   - Device: Root endpoint with id, source, status and aggregated OnChange
//   - Registry: Process-wide device map with per-source replacement
//   - StoredDevice: Persisted metadata for a device, kept while it is offline
//   - Groups, Palettes: User-defined device groups and colour palettes
//
// # Usage
//
//	registry, err := device.NewRegistry(db, statusHistory)
//	registry.SetLogger(log)
//
//	root := device.NewEndpoint([]cluster.Cluster{onOff, level})
//	dev := device.New(device.Info{ID: "mqtt:hall-light", Source: device.SourceMQTT}, root)
//	registry.SetDevices([]*device.Device{dev}, device.SourceMQTT)
//
//	if lc, ok := device.ClusterOf[cluster.LevelControl](dev, cluster.NameLevelControl); ok {
//	    _ = lc.SetLevel(ctx, 0.5, 0)
//	}
//
// # Thread Safety
//
// Registry, Groups and Palettes are safe for concurrent use. SetDevices calls
// are serialised so each one sees the result of the previous one; observers
// of Devices() only ever see complete maps.
package device
