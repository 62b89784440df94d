// Package cluster defines the vendor-neutral capability model.
//
// A cluster is one capability of a device endpoint (OnOff, LevelControl,
// Thermostat, ...). Every vendor adapter implements the same interfaces, so
// the scene engine, trackers and thermostat orchestrator never know which
// vendor they are talking to.
//
//	Device (endpoint tree)
//	  ├── Endpoint 0
//	  │     ├── OnOff          IsOn() Cell[bool], SetOn(ctx, bool)
//	  │     └── LevelControl   CurrentLevel() Cell[float64], SetLevel(...)
//	  └── Endpoint 1
//	        └── Switch         OnPress() *Emitter[struct{}]
//
// # Lookup by tag
//
// Consumers find capabilities by Name, then assert the capability
// interface with As. They never type-switch on vendor structs.
//
//	if onOff, ok := cluster.As[cluster.OnOff](c, cluster.NameOnOff); ok {
//	    _ = onOff.SetOn(ctx, true)
//	}
//
// # Optional gestures
//
// Switch and ColorControl come in variants. Optional features are exposed
// as accessors that return nil when unsupported (Switch.OnLongPress) or as
// a Variant tag checked before asserting the richer interface.
package cluster
