// Package reactive provides the observable value cells that carry device
// state through Gray Logic Hub.
//
// A Data cell holds one value and a list of subscribers. Setting a value
// that is structurally equal to the current one is a no-op, so subscribers
// only ever see real changes. Derived cells (Map, Combine) recompute from
// their upstreams and only hold upstream subscriptions while they are
// themselves observed.
//
// Architecture:
//
//	┌──────────────┐  Set()   ┌──────────────┐  mapper  ┌──────────────┐
//	│ vendor poll  │─────────▶│   Data[T]    │─────────▶│ Mapped[O, I] │
//	└──────────────┘          └──────┬───────┘          └──────┬───────┘
//	                                 │ subscribers             │
//	                                 ▼                         ▼
//	                        trackers, scene engine,     API / WebSocket
//	                        thermostat orchestrator
//
// # Lifecycle
//
// Cells created with WithLifecycle run their create hook when the first
// subscriber attaches and their destroy hook when the last one leaves.
// Vendor adapters use this to poll only while somebody is watching.
//
// # Undefined values
//
// A cell may be "undefined" (no reading yet). This is distinct from the
// zero value of T: Lookup reports it and Get blocks until a defined value
// arrives or the context ends.
//
// # Thread Safety
//
// All cells and emitters are safe for concurrent use. Subscriber callbacks
// run on the goroutine that called Set, outside any internal lock.
package reactive
