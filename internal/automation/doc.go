// Package automation provides the scene engine for Gray Logic Hub.
//
// A scene is a named bundle of actions. Scenes may declare trigger entries,
// each pairing a trigger (occupancy, button press, host arrival, webhook,
// interval, location, power threshold, household presence) with
// conditions that gate it. Trackers report events to the engine, which
// matches them against every scene and runs the ones whose conditions pass.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                    │
//	│  ┌──────────────┐    ┌─────────────────────┐          │
//	│  │   Registry   │    │ ExecutionRepository │          │
//	│  │ (bbolt store)│    │  (scene_executions) │          │
//	│  └──────────────┘    └─────────────────────┘          │
//	│        │                                              │
//	│        ▼                                              │
//	│  ┌──────────────────────────────────────────────┐    │
//	│  │  OnTrigger / TriggerScene                     │    │
//	│  │  1. Match trigger fields (first entry wins)   │    │
//	│  │  2. AND conditions (Lua sandbox, presence,    │    │
//	│  │     time windows, variables, device state)    │    │
//	│  │  3. Run actions concurrently                  │    │
//	│  │     device: AND over clusters                 │    │
//	│  │     group:  OR over members                   │    │
//	│  │  4. Log execution, publish MQTT, broadcast WS │    │
//	│  └──────────────────────────────────────────────┘    │
//	│        │                                              │
//	│        ▼                                              │
//	│  rampManager: one gradual level change per device,    │
//	│  cancelled by any change it did not make itself       │
//	└───────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Scene: Actions plus optional trigger entries
//   - Trigger: Tagged event description, shared by scenes and trackers
//   - Condition: Tagged predicate gating a trigger entry
//   - Action: Device/group command or engine action (HTTP, notification,
//     variable, room temperature)
//   - Execution: Audit record of one scene run
//   - Engine: Trigger matching and scene execution
//   - Registry: Scene CRUD over the document store
//   - Variables: Persisted named booleans
//
// # Manual Runs
//
// TriggerScene with no trigger info is a manual run. Only conditions flagged
// checkOnManual are evaluated, so a scene can be run by hand while staying
// gated when fired automatically.
//
// # Thread Safety
//
// Registry, Variables and Engine are safe for concurrent use from multiple
// goroutines.
//
// # Usage
//
//	scenes, err := automation.NewRegistry(db)
//	if err != nil {
//	    return err
//	}
//	engine := automation.NewEngine(scenes, automation.Options{
//	    Devices:    registry,
//	    Groups:     groups,
//	    Executions: automation.NewSQLiteRepository(sqlDB),
//	    Logger:     log,
//	})
//	engine.OnTrigger(ctx, automation.Trigger{Type: automation.TriggerWebhook, WebhookName: "doorbell"}, false)
package automation
