// Package api implements the hub's HTTP REST API and WebSocket server.
//
// This package provides:
//   - Scene CRUD, manual triggering and the execution log
//   - Webhook endpoints that fire webhook-triggered scenes
//   - Device naming and room assignment, groups and palettes
//   - Boolean variables used by scene conditions
//   - Tracker history, thermostat, presence and location read-outs
//   - A WebSocket hub relaying scene runs, variable changes, device list
//     changes and per-device state updates
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// The API carries no authentication and is meant for the home network.
// Endpoints whose component is not configured answer 503.
package api
