// Package location tracks where devices (phones, cars) are relative to
// named targets such as home or the office.
//
// Devices report positions over MQTT on graylogic/location/{device} as
// {"lat": .., "lon": .., "accuracy": ..}. Every report is stored in the
// location_updates table. Targets are seeded from a YAML file and can be
// edited at runtime; they and the known devices live in the bbolt store.
//
// WithinRange answers the scheduler's location-within-range triggers
// using the great-circle (haversine) distance from the device's last
// reported position.
//
// # Thread Safety
//
// Service and SQLiteRepository are safe for concurrent use.
package location
