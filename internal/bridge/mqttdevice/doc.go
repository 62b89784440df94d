// Package mqttdevice exposes devices that speak plain JSON over MQTT as
// registry devices.
//
// Devices are declared in a YAML file. Each declared cluster is backed by
// an in-memory cluster from the cluster/memory package:
//
//   - state reports on graylogic/bridge/mqtt/state/{device}/{key} update
//     the cluster's cells (key defaults to the cluster type)
//   - commands issued on the cluster are published as JSON on
//     graylogic/bridge/mqtt/command/{device}/{key} and applied locally
//     once the publish succeeds
//
// All bridged devices are registered with the source "mqtt" and ids of
// the form "mqtt:{device}". When the client exposes its connection state,
// bridged devices are reported offline while the broker is unreachable.
package mqttdevice
