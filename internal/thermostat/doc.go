// Package thermostat keeps master heat sources in step with the rooms
// they serve.
//
// A master thermostat (boiler, heat pump) must be heating-enabled exactly
// when at least one slave (room) thermostat requests heat, meaning its mode
// is heat or auto. The Orchestrator watches every configured master and
// slave and corrects the masters whenever that stops holding.
//
// RoomControl applies room-temperature scene actions to the slave
// thermostats assigned to a room.
package thermostat
