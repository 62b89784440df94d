package thermostat

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// Accepted room target range in degrees Celsius.
const (
	MinRoomTarget = 5.0
	MaxRoomTarget = 30.0
)

// RoomSource resolves the live devices assigned to a room.
type RoomSource interface {
	DevicesInRoom(room string) []*device.Device
}

// RoomControl sets room target temperatures through the room's thermostats.
// Master thermostats are never touched; they follow their slaves through
// the Orchestrator.
type RoomControl struct {
	rooms  RoomSource
	logger Logger
}

// NewRoomControl creates a RoomControl over rooms.
func NewRoomControl(rooms RoomSource, logger Logger) *RoomControl {
	if logger == nil {
		logger = noopLogger{}
	}
	return &RoomControl{rooms: rooms, logger: logger}
}

// SetRoomTarget sets the target temperature of every non-master thermostat
// in room. Every thermostat is attempted; the first failure is returned.
func (rc *RoomControl) SetRoomTarget(ctx context.Context, room string, celsius float64) error {
	if celsius < MinRoomTarget || celsius > MaxRoomTarget {
		return fmt.Errorf("%w: %.1f", ErrInvalidTarget, celsius)
	}

	var errs []error
	found := 0
	for _, d := range rc.rooms.DevicesInRoom(room) {
		for _, t := range device.AllClustersOf[cluster.Thermostat](d, cluster.NameThermostat) {
			if t.Role() == cluster.RoleMaster {
				continue
			}
			found++
			if err := t.SetTargetTemperature(ctx, celsius); err != nil {
				errs = append(errs, fmt.Errorf("device %s: %w", d.ID(), err))
			}
		}
	}
	if found == 0 {
		return fmt.Errorf("%w: %q", ErrNoRoomThermostat, room)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	rc.logger.Info("room target set", "room", room, "target", celsius, "thermostats", found)
	return nil
}
