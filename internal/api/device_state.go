package api

import (
	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// deviceState renders the readable state of a live device, keyed by
// cluster name. Undefined cells are left out. When a device carries the
// same cluster more than once, the first one wins.
func deviceState(d *device.Device) map[string]any {
	state := make(map[string]any)
	for _, c := range d.AllClusters() {
		if _, seen := state[string(c.Name())]; seen {
			continue
		}
		if fields := clusterState(c); len(fields) > 0 {
			state[string(c.Name())] = fields
		}
	}
	return state
}

// put adds a defined cell's value under key.
func put[T any](f map[string]any, key string, cell reactive.Cell[T]) {
	if v, ok := cell.Lookup(); ok {
		f[key] = v
	}
}

func clusterState(c cluster.Cluster) map[string]any {
	f := map[string]any{}
	switch c.Name() {
	case cluster.NameOnOff:
		if t, ok := cluster.As[cluster.OnOff](c, c.Name()); ok {
			put(f, "isOn", t.IsOn())
		}
	case cluster.NameLevelControl:
		if t, ok := cluster.As[cluster.LevelControl](c, c.Name()); ok {
			put(f, "currentLevel", t.CurrentLevel())
		}
	case cluster.NameWindowCovering:
		if t, ok := cluster.As[cluster.WindowCovering](c, c.Name()); ok {
			put(f, "targetPositionLiftPercentage", t.TargetLiftPercentage())
		}
	case cluster.NamePowerSource:
		if t, ok := cluster.As[cluster.PowerSource](c, c.Name()); ok {
			put(f, "batteryChargeLevel", t.BatteryChargeLevel())
		}
	case cluster.NameOccupancySensing:
		if t, ok := cluster.As[cluster.OccupancySensing](c, c.Name()); ok {
			put(f, "occupied", t.Occupancy())
		}
	case cluster.NameTemperatureMeasurement:
		if t, ok := cluster.As[cluster.TemperatureMeasurement](c, c.Name()); ok {
			put(f, "temperature", t.Temperature())
		}
	case cluster.NameRelativeHumidityMeasurement:
		if t, ok := cluster.As[cluster.RelativeHumidityMeasurement](c, c.Name()); ok {
			put(f, "relativeHumidity", t.RelativeHumidity())
		}
	case cluster.NameBooleanState:
		if t, ok := cluster.As[cluster.BooleanState](c, c.Name()); ok {
			put(f, "state", t.State())
		}
	case cluster.NameIlluminanceMeasurement:
		if t, ok := cluster.As[cluster.IlluminanceMeasurement](c, c.Name()); ok {
			put(f, "illuminance", t.Illuminance())
		}
	case cluster.NameElectricalPower:
		if t, ok := cluster.As[cluster.ElectricalPower](c, c.Name()); ok {
			put(f, "activePower", t.ActivePower())
		}
	case cluster.NameElectricalEnergy:
		if t, ok := cluster.As[cluster.ElectricalEnergy](c, c.Name()); ok {
			put(f, "totalEnergy", t.TotalEnergy())
		}
	case cluster.NameCarbonDioxide:
		if t, ok := cluster.As[cluster.CarbonDioxide](c, c.Name()); ok {
			put(f, "concentration", t.Concentration())
			put(f, "level", t.Level())
		}
	case cluster.NameThermostat:
		if t, ok := cluster.As[cluster.Thermostat](c, c.Name()); ok {
			put(f, "currentTemperature", t.CurrentTemperature())
			put(f, "targetTemperature", t.TargetTemperature())
			put(f, "mode", t.Mode())
			put(f, "isHeating", t.IsHeating())
		}
	case cluster.NameFridge:
		if t, ok := cluster.As[cluster.Fridge](c, c.Name()); ok {
			put(f, "fridgeTemperature", t.FridgeTemperature())
			put(f, "freezerTemperature", t.FreezerTemperature())
			put(f, "freezerDoorOpen", t.FreezerDoorOpen())
			put(f, "coolerDoorOpen", t.CoolerDoorOpen())
		}
	case cluster.NameWasher:
		if t, ok := cluster.As[cluster.Washer](c, c.Name()); ok {
			put(f, "machineState", t.MachineState())
			put(f, "done", t.Done())
			put(f, "progressPercent", t.ProgressPercent())
			put(f, "remainingTimeMinutes", t.RemainingTimeMinutes())
		}
	case cluster.NameDoorLock:
		if t, ok := cluster.As[cluster.DoorLock](c, c.Name()); ok {
			put(f, "lockState", t.LockState())
		}
	case cluster.NameThreeDPrinter:
		if t, ok := cluster.As[cluster.ThreeDPrinter](c, c.Name()); ok {
			put(f, "printState", t.PrintState())
			put(f, "progressPercent", t.ProgressPercent())
		}
	}
	return f
}
