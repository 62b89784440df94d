package thermostat

import (
	"github.com/nerrad567/gray-logic-hub/internal/cluster"
)

// Status is a point-in-time view of every orchestrated thermostat.
type Status struct {
	AnySlaveNeedsHeat bool               `json:"anySlaveNeedsHeat"`
	Masters           []ThermostatStatus `json:"masters"`
	Slaves            []ThermostatStatus `json:"slaves"`
}

// ThermostatStatus describes one thermostat. Temperatures are nil until
// the device has reported them.
type ThermostatStatus struct {
	DeviceID           string                 `json:"deviceId"`
	Mode               cluster.ThermostatMode `json:"mode"`
	IsHeating          bool                   `json:"isHeating"`
	CurrentTemperature *float64               `json:"currentTemperature"`
	TargetTemperature  *float64               `json:"targetTemperature"`
}

// Status reports the collected masters and slaves.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	masters, slaves := o.masters, o.slaves
	o.mu.Unlock()

	return Status{
		AnySlaveNeedsHeat: anySlaveNeedsHeat(slaves),
		Masters:           describe(masters),
		Slaves:            describe(slaves),
	}
}

func describe(members []member) []ThermostatStatus {
	out := make([]ThermostatStatus, 0, len(members))
	for _, m := range members {
		t := m.cluster
		s := ThermostatStatus{
			DeviceID:  m.deviceID,
			Mode:      t.Mode().Current(),
			IsHeating: t.IsHeating().Current(),
		}
		if v, ok := t.CurrentTemperature().Lookup(); ok {
			s.CurrentTemperature = &v
		}
		if v, ok := t.TargetTemperature().Lookup(); ok {
			s.TargetTemperature = &v
		}
		out = append(out, s)
	}
	return out
}
