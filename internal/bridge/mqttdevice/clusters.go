package mqttdevice

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/cluster/memory"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// commandable is implemented by every memory cluster.
type commandable interface {
	cluster.Cluster
	SetHandler(h memory.Handler)
}

// binding pairs a cluster with the function applying its state reports.
type binding struct {
	key     string
	cluster commandable
	apply   func(payload []byte) error
}

type builder func(cc ClusterConfig) binding

// builders lists every cluster type the bridge can expose.
var builders = map[cluster.Name]builder{
	cluster.NameOnOff:                       buildOnOff,
	cluster.NameLevelControl:                buildLevelControl,
	cluster.NameWindowCovering:              buildWindowCovering,
	cluster.NameColorControl:                buildColorControl,
	cluster.NameDoorLock:                    buildDoorLock,
	cluster.NameThermostat:                  buildThermostat,
	cluster.NameOccupancySensing:            buildOccupancy,
	cluster.NameBooleanState:                buildBooleanState,
	cluster.NameTemperatureMeasurement:      buildTemperature,
	cluster.NameRelativeHumidityMeasurement: buildHumidity,
	cluster.NameIlluminanceMeasurement:      buildIlluminance,
	cluster.NameElectricalPower:             buildElectricalPower,
	cluster.NameElectricalEnergy:            buildElectricalEnergy,
	cluster.NameCarbonDioxide:               buildCarbonDioxide,
	cluster.NamePowerSource:                 buildPowerSource,
	cluster.NameSwitch:                      buildSwitch,
	cluster.NameFridge:                      buildFridge,
	cluster.NameWasher:                      buildWasher,
	cluster.NameThreeDPrinter:               buildPrinter,
}

func decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return v, nil
}

// set stores *v in d when the report carried the field.
func set[T any](d *reactive.Data[T], v *T) {
	if v != nil {
		d.Set(*v)
	}
}

func bind[T any](cc ClusterConfig, c commandable, apply func(T) error) binding {
	return binding{
		key:     cc.topicKey(),
		cluster: c,
		apply: func(payload []byte) error {
			msg, err := decode[T](payload)
			if err != nil {
				return err
			}
			return apply(msg)
		},
	}
}

func buildOnOff(cc ClusterConfig) binding {
	c := memory.NewOnOff()
	return bind(cc, c, func(m struct {
		On *bool `json:"on"`
	}) error {
		set(c.IsOnData, m.On)
		return nil
	})
}

func buildLevelControl(cc ClusterConfig) binding {
	c := memory.NewLevelControl(0)
	return bind(cc, c, func(m struct {
		Level        *float64 `json:"level"`
		StartupLevel *float64 `json:"startupLevel"`
	}) error {
		set(c.CurrentLevelData, m.Level)
		set(c.StartupLevelData, m.StartupLevel)
		return nil
	})
}

func buildWindowCovering(cc ClusterConfig) binding {
	c := memory.NewWindowCovering()
	return bind(cc, c, func(m struct {
		TargetLift *float64 `json:"targetLift"`
	}) error {
		set(c.TargetLiftData, m.TargetLift)
		return nil
	})
}

func buildColorControl(cc ClusterConfig) binding {
	if cluster.ColorVariant(cc.Variant) == cluster.ColorTemperature {
		c := memory.NewColorTemperature(cc.MinKelvin, cc.MaxKelvin)
		return bind(cc, c, func(m struct {
			Kelvin *float64 `json:"kelvin"`
		}) error {
			set(c.TemperatureData, m.Kelvin)
			return nil
		})
	}

	segments := max(cc.Segments, 1)
	c := memory.NewColorXY(segments)
	return bind(cc, c, func(m struct {
		Color *cluster.Color `json:"color"`
	}) error {
		set(c.ColorData, m.Color)
		return nil
	})
}

func buildDoorLock(cc ClusterConfig) binding {
	c := memory.NewDoorLock(cc.Unlatch)
	return bind(cc, c, func(m struct {
		LockState *cluster.LockState `json:"lockState"`
	}) error {
		if m.LockState != nil {
			switch *m.LockState {
			case cluster.LockLocked, cluster.LockUnlocked, cluster.LockUnlatched, cluster.LockNotFullyLocked:
			default:
				return fmt.Errorf("%w: lock state %q", ErrInvalidState, *m.LockState)
			}
		}
		set(c.LockStateData, m.LockState)
		return nil
	})
}

func buildThermostat(cc ClusterConfig) binding {
	role, _ := parseRole(cc.Role)
	mode := cluster.ModeOff
	if cc.Mode != "" {
		mode, _ = cluster.ParseThermostatMode(cc.Mode)
	}
	c := memory.NewThermostat(role, mode)
	return bind(cc, c, func(m struct {
		CurrentTemperature *float64 `json:"currentTemperature"`
		TargetTemperature  *float64 `json:"targetTemperature"`
		Mode               *string  `json:"mode"`
		IsHeating          *bool    `json:"isHeating"`
	}) error {
		if m.Mode != nil {
			parsed, err := cluster.ParseThermostatMode(*m.Mode)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidState, err)
			}
			c.ModeData.Set(parsed)
		}
		set(c.CurrentTemperatureData, m.CurrentTemperature)
		set(c.TargetTemperatureData, m.TargetTemperature)
		set(c.IsHeatingData, m.IsHeating)
		return nil
	})
}

func buildOccupancy(cc ClusterConfig) binding {
	c := memory.NewOccupancy()
	return bind(cc, c, func(m struct {
		Occupied *bool `json:"occupied"`
	}) error {
		if m.Occupied != nil {
			c.Report(*m.Occupied)
		}
		return nil
	})
}

func buildBooleanState(cc ClusterConfig) binding {
	c := memory.NewBooleanState()
	return bind(cc, c, func(m struct {
		State *bool `json:"state"`
	}) error {
		if m.State != nil {
			c.Report(*m.State)
		}
		return nil
	})
}

func buildTemperature(cc ClusterConfig) binding {
	c := memory.NewTemperature()
	return bind(cc, c, func(m struct {
		Temperature *float64 `json:"temperature"`
	}) error {
		set(c.TemperatureData, m.Temperature)
		return nil
	})
}

func buildHumidity(cc ClusterConfig) binding {
	c := memory.NewHumidity()
	return bind(cc, c, func(m struct {
		Humidity *float64 `json:"humidity"` // fraction 0..1
	}) error {
		if m.Humidity != nil && (*m.Humidity < 0 || *m.Humidity > 1) {
			return fmt.Errorf("%w: humidity %v outside 0..1", ErrInvalidState, *m.Humidity)
		}
		set(c.HumidityData, m.Humidity)
		return nil
	})
}

func buildIlluminance(cc ClusterConfig) binding {
	c := memory.NewIlluminance()
	return bind(cc, c, func(m struct {
		Illuminance *float64 `json:"illuminance"`
	}) error {
		set(c.IlluminanceData, m.Illuminance)
		return nil
	})
}

func buildElectricalPower(cc ClusterConfig) binding {
	c := memory.NewElectricalPower()
	return bind(cc, c, func(m struct {
		ActivePower *float64 `json:"activePower"`
	}) error {
		set(c.ActivePowerData, m.ActivePower)
		return nil
	})
}

func buildElectricalEnergy(cc ClusterConfig) binding {
	c := memory.NewElectricalEnergy()
	return bind(cc, c, func(m struct {
		TotalEnergy *int64                `json:"totalEnergy"`
		Period      *cluster.EnergyPeriod `json:"period"`
	}) error {
		set(c.TotalEnergyData, m.TotalEnergy)
		set(c.PeriodData, m.Period)
		return nil
	})
}

func buildCarbonDioxide(cc ClusterConfig) binding {
	c := memory.NewCarbonDioxide()
	return bind(cc, c, func(m struct {
		Concentration *float64                    `json:"concentration"`
		Level         *cluster.ConcentrationLevel `json:"level"`
	}) error {
		// Level first so trackers reading it on the concentration push
		// see the matching value.
		set(c.LevelData, m.Level)
		set(c.ConcentrationData, m.Concentration)
		return nil
	})
}

func buildPowerSource(cc ClusterConfig) binding {
	c := memory.NewPowerSource()
	return bind(cc, c, func(m struct {
		Battery *float64 `json:"battery"`
	}) error {
		set(c.BatteryData, m.Battery)
		return nil
	})
}

func buildSwitch(cc ClusterConfig) binding {
	variant, _ := parseSwitchVariant(cc.Variant)
	total := max(cc.Total, cc.Index+1)
	c := memory.NewSwitch(variant, cc.Index, total, cc.Label)
	return bind(cc, c, func(m struct {
		Event string `json:"event"`
		Count int    `json:"count"`
	}) error {
		switch m.Event {
		case "press":
			c.Press()
		case "longPress":
			c.LongPress()
		case "multiPress":
			c.MultiPress(max(m.Count, 2))
		default:
			return fmt.Errorf("%w: switch event %q", ErrInvalidState, m.Event)
		}
		return nil
	})
}

func buildFridge(cc ClusterConfig) binding {
	c := memory.NewFridge()
	return bind(cc, c, func(m struct {
		FridgeTemperature  *float64 `json:"fridgeTemperature"`
		FreezerTemperature *float64 `json:"freezerTemperature"`
		FreezerDoorOpen    *bool    `json:"freezerDoorOpen"`
		CoolerDoorOpen     *bool    `json:"coolerDoorOpen"`
	}) error {
		set(c.FridgeTemperatureData, m.FridgeTemperature)
		set(c.FreezerTemperatureData, m.FreezerTemperature)
		set(c.FreezerDoorOpenData, m.FreezerDoorOpen)
		set(c.CoolerDoorOpenData, m.CoolerDoorOpen)
		return nil
	})
}

func buildWasher(cc ClusterConfig) binding {
	c := memory.NewWasher()
	return bind(cc, c, func(m struct {
		MachineState         *string  `json:"machineState"`
		OperatingState       *string  `json:"operatingState"`
		Done                 *bool    `json:"done"`
		ProgressPercent      *float64 `json:"progressPercent"`
		Phase                *string  `json:"phase"`
		RemainingTimeMinutes *int     `json:"remainingTimeMinutes"`
	}) error {
		set(c.MachineStateData, m.MachineState)
		set(c.OperatingStateData, m.OperatingState)
		set(c.DoneData, m.Done)
		set(c.ProgressPercentData, m.ProgressPercent)
		set(c.PhaseData, m.Phase)
		set(c.RemainingTimeMinutesData, m.RemainingTimeMinutes)
		return nil
	})
}

func buildPrinter(cc ClusterConfig) binding {
	c := memory.NewPrinter()
	return bind(cc, c, func(m struct {
		PrintState           *string  `json:"printState"`
		ProgressPercent      *float64 `json:"progressPercent"`
		RemainingTimeMinutes *int     `json:"remainingTimeMinutes"`
		NozzleTemperature    *float64 `json:"nozzleTemperature"`
		BedTemperature       *float64 `json:"bedTemperature"`
	}) error {
		set(c.PrintStateData, m.PrintState)
		set(c.ProgressPercentData, m.ProgressPercent)
		set(c.RemainingTimeMinutesData, m.RemainingTimeMinutes)
		set(c.NozzleTemperatureData, m.NozzleTemperature)
		set(c.BedTemperatureData, m.BedTemperature)
		return nil
	})
}
