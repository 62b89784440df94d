package memory

import (
	"context"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

var (
	_ cluster.Thermostat    = (*Thermostat)(nil)
	_ cluster.Fridge        = (*Fridge)(nil)
	_ cluster.Washer        = (*Washer)(nil)
	_ cluster.ThreeDPrinter = (*Printer)(nil)
)

// Thermostat is an in-memory cluster.Thermostat.
type Thermostat struct {
	base
	role cluster.ThermostatRole

	CurrentTemperatureData *reactive.Data[float64]
	TargetTemperatureData  *reactive.Data[float64]
	ModeData               *reactive.Data[cluster.ThermostatMode]
	IsHeatingData          *reactive.Data[bool]
}

// NewThermostat creates a thermostat in mode with the given role.
func NewThermostat(role cluster.ThermostatRole, mode cluster.ThermostatMode) *Thermostat {
	c := &Thermostat{
		base:                   base{name: cluster.NameThermostat},
		role:                   role,
		CurrentTemperatureData: reactive.NewUndefined[float64](),
		TargetTemperatureData:  reactive.NewUndefined[float64](),
		ModeData:               reactive.New(mode),
		IsHeatingData:          reactive.New(false),
	}
	watch(&c.base, c.CurrentTemperatureData)
	watch(&c.base, c.TargetTemperatureData)
	watch(&c.base, c.ModeData)
	watch(&c.base, c.IsHeatingData)
	return c
}

// Role implements cluster.Thermostat.
func (c *Thermostat) Role() cluster.ThermostatRole { return c.role }

// CurrentTemperature implements cluster.Thermostat.
func (c *Thermostat) CurrentTemperature() reactive.Cell[float64] { return c.CurrentTemperatureData }

// TargetTemperature implements cluster.Thermostat.
func (c *Thermostat) TargetTemperature() reactive.Cell[float64] { return c.TargetTemperatureData }

// Mode implements cluster.Thermostat.
func (c *Thermostat) Mode() reactive.Cell[cluster.ThermostatMode] { return c.ModeData }

// IsHeating implements cluster.Thermostat.
func (c *Thermostat) IsHeating() reactive.Cell[bool] { return c.IsHeatingData }

// SetTargetTemperature implements cluster.Thermostat.
func (c *Thermostat) SetTargetTemperature(ctx context.Context, celsius float64) error {
	if err := c.dispatch(ctx, "setTargetTemperature", map[string]any{"temperature": celsius}); err != nil {
		return err
	}
	c.TargetTemperatureData.Set(celsius)
	return nil
}

// SetMode implements cluster.Thermostat.
func (c *Thermostat) SetMode(ctx context.Context, mode cluster.ThermostatMode) error {
	if err := c.dispatch(ctx, "setMode", map[string]any{"mode": string(mode)}); err != nil {
		return err
	}
	c.ModeData.Set(mode)
	return nil
}

// Fridge is an in-memory cluster.Fridge.
type Fridge struct {
	base
	FridgeTemperatureData  *reactive.Data[float64]
	FreezerTemperatureData *reactive.Data[float64]
	FreezerDoorOpenData    *reactive.Data[bool]
	CoolerDoorOpenData     *reactive.Data[bool]
}

// NewFridge creates a fridge with no readings yet.
func NewFridge() *Fridge {
	c := &Fridge{
		base:                   base{name: cluster.NameFridge},
		FridgeTemperatureData:  reactive.NewUndefined[float64](),
		FreezerTemperatureData: reactive.NewUndefined[float64](),
		FreezerDoorOpenData:    reactive.New(false),
		CoolerDoorOpenData:     reactive.New(false),
	}
	watch(&c.base, c.FridgeTemperatureData)
	watch(&c.base, c.FreezerTemperatureData)
	watch(&c.base, c.FreezerDoorOpenData)
	watch(&c.base, c.CoolerDoorOpenData)
	return c
}

// FridgeTemperature implements cluster.Fridge.
func (c *Fridge) FridgeTemperature() reactive.Cell[float64] { return c.FridgeTemperatureData }

// FreezerTemperature implements cluster.Fridge.
func (c *Fridge) FreezerTemperature() reactive.Cell[float64] { return c.FreezerTemperatureData }

// FreezerDoorOpen implements cluster.Fridge.
func (c *Fridge) FreezerDoorOpen() reactive.Cell[bool] { return c.FreezerDoorOpenData }

// CoolerDoorOpen implements cluster.Fridge.
func (c *Fridge) CoolerDoorOpen() reactive.Cell[bool] { return c.CoolerDoorOpenData }

// Washer is an in-memory cluster.Washer.
type Washer struct {
	base
	MachineStateData         *reactive.Data[string]
	OperatingStateData       *reactive.Data[string]
	DoneData                 *reactive.Data[bool]
	ProgressPercentData      *reactive.Data[float64]
	PhaseData                *reactive.Data[string]
	RemainingTimeMinutesData *reactive.Data[int]
}

// NewWasher creates a washer with no readings yet.
func NewWasher() *Washer {
	c := &Washer{
		base:                     base{name: cluster.NameWasher},
		MachineStateData:         reactive.NewUndefined[string](),
		OperatingStateData:       reactive.NewUndefined[string](),
		DoneData:                 reactive.NewUndefined[bool](),
		ProgressPercentData:      reactive.NewUndefined[float64](),
		PhaseData:                reactive.NewUndefined[string](),
		RemainingTimeMinutesData: reactive.NewUndefined[int](),
	}
	watch(&c.base, c.MachineStateData)
	watch(&c.base, c.OperatingStateData)
	watch(&c.base, c.DoneData)
	watch(&c.base, c.ProgressPercentData)
	watch(&c.base, c.PhaseData)
	watch(&c.base, c.RemainingTimeMinutesData)
	return c
}

// MachineState implements cluster.Washer.
func (c *Washer) MachineState() reactive.Cell[string] { return c.MachineStateData }

// OperatingState implements cluster.Washer.
func (c *Washer) OperatingState() reactive.Cell[string] { return c.OperatingStateData }

// Done implements cluster.Washer.
func (c *Washer) Done() reactive.Cell[bool] { return c.DoneData }

// ProgressPercent implements cluster.Washer.
func (c *Washer) ProgressPercent() reactive.Cell[float64] { return c.ProgressPercentData }

// Phase implements cluster.Washer.
func (c *Washer) Phase() reactive.Cell[string] { return c.PhaseData }

// RemainingTimeMinutes implements cluster.Washer.
func (c *Washer) RemainingTimeMinutes() reactive.Cell[int] { return c.RemainingTimeMinutesData }

// Printer is an in-memory cluster.ThreeDPrinter.
type Printer struct {
	base
	PrintStateData           *reactive.Data[string]
	ProgressPercentData      *reactive.Data[float64]
	RemainingTimeMinutesData *reactive.Data[int]
	NozzleTemperatureData    *reactive.Data[float64]
	BedTemperatureData       *reactive.Data[float64]
}

// NewPrinter creates a 3D printer with no readings yet.
func NewPrinter() *Printer {
	c := &Printer{
		base:                     base{name: cluster.NameThreeDPrinter},
		PrintStateData:           reactive.NewUndefined[string](),
		ProgressPercentData:      reactive.NewUndefined[float64](),
		RemainingTimeMinutesData: reactive.NewUndefined[int](),
		NozzleTemperatureData:    reactive.NewUndefined[float64](),
		BedTemperatureData:       reactive.NewUndefined[float64](),
	}
	watch(&c.base, c.PrintStateData)
	watch(&c.base, c.ProgressPercentData)
	watch(&c.base, c.RemainingTimeMinutesData)
	return c
}

// PrintState implements cluster.ThreeDPrinter.
func (c *Printer) PrintState() reactive.Cell[string] { return c.PrintStateData }

// ProgressPercent implements cluster.ThreeDPrinter.
func (c *Printer) ProgressPercent() reactive.Cell[float64] { return c.ProgressPercentData }

// RemainingTimeMinutes implements cluster.ThreeDPrinter.
func (c *Printer) RemainingTimeMinutes() reactive.Cell[int] { return c.RemainingTimeMinutesData }

// NozzleTemperature implements cluster.ThreeDPrinter.
func (c *Printer) NozzleTemperature() reactive.Cell[float64] { return c.NozzleTemperatureData }

// BedTemperature implements cluster.ThreeDPrinter.
func (c *Printer) BedTemperature() reactive.Cell[float64] { return c.BedTemperatureData }
