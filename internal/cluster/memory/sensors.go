package memory

import (
	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

var (
	_ cluster.OccupancySensing            = (*Occupancy)(nil)
	_ cluster.BooleanState                = (*BooleanState)(nil)
	_ cluster.TemperatureMeasurement      = (*Temperature)(nil)
	_ cluster.RelativeHumidityMeasurement = (*Humidity)(nil)
	_ cluster.IlluminanceMeasurement      = (*Illuminance)(nil)
	_ cluster.ElectricalPower             = (*ElectricalPower)(nil)
	_ cluster.ElectricalEnergy            = (*ElectricalEnergy)(nil)
	_ cluster.CarbonDioxide               = (*CarbonDioxide)(nil)
	_ cluster.PowerSource                 = (*PowerSource)(nil)
)

// Occupancy is an in-memory cluster.OccupancySensing.
type Occupancy struct {
	base
	OccupancyData *reactive.Data[bool]
	occupied      reactive.Emitter[cluster.OccupancyEvent]
}

// NewOccupancy creates an occupancy sensor with an undefined state.
func NewOccupancy() *Occupancy {
	c := &Occupancy{base: base{name: cluster.NameOccupancySensing}, OccupancyData: reactive.NewUndefined[bool]()}
	watch(&c.base, c.OccupancyData)
	return c
}

// Occupancy implements cluster.OccupancySensing.
func (c *Occupancy) Occupancy() reactive.Cell[bool] { return c.OccupancyData }

// OnOccupied implements cluster.OccupancySensing.
func (c *Occupancy) OnOccupied() *reactive.Emitter[cluster.OccupancyEvent] { return &c.occupied }

// Report simulates a sensor report: the state is stored and OnOccupied
// fires, even if the state did not change.
func (c *Occupancy) Report(occupied bool) {
	c.OccupancyData.Set(occupied)
	c.occupied.Emit(cluster.OccupancyEvent{Occupied: occupied})
}

// BooleanState is an in-memory cluster.BooleanState.
type BooleanState struct {
	base
	StateData *reactive.Data[bool]
	changes   reactive.Emitter[bool]
}

// NewBooleanState creates a contact sensor with an undefined state.
func NewBooleanState() *BooleanState {
	c := &BooleanState{base: base{name: cluster.NameBooleanState}, StateData: reactive.NewUndefined[bool]()}
	watch(&c.base, c.StateData)
	return c
}

// State implements cluster.BooleanState.
func (c *BooleanState) State() reactive.Cell[bool] { return c.StateData }

// OnStateChange implements cluster.BooleanState.
func (c *BooleanState) OnStateChange() *reactive.Emitter[bool] { return &c.changes }

// Report simulates a sensor report.
func (c *BooleanState) Report(state bool) {
	c.StateData.Set(state)
	c.changes.Emit(state)
}

// Temperature is an in-memory cluster.TemperatureMeasurement.
type Temperature struct {
	base
	TemperatureData *reactive.Data[float64]
}

// NewTemperature creates a temperature sensor with no reading yet.
func NewTemperature() *Temperature {
	c := &Temperature{base: base{name: cluster.NameTemperatureMeasurement}, TemperatureData: reactive.NewUndefined[float64]()}
	watch(&c.base, c.TemperatureData)
	return c
}

// Temperature implements cluster.TemperatureMeasurement.
func (c *Temperature) Temperature() reactive.Cell[float64] { return c.TemperatureData }

// Humidity is an in-memory cluster.RelativeHumidityMeasurement.
type Humidity struct {
	base
	HumidityData *reactive.Data[float64]
}

// NewHumidity creates a humidity sensor with no reading yet.
func NewHumidity() *Humidity {
	c := &Humidity{base: base{name: cluster.NameRelativeHumidityMeasurement}, HumidityData: reactive.NewUndefined[float64]()}
	watch(&c.base, c.HumidityData)
	return c
}

// RelativeHumidity implements cluster.RelativeHumidityMeasurement.
func (c *Humidity) RelativeHumidity() reactive.Cell[float64] { return c.HumidityData }

// Illuminance is an in-memory cluster.IlluminanceMeasurement.
type Illuminance struct {
	base
	IlluminanceData *reactive.Data[float64]
}

// NewIlluminance creates a light sensor with no reading yet.
func NewIlluminance() *Illuminance {
	c := &Illuminance{base: base{name: cluster.NameIlluminanceMeasurement}, IlluminanceData: reactive.NewUndefined[float64]()}
	watch(&c.base, c.IlluminanceData)
	return c
}

// Illuminance implements cluster.IlluminanceMeasurement.
func (c *Illuminance) Illuminance() reactive.Cell[float64] { return c.IlluminanceData }

// ElectricalPower is an in-memory cluster.ElectricalPower.
type ElectricalPower struct {
	base
	ActivePowerData *reactive.Data[float64]
}

// NewElectricalPower creates a power meter with no reading yet.
func NewElectricalPower() *ElectricalPower {
	c := &ElectricalPower{base: base{name: cluster.NameElectricalPower}, ActivePowerData: reactive.NewUndefined[float64]()}
	watch(&c.base, c.ActivePowerData)
	return c
}

// ActivePower implements cluster.ElectricalPower.
func (c *ElectricalPower) ActivePower() reactive.Cell[float64] { return c.ActivePowerData }

// ElectricalEnergy is an in-memory cluster.ElectricalEnergy.
type ElectricalEnergy struct {
	base
	TotalEnergyData *reactive.Data[int64]
	PeriodData      *reactive.Data[cluster.EnergyPeriod]
}

// NewElectricalEnergy creates an energy meter with no reading yet.
func NewElectricalEnergy() *ElectricalEnergy {
	c := &ElectricalEnergy{
		base:            base{name: cluster.NameElectricalEnergy},
		TotalEnergyData: reactive.NewUndefined[int64](),
		PeriodData:      reactive.NewUndefined[cluster.EnergyPeriod](),
	}
	watch(&c.base, c.TotalEnergyData)
	return c
}

// TotalEnergy implements cluster.ElectricalEnergy.
func (c *ElectricalEnergy) TotalEnergy() reactive.Cell[int64] { return c.TotalEnergyData }

// TotalEnergyPeriod implements cluster.ElectricalEnergy.
func (c *ElectricalEnergy) TotalEnergyPeriod() reactive.Cell[cluster.EnergyPeriod] {
	return c.PeriodData
}

// CarbonDioxide is an in-memory cluster.CarbonDioxide.
type CarbonDioxide struct {
	base
	ConcentrationData *reactive.Data[float64]
	LevelData         *reactive.Data[cluster.ConcentrationLevel]
}

// NewCarbonDioxide creates a CO2 sensor with no reading yet.
func NewCarbonDioxide() *CarbonDioxide {
	c := &CarbonDioxide{
		base:              base{name: cluster.NameCarbonDioxide},
		ConcentrationData: reactive.NewUndefined[float64](),
		LevelData:         reactive.New(cluster.LevelUnknown),
	}
	watch(&c.base, c.ConcentrationData)
	watch(&c.base, c.LevelData)
	return c
}

// Concentration implements cluster.CarbonDioxide.
func (c *CarbonDioxide) Concentration() reactive.Cell[float64] { return c.ConcentrationData }

// Level implements cluster.CarbonDioxide.
func (c *CarbonDioxide) Level() reactive.Cell[cluster.ConcentrationLevel] { return c.LevelData }

// PowerSource is an in-memory cluster.PowerSource.
type PowerSource struct {
	base
	BatteryData *reactive.Data[float64]
}

// NewPowerSource creates a battery reporter with no reading yet.
func NewPowerSource() *PowerSource {
	c := &PowerSource{base: base{name: cluster.NamePowerSource}, BatteryData: reactive.NewUndefined[float64]()}
	watch(&c.base, c.BatteryData)
	return c
}

// BatteryChargeLevel implements cluster.PowerSource.
func (c *PowerSource) BatteryChargeLevel() reactive.Cell[float64] { return c.BatteryData }
