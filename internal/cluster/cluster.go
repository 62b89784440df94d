package cluster

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// Cluster is the contract every capability implementation satisfies.
//
// Readable state is exposed as reactive cells; command methods are the only
// side-effecting surface. Commands may update local cells optimistically
// before the vendor confirms, and must converge on the vendor's state once
// it reports back.
type Cluster interface {
	// Name returns the capability tag used for lookups.
	Name() Name

	// OnChange fires whenever any readable field of the cluster changes.
	OnChange() *reactive.Emitter[struct{}]

	// Close releases subscriptions and timers owned by the cluster.
	Close() error
}

// As returns c as capability interface T when its tag is name and the
// implementation satisfies T.
func As[T Cluster](c Cluster, name Name) (T, bool) {
	var zero T
	if c == nil || c.Name() != name {
		return zero, false
	}
	t, ok := c.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// OnOff switches a load on and off.
type OnOff interface {
	Cluster
	IsOn() reactive.Cell[bool]
	SetOn(ctx context.Context, on bool) error
	Toggle(ctx context.Context) error
}

// WindowCovering drives blinds and shutters. A lift percentage of 0 means
// fully open, 100 fully closed. The commands are named OpenCover and
// CloseCover because Close is taken by the Cluster disposal method.
type WindowCovering interface {
	Cluster
	TargetLiftPercentage() reactive.Cell[float64]
	OpenCover(ctx context.Context) error
	CloseCover(ctx context.Context) error
	GoToLiftPercentage(ctx context.Context, percentage float64) error
}

// LevelControl dims a load. Levels are floats from 0 to 1.
type LevelControl interface {
	Cluster
	CurrentLevel() reactive.Cell[float64]
	StartupLevel() reactive.Cell[float64]
	SetLevel(ctx context.Context, level float64, transition time.Duration) error
	SetStartupLevel(ctx context.Context, level float64) error
	Stop(ctx context.Context) error
}

// PowerSource reports battery charge as a float from 0 to 1.
type PowerSource interface {
	Cluster
	BatteryChargeLevel() reactive.Cell[float64]
}

// Groups manages native group membership on devices that support it.
type Groups interface {
	Cluster
	AddGroup(ctx context.Context, groupID uint16, groupName string) error
	ListGroupMemberships(ctx context.Context) ([]uint16, error)
	RemoveGroup(ctx context.Context, groupID uint16) error
}

// OccupancyEvent is emitted by OccupancySensing on every sensor report.
type OccupancyEvent struct {
	Occupied bool
}

// OccupancySensing reports presence in a space.
type OccupancySensing interface {
	Cluster
	Occupancy() reactive.Cell[bool]
	OnOccupied() *reactive.Emitter[OccupancyEvent]
}

// TemperatureMeasurement reports degrees Celsius.
type TemperatureMeasurement interface {
	Cluster
	Temperature() reactive.Cell[float64]
}

// RelativeHumidityMeasurement reports relative humidity from 0 to 1.
type RelativeHumidityMeasurement interface {
	Cluster
	RelativeHumidity() reactive.Cell[float64]
}

// BooleanState is a contact or leak sensor.
type BooleanState interface {
	Cluster
	State() reactive.Cell[bool]
	OnStateChange() *reactive.Emitter[bool]
}

// IlluminanceMeasurement reports lux.
type IlluminanceMeasurement interface {
	Cluster
	Illuminance() reactive.Cell[float64]
}

// Action is one entry of an Actions cluster's action list.
type Action struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	State string `json:"state"`
}

// Actions exposes vendor-defined actions (for example robot vacuum
// routines).
type Actions interface {
	Cluster
	ActionList() reactive.Cell[[]Action]
	ExecuteAction(ctx context.Context, actionID int) error
}

// EnergyPeriod is the measurement window for ElectricalEnergy.
type EnergyPeriod struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ElectricalEnergy reports cumulative energy in watt-hours.
type ElectricalEnergy interface {
	Cluster
	TotalEnergy() reactive.Cell[int64]
	TotalEnergyPeriod() reactive.Cell[EnergyPeriod]
}

// ElectricalPower reports instantaneous active power in watts.
type ElectricalPower interface {
	Cluster
	ActivePower() reactive.Cell[float64]
}

// ConcentrationLevel is the qualitative level reported by concentration
// sensors.
type ConcentrationLevel string

// Concentration levels.
const (
	LevelUnknown  ConcentrationLevel = "unknown"
	LevelLow      ConcentrationLevel = "low"
	LevelMedium   ConcentrationLevel = "medium"
	LevelHigh     ConcentrationLevel = "high"
	LevelCritical ConcentrationLevel = "critical"
)

// CarbonDioxide reports CO2 concentration in parts per million.
type CarbonDioxide interface {
	Cluster
	Concentration() reactive.Cell[float64]
	Level() reactive.Cell[ConcentrationLevel]
}

// Fridge reports compartment temperatures and door states.
type Fridge interface {
	Cluster
	FridgeTemperature() reactive.Cell[float64]
	FreezerTemperature() reactive.Cell[float64]
	FreezerDoorOpen() reactive.Cell[bool]
	CoolerDoorOpen() reactive.Cell[bool]
}

// Washer reports the state of a washing machine cycle.
type Washer interface {
	Cluster
	MachineState() reactive.Cell[string]
	OperatingState() reactive.Cell[string]
	Done() reactive.Cell[bool]
	ProgressPercent() reactive.Cell[float64]
	Phase() reactive.Cell[string]
	RemainingTimeMinutes() reactive.Cell[int]
}

// LockState is the bolt position of a DoorLock.
type LockState string

// Lock states.
const (
	LockNotFullyLocked LockState = "not_fully_locked"
	LockLocked         LockState = "locked"
	LockUnlocked       LockState = "unlocked"
	LockUnlatched      LockState = "unlatched"
)

// DoorLock drives a smart lock.
type DoorLock interface {
	Cluster
	LockState() reactive.Cell[LockState]
	LockDoor(ctx context.Context) error
	UnlockDoor(ctx context.Context) error
	UnlatchDoor(ctx context.Context) error
	Toggle(ctx context.Context) error
}

// ThreeDPrinter reports print job progress.
type ThreeDPrinter interface {
	Cluster
	PrintState() reactive.Cell[string]
	ProgressPercent() reactive.Cell[float64]
	RemainingTimeMinutes() reactive.Cell[int]
	NozzleTemperature() reactive.Cell[float64]
	BedTemperature() reactive.Cell[float64]
}
