package cluster

// Name identifies a capability. Lookups always compare Names, never the
// concrete type behind a Cluster, so a Matter OnOff and an MQTT OnOff are
// interchangeable to every consumer.
type Name string

// Capability names.
const (
	NameOnOff                       Name = "OnOff"
	NameWindowCovering              Name = "WindowCovering"
	NameLevelControl                Name = "LevelControl"
	NamePowerSource                 Name = "PowerSource"
	NameGroups                      Name = "Groups"
	NameOccupancySensing            Name = "OccupancySensing"
	NameTemperatureMeasurement      Name = "TemperatureMeasurement"
	NameRelativeHumidityMeasurement Name = "RelativeHumidityMeasurement"
	NameBooleanState                Name = "BooleanState"
	NameSwitch                      Name = "Switch"
	NameIlluminanceMeasurement      Name = "IlluminanceMeasurement"
	NameColorControl                Name = "ColorControl"
	NameActions                     Name = "Actions"
	NameThermostat                  Name = "Thermostat"
	NameElectricalEnergy            Name = "ElectricalEnergyMeasurement"
	NameElectricalPower             Name = "ElectricalPowerMeasurement"
	NameCarbonDioxide               Name = "CarbonDioxideConcentrationMeasurement"
	NameFridge                      Name = "Fridge"
	NameWasher                      Name = "Washer"
	NameDoorLock                    Name = "DoorLock"
	NameThreeDPrinter               Name = "ThreeDPrinter"
)

// AllNames lists every known capability name.
var AllNames = []Name{
	NameOnOff,
	NameWindowCovering,
	NameLevelControl,
	NamePowerSource,
	NameGroups,
	NameOccupancySensing,
	NameTemperatureMeasurement,
	NameRelativeHumidityMeasurement,
	NameBooleanState,
	NameSwitch,
	NameIlluminanceMeasurement,
	NameColorControl,
	NameActions,
	NameThermostat,
	NameElectricalEnergy,
	NameElectricalPower,
	NameCarbonDioxide,
	NameFridge,
	NameWasher,
	NameDoorLock,
	NameThreeDPrinter,
}

// ValidName reports whether n is a known capability.
func ValidName(n Name) bool {
	for _, known := range AllNames {
		if n == known {
			return true
		}
	}
	return false
}

// ParseName converts a string to a Name.
// Returns ErrUnknownCluster if the name is not recognised.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if !ValidName(n) {
		return "", ErrUnknownCluster
	}
	return n, nil
}
