package mqttdevice

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
)

// Config is the root of the bridge's YAML file.
type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig declares one bridged device.
type DeviceConfig struct {
	// ID is the topic segment and, prefixed with "mqtt:", the registry id.
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// ManagementURL optionally links to the device's own admin page.
	ManagementURL string `yaml:"management_url"`

	Clusters []ClusterConfig `yaml:"clusters"`
}

// ClusterConfig declares one capability of a bridged device. Which of the
// optional fields apply depends on Type.
type ClusterConfig struct {
	Type cluster.Name `yaml:"type"`

	// Key is the topic segment; it defaults to Type and must be unique
	// within the device.
	Key string `yaml:"key"`

	// Switch
	Variant string `yaml:"variant"`
	Index   int    `yaml:"index"`
	Total   int    `yaml:"total"`
	Label   string `yaml:"label"`

	// Thermostat
	Role string `yaml:"role"`
	Mode string `yaml:"mode"`

	// ColorControl: variant "xy" (with Segments) or "temperature"
	// (with MinKelvin/MaxKelvin)
	Segments  int     `yaml:"segments"`
	MinKelvin float64 `yaml:"min_kelvin"`
	MaxKelvin float64 `yaml:"max_kelvin"`

	// DoorLock
	Unlatch bool `yaml:"unlatch"`
}

// topicKey returns the key used in state and command topics.
func (c ClusterConfig) topicKey() string {
	if c.Key != "" {
		return c.Key
	}
	return string(c.Type)
}

// LoadConfig reads and validates the bridge file at path. A missing file
// declares no devices.
//
// Parameters:
//   - path: Path to the YAML device file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bridge file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing bridge file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating bridge file: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string
	ids := make(map[string]bool)

	for i, dev := range c.Devices {
		if dev.ID == "" || strings.ContainsAny(dev.ID, "/+#") {
			errs = append(errs, fmt.Sprintf("devices[%d].id must be non-empty without / + #", i))
			continue
		}
		if ids[dev.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicate", i, dev.ID))
		}
		ids[dev.ID] = true

		if len(dev.Clusters) == 0 {
			errs = append(errs, fmt.Sprintf("devices[%d].clusters must have at least one entry", i))
		}
		errs = append(errs, validateClusters(i, dev.Clusters)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateClusters(deviceIdx int, clusters []ClusterConfig) []string {
	var errs []string
	keys := make(map[string]bool)

	for j, cc := range clusters {
		field := fmt.Sprintf("devices[%d].clusters[%d]", deviceIdx, j)
		if _, ok := builders[cc.Type]; !ok {
			errs = append(errs, fmt.Sprintf("%s.type %q is not supported", field, cc.Type))
			continue
		}
		key := cc.topicKey()
		if strings.ContainsAny(key, "/+#") {
			errs = append(errs, fmt.Sprintf("%s.key %q must not contain / + #", field, key))
		}
		if keys[key] {
			errs = append(errs, fmt.Sprintf("%s.key %q is duplicate", field, key))
		}
		keys[key] = true

		switch cc.Type {
		case cluster.NameSwitch:
			if _, err := parseSwitchVariant(cc.Variant); err != nil {
				errs = append(errs, fmt.Sprintf("%s.variant: %v", field, err))
			}
			if cc.Index < 0 || (cc.Total > 0 && cc.Index >= cc.Total) {
				errs = append(errs, fmt.Sprintf("%s.index must be within [0, total)", field))
			}
		case cluster.NameThermostat:
			if _, err := parseRole(cc.Role); err != nil {
				errs = append(errs, fmt.Sprintf("%s.role: %v", field, err))
			}
			if cc.Mode != "" {
				if _, err := cluster.ParseThermostatMode(cc.Mode); err != nil {
					errs = append(errs, fmt.Sprintf("%s.mode: %v", field, err))
				}
			}
		case cluster.NameColorControl:
			switch cluster.ColorVariant(cc.Variant) {
			case cluster.ColorXY, "":
			case cluster.ColorTemperature:
				if cc.MinKelvin <= 0 || cc.MaxKelvin <= cc.MinKelvin {
					errs = append(errs, fmt.Sprintf("%s requires 0 < min_kelvin < max_kelvin", field))
				}
			default:
				errs = append(errs, fmt.Sprintf("%s.variant %q must be xy or temperature", field, cc.Variant))
			}
		}
	}
	return errs
}

func parseSwitchVariant(s string) (cluster.SwitchVariant, error) {
	switch v := cluster.SwitchVariant(s); v {
	case "":
		return cluster.SwitchPlain, nil
	case cluster.SwitchPlain, cluster.SwitchLongPress, cluster.SwitchMultiPress, cluster.SwitchLongPressAndMultiPress:
		return v, nil
	default:
		return "", fmt.Errorf("unknown switch variant %q", s)
	}
}

func parseRole(s string) (cluster.ThermostatRole, error) {
	switch r := cluster.ThermostatRole(s); r {
	case cluster.RoleNone, cluster.RoleMaster, cluster.RoleSlave:
		return r, nil
	default:
		return "", fmt.Errorf("unknown thermostat role %q", s)
	}
}
