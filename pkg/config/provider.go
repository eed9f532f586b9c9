// Package config loads emulator fleet configuration.
package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// GetDevice looks a single emulated device up by name
	GetDevice(name string) (*DeviceData, error)

	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Devices []DeviceData `yaml:"devices"`
}

// DeviceData holds the configuration of one emulated instrument
type DeviceData struct {
	Name         string `yaml:"name"`
	Family       string `yaml:"family"`
	SerialDevice string `yaml:"serial_device,omitempty"`
	Baud         int    `yaml:"baud,omitempty"`
	LinkMode     string `yaml:"link_mode,omitempty"`
	Listen       string `yaml:"listen,omitempty"`
	Control      string `yaml:"control,omitempty"`
	DataFile     string `yaml:"data_file"`
	Address      int    `yaml:"address,omitempty"`
	IntervalSecs int    `yaml:"interval,omitempty"`
	StartMode    string `yaml:"start_mode,omitempty"`
	StateBackend string `yaml:"state_backend,omitempty"`
	StatePath    string `yaml:"state_path,omitempty"`
}
