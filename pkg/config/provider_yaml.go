package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{filename: filename}
}

// LoadConfig loads the complete configuration from the YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	raw, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	cfg := &ConfigData{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", y.filename, err)
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Name == "" {
			return nil, fmt.Errorf("device %d has no name", i)
		}
		if d.Family == "" {
			return nil, fmt.Errorf("device %q has no family", d.Name)
		}
		if d.SerialDevice == "" && d.Listen == "" {
			return nil, fmt.Errorf("device %q must define either a serial device or a listen address", d.Name)
		}
	}

	y.config = cfg
	return cfg, nil
}

// GetDevice looks a device up by name, loading the file on first use
func (y *YAMLProvider) GetDevice(name string) (*DeviceData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	for i := range y.config.Devices {
		if y.config.Devices[i].Name == name {
			return &y.config.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("device %q not found in configuration", name)
}

// Close satisfies ConfigProvider; YAML files hold no resources
func (y *YAMLProvider) Close() error {
	return nil
}
