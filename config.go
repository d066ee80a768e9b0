package odata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseConfig parses a YAML reader configuration. Unknown keys are rejected.
// Defaults are applied when the configuration is handed to NewReaderWithConfig.
func ParseConfig(data []byte) (ReaderConfig, error) {
	var cfg ReaderConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return ReaderConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if _, _, err := cfg.normalize(); err != nil {
		return ReaderConfig{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML reader configuration file.
func LoadConfig(path string) (ReaderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReaderConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}
