package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileValues mirrors the YAML file. Pointer fields distinguish an absent key
// from a zero value.
type fileValues struct {
	Listen           *string  `yaml:"listen"`
	Roots            []string `yaml:"roots"`
	Token            *string  `yaml:"token"`
	LogLevel         *string  `yaml:"log_level"`
	MaxWatches       *int     `yaml:"max_watches"`
	ReadConcurrency  *int     `yaml:"read_concurrency"`
	SubscriberBuffer *int     `yaml:"subscriber_buffer"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	ShutdownTimeout  *string  `yaml:"shutdown_timeout"`
}

func loadFile(path string) (fileValues, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fileValues{}, fmt.Errorf("read config file: %w", err)
	}
	return decodeFile(payload)
}

func decodeFile(payload []byte) (fileValues, error) {
	var values fileValues
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&values); err != nil {
		if errors.Is(err, io.EOF) {
			return fileValues{}, nil
		}
		return fileValues{}, fmt.Errorf("decode config file: %w", err)
	}
	return values, nil
}
