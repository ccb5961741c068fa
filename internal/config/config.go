package config

import (
	"strings"
	"time"

	"dirwatch/internal/logging"
)

// Config is the resolved server configuration. Every key records where its
// value came from in Sources.
type Config struct {
	Listen           string
	Roots            []string
	AuthToken        string
	LogLevel         logging.Level
	MaxWatches       int
	ReadConcurrency  int
	SubscriberBuffer int
	AllowedOrigins   []string
	ShutdownTimeout  time.Duration
	ConfigPath       string
	ShowVersion      bool
	Sources          map[string]Source
}

type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

const (
	KeyListen           = "listen"
	KeyRoots            = "roots"
	KeyToken            = "token"
	KeyLogLevel         = "log_level"
	KeyMaxWatches       = "max_watches"
	KeyReadConcurrency  = "read_concurrency"
	KeySubscriberBuffer = "subscriber_buffer"
	KeyAllowedOrigins   = "allowed_origins"
	KeyShutdownTimeout  = "shutdown_timeout"
)

const envPrefix = "DIRWATCH_"

// EnvConfigPath names the YAML file to load when --config is not given.
const EnvConfigPath = envPrefix + "CONFIG"

type Defaults struct {
	Listen           string
	LogLevel         logging.Level
	MaxWatches       int
	ReadConcurrency  int
	SubscriberBuffer int
	ShutdownTimeout  time.Duration
}

func DefaultValues() Defaults {
	return Defaults{
		Listen:           "127.0.0.1:3000",
		LogLevel:         logging.LevelInfo,
		MaxWatches:       256,
		ReadConcurrency:  8,
		SubscriberBuffer: 128,
		ShutdownTimeout:  10 * time.Second,
	}
}

func envName(key string) string {
	return envPrefix + strings.ToUpper(key)
}
