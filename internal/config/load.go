package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"dirwatch/internal/cli"
	"dirwatch/internal/logging"
)

// ErrHelp is returned after the help text was printed.
var ErrHelp = flag.ErrHelp

type flagValues struct {
	ConfigPath       string
	Listen           string
	Token            string
	LogLevel         string
	MaxWatches       int
	ReadConcurrency  int
	SubscriberBuffer int
	AllowedOrigins   string
	ShutdownTimeout  time.Duration
	Roots            []string
	Help             bool
	Version          bool
	Set              map[string]bool
}

// Load resolves the configuration from defaults, an optional YAML file, the
// DIRWATCH_* environment and finally args. Positional arguments are the
// root directories. getenv may be nil to read the process environment.
func Load(args []string, getenv func(string) string, out io.Writer) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	defaults := DefaultValues()
	flags, err := parseFlags(args, defaults, out)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ShowVersion: flags.Version,
		Sources:     make(map[string]Source),
	}
	if flags.Version {
		return cfg, nil
	}

	configPath := strings.TrimSpace(getenv(EnvConfigPath))
	if flags.Set["config"] {
		configPath = strings.TrimSpace(flags.ConfigPath)
	}
	var file fileValues
	if configPath != "" {
		file, err = loadFile(configPath)
		if err != nil {
			return Config{}, err
		}
		cfg.ConfigPath = configPath
	}

	listen := defaults.Listen
	listenSource := SourceDefault
	if file.Listen != nil && strings.TrimSpace(*file.Listen) != "" {
		listen = strings.TrimSpace(*file.Listen)
		listenSource = SourceFile
	}
	if raw := strings.TrimSpace(getenv(envName(KeyListen))); raw != "" {
		listen = raw
		listenSource = SourceEnv
	}
	if flags.Set["listen"] {
		trimmed := strings.TrimSpace(flags.Listen)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --listen: value cannot be empty")
		}
		listen = trimmed
		listenSource = SourceFlag
	}
	cfg.Listen = listen
	cfg.Sources[KeyListen] = listenSource

	var roots []string
	rootsSource := SourceDefault
	if len(file.Roots) > 0 {
		roots = cleanList(file.Roots)
		rootsSource = SourceFile
	}
	if raw := strings.TrimSpace(getenv(envName(KeyRoots))); raw != "" {
		roots = splitList(raw)
		rootsSource = SourceEnv
	}
	if len(flags.Roots) > 0 {
		roots = cleanList(flags.Roots)
		rootsSource = SourceFlag
	}
	cfg.Roots = roots
	cfg.Sources[KeyRoots] = rootsSource

	token := ""
	tokenSource := SourceDefault
	if file.Token != nil {
		token = *file.Token
		tokenSource = SourceFile
	}
	if raw := getenv(envName(KeyToken)); raw != "" {
		token = raw
		tokenSource = SourceEnv
	}
	if flags.Set["token"] {
		token = flags.Token
		tokenSource = SourceFlag
	}
	cfg.AuthToken = token
	cfg.Sources[KeyToken] = tokenSource

	level := defaults.LogLevel
	levelSource := SourceDefault
	if file.LogLevel != nil {
		parsed, ok := logging.ParseLevel(*file.LogLevel)
		if !ok {
			return Config{}, fmt.Errorf("invalid %s in config file: %q", KeyLogLevel, *file.LogLevel)
		}
		level = parsed
		levelSource = SourceFile
	}
	if raw := strings.TrimSpace(getenv(envName(KeyLogLevel))); raw != "" {
		if parsed, ok := logging.ParseLevel(raw); ok {
			level = parsed
			levelSource = SourceEnv
		}
	}
	if flags.Set["log-level"] {
		parsed, ok := logging.ParseLevel(flags.LogLevel)
		if !ok {
			return Config{}, fmt.Errorf("invalid --log-level: %q", flags.LogLevel)
		}
		level = parsed
		levelSource = SourceFlag
	}
	cfg.LogLevel = level
	cfg.Sources[KeyLogLevel] = levelSource

	var source Source
	cfg.MaxWatches, source, err = resolvePositiveInt(KeyMaxWatches, "max-watches", defaults.MaxWatches, file.MaxWatches, getenv, flags)
	if err != nil {
		return Config{}, err
	}
	cfg.Sources[KeyMaxWatches] = source

	cfg.ReadConcurrency, source, err = resolvePositiveInt(KeyReadConcurrency, "read-concurrency", defaults.ReadConcurrency, file.ReadConcurrency, getenv, flags)
	if err != nil {
		return Config{}, err
	}
	cfg.Sources[KeyReadConcurrency] = source

	cfg.SubscriberBuffer, source, err = resolvePositiveInt(KeySubscriberBuffer, "subscriber-buffer", defaults.SubscriberBuffer, file.SubscriberBuffer, getenv, flags)
	if err != nil {
		return Config{}, err
	}
	cfg.Sources[KeySubscriberBuffer] = source

	var origins []string
	originsSource := SourceDefault
	if len(file.AllowedOrigins) > 0 {
		origins = cleanList(file.AllowedOrigins)
		originsSource = SourceFile
	}
	if raw := strings.TrimSpace(getenv(envName(KeyAllowedOrigins))); raw != "" {
		origins = splitList(raw)
		originsSource = SourceEnv
	}
	if flags.Set["allowed-origins"] {
		origins = splitList(flags.AllowedOrigins)
		originsSource = SourceFlag
	}
	cfg.AllowedOrigins = origins
	cfg.Sources[KeyAllowedOrigins] = originsSource

	timeout := defaults.ShutdownTimeout
	timeoutSource := SourceDefault
	if file.ShutdownTimeout != nil {
		parsed, err := time.ParseDuration(strings.TrimSpace(*file.ShutdownTimeout))
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s in config file: %q", KeyShutdownTimeout, *file.ShutdownTimeout)
		}
		timeout = parsed
		timeoutSource = SourceFile
	}
	if raw := strings.TrimSpace(getenv(envName(KeyShutdownTimeout))); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
			timeoutSource = SourceEnv
		}
	}
	if flags.Set["shutdown-timeout"] {
		if flags.ShutdownTimeout <= 0 {
			return Config{}, fmt.Errorf("invalid --shutdown-timeout: must be > 0")
		}
		timeout = flags.ShutdownTimeout
		timeoutSource = SourceFlag
	}
	cfg.ShutdownTimeout = timeout
	cfg.Sources[KeyShutdownTimeout] = timeoutSource

	return cfg, nil
}

// resolvePositiveInt applies the file, env and flag layers to an integer
// key. Invalid env values are ignored; invalid file or flag values fail.
func resolvePositiveInt(key, flagName string, fallback int, fileValue *int, getenv func(string) string, flags flagValues) (int, Source, error) {
	value := fallback
	source := SourceDefault
	if fileValue != nil {
		if *fileValue <= 0 {
			return 0, "", fmt.Errorf("invalid %s in config file: must be > 0", key)
		}
		value = *fileValue
		source = SourceFile
	}
	if raw := strings.TrimSpace(getenv(envName(key))); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			value = parsed
			source = SourceEnv
		}
	}
	if flags.Set[flagName] {
		var flagValue int
		switch flagName {
		case "max-watches":
			flagValue = flags.MaxWatches
		case "read-concurrency":
			flagValue = flags.ReadConcurrency
		case "subscriber-buffer":
			flagValue = flags.SubscriberBuffer
		}
		if flagValue <= 0 {
			return 0, "", fmt.Errorf("invalid --%s: must be > 0", flagName)
		}
		value = flagValue
		source = SourceFlag
	}
	return value, source, nil
}

func parseFlags(args []string, defaults Defaults, out io.Writer) (flagValues, error) {
	if args == nil {
		args = []string{}
	}
	if out == nil {
		out = io.Discard
	}
	fs := flag.NewFlagSet("dirwatch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "YAML config file")
	listen := fs.String("listen", defaults.Listen, "HTTP listen address")
	token := fs.String("token", "", "Auth token for REST/WS")
	logLevel := fs.String("log-level", string(defaults.LogLevel), "Minimum log level")
	maxWatches := fs.Int("max-watches", defaults.MaxWatches, "Max watched directories")
	readConcurrency := fs.Int("read-concurrency", defaults.ReadConcurrency, "Concurrent directory reads per request")
	subscriberBuffer := fs.Int("subscriber-buffer", defaults.SubscriberBuffer, "Events buffered per listener")
	allowedOrigins := fs.String("allowed-origins", "", "Comma separated websocket origins")
	shutdownTimeout := fs.Duration("shutdown-timeout", defaults.ShutdownTimeout, "Graceful shutdown timeout")
	helpVersion := cli.AddHelpVersionFlags(fs, "Show help", "Print version and exit")

	fs.Usage = func() {
		printHelp(out, defaults)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.Usage()
		}
		return flagValues{}, err
	}

	set := make(map[string]bool)
	fs.Visit(func(flag *flag.Flag) {
		set[flag.Name] = true
	})

	flags := flagValues{
		ConfigPath:       *configPath,
		Listen:           *listen,
		Token:            *token,
		LogLevel:         *logLevel,
		MaxWatches:       *maxWatches,
		ReadConcurrency:  *readConcurrency,
		SubscriberBuffer: *subscriberBuffer,
		AllowedOrigins:   *allowedOrigins,
		ShutdownTimeout:  *shutdownTimeout,
		Roots:            fs.Args(),
		Help:             helpVersion.Help,
		Version:          helpVersion.Version,
		Set:              set,
	}

	if flags.Help {
		fs.Usage()
		return flags, ErrHelp
	}
	return flags, nil
}

func splitList(raw string) []string {
	return cleanList(strings.Split(raw, ","))
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
