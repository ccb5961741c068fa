package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dirwatch/internal/config"
	"dirwatch/internal/logging"
	"dirwatch/internal/version"
)

// logStartupConfig records every value that did not come from defaults.
func logStartupConfig(logger *logging.Logger, cfg config.Config) {
	if logger == nil {
		return
	}
	values := map[string]string{
		config.KeyListen:           cfg.Listen,
		config.KeyRoots:            strings.Join(cfg.Roots, ","),
		config.KeyToken:            formatToken(cfg.AuthToken),
		config.KeyLogLevel:         string(cfg.LogLevel),
		config.KeyMaxWatches:       strconv.Itoa(cfg.MaxWatches),
		config.KeyReadConcurrency:  strconv.Itoa(cfg.ReadConcurrency),
		config.KeySubscriberBuffer: strconv.Itoa(cfg.SubscriberBuffer),
		config.KeyAllowedOrigins:   strings.Join(cfg.AllowedOrigins, ","),
		config.KeyShutdownTimeout:  cfg.ShutdownTimeout.String(),
	}

	keys := make([]string, 0, len(cfg.Sources))
	for key, source := range cfg.Sources {
		if source == config.SourceDefault {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	settings := make([]string, 0, len(keys))
	for _, key := range keys {
		settings = append(settings, fmt.Sprintf("%s=%s (%s)", key, values[key], cfg.Sources[key]))
	}
	if len(settings) == 0 {
		return
	}
	fields := map[string]string{
		"settings": strings.Join(settings, " "),
	}
	if cfg.ConfigPath != "" {
		fields["config_file"] = cfg.ConfigPath
	}
	logger.Debug("startup config", fields)
}

func logVersionInfo(logger *logging.Logger) {
	if logger == nil {
		return
	}
	info := version.GetVersionInfo()
	logger.Info(fmt.Sprintf("dirwatch version %s", info.Version), map[string]string{
		"version": info.String(),
	})
}

func formatToken(token string) string {
	if token == "" {
		return ""
	}
	return "****"
}
