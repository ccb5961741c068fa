package config

import (
	"fmt"
	"io"
)

type helpOption struct {
	Name string
	Desc string
}

func printHelp(out io.Writer, defaults Defaults) {
	fmt.Fprintln(out, "Usage: dirwatch [options] [root ...]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Serve live listings of the given root directories")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")

	writeOptionGroup(out, "Server", []helpOption{
		{
			Name: "--listen ADDR",
			Desc: fmt.Sprintf("HTTP listen address (env: DIRWATCH_LISTEN, default: %s)", defaults.Listen),
		},
		{
			Name: "--token TOKEN",
			Desc: "Auth token for REST/WS (env: DIRWATCH_TOKEN, default: none)",
		},
		{
			Name: "--allowed-origins LIST",
			Desc: "Websocket origins, comma separated (env: DIRWATCH_ALLOWED_ORIGINS, default: same host)",
		},
		{
			Name: "--shutdown-timeout DUR",
			Desc: fmt.Sprintf("Graceful shutdown timeout (env: DIRWATCH_SHUTDOWN_TIMEOUT, default: %s)", defaults.ShutdownTimeout),
		},
	})

	writeOptionGroup(out, "Watching", []helpOption{
		{
			Name: "--max-watches N",
			Desc: fmt.Sprintf("Max watched directories (env: DIRWATCH_MAX_WATCHES, default: %d)", defaults.MaxWatches),
		},
		{
			Name: "--read-concurrency N",
			Desc: fmt.Sprintf("Concurrent reads per listing request (env: DIRWATCH_READ_CONCURRENCY, default: %d)", defaults.ReadConcurrency),
		},
		{
			Name: "--subscriber-buffer N",
			Desc: fmt.Sprintf("Events buffered per listener (env: DIRWATCH_SUBSCRIBER_BUFFER, default: %d)", defaults.SubscriberBuffer),
		},
	})

	writeOptionGroup(out, "Config", []helpOption{
		{
			Name: "--config FILE",
			Desc: "YAML config file (env: DIRWATCH_CONFIG, default: none)",
		},
		{
			Name: "--log-level LEVEL",
			Desc: fmt.Sprintf("debug, info, warning or error (env: DIRWATCH_LOG_LEVEL, default: %s)", defaults.LogLevel),
		},
	})

	writeOptionGroup(out, "Other", []helpOption{
		{
			Name: "--help, -h",
			Desc: "Show help and exit",
		},
		{
			Name: "--version, -v",
			Desc: "Print version and exit",
		},
	})

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Roots may also be set with DIRWATCH_ROOTS (comma separated) or the roots list in the config file.")
}

func writeOptionGroup(out io.Writer, title string, options []helpOption) {
	if len(options) == 0 {
		return
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, title+":")
	for _, option := range options {
		fmt.Fprintf(out, "  %-26s %s\n", option.Name, option.Desc)
	}
}
