package main

import (
	"context"
	"os"
	"testing"
	"time"

	"dirwatch/internal/logging"
)

func TestWatchShutdownSignalsCancelsOnce(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 2)
	stop := watchShutdownSignals(logger, cancel, signalCh)
	defer stop()

	signalCh <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected cancel on first signal")
	}

	signalCh <- os.Interrupt
	deadline := time.Now().Add(time.Second)
	for {
		entries := buffer.List()
		if len(entries) == 2 {
			if entries[1].Message != "shutdown already in progress; ignoring signal" {
				t.Fatalf("unexpected second log %q", entries[1].Message)
			}
			if entries[1].Context["signal"] != "interrupt" || entries[1].Context["count"] != "2" {
				t.Fatalf("unexpected fields %v", entries[1].Context)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected repeat signal to be logged, got %+v", entries)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatchShutdownSignalsLogsOnlySecondRepeat(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, nil)
	var stops int
	signalCh := make(chan os.Signal)
	stop := watchShutdownSignals(logger, func() { stops++ }, signalCh)

	for i := 0; i < 4; i++ {
		signalCh <- os.Interrupt
	}
	stop()

	if got := len(buffer.List()); got > 2 {
		t.Fatalf("expected at most two log entries, got %d", got)
	}
	if stops != 1 {
		t.Fatalf("expected one stop, got %d", stops)
	}
}

func TestWatchShutdownSignalsStopIsIdempotent(t *testing.T) {
	stop := watchShutdownSignals(nil, nil, make(chan os.Signal))
	stop()
	stop()

	noop := watchShutdownSignals(nil, nil, nil)
	noop()
}
