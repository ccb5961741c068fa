package main

import (
	"context"
	"os"
	"strconv"
	"sync"

	"dirwatch/internal/logging"
)

// watchShutdownSignals calls stop on the first signal from signals. The
// second one is logged and every later one ignored. The returned func ends
// the watch.
func watchShutdownSignals(logger *logging.Logger, stop context.CancelFunc, signals <-chan os.Signal) func() {
	if signals == nil {
		return func() {}
	}

	quit := make(chan struct{})
	go func() {
		received := 0
		for {
			select {
			case <-quit:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				received++
				fields := logging.Fields("server", map[string]string{
					"count": strconv.Itoa(received),
				})
				if sig != nil {
					fields["signal"] = sig.String()
				}
				switch received {
				case 1:
					logger.Info("shutdown signal received", fields)
					if stop != nil {
						stop()
					}
				case 2:
					logger.Warn("shutdown already in progress; ignoring signal", fields)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(quit) })
	}
}
