package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dirwatch/internal/logging"
)

type shutdownPhase struct {
	name string
	stop func(context.Context) error
}

// shutdownCoordinator runs cleanup phases once, in registration order. A
// failed phase does not stop the ones after it; a done context skips them.
type shutdownCoordinator struct {
	logger *logging.Logger
	once   sync.Once
	phases []shutdownPhase
	err    error
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{logger: logger}
}

func (coordinator *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if coordinator == nil || stop == nil {
		return
	}
	coordinator.phases = append(coordinator.phases, shutdownPhase{name: name, stop: stop})
}

// Run executes the phases on the first call and returns their joined errors.
// Later calls return the same result without running anything.
func (coordinator *shutdownCoordinator) Run(ctx context.Context) error {
	if coordinator == nil {
		return nil
	}
	coordinator.once.Do(func() {
		var errs []error
		for _, phase := range coordinator.phases {
			if err := coordinator.runPhase(ctx, phase); err != nil {
				errs = append(errs, err)
			}
		}
		coordinator.err = errors.Join(errs...)
	})
	return coordinator.err
}

func (coordinator *shutdownCoordinator) runPhase(ctx context.Context, phase shutdownPhase) error {
	fields := map[string]string{"phase": phase.name}
	if err := ctx.Err(); err != nil {
		fields["error"] = err.Error()
		coordinator.logger.Warn("shutdown phase skipped", logging.Fields("server", fields))
		return fmt.Errorf("%s: %w", phase.name, err)
	}

	coordinator.logger.Info("shutdown phase starting", logging.Fields("server", fields))
	started := time.Now()
	err := phase.stop(ctx)
	fields["duration"] = time.Since(started).String()
	if err != nil {
		fields["error"] = err.Error()
		coordinator.logger.Warn("shutdown phase failed", logging.Fields("server", fields))
		return fmt.Errorf("%s: %w", phase.name, err)
	}
	coordinator.logger.Debug("shutdown phase finished", logging.Fields("server", fields))
	return nil
}
