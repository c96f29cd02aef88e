package berth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Observer receives runtime events from scopes. Observers can be used for
// logging, metrics, tracing or tests. They must not block.
type Observer interface {
	// Instantiated is called after every factory invocation, successful or not.
	Instantiated(ctx context.Context, scope string, key Key, mode Mode, elapsed time.Duration, err error)

	// Transitioned is called after the controller changes state.
	Transitioned(scope string, from, to RunState)

	// OperationDone is called after a lifecycle operation ran.
	OperationDone(ctx context.Context, scope string, op Operation, elapsed time.Duration, err error)
}

// observerChain fans events out to every registered observer.
type observerChain struct {
	observers []Observer
}

func newObserverChain(observers ...Observer) *observerChain {
	return &observerChain{observers: observers}
}

func (c *observerChain) instantiated(ctx context.Context, scope string, key Key, mode Mode, elapsed time.Duration, err error) {
	for _, o := range c.observers {
		o.Instantiated(ctx, scope, key, mode, elapsed, err)
	}
}

func (c *observerChain) transitioned(scope string, from, to RunState) {
	for _, o := range c.observers {
		o.Transitioned(scope, from, to)
	}
}

func (c *observerChain) operationDone(ctx context.Context, scope string, op Operation, elapsed time.Duration, err error) {
	for _, o := range c.observers {
		o.OperationDone(ctx, scope, op, elapsed, err)
	}
}

// FuncObserver wraps functions as an Observer. Nil fields are skipped.
type FuncObserver struct {
	InstantiatedFunc  func(ctx context.Context, scope string, key Key, mode Mode, elapsed time.Duration, err error)
	TransitionedFunc  func(scope string, from, to RunState)
	OperationDoneFunc func(ctx context.Context, scope string, op Operation, elapsed time.Duration, err error)
}

// Instantiated implements Observer.
func (f *FuncObserver) Instantiated(ctx context.Context, scope string, key Key, mode Mode, elapsed time.Duration, err error) {
	if f.InstantiatedFunc != nil {
		f.InstantiatedFunc(ctx, scope, key, mode, elapsed, err)
	}
}

// Transitioned implements Observer.
func (f *FuncObserver) Transitioned(scope string, from, to RunState) {
	if f.TransitionedFunc != nil {
		f.TransitionedFunc(scope, from, to)
	}
}

// OperationDone implements Observer.
func (f *FuncObserver) OperationDone(ctx context.Context, scope string, op Operation, elapsed time.Duration, err error) {
	if f.OperationDoneFunc != nil {
		f.OperationDoneFunc(ctx, scope, op, elapsed, err)
	}
}

// logObserver writes runtime events to a zap logger.
type logObserver struct {
	logger *zap.Logger
}

// NewLogObserver returns an Observer that logs instantiations at debug and
// failures at warn.
func NewLogObserver(logger *zap.Logger) Observer {
	return &logObserver{logger: logger}
}

func (o *logObserver) Instantiated(_ context.Context, scope string, key Key, mode Mode, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("scope", scope),
		zap.Stringer("key", key),
		zap.Stringer("mode", mode),
		zap.Duration("elapsed", elapsed),
	}

	if err != nil {
		o.logger.Warn("instantiation failed", append(fields, zap.Error(err))...)

		return
	}

	o.logger.Debug("instantiated", fields...)
}

func (o *logObserver) Transitioned(scope string, from, to RunState) {
	o.logger.Info("scope transitioned",
		zap.String("scope", scope),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
}

func (o *logObserver) OperationDone(_ context.Context, scope string, op Operation, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("scope", scope),
		zap.String("operation", op.String()),
		zap.Duration("elapsed", elapsed),
	}

	if err != nil {
		o.logger.Warn("lifecycle operation failed", append(fields, zap.Error(err))...)

		return
	}

	o.logger.Debug("lifecycle operation done", fields...)
}
