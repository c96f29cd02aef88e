package berth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RunState is a scope's position in its lifecycle. States are ordered and
// a scope only moves forward; Terminated is never left.
type RunState int32

const (
	Uninitialized RunState = iota
	Initializing
	Initialized
	Starting
	Running
	Stopping
	Terminated
)

var runStateNames = [...]string{
	"uninitialized",
	"initializing",
	"initialized",
	"starting",
	"running",
	"stopping",
	"terminated",
}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(runStateNames) {
		return fmt.Sprintf("RunState(%d)", int32(s))
	}

	return runStateNames[s]
}

// ParseRunState parses the lower-case state name.
func ParseRunState(name string) (RunState, error) {
	for i, n := range runStateNames {
		if strings.EqualFold(n, name) {
			return RunState(i), nil
		}
	}

	return 0, fmt.Errorf("unknown run state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RunState) UnmarshalText(text []byte) error {
	v, err := ParseRunState(string(text))
	if err != nil {
		return err
	}

	*s = v

	return nil
}

// Phase is the lifecycle phase an operation belongs to.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseStart
	PhaseStop
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseStart:
		return "start"
	case PhaseStop:
		return "stop"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Ordering places an operation relative to the operations of the
// binding's dependencies within one phase.
type Ordering int

const (
	// DependenciesFirst runs after the operations of the binding's
	// dependencies (topological order).
	DependenciesFirst Ordering = iota

	// DependenciesLast runs before the operations of the binding's
	// dependencies (reverse topological order).
	DependenciesLast
)

// Operation is one lifecycle step bound to a key. Invoke receives the
// binding's instance.
type Operation struct {
	Key      Key
	Phase    Phase
	Ordering Ordering
	Name     string
	Invoke   func(ctx context.Context, instance any) error
}

func (op Operation) String() string {
	if op.Name != "" {
		return fmt.Sprintf("%s %s(%s)", op.Phase, op.Name, op.Key)
	}

	return fmt.Sprintf("%s %s", op.Phase, op.Key)
}

// OperationError wraps the error of a failed lifecycle operation.
type OperationError struct {
	Op  Operation
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("lifecycle operation %s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Initializer is implemented by instances with an init step.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Starter is implemented by instances with a start step.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by instances with a stop step.
type Stopper interface {
	Stop(ctx context.Context) error
}

// OnInit creates an init operation that runs after its dependencies' init.
func OnInit(key Key, fn func(ctx context.Context, instance any) error) Operation {
	return Operation{Key: key, Phase: PhaseInit, Ordering: DependenciesFirst, Invoke: fn}
}

// OnStart creates a start operation that runs after its dependencies' start.
func OnStart(key Key, fn func(ctx context.Context, instance any) error) Operation {
	return Operation{Key: key, Phase: PhaseStart, Ordering: DependenciesFirst, Invoke: fn}
}

// OnStop creates a stop operation. Stop runs in the reverse of start order,
// so it runs before its dependencies are stopped.
func OnStop(key Key, fn func(ctx context.Context, instance any) error) Operation {
	return Operation{Key: key, Phase: PhaseStop, Ordering: DependenciesFirst, Invoke: fn}
}

// Managed creates init, start and stop operations for key that call
// Initializer, Starter and Stopper when the instance implements them.
func Managed(key Key) []Operation {
	initOp := OnInit(key, func(ctx context.Context, instance any) error {
		if i, ok := instance.(Initializer); ok {
			return i.Initialize(ctx)
		}

		return nil
	})
	initOp.Name = "Initialize"

	startOp := OnStart(key, func(ctx context.Context, instance any) error {
		if s, ok := instance.(Starter); ok {
			return s.Start(ctx)
		}

		return nil
	})
	startOp.Name = "Start"

	stopOp := OnStop(key, func(ctx context.Context, instance any) error {
		if s, ok := instance.(Stopper); ok {
			return s.Stop(ctx)
		}

		return nil
	})
	stopOp.Name = "Stop"

	return []Operation{initOp, startOp, stopOp}
}

// EntryPoint runs while the scope is RUNNING. Its context is cancelled when
// Stop is called.
type EntryPoint func(ctx context.Context, r *Registry) error

// sequence orders the operations of one phase. Dependencies-first
// operations follow the graph order, dependencies-last ones the reverse;
// the stop phase inverts the whole sequence.
func sequence(ops []Operation, phase Phase, g *Graph) []Operation {
	var first, last []Operation

	for _, op := range ops {
		if op.Phase != phase {
			continue
		}

		if op.Ordering == DependenciesLast {
			last = append(last, op)
		} else {
			first = append(first, op)
		}
	}

	sort.SliceStable(first, func(i, j int) bool {
		return g.Position(first[i].Key) < g.Position(first[j].Key)
	})
	sort.SliceStable(last, func(i, j int) bool {
		return g.Position(last[i].Key) > g.Position(last[j].Key)
	})

	seq := append(first, last...)

	if phase == PhaseStop {
		for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
			seq[i], seq[j] = seq[j], seq[i]
		}
	}

	return seq
}

// Controller drives one scope through its run states. State reads and
// writes happen under mu, and every transition broadcasts on cond, so a
// waiter can never miss one.
type Controller struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    RunState
	desired  RunState
	err      error
	launched bool
	stopped  bool
	cancel   context.CancelFunc
	snapshot atomic.Int32
	done     chan struct{}

	scope       *Scope
	initOps     []Operation
	startOps    []Operation
	stopOps     []Operation
	entry       EntryPoint
	stopTimeout time.Duration
	logger      *zap.Logger
	observers   *observerChain
}

func newController(s *Scope, ops []Operation, entry EntryPoint, stopTimeout time.Duration) *Controller {
	c := &Controller{
		scope:       s,
		initOps:     sequence(ops, PhaseInit, s.graph),
		startOps:    sequence(ops, PhaseStart, s.graph),
		stopOps:     sequence(ops, PhaseStop, s.graph),
		entry:       entry,
		stopTimeout: stopTimeout,
		logger:      s.logger,
		observers:   s.observers,
		done:        make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)

	return c
}

// State returns the current state.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Desired returns the state the controller is heading for.
func (c *Controller) Desired() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.desired
}

// Err returns the error that failed the launch, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// Done returns a channel that is closed when the scope terminates.
func (c *Controller) Done() <-chan struct{} { return c.done }

// current is a lock-free read used on the lookup path.
func (c *Controller) current() RunState {
	return RunState(c.snapshot.Load())
}

// Operations returns the sequenced operations of a phase.
func (c *Controller) Operations(phase Phase) []Operation {
	var src []Operation

	switch phase {
	case PhaseInit:
		src = c.initOps
	case PhaseStart:
		src = c.startOps
	case PhaseStop:
		src = c.stopOps
	}

	out := make([]Operation, len(src))
	copy(out, src)

	return out
}

// Launch runs the init and start phases and leaves the scope
// RUNNING. With an entry point it runs the entry point and stops the scope
// when it returns. A failing init or start operation aborts the phase, tears
// down what was instantiated and returns the originating error.
func (c *Controller) Launch(ctx context.Context) error {
	c.mu.Lock()
	if c.launched {
		state := c.state
		c.mu.Unlock()

		return illegalState("launch", "scope %s already launched (state %s)", c.scope.id, state)
	}

	c.launched = true
	c.desired = Running

	if c.entry != nil {
		c.desired = Terminated
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	defer cancel()

	c.transition(Initializing)

	if err := c.runPhase(ctx, c.initOps); err != nil {
		return c.fail(ctx, err)
	}

	c.transition(Initialized)

	if c.stopRequested() {
		return c.shutdown(ctx)
	}

	c.transition(Starting)

	if err := c.runPhase(ctx, c.startOps); err != nil {
		return c.fail(ctx, err)
	}

	if c.stopRequested() {
		return c.shutdown(ctx)
	}

	c.transition(Running)

	if c.entry == nil {
		if c.stopRequested() {
			return c.shutdown(ctx)
		}

		return nil
	}

	entryErr := c.entry(runCtx, c.scope.registry)
	if entryErr != nil && errors.Is(entryErr, context.Canceled) && c.stopRequested() {
		entryErr = nil
	}

	if entryErr != nil {
		c.mu.Lock()
		c.err = entryErr
		c.mu.Unlock()
	}

	stopErr := c.shutdown(ctx)
	if entryErr != nil {
		if stopErr != nil {
			c.logger.Warn("teardown after entry point failure", zap.Error(stopErr))
		}

		return entryErr
	}

	return stopErr
}

// StopOption configures Stop.
type StopOption func(*stopOptions)

type stopOptions struct {
	wait bool
}

// NoWait makes Stop return immediately when another goroutine is still
// launching or stopping the scope.
func NoWait() StopOption {
	return func(o *stopOptions) { o.wait = false }
}

// Stop moves the scope toward TERMINATED. On a RUNNING scope it runs the
// stop phase in the caller and returns the collected stop errors; every stop
// operation runs even if an earlier one failed. While a launch is in
// progress it records the request and, unless NoWait is given, waits for
// termination. Stop on a terminated scope is a no-op.
func (c *Controller) Stop(ctx context.Context, opts ...StopOption) error {
	o := stopOptions{wait: true}
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	state := c.state

	switch state {
	case Uninitialized:
		c.mu.Unlock()

		return illegalState("stop", "scope %s was never launched", c.scope.id)
	case Terminated:
		c.mu.Unlock()

		return nil
	}

	c.desired = Terminated
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if state == Running {
		return c.shutdown(ctx)
	}

	if !o.wait {
		return nil
	}

	return c.AwaitContext(ctx, Terminated)
}

// Await blocks until the scope reaches target or a later state.
func (c *Controller) Await(target RunState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.state < target {
		c.cond.Wait()
	}
}

// AwaitTimeout is Await bounded by timeout. It reports whether target was
// reached; a zero timeout only checks the current state.
func (c *Controller) AwaitTimeout(target RunState, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state >= target {
		return true
	}

	if timeout <= 0 {
		return false
	}

	t := time.AfterFunc(timeout, c.wake)
	defer t.Stop()

	for c.state < target {
		if !time.Now().Before(deadline) {
			return false
		}

		c.cond.Wait()
	}

	return true
}

// AwaitContext is Await bounded by ctx. It returns ctx.Err() if ctx ends
// first.
func (c *Controller) AwaitContext(ctx context.Context, target RunState) error {
	stop := context.AfterFunc(ctx, c.wake)
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	for c.state < target {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.cond.Wait()
	}

	return nil
}

func (c *Controller) wake() {
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Controller) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopped
}

// transition moves the controller forward. Moving backwards is ignored.
func (c *Controller) transition(to RunState) bool {
	c.mu.Lock()
	from := c.state

	if to <= from {
		c.mu.Unlock()

		return false
	}

	c.state = to
	c.snapshot.Store(int32(to))
	c.cond.Broadcast()

	if to == Terminated {
		close(c.done)
	}
	c.mu.Unlock()

	c.observers.transitioned(c.scope.id, from, to)

	return true
}

func (c *Controller) runPhase(ctx context.Context, ops []Operation) error {
	for _, op := range ops {
		rb, ok := c.scope.bindings[op.Key.id()]
		if !ok {
			return &OperationError{Op: op, Err: ErrKeyNotFound(op.Key)}
		}

		instance, err := instantiate(ctx, rb)
		if err != nil {
			return &OperationError{Op: op, Err: err}
		}

		if err := c.invoke(ctx, op, instance); err != nil {
			return err
		}
	}

	return nil
}

func (c *Controller) invoke(ctx context.Context, op Operation, instance any) error {
	start := time.Now()
	err := op.Invoke(ctx, instance)
	c.observers.operationDone(ctx, c.scope.id, op, time.Since(start), err)

	if err != nil {
		return &OperationError{Op: op, Err: err}
	}

	return nil
}

// fail records err, tears the scope down and returns err.
func (c *Controller) fail(ctx context.Context, err error) error {
	c.mu.Lock()
	c.err = err
	c.desired = Terminated
	c.mu.Unlock()

	c.logger.Error("lifecycle phase failed", zap.Error(err))

	if stopErr := c.shutdown(ctx); stopErr != nil {
		c.logger.Warn("teardown after failure", zap.Error(stopErr))
	}

	return err
}

// shutdown runs the stop phase once. A caller that loses the race waits for
// the winner to finish.
func (c *Controller) shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.state >= Stopping {
		c.mu.Unlock()
		c.Await(Terminated)

		return nil
	}

	c.desired = Terminated
	c.mu.Unlock()

	if !c.transition(Stopping) {
		c.Await(Terminated)

		return nil
	}

	stopCtx := context.WithoutCancel(ctx)
	if c.stopTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(stopCtx, c.stopTimeout)
		defer cancel()
	}

	var errs error

	for _, op := range c.stopOps {
		rb, ok := c.scope.bindings[op.Key.id()]
		if !ok {
			continue
		}

		instance, ok := peek(rb)
		if !ok {
			c.logger.Debug("skipping stop of uninstantiated binding", zap.Stringer("key", op.Key))

			continue
		}

		if err := c.invoke(stopCtx, op, instance); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	c.transition(Terminated)

	return errs
}
