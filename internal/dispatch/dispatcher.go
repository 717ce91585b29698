// Package dispatch routes inbound events to commands and listeners, runs them
// in isolation and turns their failures into replies.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"popmap/internal/apperr"
	"popmap/internal/command"
	"popmap/internal/domain"
	"popmap/internal/listener"
	"popmap/internal/notify"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const (
	defaultHandlerTimeout = 15 * time.Second
	defaultMaxInFlight    = 64
	replyTimeout          = 5 * time.Second

	// TimeoutMessage is shown when a handler exceeds its deadline.
	TimeoutMessage = "The bot took too long to respond. Please try again."
)

// Category is the log tag of a handler family.
type Category string

const (
	CategoryCommand Category = "command"
	CategoryEvent   Category = "event"
)

// Outcome is the terminal state of one dispatched event.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeDropped   Outcome = "dropped"
)

// Result describes how an event was handled.
type Result struct {
	Category Category
	Handler  string
	Outcome  Outcome
	Err      error
}

// Recorder receives one observation per dispatched event.
type Recorder interface {
	Observe(category, handler, outcome string, elapsed time.Duration)
	InFlight(delta int)
}

// Dispatcher is the routing and execution engine. Registries are read-only
// once handed over, so a Dispatcher is safe for concurrent use.
type Dispatcher struct {
	commands    *command.Registry
	listeners   *listener.Registry
	logger      *slog.Logger
	timeout     time.Duration
	maxInFlight int64
	recorder    Recorder
	tracer      trace.Tracer
}

// Config holds the dispatcher's collaborators and limits.
type Config struct {
	Commands       *command.Registry
	Listeners      *listener.Registry
	Logger         *slog.Logger
	HandlerTimeout time.Duration // default 15s
	MaxInFlight    int           // concurrent handler executions in Run (default 64)
	Recorder       Recorder      // optional
	Tracer         trace.Tracer  // optional, defaults to the global provider
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("popmap/internal/dispatch")
	}
	if cfg.Commands == nil {
		cfg.Commands, _ = command.NewRegistry(nil)
	}
	if cfg.Listeners == nil {
		cfg.Listeners, _ = listener.NewRegistry(nil)
	}
	return &Dispatcher{
		commands:    cfg.Commands,
		listeners:   cfg.Listeners,
		logger:      cfg.Logger,
		timeout:     cfg.HandlerTimeout,
		maxInFlight: int64(cfg.MaxInFlight),
		recorder:    cfg.Recorder,
		tracer:      cfg.Tracer,
	}
}

// Run consumes events until ctx is cancelled or the channel is closed. Each
// routed event executes on its own goroutine. Cancelling ctx stops intake:
// events already buffered are still dispatched, and handlers run to
// completion under their own deadline. Run waits for them on exit.
func (d *Dispatcher) Run(ctx context.Context, events <-chan *domain.Event) error {
	d.logger.Info("dispatcher started",
		"commands", d.commands.Len(),
		"listeners", d.listeners.Len(),
		"max_in_flight", d.maxInFlight,
	)

	handlerCtx := context.WithoutCancel(ctx)
	sem := semaphore.NewWeighted(d.maxInFlight)
	var wg sync.WaitGroup
	defer wg.Wait()

	start := func(ev *domain.Event) {
		// handlerCtx is never cancelled, so Acquire only returns once a slot frees.
		_ = sem.Acquire(handlerCtx, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			started := time.Now()
			d.observe(started, d.dispatch(handlerCtx, ev, func() { sem.Release(1) }))
		}()
	}

	for {
		select {
		case <-ctx.Done():
			n := drain(events, start)
			d.logger.Info("dispatcher stopping", "drained", n)
			return nil
		case ev, ok := <-events:
			if !ok {
				d.logger.Info("event stream closed, dispatcher stopping")
				return nil
			}
			start(ev)
		}
	}
}

// drain dispatches whatever is already buffered on events without waiting
// for more.
func drain(events <-chan *domain.Event, start func(*domain.Event)) int {
	n := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return n
			}
			start(ev)
			n++
		default:
			return n
		}
	}
}

// Dispatch routes and executes a single event synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *domain.Event) Result {
	started := time.Now()
	res := d.dispatch(ctx, ev, nil)
	d.observe(started, res)
	return res
}

func (d *Dispatcher) observe(started time.Time, res Result) {
	if d.recorder != nil {
		d.recorder.Observe(string(res.Category), res.Handler, string(res.Outcome), time.Since(started))
	}
}

// dispatch routes ev and runs its handler. release is called exactly once,
// when the handler function returns or immediately if nothing runs; it can
// fire after dispatch itself has returned on a timeout.
func (d *Dispatcher) dispatch(ctx context.Context, ev *domain.Event, release func()) Result {
	if release == nil {
		release = func() {}
	}

	if ev.Kind == domain.KindCommand {
		cmd, ok := d.commands.Resolve(ev.Name)
		if !ok {
			release()
			// The gateway's registered set should match ours; nothing the user can fix.
			d.logger.Warn("command not registered",
				"type", CategoryCommand,
				"handler", ev.Name,
				"status", "dropped",
				"event_id", ev.ID,
			)
			return Result{Category: CategoryCommand, Handler: ev.Name, Outcome: OutcomeDropped}
		}
		return d.run(ctx, ev, CategoryCommand, cmd.Name, release, func(ctx context.Context) error {
			return cmd.Execute(ctx, ev)
		})
	}

	l, data, ok := d.route(ctx, ev)
	if !ok {
		release()
		d.logger.Info("no listener claimed event",
			"type", CategoryEvent,
			"handler", string(ev.Kind),
			"status", "dropped",
			"event_id", ev.ID,
		)
		return Result{Category: CategoryEvent, Handler: string(ev.Kind), Outcome: OutcomeDropped}
	}
	return d.run(ctx, ev, CategoryEvent, l.Name, release, func(ctx context.Context) error {
		return l.Execute(ctx, ev, data)
	})
}

// route runs check functions sequentially in registration order; the first
// accepting listener owns the event.
func (d *Dispatcher) route(ctx context.Context, ev *domain.Event) (*listener.Listener, any, bool) {
	for l := range d.listeners.ResolveAll(ev.Kind) {
		data, ok := d.check(ctx, l, ev)
		if !ok {
			continue
		}
		if !d.listeners.Claim(l) {
			continue
		}
		return l, data, true
	}
	return nil, nil, false
}

func (d *Dispatcher) check(ctx context.Context, l *listener.Listener, ev *domain.Event) (data any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("listener check panic", "handler", l.Name, "event_id", ev.ID, "panic", r)
			data, ok = nil, false
		}
	}()
	return l.Check(ctx, ev)
}

func (d *Dispatcher) run(ctx context.Context, ev *domain.Event, cat Category, name string, release func(), fn func(context.Context) error) Result {
	ctx, span := d.tracer.Start(ctx, "dispatch "+string(cat), trace.WithAttributes(
		attribute.String("popmap.handler", name),
		attribute.String("popmap.event_kind", string(ev.Kind)),
		attribute.String("popmap.event_id", ev.ID),
	))
	defer span.End()

	if d.recorder != nil {
		d.recorder.InFlight(1)
		next := release
		release = func() {
			d.recorder.InFlight(-1)
			next()
		}
	}

	start := time.Now()
	err := d.execute(ctx, release, fn)
	elapsed := time.Since(start)

	if err == nil {
		span.SetStatus(codes.Ok, "")
		d.logger.Info("dispatch complete",
			"type", cat,
			"handler", name,
			"status", "successful",
			"event_id", ev.ID,
			"duration", elapsed,
		)
		return Result{Category: cat, Handler: name, Outcome: OutcomeSucceeded}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	d.logger.Info("dispatch complete",
		"type", cat,
		"handler", name,
		"status", err.Error(),
		"kind", apperr.KindOf(err).String(),
		"event_id", ev.ID,
		"duration", elapsed,
	)
	d.replyFailure(ctx, ev, name, err)
	return Result{Category: cat, Handler: name, Outcome: OutcomeFailed, Err: err}
}

// execute runs fn under the handler deadline and converts panics and
// timeouts into errors. A handler that ignores its context keeps running
// after a timeout; release fires only when fn actually returns.
func (d *Dispatcher) execute(ctx context.Context, release func(), fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
			release()
			done <- err
		}()
		err = fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperr.Wrap(apperr.KindInternal, TimeoutMessage, ctx.Err())
		}
		return fmt.Errorf("handler cancelled: %w", ctx.Err())
	}
}

// replyFailure makes one best-effort attempt to show the failure to the user.
func (d *Dispatcher) replyFailure(ctx context.Context, ev *domain.Event, name string, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()

	if sendErr := ev.ReplyOrFollowUp(ctx, notify.ErrorReply(err)); sendErr != nil {
		d.logger.Error("failed to send error reply",
			"handler", name,
			"event_id", ev.ID,
			"err", sendErr,
		)
	}
}
