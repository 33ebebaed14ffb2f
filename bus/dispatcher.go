// Package bus implements the synchronous command/event dispatch fabric.
//
// Commands have exactly one handler; a missing handler is a configuration
// error. Events have zero or more handlers. Every dispatch runs inside the
// configured transaction boundary, and messages dispatched while another
// dispatch is in flight are queued and flushed FIFO only after the outermost
// dispatch's transaction commits, so side effects are never observed before
// their trigger is durable.
package bus

import (
	"context"
	"fmt"
	"sync"

	gocommand "github.com/goliatone/go-command"
	errors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-federation/pkg/types"
)

// Message is the dispatchable contract: a stable type key plus payload
// validation. Command and event inputs all implement it.
type Message = gocommand.Message

// Enqueuer hands messages routed to asynchronous transport off to a queue.
// The bus does not define the transport; hosts plug one in.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg Message) error
}

type messageKind int

const (
	kindCommand messageKind = iota
	kindEvent
)

type handlerFunc func(ctx context.Context, msg Message) error

// Config wires the dispatcher's collaborators.
type Config struct {
	Tx       TxRunner
	Enqueuer Enqueuer
	Logger   types.Logger
}

// Dispatcher routes messages to statically registered handlers. The dispatch
// table is built during wiring and frozen on first dispatch.
type Dispatcher struct {
	mu       sync.Mutex
	frozen   bool
	commands map[string]handlerFunc
	events   map[string][]handlerFunc
	async    map[string]bool

	tx       TxRunner
	enqueuer Enqueuer
	logger   types.Logger
}

// New constructs a dispatcher. A nil TxRunner defaults to the pass-through
// boundary; hosts with a database supply NewBunTxRunner.
func New(cfg Config) *Dispatcher {
	tx := cfg.Tx
	if tx == nil {
		tx = Passthrough{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Dispatcher{
		commands: make(map[string]handlerFunc),
		events:   make(map[string][]handlerFunc),
		async:    make(map[string]bool),
		tx:       tx,
		enqueuer: cfg.Enqueuer,
		logger:   logger,
	}
}

// RegisterCommand binds the single handler for the command type T.
func RegisterCommand[T Message](d *Dispatcher, handler gocommand.Commander[T]) error {
	var zero T
	key := zero.Type()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return fmt.Errorf("bus: cannot register %q after first dispatch", key)
	}
	if _, exists := d.commands[key]; exists {
		return fmt.Errorf("bus: command %q already has a handler", key)
	}
	d.commands[key] = wrap(key, handler)
	return nil
}

// RegisterEvent appends a handler for the event type T. Handlers run in
// registration order.
func RegisterEvent[T Message](d *Dispatcher, handler gocommand.Commander[T]) error {
	var zero T
	key := zero.Type()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return fmt.Errorf("bus: cannot register %q after first dispatch", key)
	}
	d.events[key] = append(d.events[key], wrap(key, handler))
	return nil
}

// RouteAsync marks a message type for transport hand-off instead of
// in-process invocation.
func (d *Dispatcher) RouteAsync(msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return fmt.Errorf("bus: cannot route %q after first dispatch", msg.Type())
	}
	d.async[msg.Type()] = true
	return nil
}

func wrap[T Message](key string, handler gocommand.Commander[T]) handlerFunc {
	return func(ctx context.Context, msg Message) error {
		typed, ok := msg.(T)
		if !ok {
			return errors.New(
				fmt.Sprintf("bus: message %q is %T, handler expects different input", key, msg),
				errors.CategoryInternal,
			).WithCode(errors.CodeInternal)
		}
		return handler.Execute(ctx, typed)
	}
}

// DispatchCommand routes a command to its single registered handler.
func (d *Dispatcher) DispatchCommand(ctx context.Context, msg Message) error {
	return d.dispatch(ctx, msg, kindCommand)
}

// DispatchEvent routes an event to all registered handlers, which may be
// none.
func (d *Dispatcher) DispatchEvent(ctx context.Context, msg Message) error {
	return d.dispatch(ctx, msg, kindEvent)
}

func (d *Dispatcher) dispatch(ctx context.Context, msg Message, kind messageKind) error {
	d.freeze()

	if q := deferredFrom(ctx); q != nil {
		q.push(pending{msg: msg, kind: kind})
		return nil
	}

	q := &deferredQueue{}
	ctx = contextWithDeferred(ctx, q)

	if err := d.dispatchNow(ctx, msg, kind); err != nil {
		return err
	}

	// Flush messages deferred by handlers, each in its own transaction.
	// Messages they defer in turn join the same FIFO.
	for {
		next, ok := q.pop()
		if !ok {
			return nil
		}
		if err := d.dispatchNow(ctx, next.msg, next.kind); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) dispatchNow(ctx context.Context, msg Message, kind messageKind) error {
	if d.async[msg.Type()] {
		if d.enqueuer == nil {
			return errors.New(
				fmt.Sprintf("bus: %q routed to async transport but no enqueuer configured", msg.Type()),
				errors.CategoryInternal,
			).WithCode(errors.CodeInternal)
		}
		return d.enqueuer.Enqueue(ctx, msg)
	}
	return d.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return d.invoke(txCtx, msg, kind)
	})
}

func (d *Dispatcher) invoke(ctx context.Context, msg Message, kind messageKind) error {
	key := msg.Type()
	switch kind {
	case kindCommand:
		handler, ok := d.commands[key]
		if !ok {
			return errors.New(
				fmt.Sprintf("bus: no handler registered for command %q", key),
				errors.CategoryInternal,
			).WithCode(errors.CodeInternal).WithTextCode(types.TextCodeHandlerMissing)
		}
		if err := handler(ctx, msg); err != nil {
			return dispatchFailure(key, err)
		}
	case kindEvent:
		for _, handler := range d.events[key] {
			if err := handler(ctx, msg); err != nil {
				return dispatchFailure(key, err)
			}
		}
	}
	return nil
}

// dispatchFailure wraps a handler fault once, preserving the cause so callers
// can branch on it (e.g. uniqueness conflicts during ingestion).
func dispatchFailure(key string, err error) error {
	if types.IsDispatchError(err) {
		return err
	}
	return errors.Wrap(err, errors.CategoryInternal, fmt.Sprintf("bus: handler failed for %q", key)).
		WithCode(errors.CodeInternal).
		WithTextCode(types.TextCodeDispatchFailed)
}

func (d *Dispatcher) freeze() {
	d.mu.Lock()
	d.frozen = true
	d.mu.Unlock()
}

type pending struct {
	msg  Message
	kind messageKind
}

type deferredQueue struct {
	mu    sync.Mutex
	items []pending
}

func (q *deferredQueue) push(p pending) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
}

func (q *deferredQueue) pop() (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return pending{}, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

type deferredKey struct{}

func contextWithDeferred(ctx context.Context, q *deferredQueue) context.Context {
	return context.WithValue(ctx, deferredKey{}, q)
}

func deferredFrom(ctx context.Context) *deferredQueue {
	q, _ := ctx.Value(deferredKey{}).(*deferredQueue)
	return q
}
