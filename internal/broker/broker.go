// internal/broker/broker.go
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/markysoft/vani/api/schemas"
)

var (
	// ErrUnknownMethod is returned when the resolved target has no such method.
	ErrUnknownMethod = errors.New("unknown method")
	// ErrNoTarget is returned when no target matches and no root is set.
	ErrNoTarget = errors.New("no target")
	// ErrUnknownHandle is returned by Deref for a well-formed key that was never issued.
	ErrUnknownHandle = errors.New("unknown handle")
)

// MethodFunc is one callable method of a target.
type MethodFunc func(ctx context.Context, args []interface{}) (interface{}, error)

// Target exposes named methods to the broker.
type Target interface {
	Method(name string) (MethodFunc, bool)
}

// MethodTable is a map-backed Target.
type MethodTable map[string]MethodFunc

// Method implements Target.
func (t MethodTable) Method(name string) (MethodFunc, bool) {
	fn, ok := t[name]
	return fn, ok
}

// Wrapper marks values that are library objects. They are never returned to
// the caller directly; the broker stores them and hands out a key instead.
type Wrapper interface {
	WrapperKind() string
}

func isWrapper(v interface{}) bool {
	_, ok := v.(Wrapper)
	return ok
}

// Option configures a Broker.
type Option func(*Broker)

// WithWrappedPredicate replaces the test deciding which results are library
// objects.
func WithWrappedPredicate(pred func(interface{}) bool) Option {
	return func(b *Broker) {
		if pred != nil {
			b.wrapped = pred
		}
	}
}

// WithLogger sets the broker's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Broker dispatches calls by target reference and method name. Only targets
// registered up front are reachable.
type Broker struct {
	logger   *zap.Logger
	registry *Registry
	wrapped  func(interface{}) bool

	mu      sync.RWMutex
	targets map[string]Target
	root    Target
}

// New creates a Broker storing library objects in registry.
func New(registry *Registry, opts ...Option) *Broker {
	if registry == nil {
		registry = NewRegistry(DefaultNamespace, DefaultRegistryName)
	}
	b := &Broker{
		logger:   zap.NewNop(),
		registry: registry,
		wrapped:  isWrapper,
		targets:  make(map[string]Target),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("broker")
	return b
}

// Registry returns the handle registry.
func (b *Broker) Registry() *Registry { return b.registry }

// Register makes target reachable as ref, replacing any earlier registration.
func (b *Broker) Register(ref string, target Target) error {
	if ref == "" {
		return errors.New("target reference must not be empty")
	}
	if target == nil {
		return fmt.Errorf("target %q is nil", ref)
	}
	b.mu.Lock()
	b.targets[ref] = target
	b.mu.Unlock()
	return nil
}

// SetRoot sets the target used when a reference is empty or unregistered.
func (b *Broker) SetRoot(target Target) {
	b.mu.Lock()
	b.root = target
	b.mu.Unlock()
}

func (b *Broker) resolve(ref string) (Target, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if ref != "" {
		if t, ok := b.targets[ref]; ok {
			return t, true
		}
	}
	return b.root, b.root != nil
}

// Invoke calls method on the target registered as targetRef, or on the root
// target when targetRef is empty or unknown. Library objects are stored and
// returned as a handle; every other value comes back unchanged.
func (b *Broker) Invoke(ctx context.Context, targetRef, method string, args []interface{}) (schemas.Result, error) {
	target, ok := b.resolve(targetRef)
	if !ok {
		return schemas.Result{}, fmt.Errorf("invoke %s on %q: %w", method, targetRef, ErrNoTarget)
	}
	fn, ok := target.Method(method)
	if !ok || fn == nil {
		return schemas.Result{}, fmt.Errorf("invoke %s on %q: %w", method, targetRef, ErrUnknownMethod)
	}

	value, err := fn(ctx, args)
	if err != nil {
		return schemas.Result{}, fmt.Errorf("invoke %s on %q: %w", method, targetRef, err)
	}

	if value != nil && b.wrapped(value) {
		id := b.registry.Store(value)
		b.logger.Debug("Stored library object.",
			zap.String("target", targetRef),
			zap.String("method", method),
			zap.String("handle", id.String()),
		)
		return schemas.HandleResult(id), nil
	}
	return schemas.ValueResult(value), nil
}

// Deref returns a copy of args with every handle key replaced by its stored
// object. Nested slices are walked. A string carrying the registry prefix but
// naming nothing stored yields ErrUnknownHandle.
func (b *Broker) Deref(args []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := b.deref(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (b *Broker) deref(arg interface{}) (interface{}, error) {
	switch v := arg.(type) {
	case string:
		if !b.registry.Owns(v) {
			return v, nil
		}
		obj, ok := b.registry.Lookup(schemas.HandleID(v))
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, v)
		}
		return obj, nil
	case schemas.HandleID:
		return b.deref(string(v))
	case []interface{}:
		return b.Deref(v)
	default:
		return arg, nil
	}
}
