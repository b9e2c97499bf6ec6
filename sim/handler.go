package sim

import "github.com/pkg/errors"

// EventFn is a fire-and-forget handler of model M taking input T.
// Method expressions such as (*Sensor).VoltageIn satisfy it directly when
// they have the full signature; use Plain or WithEnv for the other forms.
type EventFn[M, T any] func(m M, in T, cx *Context) error

// QueryFn is a handler of model M that answers input T with a reply R.
type QueryFn[M, T, R any] func(m M, in T, cx *Context) (R, error)

// Initializer is implemented by models that need to act before the clock
// starts, typically to schedule their first events.
type Initializer interface {
	Init(cx *Context) error
}

// Plain adapts a handler that neither needs the context nor fails.
func Plain[M, T any](fn func(M, T)) EventFn[M, T] {
	return func(m M, in T, _ *Context) error {
		fn(m, in)
		return nil
	}
}

// PlainQuery adapts a query handler that neither needs the context nor fails.
func PlainQuery[M, T, R any](fn func(M, T) R) QueryFn[M, T, R] {
	return func(m M, in T, _ *Context) (R, error) {
		return fn(m, in), nil
	}
}

// WithEnv adapts a handler that also receives the model's private
// environment, as produced by the build function passed to RegisterProto.
func WithEnv[M, E, T any](fn func(M, T, *Context, E) error) EventFn[M, T] {
	return func(m M, in T, cx *Context) error {
		env, err := envOf[E](cx)
		if err != nil {
			return err
		}
		return fn(m, in, cx, env)
	}
}

// QueryWithEnv is the query counterpart of WithEnv.
func QueryWithEnv[M, E, T, R any](fn func(M, T, *Context, E) (R, error)) QueryFn[M, T, R] {
	return func(m M, in T, cx *Context) (R, error) {
		env, err := envOf[E](cx)
		if err != nil {
			var zero R
			return zero, err
		}
		return fn(m, in, cx, env)
	}
}

func envOf[E any](cx *Context) (E, error) {
	env, ok := cx.mb.env.(E)
	if !ok {
		var zero E
		return zero, errors.Wrapf(ErrModelMismatch, "model %q has environment %T, handler wants %T", cx.Name(), cx.mb.env, zero)
	}
	return env, nil
}
