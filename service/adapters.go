package service

import (
	"context"
	"fmt"
	"netcall/value"
)

// Typed adapters turn ordinary Go functions into Handlers. Each positional
// argument is converted with value.As into the declared parameter type, and
// the return value with value.From.

func arg[T any](args []value.Value, i int) (T, error) {
	v, err := value.As[T](args[i])
	if err != nil {
		return v, fmt.Errorf("argument %d: %w", i, err)
	}
	return v, nil
}

func ret[R any](r R, err error) (value.Value, error) {
	if err != nil {
		return value.Null(), err
	}
	return value.From(r)
}

func Func0[R any](fn func() (R, error)) Handler {
	return NewHandler(0, func(ctx context.Context, args []value.Value) (value.Value, error) {
		return ret(fn())
	})
}

func Func1[A, R any](fn func(A) (R, error)) Handler {
	return NewHandler(1, func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return value.Null(), err
		}
		return ret(fn(a))
	})
}

func Func2[A, B, R any](fn func(A, B) (R, error)) Handler {
	return NewHandler(2, func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return value.Null(), err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return value.Null(), err
		}
		return ret(fn(a, b))
	})
}

func Func3[A, B, C, R any](fn func(A, B, C) (R, error)) Handler {
	return NewHandler(3, func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return value.Null(), err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return value.Null(), err
		}
		c, err := arg[C](args, 2)
		if err != nil {
			return value.Null(), err
		}
		return ret(fn(a, b, c))
	})
}

// Proc adapters wrap functions without a result; the call yields Null.

func Proc0(fn func() error) Handler {
	return NewHandler(0, func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Null(), fn()
	})
}

func Proc1[A any](fn func(A) error) Handler {
	return NewHandler(1, func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return value.Null(), err
		}
		return value.Null(), fn(a)
	})
}

func Proc2[A, B any](fn func(A, B) error) Handler {
	return NewHandler(2, func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return value.Null(), err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return value.Null(), err
		}
		return value.Null(), fn(a, b)
	})
}

// WithContext1 adapts a function that also needs the call context (deadline
// set by the dispatcher's middleware, for example).
func WithContext1[A, R any](fn func(context.Context, A) (R, error)) Handler {
	return NewHandler(1, func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return value.Null(), err
		}
		return ret(fn(ctx, a))
	})
}
