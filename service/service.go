// Package service describes callable targets.
//
// A target is an *Object: an ordered dispatch table of operations, each
// identified by (name, arity) and backed by a typed handler closure. The
// table is built once when the object is constructed; resolution at call
// time is a linear scan, never runtime type introspection.
//
//	counter := &Counter{}
//	obj := service.NewObject("Counter").
//		Method("Add", service.Func1(counter.Add)).
//		Method("Reset", service.Proc0(counter.Reset))
package service

import (
	"context"
	"errors"
	"fmt"
	"netcall/value"
	"runtime/debug"
)

var (
	// ErrMethodNotFound is returned by Find when no operation matches.
	ErrMethodNotFound = errors.New("service: method not found")
	// ErrInvocation wraps every failure raised while invoking an operation,
	// including argument conversion failures.
	ErrInvocation = errors.New("service: invocation failed")
)

// InvokeFunc runs an operation with positional arguments. len(args) always
// equals the operation's arity.
type InvokeFunc func(ctx context.Context, args []value.Value) (value.Value, error)

// Operation is a named, fixed-arity unit of behavior on an object.
type Operation struct {
	Name   string
	Arity  int
	Invoke InvokeFunc
}

// Handler is an InvokeFunc paired with its arity, produced by the typed
// adapters (Func0, Func1, ..., Proc2).
type Handler struct {
	arity  int
	invoke InvokeFunc
}

func NewHandler(arity int, invoke InvokeFunc) Handler {
	return Handler{arity: arity, invoke: invoke}
}

func (h Handler) Arity() int { return h.arity }

// Object is a registrable target. Operations keep declaration order.
type Object struct {
	name string
	ops  []Operation
}

// NewObject creates an empty object. name is used in logs only; the id a
// peer calls it by is chosen at registration.
func NewObject(name string) *Object {
	return &Object{name: name}
}

func (o *Object) Name() string { return o.name }

// Method appends an operation built by a typed adapter.
func (o *Object) Method(name string, h Handler) *Object {
	return o.Handle(name, h.arity, h.invoke)
}

// Handle appends a raw operation. Several operations may share a name, with
// equal or different arities.
func (o *Object) Handle(name string, arity int, invoke InvokeFunc) *Object {
	o.ops = append(o.ops, Operation{Name: name, Arity: arity, Invoke: invoke})
	return o
}

// Operations returns the dispatch table in declaration order.
func (o *Object) Operations() []Operation {
	return append([]Operation(nil), o.ops...)
}

// Find selects the first operation, in declaration order, whose name equals
// method and whose arity equals argc. Argument types play no part: when two
// operations share name and arity, the earlier one always wins.
func (o *Object) Find(method string, argc int) (*Operation, error) {
	for i := range o.ops {
		if o.ops[i].Name == method && o.ops[i].Arity == argc {
			return &o.ops[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s/%d", ErrMethodNotFound, o.name, method, argc)
}

// Invoke runs op with args, converting panics into errors. Every failure is
// wrapped with ErrInvocation.
func Invoke(ctx context.Context, op *Operation, args []value.Value) (result value.Value, err error) {
	if len(args) != op.Arity {
		return value.Null(), fmt.Errorf("%w: %s expects %d arguments, got %d", ErrInvocation, op.Name, op.Arity, len(args))
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = value.Null(), &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	result, err = op.Invoke(ctx, args)
	if err != nil {
		return value.Null(), fmt.Errorf("%w: %s: %w", ErrInvocation, op.Name, err)
	}
	return result, nil
}

// PanicError reports an operation that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrInvocation
}
