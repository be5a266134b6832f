package server

import (
	"context"
	"errors"
	"netcall/message"
	"netcall/registry"
	"netcall/service"

	"go.uber.org/zap"
)

// Dispatcher turns one decoded Request into one Result:
//
//	resolve obj in registry → find (method, argc) → invoke → Result
//
// Every failure maps to one of the fixed messages in package message; the
// underlying cause is logged and never sent to the peer.
type Dispatcher struct {
	objects *registry.Objects
	logger  *zap.Logger
}

func NewDispatcher(objects *registry.Objects, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{objects: objects, logger: logger}
}

// Handle has the middleware.HandlerFunc signature so it can sit at the end
// of a middleware chain.
func (d *Dispatcher) Handle(ctx context.Context, req *message.Request) *message.Result {
	obj, err := d.objects.Resolve(req.Obj)
	if err != nil {
		d.logger.Debug("object not registered", zap.String("obj", req.Obj))
		return message.Failed(message.ErrNotRegistered)
	}

	op, err := obj.Find(req.Method, len(req.Args))
	if err != nil {
		d.logger.Debug("method not found",
			zap.String("obj", req.Obj),
			zap.String("method", req.Method),
			zap.Int("argc", len(req.Args)))
		return message.Failed(message.ErrMethodNotFound)
	}

	result, err := service.Invoke(ctx, op, req.Args)
	if err != nil {
		fields := []zap.Field{
			zap.String("obj", req.Obj),
			zap.String("object", obj.Name()),
			zap.String("method", req.Method),
			zap.Error(err),
		}
		var pe *service.PanicError
		if errors.As(err, &pe) {
			fields = append(fields, zap.ByteString("stack", pe.Stack))
		}
		d.logger.Error("invocation failed", fields...)
		return message.Failed(message.ErrInvocation)
	}
	return message.Succeeded(result)
}
