// Package middleware wraps the dispatcher with cross-cutting behavior.
// A middleware always answers with a Result; it never returns an error.
package middleware

import (
	"context"
	"netcall/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Result

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件，第一个中间件位于最外层。
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
