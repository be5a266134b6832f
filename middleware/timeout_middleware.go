package middleware

import (
	"context"
	"netcall/message"
	"time"
)

// Timeout bounds each dispatch. When d elapses the caller gets
// message.ErrTimeout and the operation's context is cancelled; an operation
// that ignores its context keeps running in the background.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Result {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan *message.Result, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case res := <-done:
				return res
			case <-ctx.Done():
				return message.Failed(message.ErrTimeout)
			}
		}
	}
}
