package middleware

import (
	"context"
	"netcall/message"

	"golang.org/x/time/rate"
)

// RateLimit 创建一个基于令牌桶算法的限流中间件: r calls per second with the
// given burst, shared by every connection of the server.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Result {
			if !limiter.Allow() {
				return message.Failed(message.ErrRateLimited)
			}
			return next(ctx, req)
		}
	}
}
