package middleware

import (
	"context"
	"netcall/message"
	"time"

	"go.uber.org/zap"
)

// Logging records every dispatched call. Failed calls log at Warn with the
// error string sent to the peer; successful calls log at Debug.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Result {
			start := time.Now()
			res := next(ctx, req)
			duration := time.Since(start)

			fields := []zap.Field{
				zap.String("id", req.ID),
				zap.String("obj", req.Obj),
				zap.String("method", req.Method),
				zap.Int("argc", len(req.Args)),
				zap.Duration("duration", duration),
			}
			if res.Error != "" {
				logger.Warn("call failed", append(fields, zap.String("error", res.Error))...)
				return res
			}
			if ce := logger.Check(zap.DebugLevel, "call completed"); ce != nil {
				ce.Write(append(fields, zap.Stringer("result", res.Result))...)
			}
			return res
		}
	}
}
