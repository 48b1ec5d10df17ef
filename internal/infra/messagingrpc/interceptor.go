package messagingrpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"propchat/internal/infra/obs"
)

// requestIDMetadata carries the gateway's HTTP request id across the hop.
const requestIDMetadata = "x-request-id"

// LoggingInterceptor writes one line per unary call. Client-side faults are
// logged at Info, everything unexpected at Warn.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(requestIDMetadata); len(ids) > 0 {
				ctx = obs.WithRequestID(ctx, ids[0])
			}
		}
		resp, err := handler(ctx, req)
		if logger == nil {
			return resp, err
		}
		code := status.Code(err)
		level := slog.LevelInfo
		switch code {
		case codes.OK, codes.NotFound, codes.PermissionDenied, codes.InvalidArgument,
			codes.FailedPrecondition, codes.Unauthenticated, codes.Canceled:
		default:
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc call",
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", obs.RequestIDFromContext(ctx),
		)
		return resp, err
	}
}
