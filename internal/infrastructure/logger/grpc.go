package logger

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor logs every unary call and attaches a request-scoped
// logger to the handler's context
func UnaryServerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		reqLogger := logger.With(zap.String("grpc_method", info.FullMethod))

		resp, err := handler(WithContext(ctx, reqLogger), req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
		}
		switch code {
		case codes.OK:
			reqLogger.Debug("gRPC request", fields...)
		case codes.Internal, codes.Unknown, codes.Unavailable:
			reqLogger.Error("gRPC request", append(fields, zap.Error(err))...)
		default:
			reqLogger.Warn("gRPC request", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
