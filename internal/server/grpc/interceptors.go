package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// callTags collects per-call fields set by inner interceptors.
type callTags struct {
	userID int64
	set    bool
}

// LoggingUnary returns a unary server interceptor for structured logging.
// Place it before AuthUnary so rejected calls are logged too; the caller id
// is picked up once auth succeeds.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		tags := &callTags{}
		if id, ok := UserIDFromCtx(ctx); ok {
			tags.userID, tags.set = id, true
		}
		resp, err := next(context.WithValue(ctx, tagsKey, tags), req)
		code := status.Code(err)

		// metadata only, never payloads
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
		}
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			fields = append(fields, zap.String("peer", p.Addr.String()))
		}
		if tags.set {
			fields = append(fields, zap.Int64("user_id", tags.userID))
		}

		switch code {
		case codes.OK:
			log.Info("grpc", fields...)
		case codes.Internal, codes.Unknown:
			log.Error("grpc", fields...)
		default:
			log.Warn("grpc", fields...)
		}
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// ServerOptions returns the standard interceptor chain: recover, logging, auth.
func ServerOptions(signKey []byte, log *zap.Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
			AuthUnary(signKey, log),
		),
	}
}
