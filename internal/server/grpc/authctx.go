package grpcserver

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ctxKey string

const (
	userIDKey ctxKey = "kg.userID"
	tagsKey   ctxKey = "kg.tags"
)

// WithUserID stores authenticated user ID in context.
// An enclosing LoggingUnary sees the id as well.
func WithUserID(ctx context.Context, id int64) context.Context {
	if t, ok := ctx.Value(tagsKey).(*callTags); ok {
		t.userID, t.set = id, true
	}
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx fetches user ID from context.
func UserIDFromCtx(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// AuthUnary verifies the bearer token on keygate methods and stores the caller id.
// Other services on the same server (health, reflection) pass through.
func AuthUnary(signKey []byte, log *zap.Logger) grpc.UnaryServerInterceptor {
	prefix := "/" + ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return next(ctx, req)
		}
		id, err := userIDFromMD(ctx, signKey)
		if err != nil {
			log.Debug("auth rejected", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		return next(WithUserID(ctx, id), req)
	}
}
