package interceptor

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"property-ledger-backend/internal/config"
	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/security"
)

type actorKey struct{}

// ActorFromContext returns the caller authenticated by the interceptor.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}

type AuthInterceptor struct {
	tokenManager security.TokenManager
}

func NewAuthInterceptor(tm security.TokenManager) *AuthInterceptor {
	return &AuthInterceptor{tokenManager: tm}
}

// Unary returns a server interceptor function to authenticate and log unary RPCs
func (i *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		ctx, err := i.authorize(ctx, info.FullMethod)
		if err != nil {
			logCall(info.FullMethod, start, err)
			return nil, err
		}
		resp, err := handler(ctx, req)
		logCall(info.FullMethod, start, err)
		return resp, err
	}
}

// Stream is the streaming counterpart of Unary.
func (i *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx, err := i.authorize(ss.Context(), info.FullMethod)
		if err != nil {
			logCall(info.FullMethod, start, err)
			return err
		}
		err = handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
		logCall(info.FullMethod, start, err)
		return err
	}
}

func (i *AuthInterceptor) authorize(ctx context.Context, method string) (context.Context, error) {
	if config.GetSecurityLevel(method) == config.SecurityPublic {
		return ctx, nil
	}

	token, err := extractToken(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := i.tokenManager.ValidateToken(token)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	return context.WithValue(ctx, actorKey{}, claims.Actor()), nil
}

func extractToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "metadata is not provided")
	}

	authHeader := md["authorization"]
	if len(authHeader) == 0 {
		return "", status.Error(codes.Unauthenticated, "authorization token is not provided")
	}

	token := authHeader[0]
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	if token == "" {
		return "", status.Error(codes.Unauthenticated, "authorization token is not provided")
	}
	return token, nil
}

func logCall(method string, start time.Time, err error) {
	if err != nil {
		logger.Warn("gRPC call failed", "method", method, "code", status.Code(err).String(), "duration", time.Since(start), "error", err)
		return
	}
	logger.Debug("gRPC call", "method", method, "duration", time.Since(start))
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
