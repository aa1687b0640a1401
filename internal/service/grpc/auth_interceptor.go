package grpcsvc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/ticketing/internal/auth"
	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

const authorizationHeader = "authorization"

// publicMethodPrefixes — сервисы, доступные без токена.
var publicMethodPrefixes = []string{
	"/grpc.health.v1.Health/",
}

// AuthUnaryInterceptor проверяет bearer-токен из метаданных и кладёт пользователя в context.
func AuthUnaryInterceptor(authenticator *auth.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		for _, prefix := range publicMethodPrefixes {
			if strings.HasPrefix(info.FullMethod, prefix) {
				return handler(ctx, req)
			}
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(authorizationHeader); len(values) > 0 {
				header = values[0]
			}
		}

		identity, err := authenticator.Authenticate(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, domain.MessageOf(err, domain.ErrTokenMissing.Message))
		}
		return handler(auth.WithIdentity(ctx, identity), req)
	}
}

// requireRole проверяет роль пользователя из context.
func requireRole(ctx context.Context, roles ...auth.Role) (auth.Identity, error) {
	identity, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Identity{}, status.Error(codes.Unauthenticated, domain.ErrTokenMissing.Message)
	}
	if !identity.Allowed(roles...) {
		return auth.Identity{}, status.Error(codes.PermissionDenied, domain.ErrForbidden.Message)
	}
	return identity, nil
}
