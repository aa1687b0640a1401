package grpcsvc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/idempotency"
)

// codeFor сопоставляет доменную ошибку с gRPC-кодом.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, idempotency.ErrInFlight):
		return codes.Aborted
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		return codes.AlreadyExists
	case errors.Is(err, idempotency.ErrKeyTooLong):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrOutboxBacklogFull):
		return codes.ResourceExhausted
	}

	switch domain.KindOf(err) {
	case domain.ErrValidation:
		return codes.InvalidArgument
	case domain.ErrNotFound:
		return codes.NotFound
	case domain.ErrConflict:
		return codes.FailedPrecondition
	case domain.ErrGateway:
		return codes.Unavailable
	case domain.ErrUnauthorized:
		return codes.Unauthenticated
	case domain.ErrUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// toStatus превращает ошибку в gRPC status. Уже готовый status возвращается без изменений.
func (s *OrderService) toStatus(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeFor(err)
	if code == codes.Internal {
		s.logger.WithError(err).WithField("operation", operation).Error("order operation failed")
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, messageOf(err))
}

func messageOf(err error) string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		msg := ""
		for _, e := range joined.Unwrap() {
			if msg != "" {
				msg += ", "
			}
			msg += domain.MessageOf(e, e.Error())
		}
		return msg
	}
	return domain.MessageOf(err, err.Error())
}
