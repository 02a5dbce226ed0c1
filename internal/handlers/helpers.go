package handlers

import (
	"errors"

	"github.com/asakaida/remotemodel/internal/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// === Shared Helper Functions for all handlers ===

// handleInvokeError translates model errors into gRPC status errors.
// Status errors raised further down (e.g. by a chained remote call) keep their code.
func handleInvokeError(err error) error {
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return err
	}

	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrMethodNotFound):
		return status.Errorf(codes.NotFound, "%s", err.Error())
	case errors.Is(err, model.ErrInvalid):
		return status.Errorf(codes.InvalidArgument, "%s", err.Error())
	}
	return status.Errorf(codes.Internal, "failed to invoke method: %s", err.Error())
}
