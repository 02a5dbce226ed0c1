package handlers

import (
	"context"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/infrastructure/logger"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/asakaida/remotemodel/internal/remoting"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ModelRegistry looks up models served by the handler
type ModelRegistry interface {
	Model(name string) (*model.Model, bool)
}

// ModelHandler implements remoting.ModelServiceServer on top of local models
type ModelHandler struct {
	registry ModelRegistry
}

// NewModelHandler creates a new ModelHandler
func NewModelHandler(registry ModelRegistry) *ModelHandler {
	return &ModelHandler{registry: registry}
}

// Invoke calls a model method and returns its result.
// Instance methods load the instance identified by the request id first.
func (h *ModelHandler) Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := remoting.RequestFromStruct(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	log := logger.FromContext(ctx).With(zap.String("model", req.Model), zap.String("method", req.Method))

	m, ok := h.registry.Model(req.Model)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "model %s not found", req.Model)
	}
	method, ok := m.Method(req.Method)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "method %s.%s not found", req.Model, req.Method)
	}

	var inst *model.Instance
	if !method.Static {
		if entities.IsEmptyID(req.ID) {
			return nil, status.Errorf(codes.InvalidArgument, "%s.%s requires an instance id", req.Model, req.Method)
		}
		inst, err = m.FindByID(ctx, req.ID, nil)
		if err != nil {
			return nil, handleInvokeError(err)
		}
		if inst == nil {
			return nil, status.Errorf(codes.NotFound, "%s with id %v not found", req.Model, req.ID)
		}
	}

	result, err := m.Invoke(ctx, req.Method, inst, model.Args(req.Args))
	if err != nil {
		log.Debug("model method failed", zap.Error(err))
		return nil, handleInvokeError(err)
	}

	out, err := remoting.ResponseToStruct(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode result: %v", err)
	}
	return out, nil
}
