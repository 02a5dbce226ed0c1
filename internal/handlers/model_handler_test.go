package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/asakaida/remotemodel/internal/remoting"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func invoke(t *testing.T, h *ModelHandler, req *remoting.Request) (interface{}, error) {
	t.Helper()
	in, err := req.ToStruct()
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	out, err := h.Invoke(context.Background(), in)
	if err != nil {
		return nil, err
	}
	return remoting.ResultFromStruct(out), nil
}

func TestModelHandler_Invoke_Create(t *testing.T) {
	registry, conn := newTestModels(t)
	handler := NewModelHandler(registry)

	result, err := invoke(t, handler, &remoting.Request{
		Model:  "TestModel",
		Method: model.MethodCreate,
		Args:   map[string]interface{}{"data": map[string]interface{}{"first": "Joe", "last": "Bob"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected a record, got %T", result)
	}
	if rec["id"] != float64(1) {
		t.Errorf("expected id 1, got %v", rec["id"])
	}
	if rec["first"] != "Joe" {
		t.Errorf("expected first Joe, got %v", rec["first"])
	}
	if n := len(conn.Records("TestModel")); n != 1 {
		t.Errorf("expected 1 stored record, got %d", n)
	}
}

func TestModelHandler_Invoke_InstanceMethod(t *testing.T) {
	registry, conn := newTestModels(t)
	handler := NewModelHandler(registry)

	if _, err := conn.Create(context.Background(), "TestModel", entities.Record{"first": "Joe", "age": 30}); err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}

	result, err := invoke(t, handler, &remoting.Request{
		Model:  "TestModel",
		Method: model.MethodUpdateAttributes,
		ID:     float64(1),
		Args:   map[string]interface{}{"data": map[string]interface{}{"age": 31}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := result.(map[string]interface{})
	if rec["age"] != float64(31) || rec["first"] != "Joe" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestModelHandler_Invoke_Errors(t *testing.T) {
	registry, _ := newTestModels(t)
	handler := NewModelHandler(registry)

	tests := []struct {
		name     string
		req      *remoting.Request
		wantCode codes.Code
	}{
		{
			name:     "unknown model",
			req:      &remoting.Request{Model: "Nope", Method: model.MethodFind},
			wantCode: codes.NotFound,
		},
		{
			name:     "unknown method",
			req:      &remoting.Request{Model: "TestModel", Method: "explode"},
			wantCode: codes.NotFound,
		},
		{
			name:     "instance method without id",
			req:      &remoting.Request{Model: "TestModel", Method: model.MethodDelete},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "missing instance",
			req:      &remoting.Request{Model: "TestModel", Method: model.MethodDelete, ID: int64(42)},
			wantCode: codes.NotFound,
		},
		{
			name: "invalid data",
			req: &remoting.Request{
				Model:  "TestModel",
				Method: model.MethodCreate,
				Args:   map[string]interface{}{"data": map[string]interface{}{"age": "old"}},
			},
			wantCode: codes.InvalidArgument,
		},
		{
			name: "invalid filter",
			req: &remoting.Request{
				Model:  "TestModel",
				Method: model.MethodFind,
				Args:   map[string]interface{}{"filter": map[string]interface{}{"bogus": 1}},
			},
			wantCode: codes.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := invoke(t, handler, tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := status.Code(err); code != tt.wantCode {
				t.Errorf("expected %v, got %v (%v)", tt.wantCode, code, err)
			}
		})
	}
}

func TestModelHandler_Invoke_MalformedRequest(t *testing.T) {
	handler := NewModelHandler(&mockModelRegistry{})

	in, err := structpb.NewStruct(map[string]interface{}{"method": "find"})
	if err != nil {
		t.Fatalf("failed to build struct: %v", err)
	}
	_, err = handler.Invoke(context.Background(), in)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestModelHandler_Invoke_FindByIDMissingReturnsNull(t *testing.T) {
	registry, _ := newTestModels(t)
	handler := NewModelHandler(registry)

	result, err := invoke(t, handler, &remoting.Request{
		Model:  "TestModel",
		Method: model.MethodFindByID,
		Args:   map[string]interface{}{"id": 99},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
}

func TestHandleInvokeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "not found", err: fmt.Errorf("wrapped: %w", model.ErrNotFound), want: codes.NotFound},
		{name: "method not found", err: model.ErrMethodNotFound, want: codes.NotFound},
		{name: "invalid", err: fmt.Errorf("%w: bad", model.ErrInvalid), want: codes.InvalidArgument},
		{name: "status passthrough", err: status.Error(codes.Unavailable, "down"), want: codes.Unavailable},
		{name: "other", err: errors.New("boom"), want: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(handleInvokeError(tt.err)); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
