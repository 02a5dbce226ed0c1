// Package remote implements a connector whose models live on another server.
// Calls are forwarded over the ModelService gRPC API, and Resolve rebinds
// every method of a model to the matching remote method.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/asakaida/remotemodel/internal/remoting"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ConnectorName identifies the remote connector
const ConnectorName = "remote"

// Connector forwards model methods to a ModelService server
type Connector struct {
	client  remoting.ModelServiceClient
	conn    *grpc.ClientConn
	logger  *zap.Logger
	timeout time.Duration
}

// Option configures a Connector
type Option func(*Connector)

// WithLogger sets the logger remote calls are traced with
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connector) {
		c.logger = logger
	}
}

// WithTimeout bounds every remote call. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Connector) {
		c.timeout = d
	}
}

// New creates a connector on an existing ModelService client
func New(client remoting.ModelServiceClient, opts ...Option) *Connector {
	c := &Connector{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a ModelService server at addr
func Dial(addr string, opts ...Option) (*Connector, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c := New(remoting.NewModelServiceClient(conn), opts...)
	c.conn = conn
	return c, nil
}

// Close closes the connection opened by Dial
func (c *Connector) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Name returns the connector name
func (c *Connector) Name() string {
	return ConnectorName
}

// Define is a no-op: schemas are owned by the server
func (c *Connector) Define(def *entities.ModelDefinition) error {
	return nil
}

// Resolve rebinds every method installed on m to its remote counterpart.
// The method table keeps its size and order, so repeated calls are harmless.
func (c *Connector) Resolve(m *model.Model) error {
	for _, method := range m.Methods() {
		if err := m.Rebind(method.Name, c.proxy(m.Name(), method.Name, method.Static), true); err != nil {
			return fmt.Errorf("failed to resolve %s.%s: %w", m.Name(), method.Name, err)
		}
	}
	c.logger.Debug("model resolved", zap.String("model", m.Name()), zap.Int("methods", len(m.Methods())))
	return nil
}

func (c *Connector) proxy(modelName, method string, static bool) model.MethodFunc {
	return func(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
		var id interface{}
		if !static {
			id = inst.ID()
			if entities.IsEmptyID(id) {
				return nil, fmt.Errorf("%w: %s.%s requires a persisted instance", model.ErrInvalid, modelName, method)
			}
		}
		return c.Call(ctx, modelName, method, id, args)
	}
}

// Call invokes a method on the server. id is required for instance methods.
func (c *Connector) Call(ctx context.Context, modelName, method string, id interface{}, args model.Args) (interface{}, error) {
	in, err := (&remoting.Request{
		Model:  modelName,
		Method: method,
		ID:     id,
		Args:   args,
	}).ToStruct()
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", model.ErrInvalid, modelName, method, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.client.Invoke(ctx, in)
	c.logger.Debug("remote call",
		zap.String("model", modelName),
		zap.String("method", method),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return nil, fromStatus(err)
	}
	return remoting.ResultFromStruct(out), nil
}

// fromStatus maps gRPC status codes back to model errors
func fromStatus(err error) error {
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch s.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", model.ErrNotFound, s.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", model.ErrInvalid, s.Message())
	}
	return fmt.Errorf("remote call failed: %w", err)
}

// The model.Connector methods call the server's static methods directly,
// for use without going through a resolved model.

// Create creates a record on the server
func (c *Connector) Create(ctx context.Context, modelName string, data entities.Record) (entities.Record, error) {
	return c.callRecord(ctx, modelName, model.MethodCreate, nil, model.Args{"data": data})
}

// Upsert creates or updates a record on the server
func (c *Connector) Upsert(ctx context.Context, modelName string, data entities.Record) (entities.Record, error) {
	return c.callRecord(ctx, modelName, model.MethodUpsert, nil, model.Args{"data": data})
}

// FindByID returns the record with the given id, or nil
func (c *Connector) FindByID(ctx context.Context, modelName string, id interface{}) (entities.Record, error) {
	return c.callRecord(ctx, modelName, model.MethodFindByID, nil, model.Args{"id": id})
}

// Find returns the records matching f
func (c *Connector) Find(ctx context.Context, modelName string, f *entities.Filter) ([]entities.Record, error) {
	result, err := c.Call(ctx, modelName, model.MethodFind, nil, model.Args{"filter": f})
	if err != nil {
		return nil, err
	}
	return model.ToRecords(result)
}

// Count returns the number of records matching where
func (c *Connector) Count(ctx context.Context, modelName string, where map[string]interface{}) (int, error) {
	result, err := c.Call(ctx, modelName, model.MethodCount, nil, model.Args{"where": where})
	if err != nil {
		return 0, err
	}
	return model.ToInt(result)
}

// UpdateAttributes patches a record on the server
func (c *Connector) UpdateAttributes(ctx context.Context, modelName string, id interface{}, data entities.Record) (entities.Record, error) {
	return c.callRecord(ctx, modelName, model.MethodUpdateAttributes, id, model.Args{"data": data})
}

// DeleteByID deletes a record on the server
func (c *Connector) DeleteByID(ctx context.Context, modelName string, id interface{}) (int, error) {
	result, err := c.Call(ctx, modelName, model.MethodDeleteByID, nil, model.Args{"id": id})
	if err != nil {
		return 0, err
	}
	return model.ToInt(result)
}

func (c *Connector) callRecord(ctx context.Context, modelName, method string, id interface{}, args model.Args) (entities.Record, error) {
	result, err := c.Call(ctx, modelName, method, id, args)
	if err != nil {
		return nil, err
	}
	return model.ToRecord(result)
}
