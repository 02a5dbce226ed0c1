package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// UnaryServerInterceptor returns a gRPC interceptor that records metrics for each request.
func UnaryServerInterceptor(collector *Collector, exporter *PrometheusExporter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		op := Operation(info.FullMethod, req)

		collector.RecordCall(op)
		if exporter != nil {
			exporter.RecordCall(op)
		}

		resp, err := handler(ctx, req)

		duration := time.Since(start).Seconds()
		collector.RecordDuration(op, duration)
		if exporter != nil {
			exporter.RecordDuration(op, duration)
		}

		if err != nil {
			collector.RecordError(op)
			if exporter != nil {
				exporter.RecordError(op, status.Code(err).String())
			}
		}

		return resp, err
	}
}

// Operation names a request for metrics. ModelService invocations are
// named after the model method they call; anything else keeps fullMethod.
func Operation(fullMethod string, req interface{}) string {
	s, ok := req.(*structpb.Struct)
	if !ok {
		return fullMethod
	}
	model := s.GetFields()["model"].GetStringValue()
	method := s.GetFields()["method"].GetStringValue()
	if model == "" || method == "" {
		return fullMethod
	}
	return model + "." + method
}
