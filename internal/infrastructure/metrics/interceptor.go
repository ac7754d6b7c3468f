package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor returns a gRPC interceptor that records metrics for each request.
// NotFound responses are ordinary lookups and are not counted as errors.
func UnaryServerInterceptor(rec *Recorder) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		failed := err != nil && status.Code(err) != codes.NotFound
		rec.Request(info.FullMethod, time.Since(start).Seconds(), failed)

		return resp, err
	}
}
