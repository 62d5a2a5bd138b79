package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	code := status.Code(err)
	if err != nil {
		s.logger.Warn(ctx, "rpc failed", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start), "err", err)
	} else {
		s.logger.Debug(ctx, "rpc", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
	}

	return resp, err
}
