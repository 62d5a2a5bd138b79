// Package grpc serves the standard grpc.health.v1 service. Serving status
// follows the reachability of the database.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "cloakvault.Vault"

const (
	defaultCheckInterval = 15 * time.Second
	pingTimeout          = 3 * time.Second
)

// Pinger is the dependency whose health is reported. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type GRPCServer struct {
	address  string
	logger   logging.Logger
	checker  Pinger
	interval time.Duration
	health   *health.Server
}

// NewGRPCServer builds the server. A non-positive interval selects the
// default check period.
func NewGRPCServer(a string, l logging.Logger, checker Pinger, interval time.Duration) *GRPCServer {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		checker:  checker,
		interval: interval,
		health:   health.NewServer(),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	s.refresh(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh pings the checker once and publishes the result.
func (s *GRPCServer) refresh(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.checker.PingContext(pingCtx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "health check failed", "err", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}
