package server

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ar-conmit/hedera-mirror-node/logging"
)

// ServiceName is the gRPC health service name of the importer.
const ServiceName = "mirror.importer.v1.Importer"

// GRPCHealth serves the standard gRPC health checking protocol.
type GRPCHealth struct {
	port   int
	server *grpc.Server
	health *health.Server
	logger *logging.ComponentLogger
}

func NewGRPCHealth(port int, logger *logging.ComponentLogger) *GRPCHealth {
	if logger == nil {
		logger = logging.Nop()
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &GRPCHealth{
		port:   port,
		server: grpcServer,
		health: healthServer,
		logger: logger.With("grpc"),
	}
}

// Start listens in the background.
func (g *GRPCHealth) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", g.port, err)
	}
	go func() {
		if err := g.server.Serve(lis); err != nil {
			g.logger.Error().Err(err).Msg("gRPC health server error")
		}
	}()
	g.logger.Info().Int("port", g.port).Msg("gRPC health server listening")
	return nil
}

// SetServing flips the importer's serving status.
func (g *GRPCHealth) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(ServiceName, status)
}

// Health exposes the health service for in-process checks.
func (g *GRPCHealth) Health() grpc_health_v1.HealthServer {
	return g.health
}

func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
