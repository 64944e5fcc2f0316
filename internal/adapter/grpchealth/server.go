// Package grpchealth wires the standard grpc_health_v1 Check RPC: the one
// external interface that gets real protobuf without local codegen, since
// the health proto ships pre-compiled inside google.golang.org/grpc/health.
package grpchealth

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server wraps the stock health.Server, exposing SetServing/SetNotServing
// per logical component name so the coordinator can flip status as its own
// dependencies (ledger, registries) come up or degrade.
type Server struct {
	*health.Server
}

// New creates a Server. The stock health server reports the overall
// service ("") as SERVING from the start; Register marks the named
// component SERVING.
func New() *Server {
	return &Server{Server: health.NewServer()}
}

// Register attaches the health service to grpcServer and marks component
// SERVING.
func (s *Server) Register(grpcServer *grpc.Server, component string) {
	healthpb.RegisterHealthServer(grpcServer, s.Server)
	s.SetServingStatus(component, healthpb.HealthCheckResponse_SERVING)
}

// SetServing marks component as healthy.
func (s *Server) SetServing(component string) {
	s.SetServingStatus(component, healthpb.HealthCheckResponse_SERVING)
}

// SetNotServing marks component as degraded.
func (s *Server) SetNotServing(component string) {
	s.SetServingStatus(component, healthpb.HealthCheckResponse_NOT_SERVING)
}
