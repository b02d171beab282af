package health

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Leganyst/travel-booking-core/internal/syncstatus"
)

// Префикс имени сервиса в health-проверке для области видимости: "booking.sync/admin".
const ServicePrefix = "booking.sync/"

// Server — gRPC health-сервис, отражающий свежесть синхронизации по областям.
// Общий статус ("") всегда SERVING, пока процесс жив.
type Server struct {
	health *health.Server
}

func NewServer() *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &Server{health: hs}
}

// Register регистрирует health и reflection на gRPC-сервере.
func (s *Server) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)
}

// Watch подписывает сервер на изменения статуса синхронизации.
func (s *Server) Watch(reporter *syncstatus.Reporter) {
	reporter.Subscribe(s.Update)
}

func (s *Server) Update(st syncstatus.Status) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if st.IsActive {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServicePrefix+st.Scope, status)
}

// Shutdown переводит все сервисы в NOT_SERVING перед остановкой.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}
