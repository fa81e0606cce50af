package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/lock"
	"github.com/rainergb/omni-chat-app-sub001/internal/session"
	"github.com/rainergb/omni-chat-app-sub001/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RealtimeService is the health service name that reports SERVING while the
// realtime channel is established.
const RealtimeService = "omnichat.realtime"

// Server manages the gRPC server lifecycle for a session daemon.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the session's Unix domain socket.
// It takes the session lock as a dependency: a second daemon fails on the lock
// before it can unlink a live socket.
func NewServer(p Params, _ *lock.Lock, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	hs.SetServingStatus(RealtimeService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// SocketPath returns the bound socket.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// SetRealtime records whether the realtime channel is up.
func (s *Server) SetRealtime(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(RealtimeService, st)
}

// Track follows channel state changes on b until ctx is done.
func (s *Server) Track(ctx context.Context, b *bus.Bus) {
	ch, unsub := b.Subscribe(bus.RealtimeState, 16)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if sc, ok := evt.Payload.(status.StatusChange); ok {
					s.SetRealtime(sc.To == status.Connected)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file. Health
// watchers keep streams open, so the shutdown is forced once ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}
	_ = os.Remove(s.socketPath)
}
