package api

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcHealth "google.golang.org/grpc/health"
	grpcHealthV1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Version is the engine version reported by the CLI.
const Version = "0.1.0"

// FlightServerConfig holds configuration for the Flight ingest server.
type FlightServerConfig struct {
	Address        string
	MaxRecvMsgSize int
	MaxSendMsgSize int
}

func DefaultFlightServerConfig() FlightServerConfig {
	return FlightServerConfig{
		Address:        ":50051",
		MaxRecvMsgSize: 64 * 1024 * 1024,
		MaxSendMsgSize: 16 * 1024 * 1024,
	}
}

// FlightIngestServer accepts record batches over Arrow Flight DoPut. Every
// record of the put stream is deserialized into the handler's sink and
// acknowledged with a PutResult carrying a JSON BatchResponse.
type FlightIngestServer struct {
	flight.BaseFlightServer

	config  FlightServerConfig
	handler *ArrowHandler
	auth    *Authenticator
	alloc   memory.Allocator

	mu         sync.Mutex
	listener   net.Listener
	grpcServer *grpc.Server
	health     *grpcHealth.Server
	startTime  time.Time
	wg         sync.WaitGroup
}

// NewFlightIngestServer creates a server. auth may be nil.
func NewFlightIngestServer(config FlightServerConfig, handler *ArrowHandler, auth *Authenticator) *FlightIngestServer {
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{})
	}
	return &FlightIngestServer{
		config:  config,
		handler: handler,
		auth:    auth,
		alloc:   memory.DefaultAllocator,
	}
}

// Start listens on the configured address and serves in the background.
func (s *FlightIngestServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrServerRunning
	}

	lis, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", s.config.Address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.config.Address)
	}

	opts := []grpc.ServerOption{}
	if s.config.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(s.config.MaxRecvMsgSize))
	}
	if s.config.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(s.config.MaxSendMsgSize))
	}
	grpcSrv := grpc.NewServer(opts...)
	flight.RegisterFlightServiceServer(grpcSrv, s)
	healthSrv := grpcHealth.NewServer()
	healthSrv.SetServingStatus("", grpcHealthV1.HealthCheckResponse_SERVING)
	grpcHealthV1.RegisterHealthServer(grpcSrv, healthSrv)

	s.listener = lis
	s.grpcServer = grpcSrv
	s.health = healthSrv
	s.startTime = time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := grpcSrv.Serve(lis); err != nil {
			logger.WithError(err).Debug("flight server stopped")
		}
	}()
	logger.WithField("addr", lis.Addr().String()).Info("flight server listening")
	return nil
}

// Addr returns the listen address, or "" before start.
func (s *FlightIngestServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully, forcing it once ctx is done.
func (s *FlightIngestServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	grpcSrv := s.grpcServer
	health := s.health
	s.listener = nil
	s.grpcServer = nil
	s.health = nil
	s.mu.Unlock()
	if grpcSrv == nil {
		return nil
	}

	health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		grpcSrv.Stop()
		s.wg.Wait()
		return errors.Wrap(ctx.Err(), "flight shutdown")
	}
	s.wg.Wait()
	return nil
}

// Uptime returns the time since Start.
func (s *FlightIngestServer) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// DoPut implements flight.FlightServiceServer.
func (s *FlightIngestServer) DoPut(stream flight.FlightService_DoPutServer) error {
	ctx := stream.Context()
	if err := s.authorize(ctx); err != nil {
		if s.handler.metrics != nil {
			s.handler.metrics.AuthFailures.Inc()
		}
		return status.Error(codes.Unauthenticated, err.Error())
	}

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return status.Errorf(codes.InvalidArgument, "failed to read put stream: %v", err)
	}
	defer reader.Release()

	expected := s.handler.deserializer.ArrowSchema()
	if !reader.Schema().Equal(expected) {
		return status.Errorf(codes.InvalidArgument, "schema mismatch: expected %s, got %s", expected, reader.Schema())
	}

	path := "flight"
	if desc := reader.LatestFlightDescriptor(); desc != nil && len(desc.Path) > 0 {
		path = "flight:" + strings.Join(desc.Path, "/")
	}

	for reader.Next() {
		resp := s.handler.ProcessRecord(ctx, "flight", reader.Record())
		logger.WithField("stream", path).WithField("rows", resp.Rows).Debug("put batch")
		if err := stream.Send(&flight.PutResult{AppMetadata: resp.Encode()}); err != nil {
			return err
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return status.Errorf(codes.InvalidArgument, "failed to read put stream: %v", err)
	}
	return nil
}

func (s *FlightIngestServer) authorize(ctx context.Context) error {
	if !s.auth.IsEnabled() {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	var token string
	if vals := md.Get("authorization"); len(vals) > 0 {
		token = strings.TrimPrefix(vals[0], "Bearer ")
	}
	return s.auth.ValidateToken(token)
}

// BearerContext attaches token to outgoing Flight calls.
func BearerContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}
