package api

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

var ErrServerRunning = errors.New("server is already running")

// ArrowServer is a TCP server reading length-prefixed Arrow IPC batches.
type ArrowServer struct {
	handler *ArrowHandler
	auth    *Authenticator
	metrics *Metrics

	// HandshakeTimeout bounds the wait for the auth frame.
	HandshakeTimeout time.Duration

	listener net.Listener
	running  bool
	mu       sync.Mutex
	quit     chan struct{}
	conns    sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewArrowServer creates a server. auth and metrics may be nil.
func NewArrowServer(handler *ArrowHandler, auth *Authenticator, metrics *Metrics) *ArrowServer {
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ArrowServer{
		handler:          handler,
		auth:             auth,
		metrics:          metrics,
		HandshakeTimeout: 10 * time.Second,
		quit:             make(chan struct{}),
		ctx:              ctx,
		cancel:           cancel,
	}
}

func (s *ArrowServer) listen(address string) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrServerRunning
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.listener = lis
	s.running = true
	logger.WithField("addr", lis.Addr().String()).Info("arrow server listening")
	return lis, nil
}

// Start serves on address until Stop is called.
func (s *ArrowServer) Start(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	defer s.Stop()
	s.acceptLoop(lis)
	return nil
}

// StartAsync serves on address in a background goroutine.
func (s *ArrowServer) StartAsync(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	go s.acceptLoop(lis)
	return nil
}

// Addr returns the listen address, or nil before start.
func (s *ArrowServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *ArrowServer) acceptLoop(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				logger.WithError(err).Warn("accept failed")
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}
		s.conns.Add(1)
		go s.handleConnection(conn)
	}
}

// Stop closes the listener and waits for open connections to finish.
func (s *ArrowServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.quit)
	s.cancel()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			logger.WithError(err).Debug("listener close")
		}
	}
	s.mu.Unlock()

	s.conns.Wait()
	logger.Info("arrow server stopped")
}

func (s *ArrowServer) handleConnection(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	entry := logger.WithField("remote", conn.RemoteAddr().String())
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
		defer s.metrics.ConnectionsActive.Dec()
	}

	// unblock reads on shutdown
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	if s.auth.IsEnabled() {
		if err := s.handshake(conn); err != nil {
			entry.WithError(err).Warn("rejected connection")
			if s.metrics != nil {
				s.metrics.AuthFailures.Inc()
			}
			return
		}
	}

	for {
		data, err := ReadMessage(conn)
		if err != nil {
			if err != io.EOF && s.ctx.Err() == nil {
				entry.WithError(err).Debug("read failed")
			}
			return
		}

		resp := s.handler.ProcessBatch(s.ctx, data)

		if err := WriteMessage(conn, resp.Encode()); err != nil {
			entry.WithError(err).Debug("write failed")
			return
		}
	}
}

func (s *ArrowServer) handshake(conn net.Conn) error {
	if s.HandshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.HandshakeTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}

	frame, err := ReadMessage(conn)
	if err != nil {
		return errors.Wrap(ErrAuthRequired, err.Error())
	}

	authErr := s.auth.ValidateMessage(frame)
	resp := AuthResponse{Success: authErr == nil}
	if authErr != nil {
		resp.Error = ErrAuthFailed.Error()
	}
	if err := writeJSON(conn, resp); err != nil {
		return err
	}
	if authErr != nil {
		return errors.Wrap(ErrAuthFailed, authErr.Error())
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteMessage(w, b)
}

// Client is a minimal TCP client for ArrowServer.
type Client struct {
	conn net.Conn
}

// Dial connects to addr and, if token is non-empty, performs the auth
// handshake.
func Dial(ctx context.Context, addr, token string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}
	c := &Client{conn: conn}
	if token == "" {
		return c, nil
	}

	frame, err := NewAuthMessage(token)
	if err == nil {
		err = WriteMessage(conn, frame)
	}
	var reply []byte
	if err == nil {
		reply, err = ReadMessage(conn)
	}
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "auth handshake")
	}
	var resp AuthResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "auth handshake")
	}
	if !resp.Success {
		conn.Close()
		return nil, errors.Wrap(ErrAuthFailed, resp.Error)
	}
	logger.WithField("addr", addr).Debug("authenticated")
	return c, nil
}

// Send writes one IPC payload and waits for its response.
func (c *Client) Send(payload []byte) (BatchResponse, error) {
	if err := WriteMessage(c.conn, payload); err != nil {
		return BatchResponse{}, err
	}
	reply, err := ReadMessage(c.conn)
	if err != nil {
		return BatchResponse{}, err
	}
	return DecodeBatchResponse(reply)
}

func (c *Client) Close() error { return c.conn.Close() }
