package network

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/VanDung-dev/ArrowRow-Engine/api"
	"github.com/VanDung-dev/ArrowRow-Engine/data"
)

var logger = log.New()

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
}

// Common errors for network operations
var (
	ErrSourceRunning    = errors.New("source already running")
	ErrSourceNotRunning = errors.New("source is not running")
	ErrSendFailed       = errors.New("failed to send message")
)

const transportName = "zmq"

// Handler consumes one IPC batch. *api.ArrowHandler implements it.
type Handler interface {
	ProcessMessage(ctx context.Context, transport string, data []byte) api.BatchResponse
}

// SourceStats contains source statistics.
type SourceStats struct {
	Endpoint  string `json:"endpoint"`
	Received  int64  `json:"received"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	Rows      int64  `json:"rows"`
	QueueSize int    `json:"queue_size"`
	IsRunning bool   `json:"is_running"`
}

// ZmqSource binds a PULL socket and feeds every frame it receives, as one
// IPC stream payload, to a Handler.
type ZmqSource struct {
	endpoint string
	handler  Handler

	ctx    context.Context
	cancel context.CancelFunc

	pull    zmq4.Socket
	frames  chan []byte
	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup

	received  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	rows      atomic.Int64
}

// NewZmqSource creates a source for endpoint, e.g. "tcp://*:5557".
func NewZmqSource(endpoint string, handler Handler) *ZmqSource {
	return &ZmqSource{
		endpoint: endpoint,
		handler:  handler,
		frames:   make(chan []byte, 1000),
	}
}

// Start binds the socket and begins receiving.
func (s *ZmqSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSourceRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.pull = zmq4.NewPull(s.ctx)
	if err := s.pull.Listen(s.endpoint); err != nil {
		s.cancel()
		return errors.Wrapf(err, "failed to bind pull socket on %s", s.endpoint)
	}
	s.running = true

	s.wg.Add(2)
	go s.receiverLoop()
	go s.processLoop()

	logger.WithField("endpoint", s.Addr()).Info("zmq source listening")
	return nil
}

// Addr returns the bound endpoint, resolving a wildcard port.
func (s *ZmqSource) Addr() string {
	if s.pull == nil {
		return s.endpoint
	}
	addr := s.pull.Addr()
	if addr == nil {
		return s.endpoint
	}
	scheme := "tcp"
	if i := strings.Index(s.endpoint, "://"); i > 0 {
		scheme = s.endpoint[:i]
	}
	return scheme + "://" + addr.String()
}

// Stop closes the socket and waits for queued frames to be processed.
func (s *ZmqSource) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if err := s.pull.Close(); err != nil {
		logger.WithError(err).Debug("pull socket close")
	}
	s.wg.Wait()
	logger.WithField("endpoint", s.endpoint).Info("zmq source stopped")
}

// IsRunning reports whether the source is receiving.
func (s *ZmqSource) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *ZmqSource) receiverLoop() {
	defer s.wg.Done()
	defer close(s.frames)

	for {
		msg, err := s.pull.Recv()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			logger.WithError(err).Debug("recv failed")
			continue
		}
		for _, frame := range msg.Frames {
			s.received.Add(1)
			select {
			case s.frames <- frame:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *ZmqSource) processLoop() {
	defer s.wg.Done()
	for frame := range s.frames {
		s.handleFrame(frame)
	}
}

func (s *ZmqSource) handleFrame(frame []byte) {
	resp := s.handler.ProcessMessage(context.Background(), transportName, frame)
	s.rows.Add(int64(resp.Rows))
	if resp.Error != "" {
		s.failed.Add(1)
		return
	}
	s.processed.Add(1)
}

// GetStats returns current source statistics.
func (s *ZmqSource) GetStats() SourceStats {
	return SourceStats{
		Endpoint:  s.Addr(),
		Received:  s.received.Load(),
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Rows:      s.rows.Load(),
		QueueSize: len(s.frames),
		IsRunning: s.IsRunning(),
	}
}

// ZmqPublisher pushes IPC batches to a ZmqSource.
type ZmqPublisher struct {
	push   zmq4.Socket
	writer *data.IPCWriter
	mu     sync.Mutex
}

// DialPublisher connects a PUSH socket to endpoint.
func DialPublisher(ctx context.Context, endpoint string) (*ZmqPublisher, error) {
	push := zmq4.NewPush(ctx)
	if err := push.Dial(endpoint); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", endpoint)
	}
	return &ZmqPublisher{push: push, writer: data.NewIPCWriter(nil)}, nil
}

// Publish sends one IPC stream payload.
func (p *ZmqPublisher) Publish(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.push.Send(zmq4.NewMsg(payload)); err != nil {
		return errors.Wrap(ErrSendFailed, err.Error())
	}
	return nil
}

// PublishRecord serializes rec and sends it.
func (p *ZmqPublisher) PublishRecord(rec arrow.Record) error {
	payload, err := p.writer.Serialize(rec)
	if err != nil {
		return err
	}
	return p.Publish(payload)
}

// Close closes the push socket.
func (p *ZmqPublisher) Close() error {
	return p.push.Close()
}
