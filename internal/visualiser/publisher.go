// Package visualiser streams live overlays to remote renderers over gRPC.
//
// The service is registered from a hand-written grpc.ServiceDesc and carries
// google.protobuf.Struct messages, so clients in any language can consume it
// with nothing more than the well-known types.
package visualiser

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/camspeed/internal/monitoring"
	"github.com/banshee-data/camspeed/internal/speed"
)

const (
	frameQueueSize  = 100
	clientQueueSize = 10
)

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:50061",
		MaxClients: 5,
	}
}

// Publisher owns the gRPC server and fans frames out to streaming clients.
// It implements pipeline.Sink.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	frameChan chan FrameUpdate
	clients   map[string]*clientStream
	clientsMu sync.RWMutex
	nextID    atomic.Uint64

	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64
	lastStatsTime time.Time
	lastFrames    uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id      string
	request StreamRequest
	frameCh chan FrameUpdate
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultConfig().MaxClients
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan FrameUpdate, frameQueueSize),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start binds the configured address and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.ListenAddr, err)
	}
	return p.StartOn(lis)
}

// StartOn serves on an existing listener in the background.
func (p *Publisher) StartOn(lis net.Listener) error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	NewServer(p).Register(p.server)
	p.running.Store(true)

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[gRPC] overlay stream listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Logf("[gRPC] server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop ends every stream and stops the server.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)

	p.server.GracefulStop()
	p.listener.Close()
	p.wg.Wait()
	monitoring.Logf("[gRPC] overlay stream stopped after %d frames (%d dropped)", p.frameCount.Load(), p.droppedFrames.Load())
}

// PublishOverlays queues a frame for every connected client. It never
// blocks: when the queue is full the frame is dropped and counted.
func (p *Publisher) PublishOverlays(frame int64, overlays []speed.Overlay) {
	if !p.running.Load() {
		return
	}
	select {
	case p.frameChan <- FrameUpdate{FrameIndex: frame, Overlays: overlays}:
		p.logPeriodicStats(p.frameCount.Add(1))
	default:
		dropped := p.droppedFrames.Add(1)
		monitoring.Logf("[gRPC] dropped frame %d (total dropped: %d), queue full", frame, dropped)
	}
}

// logPeriodicStats is only called from the pipeline goroutine.
func (p *Publisher) logPeriodicStats(frames uint64) {
	now := time.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime, p.lastFrames = now, frames
		return
	}
	elapsed := now.Sub(p.lastStatsTime)
	if elapsed < 5*time.Second {
		return
	}
	fps := float64(frames-p.lastFrames) / elapsed.Seconds()
	monitoring.Logf("[gRPC] stats: fps=%.1f dropped=%d clients=%d queue=%d/%d",
		fps, p.droppedFrames.Load(), p.clientCount.Load(), len(p.frameChan), frameQueueSize)
	p.lastStatsTime, p.lastFrames = now, frames
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.frameCh <- frame:
				default:
					// Slow client; it skips this frame.
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// addClient registers a stream, or returns nil when MaxClients is reached.
func (p *Publisher) addClient(req StreamRequest) *clientStream {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return nil
	}
	client := &clientStream{
		id:      fmt.Sprintf("grpc-%d", p.nextID.Add(1)),
		request: req,
		frameCh: make(chan FrameUpdate, clientQueueSize),
	}
	p.clients[client.id] = client
	p.clientCount.Add(1)
	monitoring.Logf("[gRPC] client connected: %s %q (total: %d)", client.id, req.ClientName, p.clientCount.Load())
	return client
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	delete(p.clients, id)
	p.clientsMu.Unlock()
	if ok {
		p.clientCount.Add(-1)
		monitoring.Logf("[gRPC] client disconnected: %s (remaining: %d)", id, p.clientCount.Load())
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64
	DroppedFrames uint64
	ClientCount   int32
	Running       bool
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}
