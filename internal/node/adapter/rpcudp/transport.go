package rpcudp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/resilience"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/google/uuid"
)

const (
	DefaultCallTimeout    = 5 * time.Second
	DefaultHandlerWorkers = 16
	defaultQueueFactor    = 4
)

var (
	ErrCallTimeout     = fmt.Errorf("%w: rpc call timed out", port.ErrPeerUnreachable)
	ErrTransportClosed = errors.New("transport is closed")
)

type Config struct {
	CallTimeout    time.Duration
	HandlerWorkers int
	// Rand feeds correlation ids. Defaults to crypto/rand.
	Rand io.Reader
}

// Transport is a datagram RPC endpoint: one request and one response per UDP packet,
// matched by a random correlation id.
type Transport struct {
	conn    *net.UDPConn
	self    routing.NodeID
	timeout time.Duration
	rand    io.Reader
	randMu  sync.Mutex

	handler port.RequestHandler
	pool    *resilience.WorkerPool

	mu      sync.Mutex
	pending map[uuid.UUID]chan domain.Response

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Ensure Transport implements port.Transport.
var _ port.Transport = (*Transport)(nil)

// Listen binds a UDP socket on addr. Inbound requests are not served until Start.
func Listen(addr string, self routing.NodeID, cfg Config) (*Transport, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.HandlerWorkers <= 0 {
		cfg.HandlerWorkers = DefaultHandlerWorkers
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &Transport{
		conn:    conn,
		self:    self,
		timeout: cfg.CallTimeout,
		rand:    cfg.Rand,
		pool:    resilience.NewWorkerPool(cfg.HandlerWorkers, cfg.HandlerWorkers*defaultQueueFactor),
		pending: make(map[uuid.UUID]chan domain.Response),
		done:    make(chan struct{}),
	}, nil
}

// Start begins reading datagrams, dispatching requests to handler.
func (t *Transport) Start(handler port.RequestHandler) {
	t.handler = handler
	t.wg.Add(1)
	go t.readLoop()
}

func (t *Transport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// Call sends req to addr and waits for its response, the call timeout or ctx.
func (t *Transport) Call(ctx context.Context, addr string, req domain.Request) (domain.Response, error) {
	select {
	case <-t.done:
		return nil, ErrTransportClosed
	default:
	}

	method, payload, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	id, err := t.newCallID()
	if err != nil {
		return nil, err
	}
	packet, err := encodeFrame(frame{kind: frameRequest, id: id, code: uint64(method), sender: t.self, payload: payload})
	if err != nil {
		return nil, err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve %s: %w", port.ErrPeerUnreachable, addr, err)
	}

	ch := make(chan domain.Response, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	defer t.forget(id)

	if _, err := t.conn.WriteToUDP(packet, udpAddr); err != nil {
		return nil, fmt.Errorf("%w: failed to send %s to %s: %w", port.ErrPeerUnreachable, method, addr, err)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		logger.Debugw("RPC call timed out", "method", method.String(), "addr", addr, "call_id", id.String())
		return nil, fmt.Errorf("%w: %s to %s", ErrCallTimeout, method, addr)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrTransportClosed
	}
}

// Close stops the read loop, the handler pool and fails pending calls.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
		t.wg.Wait()
		t.pool.Close()
		t.pool.Wait()
	})
	return err
}

func (t *Transport) newCallID() (uuid.UUID, error) {
	t.randMu.Lock()
	defer t.randMu.Unlock()
	id, err := uuid.NewRandomFromReader(t.rand)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("failed to generate call id: %w", err)
	}
	return id, nil
}

func (t *Transport) forget(id uuid.UUID) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *Transport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, src, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warnw("UDP read failed", "error", err.Error())
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])

		f, err := decodeFrame(packet)
		if err != nil {
			logger.Debugw("Dropping malformed datagram", "from", src.String(), "error", err.Error())
			continue
		}

		switch f.kind {
		case frameRequest:
			t.dispatchRequest(f, src)
		case frameResponse:
			t.acceptResponse(f, src)
		}
	}
}

func (t *Transport) dispatchRequest(f frame, src *net.UDPAddr) {
	method := domain.Method(f.code)
	req, err := decodeRequest(method, f.payload)
	if err != nil {
		logger.Debugw("Dropping undecodable request", "from", src.String(), "method", method.String(), "error", err.Error())
		return
	}
	if t.handler == nil {
		return
	}

	from := routing.Contact{ID: f.sender, Addr: src.String()}
	job := func() {
		resp := t.handler.HandleRequest(context.Background(), from, req)
		if resp == nil {
			return
		}
		kind, payload, err := encodeResponse(resp)
		if err != nil {
			logger.Warnw("Failed to encode response", "method", method.String(), "error", err.Error())
			return
		}
		packet, err := encodeFrame(frame{kind: frameResponse, id: f.id, code: uint64(kind), sender: t.self, payload: payload})
		if err != nil {
			logger.Warnw("Failed to frame response", "method", method.String(), "error", err.Error())
			return
		}
		if _, err := t.conn.WriteToUDP(packet, src); err != nil {
			logger.Debugw("Failed to send response", "to", src.String(), "error", err.Error())
		}
	}

	if err := t.pool.TrySubmit(job); err != nil {
		logger.Warnw("Dropping request, handler pool unavailable", "from", src.String(), "method", method.String(), "error", err.Error())
	}
}

// acceptResponse hands a response to its waiting call exactly once. Responses for
// unknown, expired or already answered ids are dropped.
func (t *Transport) acceptResponse(f frame, src *net.UDPAddr) {
	t.mu.Lock()
	ch, ok := t.pending[f.id]
	if ok {
		delete(t.pending, f.id)
	}
	t.mu.Unlock()

	if !ok {
		logger.Debugw("Dropping response for unknown call", "from", src.String(), "call_id", f.id.String())
		return
	}

	resp, err := decodeResponse(domain.ResponseKind(f.code), f.payload)
	if err != nil {
		logger.Debugw("Dropping undecodable response", "from", src.String(), "error", err.Error())
		return
	}
	ch <- resp
}
