package rpcudp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RequestsSurviveTheWire(t *testing.T) {
	key := routing.NewNodeID("key")
	requests := []domain.Request{
		domain.PingRequest{},
		domain.StoreRequest{Record: domain.Record{
			Key:    key,
			AppKey: []byte("music"),
			Name:   "song.mp3",
			Value:  domain.BytesValue([]byte("bytes")),
			Hashed: true,
		}},
		domain.StoreRequest{Record: domain.Record{
			Key:   key,
			Value: domain.ContentValue("a.txt", domain.TextValue("hello")),
		}},
		domain.DeleteRequest{Key: key},
		domain.DeleteTagRequest{TagKey: key, ContentID: routing.NewNodeID("content")},
		domain.FindNodeRequest{Target: key},
		domain.FindValueRequest{Target: key},
	}

	for _, req := range requests {
		t.Run(req.Method().String(), func(t *testing.T) {
			method, payload, err := encodeRequest(req)
			require.NoError(t, err)

			got, err := decodeRequest(method, payload)
			require.NoError(t, err)
			assert.Equal(t, req, got)
		})
	}
}

func TestCodec_ResponsesSurviveTheWire(t *testing.T) {
	responses := []domain.Response{
		domain.PingResponse{ID: routing.NewNodeID("peer")},
		domain.AckResponse{OK: true},
		domain.NodesResponse{Contacts: []routing.Contact{
			{ID: routing.NewNodeID("a"), Addr: "127.0.0.1:9001"},
			{ID: routing.NewNodeID("b"), Addr: "127.0.0.1:9002"},
		}},
		domain.ValueResponse{Value: domain.IntValue(-42)},
		domain.ValueResponse{Value: domain.FloatValue(3.25)},
		domain.ValueResponse{Value: domain.BoolValue(true)},
		domain.ValueResponse{Value: domain.SetValue("x", "y")},
	}

	for _, resp := range responses {
		kind, payload, err := encodeResponse(resp)
		require.NoError(t, err)

		got, err := decodeResponse(kind, payload)
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	}
}

func TestCodec_FrameChecksum(t *testing.T) {
	packet, err := encodeFrame(frame{
		kind:    frameRequest,
		id:      uuid.New(),
		code:    uint64(domain.MethodPing),
		sender:  routing.NewNodeID("self"),
		payload: nil,
	})
	require.NoError(t, err)

	_, err = decodeFrame(packet)
	require.NoError(t, err)

	corrupted := append([]byte(nil), packet...)
	corrupted[3] ^= 0xFF
	_, err = decodeFrame(corrupted)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = decodeFrame([]byte{0, 1})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestCodec_RejectsOversizedFrame(t *testing.T) {
	_, err := encodeFrame(frame{kind: frameResponse, payload: make([]byte, MaxDatagramSize)})
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestCodec_RejectsUnknownValueKind(t *testing.T) {
	_, err := appendValue(nil, domain.Value{})
	assert.ErrorIs(t, err, domain.ErrInvalidValueType)
}

// handlerFunc adapts a function to port.RequestHandler.
type handlerFunc func(ctx context.Context, from routing.Contact, req domain.Request) domain.Response

func (f handlerFunc) HandleRequest(ctx context.Context, from routing.Contact, req domain.Request) domain.Response {
	return f(ctx, from, req)
}

func newTestTransport(t *testing.T, name string, timeout time.Duration, handler handlerFunc) *Transport {
	t.Helper()
	tr, err := Listen("127.0.0.1:0", routing.NewNodeID(name), Config{CallTimeout: timeout, HandlerWorkers: 4})
	require.NoError(t, err)
	if handler != nil {
		tr.Start(handler)
	} else {
		tr.Start(nil)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTransport_PingRoundTrip(t *testing.T) {
	var (
		mu   sync.Mutex
		seen routing.Contact
	)
	server := newTestTransport(t, "server", time.Second, func(ctx context.Context, from routing.Contact, req domain.Request) domain.Response {
		mu.Lock()
		seen = from
		mu.Unlock()
		return domain.PingResponse{ID: routing.NewNodeID("server")}
	})
	client := newTestTransport(t, "client", time.Second, nil)

	resp, err := client.Call(context.Background(), server.LocalAddr(), domain.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.PingResponse{ID: routing.NewNodeID("server")}, resp)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, routing.NewNodeID("client"), seen.ID)
	assert.Equal(t, client.LocalAddr(), seen.Addr)
}

func TestTransport_ConcurrentCallsAreCorrelated(t *testing.T) {
	server := newTestTransport(t, "server", time.Second, func(ctx context.Context, from routing.Contact, req domain.Request) domain.Response {
		find := req.(domain.FindNodeRequest)
		return domain.NodesResponse{Contacts: []routing.Contact{{ID: find.Target, Addr: "echo:1"}}}
	})
	client := newTestTransport(t, "client", 2*time.Second, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		target := routing.NewNodeID(string(rune('a' + i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Call(context.Background(), server.LocalAddr(), domain.FindNodeRequest{Target: target})
			if err != nil {
				errs <- err
				return
			}
			nodes := resp.(domain.NodesResponse)
			if len(nodes.Contacts) != 1 || nodes.Contacts[0].ID != target {
				errs <- errors.New("response matched to the wrong call")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("call failed: %v", err)
	}
}

func TestTransport_TimeoutWhenPeerIsSilent(t *testing.T) {
	server := newTestTransport(t, "server", time.Second, func(ctx context.Context, from routing.Contact, req domain.Request) domain.Response {
		return nil
	})
	client := newTestTransport(t, "client", 100*time.Millisecond, nil)

	start := time.Now()
	_, err := client.Call(context.Background(), server.LocalAddr(), domain.PingRequest{})
	assert.ErrorIs(t, err, ErrCallTimeout)
	assert.ErrorIs(t, err, port.ErrPeerUnreachable)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Empty(t, client.pending, "timed out call must be forgotten")
}

func TestTransport_ContextCancellation(t *testing.T) {
	server := newTestTransport(t, "server", time.Second, func(ctx context.Context, from routing.Contact, req domain.Request) domain.Response {
		return nil
	})
	client := newTestTransport(t, "client", 5*time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, server.LocalAddr(), domain.PingRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_IgnoresUnknownResponsesAndGarbage(t *testing.T) {
	client := newTestTransport(t, "client", time.Second, nil)

	conn, err := net.Dial("udp", client.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	// Garbage and a well-formed response nobody asked for.
	_, err = conn.Write([]byte("not a frame"))
	require.NoError(t, err)
	kind, payload, err := encodeResponse(domain.AckResponse{OK: true})
	require.NoError(t, err)
	packet, err := encodeFrame(frame{kind: frameResponse, id: uuid.New(), code: uint64(kind), sender: routing.NewNodeID("x"), payload: payload})
	require.NoError(t, err)
	_, err = conn.Write(packet)
	require.NoError(t, err)

	// The transport keeps serving afterwards.
	server := newTestTransport(t, "server", time.Second, func(ctx context.Context, from routing.Contact, req domain.Request) domain.Response {
		return domain.AckResponse{OK: true}
	})
	resp, err := client.Call(context.Background(), server.LocalAddr(), domain.DeleteRequest{Key: routing.NewNodeID("k")})
	require.NoError(t, err)
	assert.Equal(t, domain.AckResponse{OK: true}, resp)
}

func TestTransport_CallAfterClose(t *testing.T) {
	client := newTestTransport(t, "client", time.Second, nil)
	require.NoError(t, client.Close())

	_, err := client.Call(context.Background(), "127.0.0.1:1", domain.PingRequest{})
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestTransport_OversizedRequestIsALocalFailure(t *testing.T) {
	server := newTestTransport(t, "server", time.Second, func(ctx context.Context, from routing.Contact, req domain.Request) domain.Response {
		return domain.AckResponse{OK: true}
	})
	client := newTestTransport(t, "client", time.Second, nil)

	big := domain.Record{Key: routing.NewNodeID("big"), Value: domain.BytesValue(make([]byte, 70000))}
	_, err := client.Call(context.Background(), server.LocalAddr(), domain.StoreRequest{Record: big})
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.NotErrorIs(t, err, port.ErrPeerUnreachable)
}
