package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/service/mocks"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// MockClock for deterministic testing
type MockClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

func newClock() *MockClock {
	return &MockClock{CurrentTime: time.Unix(1_700_000_000, 0)}
}

var peer = routing.Contact{ID: routing.NewNodeID("peer"), Addr: "peer:4000"}

func newMockedService(ctrl *gomock.Controller) (*NodeServiceImpl, *mocks.MockStorage, *mocks.MockTransport) {
	storage := mocks.NewMockStorage(ctrl)
	transport := mocks.NewMockTransport(ctrl)
	svc := NewNodeService(routing.NewNodeID("self"), storage, transport, Options{KSize: 4, Alpha: 2, Clock: newClock()})
	return svc, storage, transport
}

// meetPeer makes svc learn about peer through an inbound ping.
func meetPeer(t *testing.T, svc *NodeServiceImpl, storage *mocks.MockStorage) {
	t.Helper()
	storage.EXPECT().Iterate().Return(nil)
	resp := svc.HandleRequest(context.Background(), peer, domain.PingRequest{})
	require.Equal(t, domain.PingResponse{ID: svc.Self()}, resp)
}

func TestNodeService_SetRejectsInvalidValueBeforeNetwork(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No expectations: any storage or transport call fails the test.
	svc, _, _ := newMockedService(ctrl)

	err := svc.Set(context.Background(), []byte("key"), "", struct{}{}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidValueType)

	err = svc.Set(context.Background(), []byte("key"), "", []int{1, 2}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidValueType)
}

func TestNodeService_Get(t *testing.T) {
	key := []byte("key")
	dkey := routing.Digest(key)

	tests := []struct {
		name      string
		key       []byte
		hash      bool
		setup     func(storage *mocks.MockStorage)
		wantValue domain.Value
		wantErr   error
	}{
		{
			name: "LocalHit",
			key:  key,
			hash: true,
			setup: func(storage *mocks.MockStorage) {
				storage.EXPECT().Get(dkey).Return(domain.IntValue(7), true)
			},
			wantValue: domain.IntValue(7),
		},
		{
			name: "NoNeighbors",
			key:  key,
			hash: true,
			setup: func(storage *mocks.MockStorage) {
				storage.EXPECT().Get(dkey).Return(domain.Value{}, false)
			},
			wantErr: port.ErrNoNeighbors,
		},
		{
			name:    "RawKeyMustBeAnID",
			key:     []byte("short"),
			hash:    false,
			wantErr: domain.ErrInvalidKey,
		},
		{
			name: "RawKeyUsedAsIs",
			key:  dkey.Bytes(),
			hash: false,
			setup: func(storage *mocks.MockStorage) {
				storage.EXPECT().Get(dkey).Return(domain.TextValue("raw"), true)
			},
			wantValue: domain.TextValue("raw"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			svc, storage, _ := newMockedService(ctrl)
			if tt.setup != nil {
				tt.setup(storage)
			}

			v, err := svc.Get(context.Background(), tt.key, tt.hash)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, v)
		})
	}
}

func TestNodeService_HandleRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, storage, _ := newMockedService(ctrl)
	meetPeer(t, svc, storage)
	assert.False(t, svc.Table().IsNewNode(peer.ID))

	ctx := context.Background()
	target := routing.NewNodeID("target")

	// Known senders are not welcomed again, so storage sees only the request itself.
	storage.EXPECT().Get(target).Return(domain.TextValue("v"), true)
	assert.Equal(t, domain.ValueResponse{Value: domain.TextValue("v")}, svc.HandleRequest(ctx, peer, domain.FindValueRequest{Target: target}))

	storage.EXPECT().Get(target).Return(domain.Value{}, false)
	assert.Equal(t, domain.NodesResponse{}, svc.HandleRequest(ctx, peer, domain.FindValueRequest{Target: target}),
		"the asking peer is never returned to itself")

	rec := domain.Record{Key: target, Value: domain.IntValue(1)}
	storage.EXPECT().Put(rec).Return(nil)
	assert.Equal(t, domain.AckResponse{OK: true}, svc.HandleRequest(ctx, peer, domain.StoreRequest{Record: rec}))

	storage.EXPECT().Put(rec).Return(domain.ErrInvalidValueType)
	assert.Equal(t, domain.AckResponse{OK: false}, svc.HandleRequest(ctx, peer, domain.StoreRequest{Record: rec}))

	storage.EXPECT().Delete(target).Return(false)
	assert.Equal(t, domain.AckResponse{OK: true}, svc.HandleRequest(ctx, peer, domain.DeleteRequest{Key: target}))

	contentID := routing.NewNodeID("content")
	storage.EXPECT().DeleteTag(target, contentID).Return(true)
	assert.Equal(t, domain.AckResponse{OK: true}, svc.HandleRequest(ctx, peer, domain.DeleteTagRequest{TagKey: target, ContentID: contentID}))
}

func TestNodeService_WelcomeMigratesRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, storage, transport := newMockedService(ctrl)
	rec := domain.Record{Key: routing.NewNodeID("k"), AppKey: []byte("k"), Value: domain.IntValue(1)}

	migrated := make(chan domain.Request, 1)
	storage.EXPECT().Iterate().Return([]domain.Record{rec})
	transport.EXPECT().Call(gomock.Any(), peer.Addr, domain.StoreRequest{Record: rec}).
		DoAndReturn(func(ctx context.Context, addr string, req domain.Request) (domain.Response, error) {
			migrated <- req
			return domain.AckResponse{OK: true}, nil
		})

	svc.HandleRequest(context.Background(), peer, domain.PingRequest{})

	select {
	case req := <-migrated:
		assert.Equal(t, domain.StoreRequest{Record: rec}, req)
	case <-time.After(2 * time.Second):
		t.Fatal("record was not migrated to the new node")
	}
}

func TestNodeService_FailedCallRemovesContact(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, storage, transport := newMockedService(ctrl)
	meetPeer(t, svc, storage)

	dkey := routing.Digest([]byte("k"))
	storage.EXPECT().Delete(dkey).Return(true)
	transport.EXPECT().Call(gomock.Any(), peer.Addr, domain.FindNodeRequest{Target: dkey}).
		Return(nil, fmt.Errorf("%w: timed out", port.ErrPeerUnreachable))

	err := svc.Delete(context.Background(), []byte("k"), true)
	assert.ErrorIs(t, err, port.ErrNoAck)
	assert.Equal(t, 0, svc.Table().Size())
}

func TestNodeService_LocalCallFailureKeepsContact(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, storage, transport := newMockedService(ctrl)
	meetPeer(t, svc, storage)

	dkey := routing.Digest([]byte("k"))
	storage.EXPECT().Delete(dkey).Return(true)
	transport.EXPECT().Call(gomock.Any(), peer.Addr, domain.FindNodeRequest{Target: dkey}).
		Return(nil, errors.New("frame exceeds datagram size"))

	err := svc.Delete(context.Background(), []byte("k"), true)
	assert.ErrorIs(t, err, port.ErrNoAck)
	assert.Equal(t, 1, svc.Table().Size())
}

func TestNodeService_SetRejectsOversizedValueBeforeNetwork(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, storage, _ := newMockedService(ctrl)
	meetPeer(t, svc, storage)

	// No further expectations: the value never reaches storage or the network.
	err := svc.Set(context.Background(), []byte("big"), "", make([]byte, 70000), false)
	assert.ErrorIs(t, err, domain.ErrRecordTooLarge)
	assert.Equal(t, 1, svc.Table().Size())
}

func TestNodeService_Set(t *testing.T) {
	dkey := routing.Digest([]byte("k"))
	rec := domain.Record{Key: dkey, AppKey: []byte("k"), Name: "n", Value: domain.TextValue("v")}

	tests := []struct {
		name    string
		ack     domain.Response
		wantErr error
	}{
		{name: "Acknowledged", ack: domain.AckResponse{OK: true}},
		{name: "Refused", ack: domain.AckResponse{OK: false}, wantErr: port.ErrNoAck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			svc, storage, transport := newMockedService(ctrl)
			meetPeer(t, svc, storage)

			transport.EXPECT().Call(gomock.Any(), peer.Addr, domain.FindNodeRequest{Target: dkey}).
				Return(domain.NodesResponse{}, nil)
			// Stored locally only when this node is nearer than the peer.
			storage.EXPECT().Put(rec).Return(nil).MaxTimes(1)
			transport.EXPECT().Call(gomock.Any(), peer.Addr, domain.StoreRequest{Record: rec}).
				Return(tt.ack, nil)

			err := svc.Set(context.Background(), []byte("k"), "n", "v", false)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNodeService_SetWithoutNeighbors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, _ := newMockedService(ctrl)
	err := svc.Set(context.Background(), []byte("k"), "", 1, false)
	assert.ErrorIs(t, err, port.ErrNoNeighbors)
}

func TestNodeService_Bootstrap(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, storage, transport := newMockedService(ctrl)

	transport.EXPECT().LocalAddr().Return("self:4000").AnyTimes()
	transport.EXPECT().Call(gomock.Any(), peer.Addr, domain.PingRequest{}).
		Return(domain.PingResponse{ID: peer.ID}, nil)
	transport.EXPECT().Call(gomock.Any(), "down:4000", domain.PingRequest{}).
		Return(nil, errors.New("timed out"))
	storage.EXPECT().Iterate().Return(nil)
	transport.EXPECT().Call(gomock.Any(), peer.Addr, domain.FindNodeRequest{Target: svc.Self()}).
		Return(domain.NodesResponse{}, nil)

	found, err := svc.Bootstrap(context.Background(), []string{peer.Addr, "down:4000", "self:4000"})
	require.NoError(t, err)
	assert.Equal(t, []routing.Contact{peer}, found)
	assert.Equal(t, []string{peer.Addr}, svc.BootstrappableNeighbors())
}

func TestNodeService_BootstrapWithNoLiveSeed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, transport := newMockedService(ctrl)
	transport.EXPECT().LocalAddr().Return("self:4000").AnyTimes()
	transport.EXPECT().Call(gomock.Any(), "down:4000", domain.PingRequest{}).
		Return(nil, errors.New("timed out"))

	found, err := svc.Bootstrap(context.Background(), []string{"down:4000"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestNodeService_SaveState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, storage, _ := newMockedService(ctrl)
	store := mocks.NewMockStateStore(ctrl)

	// Nothing worth saving yet, so Save must not be called.
	require.NoError(t, svc.SaveState(context.Background(), store))

	meetPeer(t, svc, storage)
	store.EXPECT().Save(gomock.Any(), port.State{
		KSize:     4,
		Alpha:     2,
		ID:        svc.Self(),
		Neighbors: []string{peer.Addr},
	}).Return(nil)
	require.NoError(t, svc.SaveState(context.Background(), store))
}
