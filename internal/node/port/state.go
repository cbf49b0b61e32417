package port

import (
	"context"
	"errors"

	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
)

var ErrNoState = errors.New("no saved state")

//go:generate mockgen -destination=../service/mocks/state_mock.go -package=mocks -source=state.go

// State is the snapshot a node restarts from.
type State struct {
	KSize     int            `json:"ksize"`
	Alpha     int            `json:"alpha"`
	ID        routing.NodeID `json:"id"`
	Neighbors []string       `json:"neighbors"`
}

// StateStore persists node snapshots.
type StateStore interface {
	Save(ctx context.Context, state State) error
	Load(ctx context.Context) (State, error)
	Close() error
}
