package port

import (
	"context"
	"errors"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
)

// ErrPeerUnreachable marks call failures caused by the peer not answering, as
// opposed to local failures such as an oversized request.
var ErrPeerUnreachable = errors.New("peer unreachable")

//go:generate mockgen -destination=../service/mocks/transport_mock.go -package=mocks -source=transport.go

// Transport issues RPCs to peers. Any error means the call did not succeed.
type Transport interface {
	// Call sends req to addr and waits for the matching response or the call timeout.
	// Errors wrap ErrPeerUnreachable when the peer did not answer.
	Call(ctx context.Context, addr string, req domain.Request) (domain.Response, error)

	// LocalAddr returns the address peers reach this node on.
	LocalAddr() string
}

// RequestHandler answers inbound RPCs.
type RequestHandler interface {
	HandleRequest(ctx context.Context, from routing.Contact, req domain.Request) domain.Response
}
