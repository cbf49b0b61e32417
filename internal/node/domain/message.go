package domain

import (
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
)

// Method identifies a request kind on the wire.
type Method uint8

const (
	MethodPing Method = iota + 1
	MethodStore
	MethodDelete
	MethodDeleteTag
	MethodFindNode
	MethodFindValue
)

func (m Method) String() string {
	switch m {
	case MethodPing:
		return "ping"
	case MethodStore:
		return "store"
	case MethodDelete:
		return "delete"
	case MethodDeleteTag:
		return "delete_tag"
	case MethodFindNode:
		return "find_node"
	case MethodFindValue:
		return "find_value"
	default:
		return "unknown"
	}
}

// Request is the closed set of RPCs a node answers.
type Request interface {
	Method() Method
	isRequest()
}

type PingRequest struct{}

type StoreRequest struct {
	Record Record
}

type DeleteRequest struct {
	Key routing.NodeID
}

type DeleteTagRequest struct {
	TagKey    routing.NodeID
	ContentID routing.NodeID
}

type FindNodeRequest struct {
	Target routing.NodeID
}

type FindValueRequest struct {
	Target routing.NodeID
}

func (PingRequest) Method() Method      { return MethodPing }
func (StoreRequest) Method() Method     { return MethodStore }
func (DeleteRequest) Method() Method    { return MethodDelete }
func (DeleteTagRequest) Method() Method { return MethodDeleteTag }
func (FindNodeRequest) Method() Method  { return MethodFindNode }
func (FindValueRequest) Method() Method { return MethodFindValue }

func (PingRequest) isRequest()      {}
func (StoreRequest) isRequest()     {}
func (DeleteRequest) isRequest()    {}
func (DeleteTagRequest) isRequest() {}
func (FindNodeRequest) isRequest()  {}
func (FindValueRequest) isRequest() {}

// ResponseKind identifies a response shape on the wire.
type ResponseKind uint8

const (
	ResponsePing ResponseKind = iota + 1
	ResponseAck
	ResponseNodes
	ResponseValue
)

// Response is the closed set of RPC results.
type Response interface {
	Kind() ResponseKind
	isResponse()
}

// PingResponse carries the responder's id.
type PingResponse struct {
	ID routing.NodeID
}

type AckResponse struct {
	OK bool
}

type NodesResponse struct {
	Contacts []routing.Contact
}

type ValueResponse struct {
	Value Value
}

func (PingResponse) Kind() ResponseKind  { return ResponsePing }
func (AckResponse) Kind() ResponseKind   { return ResponseAck }
func (NodesResponse) Kind() ResponseKind { return ResponseNodes }
func (ValueResponse) Kind() ResponseKind { return ResponseValue }

func (PingResponse) isResponse()  {}
func (AckResponse) isResponse()   {}
func (NodesResponse) isResponse() {}
func (ValueResponse) isResponse() {}
