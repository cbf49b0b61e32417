package rpcudp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxDatagramSize is the largest payload a single UDP datagram can carry.
const MaxDatagramSize = 65507

const checksumSize = 4

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrFrameTooLarge  = errors.New("frame exceeds datagram size")
)

type frameKind byte

const (
	frameRequest  frameKind = 0
	frameResponse frameKind = 1
)

// Frame header fields.
const (
	fieldCallID  protowire.Number = 1
	fieldCode    protowire.Number = 2
	fieldSender  protowire.Number = 3
	fieldPayload protowire.Number = 4
)

// frame is one datagram: kind byte, protowire header and payload, murmur3 trailer.
type frame struct {
	kind    frameKind
	id      uuid.UUID
	code    uint64
	sender  routing.NodeID
	payload []byte
}

func encodeFrame(f frame) ([]byte, error) {
	b := make([]byte, 0, 64+len(f.payload))
	b = append(b, byte(f.kind))
	b = protowire.AppendTag(b, fieldCallID, protowire.BytesType)
	b = protowire.AppendBytes(b, f.id[:])
	b = protowire.AppendTag(b, fieldCode, protowire.VarintType)
	b = protowire.AppendVarint(b, f.code)
	b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
	b = protowire.AppendBytes(b, f.sender[:])
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, f.payload)
	b = binary.BigEndian.AppendUint32(b, murmur3.Sum32(b))

	if len(b) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(b))
	}
	return b, nil
}

func decodeFrame(b []byte) (frame, error) {
	var f frame
	if len(b) < 1+checksumSize {
		return f, fmt.Errorf("%w: short datagram", ErrMalformedFrame)
	}
	body, trailer := b[:len(b)-checksumSize], b[len(b)-checksumSize:]
	if murmur3.Sum32(body) != binary.BigEndian.Uint32(trailer) {
		return f, fmt.Errorf("%w: checksum mismatch", ErrMalformedFrame)
	}

	f.kind = frameKind(body[0])
	if f.kind != frameRequest && f.kind != frameResponse {
		return f, fmt.Errorf("%w: unknown frame kind %d", ErrMalformedFrame, body[0])
	}

	var hasID, hasSender bool
	r := fieldReader{b: body[1:]}
	for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
		switch num {
		case fieldCallID:
			id, err := uuid.FromBytes(r.bytes(typ))
			if err != nil && r.err == nil {
				r.err = fmt.Errorf("%w: %v", ErrMalformedFrame, err)
			}
			f.id = id
			hasID = true
		case fieldCode:
			f.code = r.varint(typ)
		case fieldSender:
			f.sender = r.nodeID(typ)
			hasSender = true
		case fieldPayload:
			f.payload = r.bytes(typ)
		default:
			r.skip(num, typ)
		}
	}
	if r.err != nil {
		return f, r.err
	}
	if !hasID || !hasSender {
		return f, fmt.Errorf("%w: missing header", ErrMalformedFrame)
	}
	return f, nil
}

// Payload fields shared by requests and responses.
const (
	fieldKey       protowire.Number = 1
	fieldAppKey    protowire.Number = 2
	fieldName      protowire.Number = 3
	fieldValue     protowire.Number = 4
	fieldHashed    protowire.Number = 5
	fieldContentID protowire.Number = 2
	fieldOK        protowire.Number = 1
	fieldContact   protowire.Number = 1
	fieldAddr      protowire.Number = 2
)

func encodeRequest(req domain.Request) (domain.Method, []byte, error) {
	var b []byte
	switch r := req.(type) {
	case domain.PingRequest:
	case domain.StoreRequest:
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Record.Key[:])
		b = protowire.AppendTag(b, fieldAppKey, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Record.AppKey)
		b = protowire.AppendTag(b, fieldName, protowire.BytesType)
		b = protowire.AppendString(b, r.Record.Name)
		value, err := appendValue(nil, r.Record.Value)
		if err != nil {
			return 0, nil, err
		}
		b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, value)
		b = protowire.AppendTag(b, fieldHashed, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(r.Record.Hashed))
	case domain.DeleteRequest:
		b = appendNodeID(b, fieldKey, r.Key)
	case domain.DeleteTagRequest:
		b = appendNodeID(b, fieldKey, r.TagKey)
		b = appendNodeID(b, fieldContentID, r.ContentID)
	case domain.FindNodeRequest:
		b = appendNodeID(b, fieldKey, r.Target)
	case domain.FindValueRequest:
		b = appendNodeID(b, fieldKey, r.Target)
	default:
		return 0, nil, fmt.Errorf("unsupported request %T", req)
	}
	return req.Method(), b, nil
}

func decodeRequest(method domain.Method, b []byte) (domain.Request, error) {
	r := fieldReader{b: b}
	var req domain.Request

	switch method {
	case domain.MethodPing:
		req = domain.PingRequest{}
		for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
			r.skip(num, typ)
		}
	case domain.MethodStore:
		var rec domain.Record
		for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
			switch num {
			case fieldKey:
				rec.Key = r.nodeID(typ)
			case fieldAppKey:
				rec.AppKey = cloneBytes(r.bytes(typ))
			case fieldName:
				rec.Name = string(r.bytes(typ))
			case fieldValue:
				v, err := consumeValue(r.bytes(typ))
				if err != nil && r.err == nil {
					r.err = err
				}
				rec.Value = v
			case fieldHashed:
				rec.Hashed = protowire.DecodeBool(r.varint(typ))
			default:
				r.skip(num, typ)
			}
		}
		req = domain.StoreRequest{Record: rec}
	case domain.MethodDelete:
		var d domain.DeleteRequest
		for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
			if num == fieldKey {
				d.Key = r.nodeID(typ)
				continue
			}
			r.skip(num, typ)
		}
		req = d
	case domain.MethodDeleteTag:
		var d domain.DeleteTagRequest
		for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
			switch num {
			case fieldKey:
				d.TagKey = r.nodeID(typ)
			case fieldContentID:
				d.ContentID = r.nodeID(typ)
			default:
				r.skip(num, typ)
			}
		}
		req = d
	case domain.MethodFindNode, domain.MethodFindValue:
		var target routing.NodeID
		for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
			if num == fieldKey {
				target = r.nodeID(typ)
				continue
			}
			r.skip(num, typ)
		}
		if method == domain.MethodFindNode {
			req = domain.FindNodeRequest{Target: target}
		} else {
			req = domain.FindValueRequest{Target: target}
		}
	default:
		return nil, fmt.Errorf("%w: unknown method %d", ErrMalformedFrame, method)
	}

	if r.err != nil {
		return nil, r.err
	}
	return req, nil
}

func encodeResponse(resp domain.Response) (domain.ResponseKind, []byte, error) {
	var b []byte
	switch r := resp.(type) {
	case domain.PingResponse:
		b = appendNodeID(b, fieldKey, r.ID)
	case domain.AckResponse:
		b = protowire.AppendTag(b, fieldOK, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(r.OK))
	case domain.NodesResponse:
		for _, c := range r.Contacts {
			var cb []byte
			cb = appendNodeID(cb, fieldKey, c.ID)
			cb = protowire.AppendTag(cb, fieldAddr, protowire.BytesType)
			cb = protowire.AppendString(cb, c.Addr)
			b = protowire.AppendTag(b, fieldContact, protowire.BytesType)
			b = protowire.AppendBytes(b, cb)
		}
	case domain.ValueResponse:
		value, err := appendValue(nil, r.Value)
		if err != nil {
			return 0, nil, err
		}
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendBytes(b, value)
	default:
		return 0, nil, fmt.Errorf("unsupported response %T", resp)
	}
	return resp.Kind(), b, nil
}

func decodeResponse(kind domain.ResponseKind, b []byte) (domain.Response, error) {
	r := fieldReader{b: b}
	var resp domain.Response

	switch kind {
	case domain.ResponsePing:
		var p domain.PingResponse
		for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
			if num == fieldKey {
				p.ID = r.nodeID(typ)
				continue
			}
			r.skip(num, typ)
		}
		resp = p
	case domain.ResponseAck:
		var a domain.AckResponse
		for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
			if num == fieldOK {
				a.OK = protowire.DecodeBool(r.varint(typ))
				continue
			}
			r.skip(num, typ)
		}
		resp = a
	case domain.ResponseNodes:
		var n domain.NodesResponse
		for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
			if num != fieldContact {
				r.skip(num, typ)
				continue
			}
			c, err := consumeContact(r.bytes(typ))
			if err != nil && r.err == nil {
				r.err = err
			}
			n.Contacts = append(n.Contacts, c)
		}
		resp = n
	case domain.ResponseValue:
		var v domain.ValueResponse
		for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
			if num != fieldKey {
				r.skip(num, typ)
				continue
			}
			value, err := consumeValue(r.bytes(typ))
			if err != nil && r.err == nil {
				r.err = err
			}
			v.Value = value
		}
		resp = v
	default:
		return nil, fmt.Errorf("%w: unknown response kind %d", ErrMalformedFrame, kind)
	}

	if r.err != nil {
		return nil, r.err
	}
	return resp, nil
}

func consumeContact(b []byte) (routing.Contact, error) {
	var c routing.Contact
	r := fieldReader{b: b}
	for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
		switch num {
		case fieldKey:
			c.ID = r.nodeID(typ)
		case fieldAddr:
			c.Addr = string(r.bytes(typ))
		default:
			r.skip(num, typ)
		}
	}
	return c, r.err
}

// Value fields.
const (
	fieldValueKind    protowire.Number = 1
	fieldValueInt     protowire.Number = 2
	fieldValueFloat   protowire.Number = 3
	fieldValueBool    protowire.Number = 4
	fieldValueText    protowire.Number = 5
	fieldValueBytes   protowire.Number = 6
	fieldValueMember  protowire.Number = 7
	fieldValueName    protowire.Number = 8
	fieldValueContent protowire.Number = 9
)

func appendValue(b []byte, v domain.Value) ([]byte, error) {
	b = protowire.AppendTag(b, fieldValueKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Kind))

	switch v.Kind {
	case domain.KindInt:
		b = protowire.AppendTag(b, fieldValueInt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.Int))
	case domain.KindFloat:
		b = protowire.AppendTag(b, fieldValueFloat, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.Float))
	case domain.KindBool:
		b = protowire.AppendTag(b, fieldValueBool, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(v.Bool))
	case domain.KindText:
		b = protowire.AppendTag(b, fieldValueText, protowire.BytesType)
		b = protowire.AppendString(b, v.Text)
	case domain.KindBytes:
		b = protowire.AppendTag(b, fieldValueBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, v.Bytes)
	case domain.KindSet:
		for _, m := range v.Members {
			b = protowire.AppendTag(b, fieldValueMember, protowire.BytesType)
			b = protowire.AppendString(b, m)
		}
	case domain.KindContent:
		if v.Content == nil {
			return nil, fmt.Errorf("%w: content value without content", domain.ErrInvalidValueType)
		}
		if v.Content.Data.Kind == domain.KindContent {
			return nil, fmt.Errorf("%w: nested content", domain.ErrInvalidValueType)
		}
		inner, err := appendValue(nil, v.Content.Data)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldValueName, protowire.BytesType)
		b = protowire.AppendString(b, v.Content.Name)
		b = protowire.AppendTag(b, fieldValueContent, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	default:
		return nil, fmt.Errorf("%w: kind %d", domain.ErrInvalidValueType, v.Kind)
	}
	return b, nil
}

func consumeValue(b []byte) (domain.Value, error) {
	var (
		v       domain.Value
		name    string
		inner   []byte
		members []string
	)
	r := fieldReader{b: b}
	for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
		switch num {
		case fieldValueKind:
			v.Kind = domain.Kind(r.varint(typ))
		case fieldValueInt:
			v.Int = protowire.DecodeZigZag(r.varint(typ))
		case fieldValueFloat:
			v.Float = math.Float64frombits(r.fixed64(typ))
		case fieldValueBool:
			v.Bool = protowire.DecodeBool(r.varint(typ))
		case fieldValueText:
			v.Text = string(r.bytes(typ))
		case fieldValueBytes:
			v.Bytes = cloneBytes(r.bytes(typ))
		case fieldValueMember:
			members = append(members, string(r.bytes(typ)))
		case fieldValueName:
			name = string(r.bytes(typ))
		case fieldValueContent:
			inner = r.bytes(typ)
		default:
			r.skip(num, typ)
		}
	}
	if r.err != nil {
		return domain.Value{}, r.err
	}

	switch v.Kind {
	case domain.KindInt, domain.KindFloat, domain.KindBool, domain.KindText, domain.KindBytes:
		return v, nil
	case domain.KindSet:
		return domain.SetValue(members...), nil
	case domain.KindContent:
		if inner == nil {
			return domain.Value{}, fmt.Errorf("%w: content without data", ErrMalformedFrame)
		}
		data, err := consumeValue(inner)
		if err != nil {
			return domain.Value{}, err
		}
		if data.Kind == domain.KindContent {
			return domain.Value{}, fmt.Errorf("%w: nested content", ErrMalformedFrame)
		}
		return domain.ContentValue(name, data), nil
	default:
		return domain.Value{}, fmt.Errorf("%w: unknown value kind %d", ErrMalformedFrame, v.Kind)
	}
}

func appendNodeID(b []byte, num protowire.Number, id routing.NodeID) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, id[:])
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// fieldReader walks protowire fields and records the first decode error.
type fieldReader struct {
	b   []byte
	err error
}

func (r *fieldReader) next() (protowire.Number, protowire.Type, bool) {
	if r.err != nil || len(r.b) == 0 {
		return 0, 0, false
	}
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		r.fail(protowire.ParseError(n))
		return 0, 0, false
	}
	r.b = r.b[n:]
	return num, typ, true
}

func (r *fieldReader) bytes(typ protowire.Type) []byte {
	if !r.expect(typ, protowire.BytesType) {
		return nil
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		r.fail(protowire.ParseError(n))
		return nil
	}
	r.b = r.b[n:]
	if v == nil {
		v = []byte{}
	}
	return v
}

func (r *fieldReader) varint(typ protowire.Type) uint64 {
	if !r.expect(typ, protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		r.fail(protowire.ParseError(n))
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *fieldReader) fixed64(typ protowire.Type) uint64 {
	if !r.expect(typ, protowire.Fixed64Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed64(r.b)
	if n < 0 {
		r.fail(protowire.ParseError(n))
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *fieldReader) nodeID(typ protowire.Type) routing.NodeID {
	raw := r.bytes(typ)
	if r.err != nil {
		return routing.NodeID{}
	}
	id, err := routing.NodeIDFromBytes(raw)
	if err != nil {
		r.fail(err)
	}
	return id
}

func (r *fieldReader) skip(num protowire.Number, typ protowire.Type) {
	n := protowire.ConsumeFieldValue(num, typ, r.b)
	if n < 0 {
		r.fail(protowire.ParseError(n))
		return
	}
	r.b = r.b[n:]
}

func (r *fieldReader) expect(got, want protowire.Type) bool {
	if r.err != nil {
		return false
	}
	if got != want {
		r.fail(fmt.Errorf("wire type %d, want %d", got, want))
		return false
	}
	return true
}

func (r *fieldReader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
}
