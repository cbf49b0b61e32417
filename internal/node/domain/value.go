package domain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
)

var (
	ErrInvalidValueType = errors.New("value must be of type int, float, bool, string, bytes or set")
	ErrInvalidKey       = errors.New("key must be a 20 byte id when hash is disabled")
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindBool
	KindText
	KindBytes
	KindSet
	KindContent
)

var kindNames = map[Kind]string{
	KindInt:     "int",
	KindFloat:   "float",
	KindBool:    "bool",
	KindText:    "text",
	KindBytes:   "bytes",
	KindSet:     "set",
	KindContent: "content",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("%w: unknown kind %q", ErrInvalidValueType, name)
}

// Set is a set of content ids, hex encoded.
type Set []string

// Content is a stored blob together with its display name.
type Content struct {
	Name string
	Data Value
}

// Value is the tagged union of everything the DHT can store.
type Value struct {
	Kind    Kind
	Int     int64
	Float   float64
	Bool    bool
	Text    string
	Bytes   []byte
	Members []string
	Content *Content
}

func IntValue(v int64) Value     { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func BoolValue(v bool) Value     { return Value{Kind: KindBool, Bool: v} }
func TextValue(v string) Value   { return Value{Kind: KindText, Text: v} }
func BytesValue(v []byte) Value  { return Value{Kind: KindBytes, Bytes: v} }

// SetValue returns a set value with members sorted and deduplicated.
func SetValue(members ...string) Value {
	return Value{Kind: KindSet, Members: normalizeMembers(members)}
}

// ContentValue wraps data under a display name.
func ContentValue(name string, data Value) Value {
	return Value{Kind: KindContent, Content: &Content{Name: name, Data: data}}
}

// NewValue converts a native Go value into a Value, rejecting types outside the allow-list.
func NewValue(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		if x.Kind == KindInvalid {
			return Value{}, ErrInvalidValueType
		}
		return x, nil
	case int:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint8:
		return IntValue(int64(x)), nil
	case uint16:
		return IntValue(int64(x)), nil
	case uint32:
		return IntValue(int64(x)), nil
	case float32:
		return FloatValue(float64(x)), nil
	case float64:
		return FloatValue(x), nil
	case bool:
		return BoolValue(x), nil
	case string:
		return TextValue(x), nil
	case []byte:
		return BytesValue(x), nil
	case Set:
		return SetValue(x...), nil
	default:
		return Value{}, fmt.Errorf("%w: got %T", ErrInvalidValueType, v)
	}
}

// CanonicalBytes is the byte form a value is digested from.
func (v Value) CanonicalBytes() []byte {
	switch v.Kind {
	case KindBytes:
		return v.Bytes
	case KindText:
		return []byte(v.Text)
	case KindInt:
		return []byte(strconv.FormatInt(v.Int, 10))
	case KindFloat:
		return []byte(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case KindBool:
		if v.Bool {
			return []byte("True")
		}
		return []byte("False")
	case KindSet:
		var buf bytes.Buffer
		for i, m := range v.Members {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(m)
		}
		return buf.Bytes()
	case KindContent:
		return v.Content.Data.CanonicalBytes()
	default:
		return nil
	}
}

// Size approximates the number of bytes v takes on the wire.
func (v Value) Size() int {
	switch v.Kind {
	case KindSet:
		n := 0
		for _, m := range v.Members {
			n += len(m) + 4
		}
		return n
	case KindContent:
		return len(v.Content.Name) + v.Content.Data.Size() + 8
	default:
		return len(v.CanonicalBytes()) + 2
	}
}

// ContentID is the id a value is stored under when used as content.
func (v Value) ContentID() routing.NodeID {
	return routing.Digest(v.CanonicalBytes())
}

// AsContentID interprets a text (hex) or bytes value as a content id.
func (v Value) AsContentID() (routing.NodeID, error) {
	switch v.Kind {
	case KindText:
		return routing.ParseNodeID(v.Text)
	case KindBytes:
		return routing.NodeIDFromBytes(v.Bytes)
	default:
		return routing.NodeID{}, fmt.Errorf("%w: %s is not a content id", ErrInvalidValueType, v.Kind)
	}
}

// Has reports whether a set value contains member.
func (v Value) Has(member string) bool {
	i := sort.SearchStrings(v.Members, member)
	return i < len(v.Members) && v.Members[i] == member
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindText:
		return v.Text
	case KindBytes:
		return hex.EncodeToString(v.Bytes)
	case KindSet:
		return fmt.Sprintf("%v", v.Members)
	case KindContent:
		return fmt.Sprintf("%s(%s)", v.Content.Name, v.Content.Data.String())
	default:
		return "<invalid>"
	}
}

type jsonValue struct {
	Kind    string          `json:"kind"`
	Value   json.RawMessage `json:"value,omitempty"`
	Name    string          `json:"name,omitempty"`
	Content *jsonValue      `json:"content,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	out, err := v.toJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (v Value) toJSON() (*jsonValue, error) {
	out := &jsonValue{Kind: v.Kind.String()}
	var raw any
	switch v.Kind {
	case KindInt:
		raw = v.Int
	case KindFloat:
		raw = v.Float
	case KindBool:
		raw = v.Bool
	case KindText:
		raw = v.Text
	case KindBytes:
		raw = v.Bytes
	case KindSet:
		raw = v.Members
	case KindContent:
		inner, err := v.Content.Data.toJSON()
		if err != nil {
			return nil, err
		}
		out.Name = v.Content.Name
		out.Content = inner
		return out, nil
	default:
		return nil, ErrInvalidValueType
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	out.Value = data
	return out, nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var in jsonValue
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	parsed, err := in.toValue()
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (in *jsonValue) toValue() (Value, error) {
	kind, err := ParseKind(in.Kind)
	if err != nil {
		return Value{}, err
	}

	if kind == KindContent {
		if in.Content == nil {
			return Value{}, fmt.Errorf("%w: content without data", ErrInvalidValueType)
		}
		data, err := in.Content.toValue()
		if err != nil {
			return Value{}, err
		}
		return ContentValue(in.Name, data), nil
	}

	if len(in.Value) == 0 {
		return Value{}, fmt.Errorf("%w: missing value", ErrInvalidValueType)
	}

	var decodeErr error
	v := Value{Kind: kind}
	switch kind {
	case KindInt:
		decodeErr = json.Unmarshal(in.Value, &v.Int)
	case KindFloat:
		decodeErr = json.Unmarshal(in.Value, &v.Float)
	case KindBool:
		decodeErr = json.Unmarshal(in.Value, &v.Bool)
	case KindText:
		decodeErr = json.Unmarshal(in.Value, &v.Text)
	case KindBytes:
		decodeErr = json.Unmarshal(in.Value, &v.Bytes)
	case KindSet:
		var members []string
		decodeErr = json.Unmarshal(in.Value, &members)
		v.Members = normalizeMembers(members)
	}
	if decodeErr != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidValueType, decodeErr)
	}
	return v, nil
}

func normalizeMembers(members []string) []string {
	if len(members) == 0 {
		return nil
	}
	out := make([]string, len(members))
	copy(out, members)
	sort.Strings(out)
	uniq := out[:1]
	for _, m := range out[1:] {
		if m != uniq[len(uniq)-1] {
			uniq = append(uniq, m)
		}
	}
	return uniq
}
