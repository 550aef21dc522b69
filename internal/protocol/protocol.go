// Package protocol defines the closed set of session messages and their
// protobuf-compatible wire encoding. A payload is one tag byte followed by the
// message fields encoded with protowire.
package protocol

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Tag identifies a message type on the wire.
type Tag uint8

const (
	TagClientAuth Tag = iota + 1
	TagSpawnPlayer
	TagFire
	TagAim
	TagReload
)

func (t Tag) String() string {
	switch t {
	case TagClientAuth:
		return "client_auth"
	case TagSpawnPlayer:
		return "spawn_player"
	case TagFire:
		return "fire"
	case TagAim:
		return "aim"
	case TagReload:
		return "reload"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

var (
	// ErrEmptyPayload is returned when a payload carries no tag byte.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrUnknownTag is returned for tags outside the closed message set.
	ErrUnknownTag = errors.New("unknown message tag")
	// ErrMalformed wraps field-level decoding failures.
	ErrMalformed = errors.New("malformed message")
)

// Message is implemented by every session message.
type Message interface {
	Tag() Tag
	// MarshalFields appends the encoded fields to b.
	MarshalFields(b []byte) []byte
	// UnmarshalFields replaces the receiver with the fields decoded from b.
	UnmarshalFields(b []byte) error
}

// Encode produces the tagged payload for msg.
func Encode(msg Message) []byte {
	return msg.MarshalFields([]byte{byte(msg.Tag())})
}

// PeekTag returns the tag of payload and the remaining field bytes.
func PeekTag(payload []byte) (Tag, []byte, error) {
	if len(payload) == 0 {
		return 0, nil, ErrEmptyPayload
	}
	tag := Tag(payload[0])
	if New(tag) == nil {
		return tag, nil, fmt.Errorf("%w: %d", ErrUnknownTag, payload[0])
	}
	return tag, payload[1:], nil
}

// New returns a zero message for tag, or nil when the tag is unknown.
func New(tag Tag) Message {
	switch tag {
	case TagClientAuth:
		return &ClientAuth{}
	case TagSpawnPlayer:
		return &SpawnPlayer{}
	case TagFire:
		return &Fire{}
	case TagAim:
		return &Aim{}
	case TagReload:
		return &Reload{}
	default:
		return nil
	}
}

// Decode parses a tagged payload into a fresh message.
func Decode(payload []byte) (Message, error) {
	tag, fields, err := PeekTag(payload)
	if err != nil {
		return nil, err
	}
	msg := New(tag)
	if err := msg.UnmarshalFields(fields); err != nil {
		return nil, err
	}
	return msg, nil
}

// ClientAuth is sent by a client to the host right after connecting.
type ClientAuth struct {
	DisplayName string
	// Color packs the RGB channels as 0xRRGGBB.
	Color uint32
	// Weapon names the arsenal entry the client carries.
	Weapon string
}

func (*ClientAuth) Tag() Tag { return TagClientAuth }

func (m *ClientAuth) MarshalFields(b []byte) []byte {
	b = appendString(b, 1, m.DisplayName)
	b = appendVarint(b, 2, uint64(m.Color))
	return appendString(b, 3, m.Weapon)
}

func (m *ClientAuth) UnmarshalFields(b []byte) error {
	*m = ClientAuth{}
	return walkFields(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			return f.readString(&m.DisplayName)
		case 2:
			var v uint64
			if err := f.readVarint(&v); err != nil {
				return err
			}
			m.Color = uint32(v)
		case 3:
			return f.readString(&m.Weapon)
		}
		return nil
	})
}

// SpawnPlayer carries the authoritative public attributes of one player.
type SpawnPlayer struct {
	ID          int32
	X, Y        float32
	DisplayName string
	Color       uint32
	Weapon      string
}

func (*SpawnPlayer) Tag() Tag { return TagSpawnPlayer }

func (m *SpawnPlayer) MarshalFields(b []byte) []byte {
	b = appendInt32(b, 1, m.ID)
	b = appendFloat32(b, 2, m.X)
	b = appendFloat32(b, 3, m.Y)
	b = appendString(b, 4, m.DisplayName)
	b = appendVarint(b, 5, uint64(m.Color))
	return appendString(b, 6, m.Weapon)
}

func (m *SpawnPlayer) UnmarshalFields(b []byte) error {
	*m = SpawnPlayer{}
	return walkFields(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			return f.readInt32(&m.ID)
		case 2:
			return f.readFloat32(&m.X)
		case 3:
			return f.readFloat32(&m.Y)
		case 4:
			return f.readString(&m.DisplayName)
		case 5:
			var v uint64
			if err := f.readVarint(&v); err != nil {
				return err
			}
			m.Color = uint32(v)
		case 6:
			return f.readString(&m.Weapon)
		}
		return nil
	})
}

// Fire carries the minimal parameters needed to reproduce one weapon discharge.
type Fire struct {
	Shooter      int32
	AimDirection float32
	FacingRight  bool
	Seed         int32
}

func (*Fire) Tag() Tag { return TagFire }

func (m *Fire) MarshalFields(b []byte) []byte {
	b = appendInt32(b, 1, m.Shooter)
	b = appendFloat32(b, 2, m.AimDirection)
	b = appendBool(b, 3, m.FacingRight)
	b = protowire.AppendTag(b, 4, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, uint32(m.Seed))
}

func (m *Fire) UnmarshalFields(b []byte) error {
	*m = Fire{}
	return walkFields(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			return f.readInt32(&m.Shooter)
		case 2:
			return f.readFloat32(&m.AimDirection)
		case 3:
			return f.readBool(&m.FacingRight)
		case 4:
			var v uint32
			if err := f.readFixed32(&v); err != nil {
				return err
			}
			m.Seed = int32(v)
		}
		return nil
	})
}

// Aim replicates the aim direction of a player's weapon.
type Aim struct {
	Shooter   int32
	Direction float32
}

func (*Aim) Tag() Tag { return TagAim }

func (m *Aim) MarshalFields(b []byte) []byte {
	b = appendInt32(b, 1, m.Shooter)
	return appendFloat32(b, 2, m.Direction)
}

func (m *Aim) UnmarshalFields(b []byte) error {
	*m = Aim{}
	return walkFields(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			return f.readInt32(&m.Shooter)
		case 2:
			return f.readFloat32(&m.Direction)
		}
		return nil
	})
}

// Reload asks the host to start reloading the shooter's weapon.
type Reload struct {
	Shooter int32
}

func (*Reload) Tag() Tag { return TagReload }

func (m *Reload) MarshalFields(b []byte) []byte {
	return appendInt32(b, 1, m.Shooter)
}

func (m *Reload) UnmarshalFields(b []byte) error {
	*m = Reload{}
	return walkFields(b, func(num protowire.Number, f field) error {
		if num == 1 {
			return f.readInt32(&m.Shooter)
		}
		return nil
	})
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, uint64(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendFloat32(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// field is one raw field value handed to a walkFields visitor.
type field struct {
	num  protowire.Number
	typ  protowire.Type
	data []byte
}

func (f field) mismatch(want protowire.Type) error {
	return fmt.Errorf("%w: field %d has wire type %d, want %d", ErrMalformed, f.num, f.typ, want)
}

func (f field) readVarint(out *uint64) error {
	if f.typ != protowire.VarintType {
		return f.mismatch(protowire.VarintType)
	}
	v, n := protowire.ConsumeVarint(f.data)
	if n < 0 {
		return fmt.Errorf("%w: field %d: %v", ErrMalformed, f.num, protowire.ParseError(n))
	}
	*out = v
	return nil
}

func (f field) readInt32(out *int32) error {
	var v uint64
	if err := f.readVarint(&v); err != nil {
		return err
	}
	*out = int32(v)
	return nil
}

func (f field) readBool(out *bool) error {
	var v uint64
	if err := f.readVarint(&v); err != nil {
		return err
	}
	*out = protowire.DecodeBool(v)
	return nil
}

func (f field) readFixed32(out *uint32) error {
	if f.typ != protowire.Fixed32Type {
		return f.mismatch(protowire.Fixed32Type)
	}
	v, n := protowire.ConsumeFixed32(f.data)
	if n < 0 {
		return fmt.Errorf("%w: field %d: %v", ErrMalformed, f.num, protowire.ParseError(n))
	}
	*out = v
	return nil
}

func (f field) readFloat32(out *float32) error {
	var bits uint32
	if err := f.readFixed32(&bits); err != nil {
		return err
	}
	*out = math.Float32frombits(bits)
	return nil
}

func (f field) readString(out *string) error {
	if f.typ != protowire.BytesType {
		return f.mismatch(protowire.BytesType)
	}
	v, n := protowire.ConsumeString(f.data)
	if n < 0 {
		return fmt.Errorf("%w: field %d: %v", ErrMalformed, f.num, protowire.ParseError(n))
	}
	*out = v
	return nil
}

// walkFields visits every field in b. Unknown field numbers are skipped by the
// visitor, which keeps older peers compatible with newer ones.
func walkFields(b []byte, visit func(protowire.Number, field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		size := protowire.ConsumeFieldValue(num, typ, b)
		if size < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(size))
		}
		if err := visit(num, field{num: num, typ: typ, data: b[:size]}); err != nil {
			return err
		}
		b = b[size:]
	}
	return nil
}
