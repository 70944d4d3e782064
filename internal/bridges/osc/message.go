package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// OSC 1.0 type tag characters. Only the tags the workstation bridge
// actually emits are supported; anything else fails decoding.
const (
	// TypeInt32 tags a big-endian signed 32-bit integer argument.
	TypeInt32 = 'i'

	// TypeFloat32 tags a big-endian IEEE 754 32-bit float argument.
	TypeFloat32 = 'f'

	// TypeString tags a NUL-terminated string argument padded to a
	// four-byte boundary.
	TypeString = 's'

	// TypeTrue and TypeFalse tag boolean arguments. Booleans carry no
	// payload bytes; the tag itself is the value.
	TypeTrue  = 'T'
	TypeFalse = 'F'
)

const (
	// alignment is the element alignment mandated by OSC 1.0.
	alignment = 4

	// minMessageSize is the smallest decodable message: a one-character
	// address padded to four bytes plus an empty type tag string.
	minMessageSize = 8
)

// Message is a single OSC 1.0 message.
//
// Wire layout:
//
//	[padded address][padded type tag string][arguments...]
//
// The address and type tag string are NUL-terminated and zero-padded to
// a multiple of four bytes. The type tag string starts with a comma and
// holds one tag character per argument. int32 and float32 arguments
// occupy four big-endian bytes each; string arguments are padded like
// the address; T and F arguments occupy none.
type Message struct {
	// Address is the OSC address pattern, e.g. "/live/song/get/tempo".
	Address string

	// Arguments holds the arguments in wire order. Decoded messages
	// contain int32, float32, string and bool values. Messages built
	// for sending may additionally use int and float64, which are
	// narrowed during encoding.
	Arguments []any

	// Timestamp records when the message was received. Zero for
	// messages built locally.
	Timestamp time.Time
}

// NewMessage builds a message for sending.
func NewMessage(address string, args ...any) Message {
	return Message{Address: address, Arguments: args}
}

// Encode serializes the message to OSC 1.0 wire format.
func (m Message) Encode() ([]byte, error) {
	if !strings.HasPrefix(m.Address, "/") {
		return nil, fmt.Errorf("%w: address %q must start with /", ErrInvalidMessage, m.Address)
	}

	tags := make([]byte, 0, len(m.Arguments)+1)
	tags = append(tags, ',')
	var argData []byte

	for i, arg := range m.Arguments {
		switch v := arg.(type) {
		case int32:
			tags = append(tags, TypeInt32)
			argData = binary.BigEndian.AppendUint32(argData, uint32(v))
		case int:
			tags = append(tags, TypeInt32)
			argData = binary.BigEndian.AppendUint32(argData, uint32(int32(v)))
		case float32:
			tags = append(tags, TypeFloat32)
			argData = binary.BigEndian.AppendUint32(argData, math.Float32bits(v))
		case float64:
			tags = append(tags, TypeFloat32)
			argData = binary.BigEndian.AppendUint32(argData, math.Float32bits(float32(v)))
		case string:
			tags = append(tags, TypeString)
			argData = appendPaddedString(argData, v)
		case bool:
			if v {
				tags = append(tags, TypeTrue)
			} else {
				tags = append(tags, TypeFalse)
			}
		default:
			return nil, fmt.Errorf("%w: argument %d is %T", ErrUnsupportedType, i, arg)
		}
	}

	buf := appendPaddedString(nil, m.Address)
	buf = appendPaddedString(buf, string(tags))
	return append(buf, argData...), nil
}

// ParseMessage decodes an OSC 1.0 datagram.
//
// The address and type tag string are read first, then arguments are
// decoded according to the tags. Unknown type tags and truncated
// payloads fail with ErrInvalidMessage. Bytes beyond the last argument
// are ignored.
func ParseMessage(data []byte) (Message, error) {
	if len(data) < minMessageSize {
		return Message{}, fmt.Errorf("%w: too short (%d bytes, need at least %d)", ErrInvalidMessage, len(data), minMessageSize)
	}

	address, offset, err := readPaddedString(data, 0)
	if err != nil {
		return Message{}, fmt.Errorf("%w: address: %v", ErrInvalidMessage, err)
	}
	if !strings.HasPrefix(address, "/") {
		return Message{}, fmt.Errorf("%w: address %q must start with /", ErrInvalidMessage, address)
	}

	tags, offset, err := readPaddedString(data, offset)
	if err != nil {
		return Message{}, fmt.Errorf("%w: type tags: %v", ErrInvalidMessage, err)
	}
	if !strings.HasPrefix(tags, ",") {
		return Message{}, fmt.Errorf("%w: type tag string %q must start with a comma", ErrInvalidMessage, tags)
	}

	args := make([]any, 0, len(tags)-1)
	for _, tag := range tags[1:] {
		switch tag {
		case TypeInt32:
			if offset+4 > len(data) {
				return Message{}, fmt.Errorf("%w: truncated int32 argument", ErrInvalidMessage)
			}
			args = append(args, int32(binary.BigEndian.Uint32(data[offset:offset+4])))
			offset += 4
		case TypeFloat32:
			if offset+4 > len(data) {
				return Message{}, fmt.Errorf("%w: truncated float32 argument", ErrInvalidMessage)
			}
			args = append(args, math.Float32frombits(binary.BigEndian.Uint32(data[offset:offset+4])))
			offset += 4
		case TypeString:
			s, next, err := readPaddedString(data, offset)
			if err != nil {
				return Message{}, fmt.Errorf("%w: string argument: %v", ErrInvalidMessage, err)
			}
			args = append(args, s)
			offset = next
		case TypeTrue:
			args = append(args, true)
		case TypeFalse:
			args = append(args, false)
		default:
			return Message{}, fmt.Errorf("%w: unknown type tag %q", ErrInvalidMessage, string(tag))
		}
	}

	return Message{Address: address, Arguments: args, Timestamp: time.Now()}, nil
}

// IntArg returns the argument at index i as an int. float32 arguments
// are truncated; booleans map to 0 and 1.
func (m Message) IntArg(i int) (int, error) {
	v, err := m.arg(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int32:
		return int(n), nil
	case float32:
		return int(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: argument %d is %T, want numeric", ErrArgument, i, v)
	}
}

// FloatArg returns the argument at index i as a float64, accepting
// int32 and float32.
func (m Message) FloatArg(i int) (float64, error) {
	v, err := m.arg(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case int32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: argument %d is %T, want numeric", ErrArgument, i, v)
	}
}

// StringArg returns the string argument at index i.
func (m Message) StringArg(i int) (string, error) {
	v, err := m.arg(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d is %T, want string", ErrArgument, i, v)
	}
	return s, nil
}

// BoolArg returns the argument at index i as a bool. Numeric arguments
// are true when non-zero.
func (m Message) BoolArg(i int) (bool, error) {
	v, err := m.arg(i)
	if err != nil {
		return false, err
	}
	switch n := v.(type) {
	case bool:
		return n, nil
	case int32:
		return n != 0, nil
	case float32:
		return n != 0, nil
	default:
		return false, fmt.Errorf("%w: argument %d is %T, want bool", ErrArgument, i, v)
	}
}

func (m Message) arg(i int) (any, error) {
	if i < 0 || i >= len(m.Arguments) {
		return nil, fmt.Errorf("%w: index %d out of range (%d arguments)", ErrArgument, i, len(m.Arguments))
	}
	return m.Arguments[i], nil
}

// String returns a human-readable representation for logging.
func (m Message) String() string {
	return fmt.Sprintf("Message{%s %v}", m.Address, m.Arguments)
}

// appendPaddedString appends s, its NUL terminator and zero padding to
// the next four-byte boundary. Padding is 1 to 4 bytes, so there is
// always at least one NUL.
func appendPaddedString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	pad := alignment - len(s)%alignment
	return append(buf, make([]byte, pad)...)
}

// readPaddedString reads a NUL-terminated string starting at offset and
// returns it with the offset of the next element, the NUL position
// rounded up past the mandatory padding.
func readPaddedString(data []byte, offset int) (string, int, error) {
	if offset >= len(data) {
		return "", 0, fmt.Errorf("offset %d beyond end", offset)
	}
	n := bytes.IndexByte(data[offset:], 0)
	if n < 0 {
		return "", 0, fmt.Errorf("unterminated string at offset %d", offset)
	}
	next := offset + ((n + alignment) &^ (alignment - 1))
	if next > len(data) {
		next = len(data)
	}
	return string(data[offset : offset+n]), next, nil
}
