package osc

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Message
		wantErr bool
	}{
		{
			name: "tempo reply with single float",
			// addr(20+4 pad) + ",f"(4) + 120.0(0x42F00000)
			data: []byte("/live/song/get/tempo\x00\x00\x00\x00,f\x00\x00\x42\xf0\x00\x00"),
			want: Message{
				Address:   "/live/song/get/tempo",
				Arguments: []any{float32(120)},
			},
		},
		{
			name: "loader request with int string int",
			// addr(19+1 pad) + ",isi"(4+4 pad) + 0 + "EQ Eight"(8+4 pad) + -1
			data: []byte("/loader/device/load\x00,isi\x00\x00\x00\x00\x00\x00\x00\x00EQ Eight\x00\x00\x00\x00\xff\xff\xff\xff"),
			want: Message{
				Address:   "/loader/device/load",
				Arguments: []any{int32(0), "EQ Eight", int32(-1)},
			},
		},
		{
			name: "boolean tags carry no payload",
			// addr(2+2 pad) + ",TF"(3+1 pad), no argument bytes
			data: []byte("/x\x00\x00,TF\x00"),
			want: Message{
				Address:   "/x",
				Arguments: []any{true, false},
			},
		},
		{
			name: "no arguments",
			data: []byte("/live/song/get/track_names\x00\x00,\x00\x00\x00"),
			want: Message{
				Address:   "/live/song/get/track_names",
				Arguments: []any{},
			},
		},
		{
			name: "address length on the alignment boundary",
			// 4-char address still gets a full padding word
			data: []byte("/abc\x00\x00\x00\x00,s\x00\x00abc\x00"),
			want: Message{
				Address:   "/abc",
				Arguments: []any{"abc"},
			},
		},
		{
			name:    "empty data",
			data:    []byte{},
			wantErr: true,
		},
		{
			name:    "too short",
			data:    []byte("/a\x00\x00"),
			wantErr: true,
		},
		{
			name:    "address missing leading slash",
			data:    []byte("test\x00\x00\x00\x00,\x00\x00\x00"),
			wantErr: true,
		},
		{
			name:    "type tags missing comma",
			data:    []byte("/ab\x00if\x00\x00"),
			wantErr: true,
		},
		{
			name:    "unknown type tag",
			data:    []byte("/ab\x00,q\x00\x00\x00\x00\x00\x00"),
			wantErr: true,
		},
		{
			name:    "truncated int32 argument",
			data:    []byte("/ab\x00,i\x00\x00\x00\x00"),
			wantErr: true,
		},
		{
			name:    "truncated float32 argument",
			data:    []byte("/ab\x00,f\x00\x00\x42"),
			wantErr: true,
		},
		{
			name:    "unterminated string argument",
			data:    []byte("/ab\x00,s\x00\x00abcd"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessage(tt.data)

			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseMessage() expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidMessage) {
					t.Errorf("ParseMessage() error = %v, want ErrInvalidMessage", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseMessage() unexpected error: %v", err)
			}
			if got.Address != tt.want.Address {
				t.Errorf("Address = %q, want %q", got.Address, tt.want.Address)
			}
			if !reflect.DeepEqual(got.Arguments, tt.want.Arguments) {
				t.Errorf("Arguments = %#v, want %#v", got.Arguments, tt.want.Arguments)
			}
			if got.Timestamp.IsZero() {
				t.Error("Timestamp should be set on decoded messages")
			}
		})
	}
}

func TestMessageEncode(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []byte
	}{
		{
			name: "no arguments",
			msg:  NewMessage("/live/song/get/tempo"),
			want: []byte("/live/song/get/tempo\x00\x00\x00\x00,\x00\x00\x00"),
		},
		{
			name: "single int",
			msg:  NewMessage("/live/track/get/volume", 3),
			want: []byte("/live/track/get/volume\x00\x00,i\x00\x00\x00\x00\x00\x03"),
		},
		{
			name: "float64 narrows to float32",
			msg:  NewMessage("/live/song/set/tempo", 120.0),
			want: []byte("/live/song/set/tempo\x00\x00\x00\x00,f\x00\x00\x42\xf0\x00\x00"),
		},
		{
			name: "string length on the alignment boundary keeps its NUL",
			msg:  NewMessage("/x", "Beat"),
			want: []byte("/x\x00\x00,s\x00\x00Beat\x00\x00\x00\x00"),
		},
		{
			name: "mixed int string int",
			msg:  NewMessage("/loader/device/load", 0, "EQ Eight", -1),
			want: []byte("/loader/device/load\x00,isi\x00\x00\x00\x00\x00\x00\x00\x00EQ Eight\x00\x00\x00\x00\xff\xff\xff\xff"),
		},
		{
			name: "booleans encode as bare tags",
			msg:  NewMessage("/x", true, false),
			want: []byte("/x\x00\x00,TF\x00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.Encode()
			if err != nil {
				t.Fatalf("Encode() unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
			if len(got)%4 != 0 {
				t.Errorf("Encode() length %d not 4-byte aligned", len(got))
			}
		})
	}
}

func TestMessageEncodeErrors(t *testing.T) {
	t.Run("address without leading slash", func(t *testing.T) {
		_, err := NewMessage("live/song/get/tempo").Encode()
		if !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("Encode() error = %v, want ErrInvalidMessage", err)
		}
	})

	t.Run("unsupported argument type", func(t *testing.T) {
		_, err := NewMessage("/x", []int{1, 2}).Encode()
		if !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("Encode() error = %v, want ErrUnsupportedType", err)
		}
	})
}

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		sendArgs []any
		wantArgs []any
	}{
		{
			name:     "ints decode as int32",
			address:  "/live/device/get/parameter/value",
			sendArgs: []any{0, 1, 5},
			wantArgs: []any{int32(0), int32(1), int32(5)},
		},
		{
			name:     "floats decode as float32",
			address:  "/live/device/set/parameter/value",
			sendArgs: []any{0, 1, 5, 0.43},
			wantArgs: []any{int32(0), int32(1), int32(5), float32(0.43)},
		},
		{
			name:     "strings survive padding",
			address:  "/loader/device/load",
			sendArgs: []any{2, "Glue Compressor", -1},
			wantArgs: []any{int32(2), "Glue Compressor", int32(-1)},
		},
		{
			name:     "booleans",
			address:  "/x",
			sendArgs: []any{true, false, true},
			wantArgs: []any{true, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := NewMessage(tt.address, tt.sendArgs...).Encode()
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}

			got, err := ParseMessage(data)
			if err != nil {
				t.Fatalf("ParseMessage() error: %v", err)
			}

			if got.Address != tt.address {
				t.Errorf("Address = %q, want %q", got.Address, tt.address)
			}
			if !reflect.DeepEqual(got.Arguments, tt.wantArgs) {
				t.Errorf("Arguments = %#v, want %#v", got.Arguments, tt.wantArgs)
			}
		})
	}
}

func TestMessageArgAccessors(t *testing.T) {
	msg := Message{
		Address:   "/test",
		Arguments: []any{int32(7), float32(0.5), "EQ Eight", true, int32(0)},
	}

	t.Run("IntArg", func(t *testing.T) {
		if v, err := msg.IntArg(0); err != nil || v != 7 {
			t.Errorf("IntArg(0) = %d, %v, want 7, nil", v, err)
		}
		// float32 truncates
		if v, err := msg.IntArg(1); err != nil || v != 0 {
			t.Errorf("IntArg(1) = %d, %v, want 0, nil", v, err)
		}
		// bool coerces
		if v, err := msg.IntArg(3); err != nil || v != 1 {
			t.Errorf("IntArg(3) = %d, %v, want 1, nil", v, err)
		}
		if _, err := msg.IntArg(2); !errors.Is(err, ErrArgument) {
			t.Errorf("IntArg(2) error = %v, want ErrArgument", err)
		}
	})

	t.Run("FloatArg", func(t *testing.T) {
		if v, err := msg.FloatArg(1); err != nil || v != 0.5 {
			t.Errorf("FloatArg(1) = %g, %v, want 0.5, nil", v, err)
		}
		if v, err := msg.FloatArg(0); err != nil || v != 7 {
			t.Errorf("FloatArg(0) = %g, %v, want 7, nil", v, err)
		}
		if _, err := msg.FloatArg(3); !errors.Is(err, ErrArgument) {
			t.Errorf("FloatArg(3) error = %v, want ErrArgument", err)
		}
	})

	t.Run("StringArg", func(t *testing.T) {
		if v, err := msg.StringArg(2); err != nil || v != "EQ Eight" {
			t.Errorf("StringArg(2) = %q, %v, want \"EQ Eight\", nil", v, err)
		}
		if _, err := msg.StringArg(0); !errors.Is(err, ErrArgument) {
			t.Errorf("StringArg(0) error = %v, want ErrArgument", err)
		}
	})

	t.Run("BoolArg", func(t *testing.T) {
		if v, err := msg.BoolArg(3); err != nil || !v {
			t.Errorf("BoolArg(3) = %t, %v, want true, nil", v, err)
		}
		// non-zero numerics are true
		if v, err := msg.BoolArg(0); err != nil || !v {
			t.Errorf("BoolArg(0) = %t, %v, want true, nil", v, err)
		}
		if v, err := msg.BoolArg(4); err != nil || v {
			t.Errorf("BoolArg(4) = %t, %v, want false, nil", v, err)
		}
		if _, err := msg.BoolArg(2); !errors.Is(err, ErrArgument) {
			t.Errorf("BoolArg(2) error = %v, want ErrArgument", err)
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		if _, err := msg.IntArg(5); !errors.Is(err, ErrArgument) {
			t.Errorf("IntArg(5) error = %v, want ErrArgument", err)
		}
		if _, err := msg.IntArg(-1); !errors.Is(err, ErrArgument) {
			t.Errorf("IntArg(-1) error = %v, want ErrArgument", err)
		}
	})
}

func TestAppendPaddedString(t *testing.T) {
	tests := []struct {
		s       string
		wantLen int
	}{
		{"", 4},
		{"a", 4},
		{"abc", 4},
		{"abcd", 8},
		{"abcde", 8},
		{"EQ Eight", 12},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			got := appendPaddedString(nil, tt.s)
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
			if !strings.HasPrefix(string(got), tt.s) {
				t.Errorf("padded %q does not start with %q", got, tt.s)
			}
			if got[len(got)-1] != 0 || got[len(tt.s)] != 0 {
				t.Errorf("padded %q missing NUL terminator", got)
			}
		})
	}
}

func TestReadPaddedString(t *testing.T) {
	data := []byte("abc\x00def\x00")

	s, next, err := readPaddedString(data, 0)
	if err != nil {
		t.Fatalf("readPaddedString() error: %v", err)
	}
	if s != "abc" || next != 4 {
		t.Errorf("got %q, next %d, want \"abc\", 4", s, next)
	}

	s, next, err = readPaddedString(data, next)
	if err != nil {
		t.Fatalf("readPaddedString() error: %v", err)
	}
	if s != "def" || next != 8 {
		t.Errorf("got %q, next %d, want \"def\", 8", s, next)
	}

	t.Run("unterminated", func(t *testing.T) {
		if _, _, err := readPaddedString([]byte("abcd"), 0); err == nil {
			t.Error("expected error for unterminated string")
		}
	})

	t.Run("offset past end", func(t *testing.T) {
		if _, _, err := readPaddedString(data, len(data)); err == nil {
			t.Error("expected error for offset past end")
		}
	})

	t.Run("truncated padding clamps to data end", func(t *testing.T) {
		s, next, err := readPaddedString([]byte("ab\x00"), 0)
		if err != nil {
			t.Fatalf("readPaddedString() error: %v", err)
		}
		if s != "ab" || next != 3 {
			t.Errorf("got %q, next %d, want \"ab\", 3", s, next)
		}
	})
}

func TestMessageString(t *testing.T) {
	msg := NewMessage("/live/song/get/tempo", 120.0)
	s := msg.String()
	if !strings.Contains(s, "/live/song/get/tempo") {
		t.Errorf("String() = %q, should contain the address", s)
	}
}
