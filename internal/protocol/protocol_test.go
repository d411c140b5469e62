package protocol_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/1ureka/blesock/internal/protocol"
)

// TestWireLayout pins the byte layout of each control message.
func TestWireLayout(t *testing.T) {
	var nonce [16]byte
	for i := range nonce {
		nonce[i] = byte(i + 1)
	}
	var digest [32]byte
	digest[0], digest[31] = 0xAA, 0xBB

	testCases := []struct {
		name string
		msg  protocol.Message
		want []byte
	}{
		{
			name: "RequestAuthentication",
			msg:  protocol.RequestAuthentication{Nonce: nonce},
			want: append([]byte{10}, nonce[:]...),
		},
		{
			name: "RespondAuthentication",
			msg:  protocol.RespondAuthentication{Digest: digest, Name: "Bob"},
			want: append(append([]byte{20}, digest[:]...), 3, 'B', 'o', 'b'),
		},
		{
			name: "AcceptAuthentication",
			msg: protocol.AcceptAuthentication{
				Identity: 0x0004,
				Players: []protocol.PlayerEntry{
					{Identity: 0x0001, Name: "Al"},
					{Identity: 0x0002, Name: "Cy"},
				},
			},
			want: []byte{11, 0x04, 0x00, 2, 0x01, 0x00, 2, 'A', 'l', 0x02, 0x00, 2, 'C', 'y'},
		},
		{
			name: "PlayerJoin",
			msg:  protocol.PlayerJoin{Identity: 0x8000, Name: "Z"},
			want: []byte{12, 0x00, 0x80, 1, 'Z'},
		},
		{
			name: "PlayerLeave",
			msg:  protocol.PlayerLeave{Identity: 0x0010},
			want: []byte{13, 0x10, 0x00},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := protocol.Encode(tc.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if !bytes.Equal(encoded, tc.want) {
				t.Fatalf("Encode = % x, want % x", encoded, tc.want)
			}

			decoded, err := protocol.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(decoded, tc.msg) {
				t.Errorf("Decode = %+v, want %+v", decoded, tc.msg)
			}
		})
	}
}

// TestDecodeTruncated verifies that every strict prefix of a valid message
// is rejected as malformed.
func TestDecodeTruncated(t *testing.T) {
	full, err := protocol.Encode(protocol.AcceptAuthentication{
		Identity: 2,
		Players:  []protocol.PlayerEntry{{Identity: 1, Name: "Host"}},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for n := 0; n < len(full); n++ {
		_, err := protocol.Decode(full[:n])
		if !errors.Is(err, protocol.ErrMalformed) {
			t.Errorf("Decode(%d bytes) err = %v, want ErrMalformed", n, err)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := protocol.Decode([]byte{99, 1, 2, 3})
	if !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	msg, err := protocol.Decode([]byte{13, 0x02, 0x00, 0xFF, 0xFF})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if leave, ok := msg.(protocol.PlayerLeave); !ok || leave.Identity != 2 {
		t.Errorf("Decode = %+v", msg)
	}
}

func TestEncodeRejectsLongName(t *testing.T) {
	_, err := protocol.Encode(protocol.PlayerJoin{Identity: 2, Name: strings.Repeat("n", 256)})
	if err == nil {
		t.Fatal("expected error for a name longer than 255 bytes")
	}
}

// TestDecodePreservesNonce verifies that decoded byte arrays are not aliased
// to the input buffer.
func TestDecodePreservesNonce(t *testing.T) {
	var nonce [16]byte
	nonce[0] = 0x42
	encoded, _ := protocol.Encode(protocol.RequestAuthentication{Nonce: nonce})

	decoded, err := protocol.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	encoded[1] = 0xFF

	if got := decoded.(protocol.RequestAuthentication).Nonce[0]; got != 0x42 {
		t.Errorf("nonce was aliased: got %#x", got)
	}
}
