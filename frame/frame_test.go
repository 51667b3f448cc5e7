package frame

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/jangala-dev/opdi-go/protoerr"
)

// memReader feeds ReadByte from a fixed buffer, satisfying ByteReader.
type memReader struct {
	buf []byte
	pos int
}

func (m *memReader) ReadByte(ctx context.Context) (byte, error) {
	if m.pos >= len(m.buf) {
		return 0, io.EOF
	}
	b := m.buf[m.pos]
	m.pos++
	return b, nil
}

// xorBlock is a fake fixed-size block cipher for exercising the ECB path
// without depending on a concrete crypto library CORE doesn't own.
type xorBlock struct{ size int }

func (x xorBlock) BlockSize() int { return x.size }
func (x xorBlock) Encrypt(dst, src []byte) {
	for i := range src {
		dst[i] = src[i] ^ 0x5a
	}
}
func (x xorBlock) Decrypt(dst, src []byte) {
	for i := range src {
		dst[i] = src[i] ^ 0x5a
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		ch      uint16
		payload string
	}{
		{0, ""},
		{1, "gDC"},
		{65535, "a:b:c"},
		{256, "value with spaces"},
	}
	for _, c := range cases {
		framed, err := Encode(c.ch, c.payload, 0)
		if err != nil {
			t.Fatalf("Encode(%d,%q): %v", c.ch, c.payload, err)
		}
		line := framed[:len(framed)-1] // strip '\n'
		ch, payload, err := decodeLine(line)
		if err != nil {
			t.Fatalf("decodeLine(%q): %v", line, err)
		}
		if ch != c.ch || payload != c.payload {
			t.Fatalf("got (%d,%q) want (%d,%q)", ch, payload, c.ch, c.payload)
		}
	}
}

func TestChecksumMismatchRejected(t *testing.T) {
	framed, err := Encode(1, "gDC", 0)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a single bit in the payload region, leaving the checksum
	// untouched, so decoding must fail without ever reaching dispatch.
	framed[3] ^= 0x01
	_, _, err = decodeLine(framed[:len(framed)-1])
	if protoerr.Of(err) != protoerr.MalformedMessage {
		t.Fatalf("expected MalformedMessage on checksum mismatch, got %v", err)
	}
}

func TestEncodeRejectsEmbeddedTerminator(t *testing.T) {
	_, err := Encode(1, "a\nb", 0)
	if protoerr.Of(err) != protoerr.TerminatorInPayload {
		t.Fatalf("expected TerminatorInPayload, got %v", err)
	}
}

func TestReaderOverflowRejected(t *testing.T) {
	src := &memReader{buf: bytes.Repeat([]byte{'x'}, 100)}
	r := NewReader(src, 10)
	_, err := r.ReadMessage(context.Background())
	if protoerr.Of(err) != protoerr.MalformedMessage {
		t.Fatalf("expected overflow to be reported as MalformedMessage, got %v", err)
	}
}

func TestPlainRoundTripThroughReaderWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	if err := w.WriteMessage(7, "gPI"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteMessage(0, "Disconnect"); err != nil {
		t.Fatal(err)
	}
	src := &memReader{buf: buf.Bytes()}
	r := NewReader(src, 0)
	m1, err := r.ReadMessage(context.Background())
	if err != nil || m1.Channel != 7 || m1.Payload != "gPI" {
		t.Fatalf("first message: %+v %v", m1, err)
	}
	m2, err := r.ReadMessage(context.Background())
	if err != nil || m2.Channel != 0 || m2.Payload != "Disconnect" {
		t.Fatalf("second message: %+v %v", m2, err)
	}
}

// TestCipherInertUntilEnabled exercises property #3 (spec.md §8): bytes
// exchanged before the handshake reply is sent must never pass through the
// cipher, and the switch must take effect exactly at EnableCipher.
func TestCipherInertUntilEnabled(t *testing.T) {
	blk := xorBlock{size: 8}
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)

	// Plaintext handshake reply, written before any encryption is enabled.
	if err := w.WriteMessage(0, "HELLO"); err != nil {
		t.Fatal(err)
	}
	plainLen := buf.Len()

	w.EnableCipher(blk)
	if err := w.WriteMessage(1, "gDC"); err != nil {
		t.Fatal(err)
	}
	allBytes := append([]byte(nil), buf.Bytes()...)

	// The plaintext prefix must be byte-for-byte the unencrypted frame.
	wantPlain, _ := Encode(0, "HELLO", 0)
	if !bytes.Equal(allBytes[:plainLen], wantPlain) {
		t.Fatalf("plaintext prefix altered by later EnableCipher call")
	}

	src := &memReader{buf: allBytes}
	r := NewReader(src, 0)
	m1, err := r.ReadMessage(context.Background())
	if err != nil || m1.Channel != 0 || m1.Payload != "HELLO" {
		t.Fatalf("plaintext read: %+v %v", m1, err)
	}
	r.EnableCipher(blk)
	m2, err := r.ReadMessage(context.Background())
	if err != nil || m2.Channel != 1 || m2.Payload != "gDC" {
		t.Fatalf("ciphered read: %+v %v", m2, err)
	}
}

func TestCipherRoundTripMultipleMessages(t *testing.T) {
	blk := xorBlock{size: 8}
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	w.EnableCipher(blk)
	msgs := []Message{
		{Channel: 1, Payload: "gDC"},
		{Channel: 20, Payload: "sAV:1:123456"},
		{Channel: 0, Payload: "Refresh:3"},
	}
	for _, m := range msgs {
		if err := w.WriteMessage(m.Channel, m.Payload); err != nil {
			t.Fatal(err)
		}
	}
	src := &memReader{buf: buf.Bytes()}
	r := NewReader(src, 0)
	r.EnableCipher(blk)
	for _, want := range msgs {
		got, err := r.ReadMessage(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("got %+v want %+v", got, want)
		}
	}
}
