package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "small", data: []byte("hello")},
		{name: "single byte", data: []byte{0x42}},
		{name: "binary", data: []byte{0x00, 0xff, 0x00, 0xff}},
		{name: "max size", data: bytes.Repeat([]byte{0xaa}, DefaultMaxMessageSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			fw := NewFrameWriter(&buf)
			if err := fw.WriteFrame(tt.data); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			fr := NewFrameReader(&buf)
			got, err := fr.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("frame mismatch: got %d bytes, want %d bytes", len(got), len(tt.data))
			}
		})
	}
}

func TestFrameWriterRejects(t *testing.T) {
	var buf bytes.Buffer

	fw := NewFrameWriter(&buf)
	if err := fw.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("WriteFrame(nil) = %v, want ErrMessageEmpty", err)
	}

	small := NewFrameWriterWithMaxSize(&buf, 4)
	if err := small.WriteFrame([]byte("too long")); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("WriteFrame over max = %v, want ErrMessageTooLarge", err)
	}
}

func TestFrameReaderErrors(t *testing.T) {
	t.Run("EOF", func(t *testing.T) {
		fr := NewFrameReader(bytes.NewReader(nil))
		if _, err := fr.ReadFrame(); err != io.EOF {
			t.Errorf("ReadFrame on empty = %v, want io.EOF", err)
		}
	})

	t.Run("TruncatedPrefix", func(t *testing.T) {
		fr := NewFrameReader(bytes.NewReader([]byte{0x00, 0x00}))
		if _, err := fr.ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
			t.Errorf("ReadFrame truncated prefix = %v, want ErrFrameTruncated", err)
		}
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		// Prefix claims 8 bytes, only 3 present
		fr := NewFrameReader(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x08, 1, 2, 3}))
		if _, err := fr.ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
			t.Errorf("ReadFrame truncated payload = %v, want ErrFrameTruncated", err)
		}
	})

	t.Run("OversizedFrame", func(t *testing.T) {
		fr := NewFrameReaderWithMaxSize(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), 16)
		if _, err := fr.ReadFrame(); !errors.Is(err, ErrMessageTooLarge) {
			t.Errorf("ReadFrame oversized = %v, want ErrMessageTooLarge", err)
		}
	})

	t.Run("ZeroLength", func(t *testing.T) {
		fr := NewFrameReader(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x00}))
		if _, err := fr.ReadFrame(); !errors.Is(err, ErrMessageEmpty) {
			t.Errorf("ReadFrame zero length = %v, want ErrMessageEmpty", err)
		}
	})
}

func TestFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)

	frames := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	for _, f := range frames {
		if err := fw.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	fr := NewFrameReader(&buf)
	for i, want := range frames {
		got, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}
}
