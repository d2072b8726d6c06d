package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// echoServer answers frames on the server side of a pipe: pings get
// pongs, everything else is echoed back.
func echoServer(t *testing.T, conn net.Conn) {
	t.Helper()
	fr := NewFrameReader(conn)
	fw := NewFrameWriter(conn)

	go func() {
		defer conn.Close()
		for {
			frame, err := fr.ReadFrame()
			if err != nil {
				return
			}

			if ctrl, err := wire.DecodeControlMessage(frame); err == nil {
				switch ctrl.Type {
				case wire.ControlPing:
					pong, _ := wire.EncodeControlMessage(&wire.ControlMessage{
						Type:     wire.ControlPong,
						Sequence: ctrl.Sequence,
					})
					if err := fw.WriteFrame(pong); err != nil {
						return
					}
				case wire.ControlClose:
					return
				}
				continue
			}

			if err := fw.WriteFrame(frame); err != nil {
				return
			}
		}
	}()
}

// pipeStream creates a stream driver whose dialer hands out the client
// end of a fresh pipe, with an echo server on the other end.
func pipeStream(t *testing.T) (*Stream, *atomic.Int32) {
	t.Helper()
	dials := &atomic.Int32{}

	s := NewStream(StreamConfig{
		Name:    "pipe",
		Address: "inproc",
		Dial: func(ctx context.Context, address string) (net.Conn, error) {
			dials.Add(1)
			client, server := net.Pipe()
			echoServer(t, server)
			return client, nil
		},
	})
	t.Cleanup(func() { s.Close() })
	return s, dials
}

func TestStreamSend(t *testing.T) {
	s, dials := pipeStream(t)

	payload := []byte{0x41, 0x42, 0x43}
	resp, err := s.Send(context.Background(), payload)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(resp, payload) {
		t.Errorf("response = %v, want %v", resp, payload)
	}

	// Second send reuses the connection
	if _, err := s.Send(context.Background(), payload); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if got := dials.Load(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
}

func TestStreamProbe(t *testing.T) {
	s, _ := pipeStream(t)

	if err := s.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
}

func TestStreamRedialsAfterFailure(t *testing.T) {
	s, dials := pipeStream(t)

	if _, err := s.Send(context.Background(), []byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Kill the live connection out from under the driver
	s.mu.Lock()
	s.conn.Close()
	s.mu.Unlock()

	// This send fails on the dead connection
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := s.Send(ctx, []byte("b")); !IsFailure(err) {
		t.Fatalf("Send on dead conn = %v, want transport failure", err)
	}

	// The next send redials and succeeds
	if _, err := s.Send(context.Background(), []byte("c")); err != nil {
		t.Fatalf("Send after redial: %v", err)
	}
	if got := dials.Load(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
}

func TestStreamDialFailure(t *testing.T) {
	refused := errors.New("connection refused")
	s := NewStream(StreamConfig{
		Name:    "down",
		Address: "nowhere",
		Dial: func(ctx context.Context, address string) (net.Conn, error) {
			return nil, refused
		},
	})

	_, err := s.Send(context.Background(), []byte("x"))
	if !IsFailure(err) {
		t.Errorf("Send with failing dial = %v, want transport failure", err)
	}
	if !errors.Is(err, refused) {
		t.Errorf("Send error %v does not wrap dial cause", err)
	}
}

func TestStreamSendTimeout(t *testing.T) {
	// Server that never answers
	s := NewStream(StreamConfig{
		Name:    "silent",
		Address: "inproc",
		Dial: func(ctx context.Context, address string) (net.Conn, error) {
			client, server := net.Pipe()
			go func() {
				// Swallow the request, never reply
				NewFrameReader(server).ReadFrame()
			}()
			return client, nil
		},
	})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Send(ctx, []byte("hello"))
	if !IsFailure(err) {
		t.Fatalf("Send to silent server = %v, want transport failure", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Send took %v, deadline not applied", elapsed)
	}
}
