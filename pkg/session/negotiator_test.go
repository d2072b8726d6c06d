package session

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// fakeService answers handshake requests the way the real service does:
// mirror key exchange plus HKDF derivation over the same info string.
type fakeService struct {
	mu sync.Mutex

	sessionID string
	ttl       int64
	status    wire.Status
	message   string

	exchanges atomic.Int32
	secrets   [][]byte // derived secret per exchange, in order
	block     chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{sessionID: "sess-1", status: wire.StatusSuccess}
}

func (s *fakeService) send(ctx context.Context, data []byte) ([]byte, error) {
	s.exchanges.Add(1)

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	req, err := wire.DecodeHandshakeRequest(data)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != wire.StatusSuccess {
		return wire.EncodeHandshakeResponse(&wire.HandshakeResponse{
			Status:  s.status,
			Message: s.message,
		})
	}

	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	peer, err := ecdh.X25519().NewPublicKey(req.ClientPublicKey)
	if err != nil {
		return nil, err
	}
	shared, err := priv.ECDH(peer)
	if err != nil {
		return nil, err
	}
	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, hkdfInfo), secret); err != nil {
		return nil, err
	}
	s.secrets = append(s.secrets, secret)

	return wire.EncodeHandshakeResponse(&wire.HandshakeResponse{
		ServerPublicKey: priv.PublicKey().Bytes(),
		SessionID:       s.sessionID,
		TTL:             s.ttl,
		Status:          wire.StatusSuccess,
	})
}

func (s *fakeService) lastSecret() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.secrets) == 0 {
		return nil
	}
	return s.secrets[len(s.secrets)-1]
}

func TestEstablish(t *testing.T) {
	svc := newFakeService()
	n := New(Config{ClientID: "client-1", Send: svc.send})

	if n.State() != StateUninitialized {
		t.Fatalf("initial state = %v, want UNINITIALIZED", n.State())
	}
	if _, err := n.Secret(); !errors.Is(err, ErrNotEstablished) {
		t.Fatalf("Secret before handshake = %v, want ErrNotEstablished", err)
	}

	snap, err := n.Establish(context.Background())
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if snap.State != StateActive {
		t.Errorf("state = %v, want ACTIVE", snap.State)
	}
	if snap.SessionID != "sess-1" {
		t.Errorf("session ID = %q, want %q", snap.SessionID, "sess-1")
	}
	if !snap.ExpiresAt.IsZero() {
		t.Errorf("TTL 0 should leave ExpiresAt zero, got %v", snap.ExpiresAt)
	}

	// Both sides derived the same secret
	secret, err := n.Secret()
	if err != nil {
		t.Fatalf("Secret: %v", err)
	}
	if len(secret) != SecretSize {
		t.Fatalf("secret length = %d, want %d", len(secret), SecretSize)
	}
	want := svc.lastSecret()
	if string(secret) != string(want) {
		t.Error("client and service derived different secrets")
	}

	// Secret returns a copy
	secret[0] ^= 0xff
	again, _ := n.Secret()
	if string(again) == string(secret) {
		t.Error("Secret returned internal slice, not a copy")
	}
}

func TestEstablishIdempotentWhileActive(t *testing.T) {
	svc := newFakeService()
	n := New(Config{ClientID: "client-1", Send: svc.send})

	first, err := n.Establish(context.Background())
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	second, err := n.Establish(context.Background())
	if err != nil {
		t.Fatalf("second Establish: %v", err)
	}
	if got := svc.exchanges.Load(); got != 1 {
		t.Errorf("exchanges = %d, want 1", got)
	}
	if first.SessionID != second.SessionID {
		t.Error("second Establish returned a different session")
	}
}

func TestEstablishSingleFlight(t *testing.T) {
	svc := newFakeService()
	svc.block = make(chan struct{})
	n := New(Config{ClientID: "client-1", Send: svc.send})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = n.Establish(context.Background())
		}(i)
	}

	// Let all callers pile up on the in-flight handshake
	time.Sleep(50 * time.Millisecond)
	close(svc.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if got := svc.exchanges.Load(); got != 1 {
		t.Errorf("exchanges = %d, want 1 (callers must share one handshake)", got)
	}
}

func TestEstablishRejected(t *testing.T) {
	svc := newFakeService()
	svc.status = wire.StatusRejected
	svc.message = "unsupported protocol version"
	n := New(Config{ClientID: "client-1", Send: svc.send})

	_, err := n.Establish(context.Background())
	if !errors.Is(err, ErrHandshakeRejected) {
		t.Fatalf("err = %v, want ErrHandshakeRejected", err)
	}
	if n.State() != StateFailed {
		t.Errorf("state = %v, want FAILED", n.State())
	}
	if _, err := n.Secret(); !errors.Is(err, ErrNotEstablished) {
		t.Errorf("Secret after rejection = %v, want ErrNotEstablished", err)
	}
}

func TestEstablishTimeout(t *testing.T) {
	svc := newFakeService()
	svc.block = make(chan struct{}) // never closed
	n := New(Config{
		ClientID:         "client-1",
		Send:             svc.send,
		HandshakeTimeout: 20 * time.Millisecond,
	})

	_, err := n.Establish(context.Background())
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("err = %v, want ErrHandshakeTimeout", err)
	}
	if n.State() != StateFailed {
		t.Errorf("state = %v, want FAILED", n.State())
	}
}

func TestEstablishCanceled(t *testing.T) {
	svc := newFakeService()
	svc.block = make(chan struct{}) // never closed
	n := New(Config{
		ClientID:         "client-1",
		Send:             svc.send,
		HandshakeTimeout: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := n.Establish(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrHandshakeTimeout) {
		t.Errorf("caller cancellation must not report a timeout: %v", err)
	}
}

func TestEstablishAfterFailure(t *testing.T) {
	svc := newFakeService()
	svc.status = wire.StatusBusy
	n := New(Config{ClientID: "client-1", Send: svc.send})

	if _, err := n.Establish(context.Background()); err == nil {
		t.Fatal("expected handshake failure")
	}

	// The service recovers; a fresh Establish succeeds
	svc.mu.Lock()
	svc.status = wire.StatusSuccess
	svc.mu.Unlock()

	snap, err := n.Establish(context.Background())
	if err != nil {
		t.Fatalf("Establish after failure: %v", err)
	}
	if snap.State != StateActive {
		t.Errorf("state = %v, want ACTIVE", snap.State)
	}
}

func TestRotate(t *testing.T) {
	svc := newFakeService()
	n := New(Config{ClientID: "client-1", Send: svc.send})

	if _, err := n.Establish(context.Background()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	before, _ := n.Secret()

	svc.mu.Lock()
	svc.sessionID = "sess-2"
	svc.mu.Unlock()

	snap, err := n.Rotate(context.Background())
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if snap.SessionID != "sess-2" {
		t.Errorf("session ID = %q, want %q", snap.SessionID, "sess-2")
	}
	after, _ := n.Secret()
	if string(before) == string(after) {
		t.Error("rotation did not change the shared secret")
	}
	if got := svc.exchanges.Load(); got != 2 {
		t.Errorf("exchanges = %d, want 2", got)
	}
}

func TestRotateFailureKeepsSession(t *testing.T) {
	svc := newFakeService()
	n := New(Config{ClientID: "client-1", Send: svc.send})

	if _, err := n.Establish(context.Background()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	before, _ := n.Secret()

	svc.mu.Lock()
	svc.status = wire.StatusInternal
	svc.mu.Unlock()

	if _, err := n.Rotate(context.Background()); err == nil {
		t.Fatal("expected rotation failure")
	}

	// The old session stays usable until a rotation succeeds
	if n.State() != StateActive {
		t.Errorf("state after failed rotation = %v, want ACTIVE", n.State())
	}
	after, err := n.Secret()
	if err != nil {
		t.Fatalf("Secret after failed rotation: %v", err)
	}
	if string(before) != string(after) {
		t.Error("failed rotation replaced the shared secret")
	}
}

func TestSessionTTL(t *testing.T) {
	svc := newFakeService()
	svc.ttl = 3600
	n := New(Config{ClientID: "client-1", Send: svc.send})

	snap, err := n.Establish(context.Background())
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if snap.ExpiresAt.IsZero() {
		t.Fatal("TTL > 0 should set ExpiresAt")
	}
	if snap.Expired(time.Now()) {
		t.Error("fresh session reported expired")
	}
	if !snap.Expired(snap.ExpiresAt.Add(time.Second)) {
		t.Error("session past ExpiresAt not reported expired")
	}
	if !n.IsActive() {
		t.Error("IsActive = false for unexpired session")
	}
}

func TestReset(t *testing.T) {
	svc := newFakeService()
	n := New(Config{ClientID: "client-1", Send: svc.send})

	if _, err := n.Establish(context.Background()); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	n.Reset()

	if n.State() != StateUninitialized {
		t.Errorf("state after Reset = %v, want UNINITIALIZED", n.State())
	}
	if _, err := n.Secret(); !errors.Is(err, ErrNotEstablished) {
		t.Errorf("Secret after Reset = %v, want ErrNotEstablished", err)
	}
	if snap := n.Snapshot(); snap.SessionID != "" {
		t.Errorf("session ID after Reset = %q, want empty", snap.SessionID)
	}

	// A fresh handshake works after Reset
	if _, err := n.Establish(context.Background()); err != nil {
		t.Fatalf("Establish after Reset: %v", err)
	}
}
