package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/keystore"
	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// fakeRefresher counts refresh calls and returns a canned result.
type fakeRefresher struct {
	calls atomic.Int32
	block chan struct{} // if non-nil, Refresh waits until closed
	token *Token
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func validToken() *Token {
	return &Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestAttach(t *testing.T) {
	c := New(keystore.NewMemory(), &fakeRefresher{}, nil)

	req := &wire.Request{Method: "GET", Endpoint: "/v1/items"}
	if err := c.Attach(req); !errors.Is(err, ErrNoToken) {
		t.Errorf("Attach without token = %v, want ErrNoToken", err)
	}

	if err := c.SetToken(validToken()); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if err := c.Attach(req); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if req.Authorization != "Bearer access-1" {
		t.Errorf("Authorization = %q, want %q", req.Authorization, "Bearer access-1")
	}
}

func TestTokenPersistence(t *testing.T) {
	store := keystore.NewMemory()

	first := New(store, &fakeRefresher{}, nil)
	if err := first.SetToken(validToken()); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	// A new coordinator over the same store resumes with the token.
	second := New(store, &fakeRefresher{}, nil)
	tok, err := second.Token()
	if err != nil {
		t.Fatalf("Token after reload: %v", err)
	}
	if tok.AccessToken != "access-1" {
		t.Errorf("reloaded AccessToken = %q, want %q", tok.AccessToken, "access-1")
	}
}

func TestSingleFlightRefresh(t *testing.T) {
	refresher := &fakeRefresher{
		block: make(chan struct{}),
		token: &Token{AccessToken: "access-2", RefreshToken: "refresh-2"},
	}
	c := New(keystore.NewMemory(), refresher, nil)
	if err := c.SetToken(validToken()); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.HandleUnauthorized(context.Background())
		}(i)
	}

	// Let all callers pile onto the in-flight refresh, then release it.
	time.Sleep(50 * time.Millisecond)
	close(refresher.block)
	wg.Wait()

	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}

	tok, err := c.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "access-2" {
		t.Errorf("AccessToken after refresh = %q, want %q", tok.AccessToken, "access-2")
	}
}

func TestRefreshFailure(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("idp says no")}
	c := New(keystore.NewMemory(), refresher, nil)
	if err := c.SetToken(validToken()); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	err := c.HandleUnauthorized(context.Background())
	if !errors.Is(err, ErrReauthenticationRequired) {
		t.Errorf("HandleUnauthorized = %v, want ErrReauthenticationRequired", err)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	c := New(keystore.NewMemory(), &fakeRefresher{}, nil)

	err := c.HandleUnauthorized(context.Background())
	if !errors.Is(err, ErrReauthenticationRequired) {
		t.Errorf("HandleUnauthorized without token = %v, want ErrReauthenticationRequired", err)
	}
}

func TestLogout(t *testing.T) {
	store := keystore.NewMemory()
	c := New(store, &fakeRefresher{}, nil)
	if err := c.SetToken(validToken()); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	if err := c.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := c.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token after logout = %v, want ErrNoToken", err)
	}
	if _, err := store.Get(keystore.KeyAuthToken); !errors.Is(err, keystore.ErrNotFound) {
		t.Errorf("store still holds token after logout: err = %v", err)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	fresh := &Token{ExpiresAt: now.Add(time.Hour)}
	if fresh.Expired(now) {
		t.Error("fresh token reported expired")
	}

	nearExpiry := &Token{ExpiresAt: now.Add(ExpirySkew / 2)}
	if !nearExpiry.Expired(now) {
		t.Error("token within skew window not reported expired")
	}

	unbounded := &Token{}
	if unbounded.Expired(now) {
		t.Error("token without expiry reported expired")
	}
}
