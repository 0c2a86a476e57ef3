package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return s
}

func TestFromToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub":     "u-guest-1",
		"name":    "Guest",
		"email":   "",
		"isGuest": true,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	id, err := FromToken(token)
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}
	if id.UserID != "u-guest-1" {
		t.Fatalf("UserID = %q, want u-guest-1", id.UserID)
	}
	if !id.IsGuest {
		t.Fatal("IsGuest = false, want true")
	}
	if id.Token != token {
		t.Fatal("raw token not carried on identity")
	}
}

func TestFromTokenGarbage(t *testing.T) {
	if _, err := FromToken("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	live := signedToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(time.Hour).Unix()})
	if TokenExpired(live, now) {
		t.Fatal("live token reported expired")
	}

	stale := signedToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(-time.Hour).Unix()})
	if !TokenExpired(stale, now) {
		t.Fatal("stale token reported live")
	}

	noExp := signedToken(t, jwt.MapClaims{"sub": "u"})
	if TokenExpired(noExp, now) {
		t.Fatal("token without exp treated as expired")
	}

	if !TokenExpired("garbage", now) {
		t.Fatal("unparseable token treated as live")
	}
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	want := Identity{UserID: "u-1", IsGuest: true, Token: "tok"}
	bus.Publish(Change{Kind: ChangeLogin, Identity: want})

	select {
	case got := <-ch:
		if got.Kind != ChangeLogin || got.Identity != want {
			t.Fatalf("change = %+v", got)
		}
	default:
		t.Fatal("no change delivered")
	}

	if cur := bus.Current(); cur != want {
		t.Fatalf("Current = %+v, want %+v", cur, want)
	}
}

func TestBusCancelledSubscriberMissesEvents(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()

	bus.Publish(Change{Kind: ChangeLogout})
	select {
	case <-ch:
		t.Fatal("cancelled subscriber received event")
	default:
	}
}

func TestBusFullBufferDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.Publish(Change{Kind: ChangeLogin})
		bus.Publish(Change{Kind: ChangeLogout}) // buffer full, must not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
