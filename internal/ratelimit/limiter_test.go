package ratelimit

import (
	"os"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, rate time.Duration) (*TokenBucketLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewTokenBucketLimiter(limit, rate)
	l.now = clock.now
	return l, clock
}

func TestTokenBucketLimiter_OneEditPerInterval(t *testing.T) {
	l, clock := newTestLimiter(1, 2500*time.Millisecond)

	if !l.Allow(42) {
		t.Fatal("Expected first edit to be allowed")
	}
	if l.Allow(42) {
		t.Error("Expected second edit within the interval to be refused")
	}
	clock.advance(2 * time.Second)
	if l.Allow(42) {
		t.Error("Expected edit after 2s to be refused")
	}
	clock.advance(600 * time.Millisecond)
	if !l.Allow(42) {
		t.Error("Expected edit after 2.6s to be allowed")
	}
}

func TestTokenBucketLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	if !l.Allow(1) || !l.Allow(2) {
		t.Fatal("Expected both keys to get their first token")
	}
	if l.Allow(1) {
		t.Error("Expected key 1 to be limited")
	}
}

func TestTokenBucketLimiter_RefillIsCapped(t *testing.T) {
	l, clock := newTestLimiter(3, time.Second)
	for i := 0; i < 3; i++ {
		l.Allow(7)
	}
	if got := l.Remaining(7); got != 0 {
		t.Fatalf("Expected 0 remaining, got %d", got)
	}
	clock.advance(time.Hour)
	if got := l.Remaining(7); got != 3 {
		t.Errorf("Expected refill capped at 3, got %d", got)
	}
}

func TestTokenBucketLimiter_ResetAndForget(t *testing.T) {
	l, _ := newTestLimiter(1, time.Hour)
	l.Allow(9)
	l.Reset(9)
	if !l.Allow(9) {
		t.Error("Expected token after Reset")
	}
	l.Forget(9)
	if got := l.Remaining(9); got != 1 {
		t.Errorf("Expected forgotten key to start fresh, got %d", got)
	}
}

func TestNoOpRateLimiter(t *testing.T) {
	var l Limiter = NoOpRateLimiter{}
	for i := 0; i < 100; i++ {
		if !l.Allow(1) {
			t.Fatal("NoOp limiter must always allow")
		}
	}
}
