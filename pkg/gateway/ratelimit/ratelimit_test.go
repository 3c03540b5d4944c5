package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_EnforcesBurst(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Now()

	if d := l.Allow("u1", now); !d.Allowed {
		t.Fatal("first request denied")
	}
	if d := l.Allow("u1", now); !d.Allowed {
		t.Fatal("second request denied within burst")
	}
	d := l.Allow("u1", now)
	if d.Allowed {
		t.Fatal("third request allowed past burst")
	}
	if d.RetryAfter < 1 {
		t.Fatalf("RetryAfter = %d, want >= 1", d.RetryAfter)
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})
	now := time.Now()

	if d := l.Allow("u1", now); !d.Allowed {
		t.Fatal("first request denied")
	}
	if d := l.Allow("u1", now); d.Allowed {
		t.Fatal("second request allowed without refill")
	}
	if d := l.Allow("u1", now.Add(time.Second)); !d.Allowed {
		t.Fatal("request denied after refill window")
	}
}

func TestAllow_IsolatesUsers(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})
	now := time.Now()

	l.Allow("u1", now)
	if d := l.Allow("u2", now); !d.Allowed {
		t.Fatal("u2 throttled by u1's bucket")
	}
}

func TestAllow_DisabledWhenUnconfigured(t *testing.T) {
	l := New(Config{})
	now := time.Now()
	for i := 0; i < 100; i++ {
		if d := l.Allow("u1", now); !d.Allowed {
			t.Fatal("limiter active despite zero config")
		}
	}
}
