package ratelimit

import "testing"

func TestAllowRespectsBurstThenSteadyState(t *testing.T) {
	l := New(5, 2)
	if !l.Allow("peer-a") {
		t.Fatal("expected first request within burst to be allowed")
	}
	if !l.Allow("peer-a") {
		t.Fatal("expected second request within burst to be allowed")
	}
	if l.Allow("peer-a") {
		t.Fatal("expected third immediate request to exceed burst")
	}
}

func TestBucketsAreIndependentPerKey(t *testing.T) {
	l := New(5, 1)
	if !l.Allow("peer-a") {
		t.Fatal("expected peer-a's first request to be allowed")
	}
	if !l.Allow("peer-b") {
		t.Fatal("expected peer-b to have its own independent bucket")
	}
}

func TestCheckReturnsRateLimitedError(t *testing.T) {
	l := New(5, 1)
	l.Allow("peer-a")
	if err := l.Check("peer-a"); err == nil {
		t.Fatal("expected Check to return an error once the bucket is exhausted")
	}
}

func TestResetClearsBucket(t *testing.T) {
	l := New(5, 1)
	l.Allow("peer-a")
	if l.Allow("peer-a") {
		t.Fatal("expected bucket to be exhausted before reset")
	}
	l.Reset("peer-a")
	if !l.Allow("peer-a") {
		t.Fatal("expected a fresh bucket to allow a request after reset")
	}
}
