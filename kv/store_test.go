package kv

import (
	"fmt"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := New[string]()
	s.Set("greeting", "hello", 0)

	got, ok := s.Get("greeting")
	if !ok {
		t.Fatal("Get after Set returned absent")
	}
	if got != "hello" {
		t.Errorf("Get = %q, want %q", got, "hello")
	}

	if _, ok := s.Get("never-set"); ok {
		t.Error("Get of unset key should be absent")
	}
}

func TestTTLExpiry(t *testing.T) {
	t.Parallel()

	s := New[int]()
	s.Set("flag", 1, 40*time.Millisecond)

	if !s.Exists("flag") {
		t.Fatal("key should exist before TTL elapses")
	}

	time.Sleep(60 * time.Millisecond)

	if s.Exists("flag") {
		t.Error("key should be absent after TTL elapses")
	}
	if _, ok := s.Get("flag"); ok {
		t.Error("Get should report absent after TTL elapses")
	}
}

func TestOverwriteClearsTTL(t *testing.T) {
	t.Parallel()

	s := New[string]()
	s.Set("k", "v1", 30*time.Millisecond)
	s.Set("k", "v2", 0) // fresh write, no expiry

	time.Sleep(50 * time.Millisecond)

	got, ok := s.Get("k")
	if !ok {
		t.Fatal("overwrite without TTL should have cleared the original expiry")
	}
	if got != "v2" {
		t.Errorf("Get = %q, want %q", got, "v2")
	}
}

func TestDel(t *testing.T) {
	t.Parallel()

	s := New[string]()
	s.Set("k", "v", 0)

	if n := s.Del("k"); n != 1 {
		t.Errorf("Del of existing key = %d, want 1", n)
	}
	if n := s.Del("k"); n != 0 {
		t.Errorf("Del of removed key = %d, want 0", n)
	}
	if n := s.Del("never-set"); n != 0 {
		t.Errorf("Del of unset key = %d, want 0", n)
	}
}

func TestDelExpired(t *testing.T) {
	t.Parallel()

	s := New[string]()
	s.Set("k", "v", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	// The entry is logically absent even though still resident.
	if n := s.Del("k"); n != 0 {
		t.Errorf("Del of expired key = %d, want 0", n)
	}
}

func TestExpire(t *testing.T) {
	t.Parallel()

	s := New[string]()

	if s.Expire("missing", time.Second) {
		t.Error("Expire on absent key should return false")
	}

	s.Set("k", "v", 0)
	if !s.Expire("k", 30*time.Millisecond) {
		t.Fatal("Expire on existing key should return true")
	}

	time.Sleep(50 * time.Millisecond)
	if s.Exists("k") {
		t.Error("key should expire after Expire-set TTL")
	}
}

func TestExpireExtends(t *testing.T) {
	t.Parallel()

	s := New[string]()
	s.Set("k", "v", 30*time.Millisecond)
	if !s.Expire("k", 200*time.Millisecond) {
		t.Fatal("Expire should succeed on live key")
	}

	time.Sleep(60 * time.Millisecond)
	if !s.Exists("k") {
		t.Error("Expire should have extended the TTL past the original deadline")
	}
}

func TestKeysGlob(t *testing.T) {
	t.Parallel()

	s := New[int]()
	s.Set("job:1", 1, 0)
	s.Set("job:2", 2, 0)
	s.Set("job:3", 3, 25*time.Millisecond)
	s.Set("user:1", 4, 0)

	time.Sleep(45 * time.Millisecond)

	keys, err := s.Keys("job:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}

	want := []string{"job:1", "job:2"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("Keys[%d] = %q, want %q", i, keys[i], k)
		}
	}
}

func TestKeysBadPattern(t *testing.T) {
	t.Parallel()

	s := New[int]()
	s.Set("a", 1, 0)

	keys, err := s.Keys("[unclosed")
	if err == nil {
		t.Fatal("malformed glob should fail closed with an error")
	}
	if keys != nil {
		t.Errorf("malformed glob returned keys: %v", keys)
	}
}

func TestFlush(t *testing.T) {
	t.Parallel()

	s := New[string]()
	for i := range 5 {
		s.Set(fmt.Sprintf("k%d", i), "v", 0)
	}

	s.Flush()

	if n := s.Len(); n != 0 {
		t.Errorf("Len after Flush = %d, want 0", n)
	}
	for i := range 5 {
		if s.Exists(fmt.Sprintf("k%d", i)) {
			t.Errorf("k%d should be absent after Flush", i)
		}
	}
}

func TestLenPurgesExpired(t *testing.T) {
	t.Parallel()

	s := New[string]()
	s.Set("live", "v", 0)
	s.Set("dying", "v", 20*time.Millisecond)

	time.Sleep(40 * time.Millisecond)

	if n := s.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestStructValues(t *testing.T) {
	t.Parallel()

	type session struct {
		User string
		Hits int
	}

	s := New[session]()
	s.Set("sess:1", session{User: "ada", Hits: 3}, 0)

	got, ok := s.Get("sess:1")
	if !ok || got.User != "ada" || got.Hits != 3 {
		t.Errorf("Get = %+v, ok=%v", got, ok)
	}
}
