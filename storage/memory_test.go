package storage

import "testing"

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get([]byte("k")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get([]byte("k"))
	if err != nil || string(v) != "v1" {
		t.Fatalf("got %q, %v", v, err)
	}
	if err := s.Delete([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get([]byte("k")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStorePrefixScan(t *testing.T) {
	s := NewMemoryStore()
	s.Put([]byte("a/1"), []byte("1"))
	s.Put([]byte("a/2"), []byte("2"))
	s.Put([]byte("b/1"), []byte("3"))
	res, err := s.PrefixScan([]byte("a/"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res))
	}
}

func TestMemoryStorePutIf(t *testing.T) {
	s := NewMemoryStore()
	if err := s.PutIf([]byte("k"), nil, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutIf([]byte("k"), nil, []byte("v2")); err != ErrCASMismatch {
		t.Fatalf("expected ErrCASMismatch on existing key with nil expected, got %v", err)
	}
	if err := s.PutIf([]byte("k"), []byte("wrong"), []byte("v2")); err != ErrCASMismatch {
		t.Fatalf("expected ErrCASMismatch, got %v", err)
	}
	if err := s.PutIf([]byte("k"), []byte("v1"), []byte("v2")); err != nil {
		t.Fatal(err)
	}
	v, _ := s.Get([]byte("k"))
	if string(v) != "v2" {
		t.Fatalf("expected v2, got %q", v)
	}
}
