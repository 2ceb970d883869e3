package ristretto

import "testing"

func TestTokenCountCacheRoundTrip(t *testing.T) {
	cache, err := NewTokenCountCache(1 << 20)
	if err != nil {
		t.Fatalf("NewTokenCountCache: %v", err)
	}
	defer cache.Close()

	if _, ok := cache.Get("model\x00hello"); ok {
		t.Fatal("empty cache should miss")
	}

	cache.Set("model\x00hello", 7)
	cache.c.Wait() // ristretto admits asynchronously

	got, ok := cache.Get("model\x00hello")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestTokenCountCacheKeysAreIndependent(t *testing.T) {
	cache, err := NewTokenCountCache(1 << 20)
	if err != nil {
		t.Fatalf("NewTokenCountCache: %v", err)
	}
	defer cache.Close()

	cache.Set("model-a\x00text", 3)
	cache.Set("model-b\x00text", 9)
	cache.c.Wait()

	if got, _ := cache.Get("model-a\x00text"); got != 3 {
		t.Fatalf("model-a: expected 3, got %d", got)
	}
	if got, _ := cache.Get("model-b\x00text"); got != 9 {
		t.Fatalf("model-b: expected 9, got %d", got)
	}
}
