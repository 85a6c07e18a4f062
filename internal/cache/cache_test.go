package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache"), ttl, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestNew(t *testing.T) {
	c := newTestCache(t, time.Hour)
	if !c.Enabled() {
		t.Error("cache should be enabled")
	}

	c, err := New("", 0, false)
	if err != nil {
		t.Fatalf("New() error for disabled cache: %v", err)
	}
	if c.Enabled() {
		t.Error("cache should be disabled")
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "nested", "cache", "dir")

	if _, err := New(cacheDir, time.Hour, true); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		t.Error("New() should create cache directory")
	}
}

func TestSetAndGetWithHash(t *testing.T) {
	c := newTestCache(t, time.Hour)
	key := Key("drupal", "abc123", "core")
	data := []byte(`{"production":{"loc":10}}`)

	if err := c.SetWithHash(key, "script-v1", data); err != nil {
		t.Fatalf("SetWithHash() error: %v", err)
	}

	got, ok := c.GetWithHash(key, "script-v1")
	if !ok {
		t.Fatal("GetWithHash() should hit with matching fingerprint")
	}
	if string(got) != string(data) {
		t.Errorf("GetWithHash() = %s, want %s", got, data)
	}

	if _, ok := c.GetWithHash(key, "script-v2"); ok {
		t.Error("GetWithHash() should miss when the fingerprint changed")
	}
	if _, ok := c.GetWithHash(Key("drupal", "def456", "core"), "script-v1"); ok {
		t.Error("GetWithHash() should miss for an unknown key")
	}
}

func TestSetWithHash_Overwrites(t *testing.T) {
	c := newTestCache(t, time.Hour)
	key := Key("typo3", "abc")

	if err := c.SetWithHash(key, "h", []byte(`1`)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetWithHash(key, "h", []byte(`2`)); err != nil {
		t.Fatal(err)
	}

	got, ok := c.GetWithHash(key, "h")
	if !ok || string(got) != "2" {
		t.Errorf("GetWithHash() = %s, %v; want 2, true", got, ok)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1 (no leftover temp files)", stats.Entries)
	}
}

func TestSetWithHash_RejectsInvalidJSON(t *testing.T) {
	c := newTestCache(t, time.Hour)
	if err := c.SetWithHash("k", "h", []byte("{not json")); err == nil {
		t.Error("SetWithHash() should reject invalid JSON data")
	}
}

func TestGetWithHash_CorruptEntry(t *testing.T) {
	c := newTestCache(t, time.Hour)
	if err := os.WriteFile(c.keyPath("k"), []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.GetWithHash("k", "h"); ok {
		t.Error("GetWithHash() should miss on a corrupt entry")
	}
	if _, err := os.Stat(c.keyPath("k")); !os.IsNotExist(err) {
		t.Error("corrupt entry should be removed")
	}
}

func TestTTLExpiration(t *testing.T) {
	c := newTestCache(t, time.Hour)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.SetWithHash("k", "h", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	now = now.Add(30 * time.Minute)
	if _, ok := c.GetWithHash("k", "h"); !ok {
		t.Error("entry should still be valid")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.GetWithHash("k", "h"); ok {
		t.Error("entry should have expired")
	}
	if _, err := os.Stat(c.keyPath("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := newTestCache(t, 0)
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.SetWithHash("k", "h", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	now = now.AddDate(5, 0, 0)
	if _, ok := c.GetWithHash("k", "h"); !ok {
		t.Error("entry without ttl should not expire")
	}
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(t, time.Hour)

	if err := c.SetWithHash("k", "h", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate("k"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if _, ok := c.GetWithHash("k", "h"); ok {
		t.Error("entry should be gone after Invalidate()")
	}
	if err := c.Invalidate("k"); err != nil {
		t.Errorf("Invalidate() of a missing entry should succeed, got %v", err)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, time.Hour)

	for _, k := range []string{"a", "b", "c"} {
		if err := c.SetWithHash(k, "h", []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() after Clear() error: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d after Clear(), want 0", stats.Entries)
	}
}

func TestDisabledCache(t *testing.T) {
	c, err := New("", 0, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.SetWithHash("k", "h", []byte(`{}`)); err != nil {
		t.Errorf("SetWithHash() on disabled cache error: %v", err)
	}
	if _, ok := c.GetWithHash("k", "h"); ok {
		t.Error("disabled cache should always miss")
	}
	if err := c.Invalidate("k"); err != nil {
		t.Errorf("Invalidate() on disabled cache error: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Errorf("Clear() on disabled cache error: %v", err)
	}
	stats, err := c.GetStats()
	if err != nil || stats.Entries != 0 {
		t.Errorf("GetStats() on disabled cache = %+v, %v", stats, err)
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drupalisms.php")
	if err := os.WriteFile(path, []byte("<?php echo 1;"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}
	if got != HashBytes([]byte("<?php echo 1;")) {
		t.Error("HashFile() should match HashBytes() of the same content")
	}
	if len(got) != 64 {
		t.Errorf("hash length = %d, want 64", len(got))
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "missing.php")); err == nil {
		t.Error("HashFile() should fail for a missing file")
	}
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("one"))
	b := HashBytes([]byte("one"))
	c := HashBytes([]byte("two"))

	if a != b {
		t.Error("HashBytes() should be deterministic")
	}
	if a == c {
		t.Error("different inputs should produce different hashes")
	}
}

func TestKey(t *testing.T) {
	if got := Key("drupal", "abc", "core"); got != "drupal|abc|core" {
		t.Errorf("Key() = %q", got)
	}
}

func TestSpecialCharactersInKey(t *testing.T) {
	c := newTestCache(t, time.Hour)
	key := Key("typo3", "abc", "typo3/sysext")

	if err := c.SetWithHash(key, "h", []byte(`{}`)); err != nil {
		t.Fatalf("SetWithHash() error: %v", err)
	}
	if _, ok := c.GetWithHash(key, "h"); !ok {
		t.Error("keys containing path separators should round-trip")
	}
}

func TestGetStats(t *testing.T) {
	c := newTestCache(t, time.Hour)

	for _, k := range []string{"a", "b"} {
		if err := c.SetWithHash(k, "h", []byte(`{"x":1}`)); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.TotalSize <= 0 {
		t.Error("TotalSize should be positive")
	}
}
