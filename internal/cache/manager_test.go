package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	m, err := New("test", 7, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, clock
}

func TestEntryIsExpired(t *testing.T) {
	now := time.Now()
	old := Entry{CreatedAt: now.Add(-8 * 24 * time.Hour), TTLDays: 7}
	if !old.IsExpired(now) {
		t.Fatal("entry created ttl+1 days ago must be expired")
	}
	fresh := Entry{CreatedAt: now, TTLDays: 7}
	if fresh.IsExpired(now) {
		t.Fatal("entry created now must not be expired")
	}
}

func TestGetSetAndExpiry(t *testing.T) {
	m, clock := newTestManager(t)

	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	if err := m.Set("k", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, ok := m.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil || got["a"] != 1 {
		t.Fatalf("unexpected value %s err=%v", raw, err)
	}
	if st := m.Stats(); st.Entries != 1 || st.Hits != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	clock.t = clock.t.Add(8 * 24 * time.Hour)
	if _, ok := m.Get("k"); ok {
		t.Fatal("expected expired entry to be evicted")
	}
	if st := m.Stats(); st.Entries != 0 {
		t.Fatalf("expected eviction, stats=%+v", st)
	}
}

func TestGetOrCompute(t *testing.T) {
	m, _ := newTestManager(t)
	calls := 0
	compute := func() (string, error) {
		calls++
		return "value", nil
	}

	v, fromCache, err := GetOrCompute(m, "k", compute, false)
	if err != nil || v != "value" || fromCache {
		t.Fatalf("first call: v=%q fromCache=%v err=%v", v, fromCache, err)
	}
	v, fromCache, err = GetOrCompute(m, "k", compute, false)
	if err != nil || v != "value" || !fromCache {
		t.Fatalf("second call: v=%q fromCache=%v err=%v", v, fromCache, err)
	}
	if _, _, err := GetOrCompute(m, "k", compute, true); err != nil {
		t.Fatalf("forced refresh: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected compute twice, got %d", calls)
	}

	boom := errors.New("boom")
	if _, _, err := GetOrCompute(m, "other", func() (string, error) { return "", boom }, false); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
}

func TestGetOrComputeWithAPIFirst(t *testing.T) {
	m, clock := newTestManager(t)
	apiCalls := 0
	ok := func() ([]string, error) {
		apiCalls++
		return []string{"eastus"}, nil
	}
	fail := func() ([]string, error) {
		apiCalls++
		return nil, errors.New("az unavailable")
	}

	if _, _, err := GetOrComputeWithAPIFirst(m, "regions", fail); err == nil {
		t.Fatal("expected error with no cache")
	}

	v, src, err := GetOrComputeWithAPIFirst(m, "regions", ok)
	if err != nil || src != SourceAPI || len(v) != 1 {
		t.Fatalf("api call: v=%v src=%s err=%v", v, src, err)
	}

	calls := apiCalls
	v, src, err = GetOrComputeWithAPIFirst(m, "regions", fail)
	if err != nil || src != SourceCache || v[0] != "eastus" {
		t.Fatalf("fresh cache: v=%v src=%s err=%v", v, src, err)
	}
	if apiCalls != calls {
		t.Fatal("fresh cache must not call the api")
	}

	clock.t = clock.t.Add(30 * 24 * time.Hour)
	v, src, err = GetOrComputeWithAPIFirst(m, "regions", fail)
	if err != nil || src != SourceCacheExpired || v[0] != "eastus" {
		t.Fatalf("stale cache: v=%v src=%s err=%v", v, src, err)
	}
}

func TestPrune(t *testing.T) {
	m, clock := newTestManager(t)
	_ = m.Set("old", 1)
	clock.t = clock.t.Add(8 * 24 * time.Hour)
	_ = m.Set("new", 2)

	if n := m.Prune(); n != 1 {
		t.Fatalf("Prune removed %d, want 1", n)
	}
	if _, ok := m.Get("new"); !ok {
		t.Fatal("fresh entry should survive prune")
	}
}

func TestFileStoreWriteThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")
	m, _ := newTestManager(t, WithStore(NewFileStore(path)))
	if err := m.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	var onDisk map[string]Entry
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("cache file is not a JSON object: %v", err)
	}
	entry, ok := onDisk[HashKey("k")]
	if !ok {
		t.Fatalf("expected sha256 key in file, got %s", data)
	}
	if entry.TTLDays != 7 || string(entry.Data) != `"v"` {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	reloaded, err := New("test", 7, WithStore(NewFileStore(path)))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := reloaded.Get("k"); !ok {
		t.Fatal("expected entry after reload")
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New("test", 7, WithStore(NewFileStore(path))); err == nil {
		t.Fatal("expected corrupt cache file to fail")
	}
}

func TestHashKey(t *testing.T) {
	if len(HashKey("x")) != 64 {
		t.Fatal("expected hex sha256")
	}
	if HashKey("a") == HashKey("b") {
		t.Fatal("distinct keys must hash differently")
	}
}
