package vizsession

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t testing.TB) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestSQLiteStore(t)

	ctx := context.Background()
	s := &Session{
		ID:        "test-session",
		Values:    map[string]any{"foo": "bar", "count": 42},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	if err := store.Save(ctx, s); err != nil {
		t.Errorf("failed to save session: %v", err)
	}

	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Errorf("failed to get session: %v", err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if got.ID != s.ID {
		t.Errorf("expected ID %s, got %s", s.ID, got.ID)
	}
	if got.Values["foo"] != "bar" || got.Values["count"].(int) != 42 {
		t.Errorf("unexpected values: %v", got.Values)
	}

	missing, err := store.Get(ctx, "never-saved")
	if err != nil {
		t.Errorf("failed to get missing session: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for a session that was never saved")
	}

	expired := &Session{
		ID:        "expired-session",
		Values:    map[string]any{"key": "val"},
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := store.Save(ctx, expired); err != nil {
		t.Errorf("failed to save expired session: %v", err)
	}

	got, err = store.Get(ctx, expired.ID)
	if err != nil {
		t.Errorf("failed to get expired session: %v", err)
	}
	if got != nil {
		t.Error("expired session must not be returned")
	}

	if err := store.Cleanup(ctx); err != nil {
		t.Errorf("failed cleanup: %v", err)
	}

	var n int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM viz_sessions WHERE id = ?", expired.ID).Scan(&n); err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if n != 0 {
		t.Error("expected expired session to be cleaned up")
	}
}

func TestSQLiteStoreEmptySession(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	s := newSession("empty-session", time.Hour)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("failed to save empty session: %v", err)
	}

	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("failed to get empty session: %v", err)
	}
	if got == nil {
		t.Fatal("empty session not found")
	}
	if got.Values == nil || len(got.Values) != 0 {
		t.Errorf("expected empty non-nil values, got %v", got.Values)
	}
}

func TestMemcachedStore(t *testing.T) {
	// Memcached is often not available in CI/local envs by default.
	server := "127.0.0.1:11211"
	store := NewMemcachedStore(time.Minute, server)
	defer store.Close()

	ctx := context.Background()
	testSession := &Session{
		ID:        "test-memcached",
		Values:    map[string]any{"color": "blue"},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Minute),
	}

	if err := store.Save(ctx, testSession); err != nil {
		t.Skipf("Skipping Memcached test: %v (is memcached running on %s?)", err, server)
	}

	got, err := store.Get(ctx, testSession.ID)
	if err != nil {
		t.Fatalf("failed to get from memcached: %v", err)
	}
	if got == nil {
		t.Fatal("session not found in memcached")
	}
	if got.Values["color"] != "blue" {
		t.Errorf("expected color blue, got %v", got.Values["color"])
	}

	item, err := store.client.Get("vizsession:" + testSession.ID)
	if err != nil {
		t.Fatalf("expected prefixed key in memcached: %v", err)
	}
	if len(item.Value) == 0 {
		t.Error("expected encoded envelope under prefixed key")
	}
}

// Benchmarks

func BenchmarkSQLiteStore_Save(b *testing.B) {
	store := newTestSQLiteStore(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		session := &Session{
			ID:        "bench-session",
			Values:    map[string]any{"key": "value", "count": i},
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		if err := store.Save(ctx, session); err != nil {
			b.Fatalf("failed to save: %v", err)
		}
	}
}

func BenchmarkSQLiteStore_GetParallel(b *testing.B) {
	store := newTestSQLiteStore(b)
	ctx := context.Background()
	session := &Session{
		ID:        "bench-get-session",
		Values:    map[string]any{"key": "value"},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := store.Save(ctx, session); err != nil {
		b.Fatalf("failed to save: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := store.Get(ctx, session.ID); err != nil {
				b.Errorf("failed to get: %v", err)
			}
		}
	})
}

func BenchmarkMemcachedStore_Save(b *testing.B) {
	store := NewMemcachedStore(time.Hour, "127.0.0.1:11211")
	ctx := context.Background()

	probe := newSession("bench-mc-probe", time.Hour)
	if err := store.Save(ctx, probe); err != nil {
		b.Skipf("Skipping Memcached benchmark: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		session := &Session{
			ID:        "bench-mc-session",
			Values:    map[string]any{"key": "value", "count": i},
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		if err := store.Save(ctx, session); err != nil {
			b.Fatalf("failed to save: %v", err)
		}
	}
}
