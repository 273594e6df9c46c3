package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openBackends(t *testing.T) map[string]KV {
	t.Helper()
	ctx := context.Background()

	sqlite, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	bdg, err := NewBadger(InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { bdg.Close() })

	backends := map[string]KV{
		"memory": NewMemory(),
		"sqlite": sqlite,
		"badger": bdg,
	}

	if addr := os.Getenv("STUDYBUDDY_TEST_REDIS_ADDR"); addr != "" {
		r, err := NewRedis(ctx, RedisConfig{Addr: addr})
		if err != nil {
			t.Fatalf("open redis: %v", err)
		}
		t.Cleanup(func() { r.Close() })
		backends["redis"] = r
	}
	if url := os.Getenv("STUDYBUDDY_TEST_POSTGRES_URL"); url != "" {
		p, err := NewPostgres(ctx, url)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		t.Cleanup(func() { p.Close() })
		backends["postgres"] = p
	}
	return backends
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, kv := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			key := "test:" + name + ":" + time.Now().Format(time.RFC3339Nano)

			if _, err := kv.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing key: err = %v, want ErrNotFound", err)
			}

			if err := kv.Set(ctx, key, []byte(`{"a":1}`)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := kv.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != `{"a":1}` {
				t.Errorf("Get = %q, want %q", got, `{"a":1}`)
			}

			// Last writer wins.
			if err := kv.Set(ctx, key, []byte(`{"a":2}`)); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, _ = kv.Get(ctx, key)
			if string(got) != `{"a":2}` {
				t.Errorf("Get after overwrite = %q", got)
			}

			if err := kv.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := kv.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after delete: err = %v, want ErrNotFound", err)
			}

			// Deleting a missing key is not an error.
			if err := kv.Delete(ctx, key); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	s.Close()

	s, err = NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("got %q, want %q", got, "v")
	}

	var mode string
	if err := s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpenMemoryAndUnknown(t *testing.T) {
	ctx := context.Background()
	kv, err := Open(ctx, Config{Backend: BackendMemory}, nil)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	kv.Close()

	if _, err := Open(ctx, Config{Backend: "floppy"}, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpenSQLiteDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STUDYBUDDY_DB", filepath.Join(dir, "nested", "sb.db"))

	kv, err := Open(context.Background(), Config{Backend: BackendSQLite}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	if _, err := os.Stat(filepath.Join(dir, "nested")); err != nil {
		t.Fatalf("expected parent dir to be created: %v", err)
	}
}

func TestDefaultDBPathXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STUDYBUDDY_DB", "")
	t.Setenv("XDG_DATA_HOME", dir)

	p, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath: %v", err)
	}
	want := filepath.Join(dir, "studybuddy", "studybuddy.db")
	if p != want {
		t.Errorf("DefaultDBPath = %q, want %q", p, want)
	}
}
