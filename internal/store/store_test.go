package store

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicline/internal/cache"
	"civicline/internal/db"
	"civicline/internal/migrate"
	"civicline/internal/remote"
)

var testClock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testCache(t *testing.T) cache.Cache {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return cache.Cache{DB: conn, Now: func() time.Time { return testClock }}
}

// testRemote builds a client pointed at a handler, pre-authorized so store
// logic takes the remote path.
func testRemote(t *testing.T, handler http.Handler) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	rc := remote.New(srv.URL)
	rc.Credential = "test-credential"
	return rc
}

// deadRemote points at a closed listener so every call fails at transport.
func deadRemote(t *testing.T) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	rc := remote.New(srv.URL)
	rc.Credential = "test-credential"
	return rc
}
