package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"civicline/internal/cache"
	"civicline/internal/domain"
	"civicline/internal/remote"
)

func authHandler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v0/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds remote.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if creds.Identifier != "ravi" || creds.Secret != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "unauthorized", "message": "invalid credentials"}})
			return
		}
		json.NewEncoder(w).Encode(remote.Session{
			Credential: "tok-ravi",
			Identity:   domain.Identity{ID: "u-1", Name: "Ravi Kumar", Username: "ravi", Role: domain.RoleCitizen},
		})
	})
	mux.HandleFunc("GET /v0/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-ravi" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(domain.Identity{ID: "u-1", Name: "Ravi K. Kumar", Username: "ravi", Role: domain.RoleCitizen})
	})
	return mux
}

func TestSessionLoginRemote(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	rc := testRemote(t, authHandler(t))
	rc.Credential = ""
	d := NewDirectoryStore(c)
	s := NewSessionStore(rc, c, d)

	sess, err := s.Login(ctx, "ravi", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Credential != "tok-ravi" || sess.Identity.ID != "u-1" {
		t.Fatalf("session = %+v", sess)
	}
	if sess.Local() {
		t.Fatal("remote session flagged local")
	}
	if rc.Credential != "tok-ravi" {
		t.Fatalf("client credential = %q, want tok-ravi", rc.Credential)
	}

	var persisted Session
	if err := c.Get(ctx, cache.KeySession, &persisted); err != nil {
		t.Fatal(err)
	}
	if persisted.Credential != "tok-ravi" {
		t.Fatalf("persisted = %+v", persisted)
	}
}

func TestSessionLoginRejectedIsAuthError(t *testing.T) {
	c := testCache(t)
	rc := testRemote(t, authHandler(t))
	rc.Credential = ""
	d := NewDirectoryStore(c)
	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := NewSessionStore(rc, c, d)

	_, err := s.Login(context.Background(), "mike.johnson", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	// a rejection must not fall back to the roster even though the
	// username exists there
	if !strings.Contains(authErr.Reason, "invalid credentials") {
		t.Fatalf("reason = %q", authErr.Reason)
	}
	if _, ok := s.Current(); ok {
		t.Fatal("session adopted after rejection")
	}
}

func TestSessionLoginFallsBackToRoster(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	rc := deadRemote(t)
	rc.Credential = ""
	d := NewDirectoryStore(c)
	if err := d.Load(ctx); err != nil {
		t.Fatal(err)
	}
	s := NewSessionStore(rc, c, d)

	sess, err := s.Login(ctx, "Mike.Johnson", "anything")
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Local() {
		t.Fatalf("credential = %q, want local prefix", sess.Credential)
	}
	if sess.Credential != remote.LocalCredentialPrefix+"w-3001" {
		t.Fatalf("credential = %q", sess.Credential)
	}
	if sess.Identity.Role != domain.RoleWorker {
		t.Fatalf("identity = %+v", sess.Identity)
	}

	_, err = s.Login(ctx, "not-in-roster", "anything")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError for unknown user", err)
	}
}

func TestSessionResolveRevalidatesRemote(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	stored := Session{Credential: "tok-ravi", Identity: domain.Identity{ID: "u-1", Name: "Ravi Kumar"}}
	if err := c.Put(ctx, cache.KeySession, stored); err != nil {
		t.Fatal(err)
	}
	rc := testRemote(t, authHandler(t))
	rc.Credential = ""
	s := NewSessionStore(rc, c, NewDirectoryStore(c))

	sess, ok, err := s.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("session not restored")
	}
	// the service's identity wins over the cached copy
	if sess.Identity.Name != "Ravi K. Kumar" {
		t.Fatalf("identity = %+v", sess.Identity)
	}
}

func TestSessionResolveKeepsCachedIdentityWhenUnreachable(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	stored := Session{Credential: "tok-ravi", Identity: domain.Identity{ID: "u-1", Name: "Ravi Kumar"}}
	if err := c.Put(ctx, cache.KeySession, stored); err != nil {
		t.Fatal(err)
	}
	rc := deadRemote(t)
	rc.Credential = ""
	s := NewSessionStore(rc, c, NewDirectoryStore(c))

	sess, ok, err := s.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || sess.Identity.Name != "Ravi Kumar" {
		t.Fatalf("session = %+v ok=%v", sess, ok)
	}
}

func TestSessionResolveDropsRejectedCredential(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	stored := Session{Credential: "tok-expired", Identity: domain.Identity{ID: "u-1"}}
	if err := c.Put(ctx, cache.KeySession, stored); err != nil {
		t.Fatal(err)
	}
	rc := testRemote(t, authHandler(t))
	rc.Credential = ""
	s := NewSessionStore(rc, c, NewDirectoryStore(c))

	_, ok, err := s.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("rejected credential kept")
	}
	if err := c.Get(ctx, cache.KeySession, &Session{}); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("session still cached: %v", err)
	}
}

func TestSessionResolveLocal(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	d := NewDirectoryStore(c)
	if err := d.Load(ctx); err != nil {
		t.Fatal(err)
	}
	stored := Session{
		Credential: remote.LocalCredentialPrefix + "w-3001",
		Identity:   domain.Identity{ID: "w-3001", Name: "Mike Johnson", Role: domain.RoleWorker},
	}
	if err := c.Put(ctx, cache.KeySession, stored); err != nil {
		t.Fatal(err)
	}
	rc := testRemote(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("local session must not reach the service")
	}))
	rc.Credential = ""
	s := NewSessionStore(rc, c, d)

	sess, ok, err := s.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || sess.Identity.ID != "w-3001" {
		t.Fatalf("session = %+v ok=%v", sess, ok)
	}

	// removing the roster entry invalidates the local session
	if err := d.DeleteUser(ctx, "w-3001", domain.RoleWorker); err != nil {
		t.Fatal(err)
	}
	s2 := NewSessionStore(rc, c, d)
	if _, ok, err := s2.Resolve(ctx); err != nil || ok {
		t.Fatalf("ok=%v err=%v, want signed out", ok, err)
	}
}

func TestSessionLogout(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	rc := testRemote(t, authHandler(t))
	rc.Credential = ""
	s := NewSessionStore(rc, c, NewDirectoryStore(c))
	if _, err := s.Login(ctx, "ravi", "hunter2"); err != nil {
		t.Fatal(err)
	}

	if err := s.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Current(); ok {
		t.Fatal("session survived logout")
	}
	if rc.Credential != "" {
		t.Fatalf("client credential = %q, want cleared", rc.Credential)
	}
	if err := c.Get(ctx, cache.KeySession, &Session{}); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("session still cached: %v", err)
	}
}
