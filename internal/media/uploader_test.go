package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"civicline/internal/remote"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAttachUploadsRemotely(t *testing.T) {
	var mu sync.Mutex
	var uploads []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := r.MultipartForm.File["file"][0]
		mu.Lock()
		uploads = append(uploads, f.Filename)
		mu.Unlock()
		json.NewEncoder(w).Encode(remote.MediaRecord{
			ID:   "m-" + f.Filename,
			URL:  "https://cdn.example/" + f.Filename,
			Type: "image",
		})
	}))
	defer srv.Close()
	rc := remote.New(srv.URL)
	rc.Credential = "tok"

	src := t.TempDir()
	paths := []string{
		writeFixture(t, src, "a.jpg", "aaa"),
		writeFixture(t, src, "b.jpg", "bbb"),
	}
	u := New(rc, t.TempDir())
	refs, err := u.Attach(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("refs = %+v", refs)
	}
	// results keep input order even though uploads run concurrently
	if refs[0].ID != "m-a.jpg" || refs[1].ID != "m-b.jpg" {
		t.Fatalf("refs out of order: %+v", refs)
	}
	for _, ref := range refs {
		if ref.Local {
			t.Fatalf("remote upload flagged local: %+v", ref)
		}
	}
	if len(uploads) != 2 {
		t.Fatalf("uploads = %v", uploads)
	}
}

func TestAttachFallsBackPerFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := r.MultipartForm.File["file"][0]
		if f.Filename == "bad.jpg" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(remote.MediaRecord{ID: "m-" + f.Filename, URL: "https://cdn.example/" + f.Filename})
	}))
	defer srv.Close()
	rc := remote.New(srv.URL)
	rc.Credential = "tok"

	src := t.TempDir()
	dir := t.TempDir()
	paths := []string{
		writeFixture(t, src, "good.jpg", "good"),
		writeFixture(t, src, "bad.jpg", "bad"),
	}
	u := New(rc, dir)
	refs, err := u.Attach(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}
	if refs[0].Local {
		t.Fatalf("good upload degraded: %+v", refs[0])
	}
	if !refs[1].Local {
		t.Fatalf("failed upload not degraded: %+v", refs[1])
	}
	data, err := os.ReadFile(refs[1].URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bad" {
		t.Fatalf("local copy = %q", data)
	}
	if !strings.HasSuffix(refs[1].URL, ".jpg") {
		t.Fatalf("extension lost: %q", refs[1].URL)
	}
}

func TestAttachLocalOnlyWithoutCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unauthenticated uploader must not call the service")
	}))
	defer srv.Close()
	rc := remote.New(srv.URL)

	src := t.TempDir()
	dir := t.TempDir()
	u := New(rc, dir)
	refs, err := u.Attach(context.Background(), []string{writeFixture(t, src, "pic.png", "png")})
	if err != nil {
		t.Fatal(err)
	}
	if !refs[0].Local || refs[0].Type != "image" {
		t.Fatalf("ref = %+v", refs[0])
	}
}

func TestAttachMissingFileFails(t *testing.T) {
	u := New(remote.New("http://unused"), t.TempDir())
	if _, err := u.Attach(context.Background(), []string{"/no/such/file.jpg"}); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestRemoveLocal(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "x.jpg", "x")
	u := New(remote.New("http://unused"), dir)
	ref, err := u.copyLocal(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := u.Remove(context.Background(), ref); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(ref.URL); !os.IsNotExist(err) {
		t.Fatalf("local copy still present: %v", err)
	}
	// idempotent
	if err := u.Remove(context.Background(), ref); err != nil {
		t.Fatal(err)
	}
}
