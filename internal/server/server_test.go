package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"testing"
	"time"

	"civicline/internal/db"
	"civicline/internal/events"
	"civicline/internal/migrate"
	"civicline/internal/repo"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	mediaDir, err := db.MediaDir(workspace)
	if err != nil {
		t.Fatalf("media dir: %v", err)
	}
	handler, err := New(Config{
		Repo:     repo.Repo{DB: conn},
		Events:   events.Writer{DB: conn},
		Auth:     AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		BasePath: "/v0",
		MediaDir: mediaDir,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func registerAndLogin(t *testing.T, srv *testServer, username string) (string, map[string]string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/register", map[string]any{
		"name":     "Ravi Kumar",
		"username": username,
		"secret":   "hunter2",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	var session SessionResponse
	if err := json.Unmarshal(data, &session); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if session.Credential == "" {
		t.Fatal("no credential issued")
	}
	return session.Credential, map[string]string{"Authorization": "Bearer " + session.Credential}
}

func TestPostLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, auth := registerAndLogin(t, srv, "ravi")

	createRes, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/posts", map[string]any{
		"content":  "Pothole near the bus stand",
		"category": "Roads",
		"priority": "high",
		"hashtags": []string{"pothole"},
	}, auth)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", createRes.StatusCode, string(data))
	}
	var created PostResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal post: %v", err)
	}
	if created.Author.Name != "Ravi Kumar" || created.Author.Avatar != "RK" {
		t.Fatalf("author snapshot = %+v", created.Author)
	}
	if created.Status != "pending" {
		t.Fatalf("status = %q", created.Status)
	}

	listRes, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/posts", nil, auth)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", listRes.StatusCode, string(data))
	}
	var posts []PostResponse
	if err := json.Unmarshal(data, &posts); err != nil {
		t.Fatalf("unmarshal posts: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != created.ID {
		t.Fatalf("posts = %+v", posts)
	}

	updateRes, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/posts/"+created.ID, map[string]any{
		"status":     "assigned",
		"assignedTo": "w-3001",
		"upvotes":    5,
	}, auth)
	if updateRes.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", updateRes.StatusCode, string(data))
	}
	var updated PostResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal updated: %v", err)
	}
	if updated.Status != "assigned" || updated.AssignedTo != "w-3001" || updated.Upvotes != 5 {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.Content != created.Content {
		t.Fatalf("partial update clobbered content: %q", updated.Content)
	}

	deleteRes, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/posts/"+created.ID, nil, auth)
	if deleteRes.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", deleteRes.StatusCode, string(data))
	}
	getRes, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/posts/"+created.ID, nil, auth)
	if getRes.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status %d", getRes.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/posts", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/posts", nil, map[string]string{"Authorization": "Bearer bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus token status %d", res.StatusCode)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestLoginFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	registerAndLogin(t, srv, "ravi")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"identifier": "ravi",
		"secret":     "hunter2",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var session SessionResponse
	if err := json.Unmarshal(data, &session); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if session.Identity.Username != "ravi" || session.Identity.Role != "citizen" {
		t.Fatalf("identity = %+v", session.Identity)
	}

	meRes, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/auth/me", nil, map[string]string{"Authorization": "Bearer " + session.Credential})
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", meRes.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"identifier": "ravi",
		"secret":     "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad secret status %d", res.StatusCode)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/register", map[string]any{
		"name":     "Other Ravi",
		"username": "RAVI",
		"secret":   "x",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate username status %d", res.StatusCode)
	}
}

func newMultipart(t *testing.T, buf *bytes.Buffer, filename, content string) string {
	t.Helper()
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return w.FormDataContentType()
}

func TestMediaUploadAndServe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, auth := registerAndLogin(t, srv, "ravi")

	var buf bytes.Buffer
	w := newMultipart(t, &buf, "photo.jpg", "jpeg-bytes")
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v0/media/upload", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", w)
	req.Header.Set("Authorization", auth["Authorization"])
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upload status %d: %s", res.StatusCode, string(data))
	}
	var uploaded MediaResponse
	if err := json.Unmarshal(data, &uploaded); err != nil {
		t.Fatalf("unmarshal media: %v", err)
	}
	if uploaded.Type != "image" {
		t.Fatalf("media = %+v", uploaded)
	}

	// file serving is public
	fileRes, err := srv.Client().Get(srv.URL + uploaded.URL)
	if err != nil {
		t.Fatal(err)
	}
	fileData, _ := io.ReadAll(fileRes.Body)
	fileRes.Body.Close()
	if fileRes.StatusCode != http.StatusOK || string(fileData) != "jpeg-bytes" {
		t.Fatalf("serve status %d body %q", fileRes.StatusCode, fileData)
	}

	delRes, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/media/"+uploaded.ID, nil, auth)
	if delRes.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", delRes.StatusCode, string(data))
	}
	delRes, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/media/"+uploaded.ID, nil, auth)
	if delRes.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status %d", delRes.StatusCode)
	}
}
