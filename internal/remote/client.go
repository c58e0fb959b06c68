// Package remote is the HTTP client for the civic task service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"civicline/internal/domain"
)

// LocalCredentialPrefix marks a session resolved entirely from the local
// roster. Store logic branches on this prefix to skip remote calls.
const LocalCredentialPrefix = "local:"

// IsLocalCredential reports whether cred was issued by local login.
func IsLocalCredential(cred string) bool {
	return strings.HasPrefix(cred, LocalCredentialPrefix)
}

// Client is a minimal civic service HTTP API client.
type Client struct {
	BaseURL    string
	Credential string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Session is the auth service's login/register response.
type Session struct {
	Credential string          `json:"credential"`
	Identity   domain.Identity `json:"identity"`
}

// Credentials is the login request body.
type Credentials struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// Registration is the register request body.
type Registration struct {
	Name       string `json:"name"`
	Username   string `json:"username"`
	Secret     string `json:"secret"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// FetchPosts retrieves the full task collection in canonical form.
func (c *Client) FetchPosts(ctx context.Context) ([]domain.Task, error) {
	var records []PostRecord
	if err := c.do(ctx, http.MethodGet, "v0/posts", nil, &records); err != nil {
		return nil, err
	}
	return CanonicalTasks(records), nil
}

// CreatePost creates a task remotely and returns it in canonical form.
func (c *Client) CreatePost(ctx context.Context, draft PostDraft) (domain.Task, error) {
	var record PostRecord
	if err := c.do(ctx, http.MethodPost, "v0/posts", draft, &record); err != nil {
		return domain.Task{}, err
	}
	return record.Canonical(), nil
}

// UpdatePost applies a partial update to a remote task.
func (c *Client) UpdatePost(ctx context.Context, id string, fields map[string]any) error {
	endpoint := "v0/posts/" + url.PathEscape(id)
	return c.do(ctx, http.MethodPut, endpoint, fields, nil)
}

// DeletePost removes a remote task.
func (c *Client) DeletePost(ctx context.Context, id string) error {
	endpoint := "v0/posts/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, creds Credentials) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "v0/auth/login", creds, &s)
	return s, err
}

// Register creates an account and returns its session.
func (c *Client) Register(ctx context.Context, reg Registration) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "v0/auth/register", reg, &s)
	return s, err
}

// Me resolves the identity behind the configured credential.
func (c *Client) Me(ctx context.Context) (domain.Identity, error) {
	var id domain.Identity
	err := c.do(ctx, http.MethodGet, "v0/auth/me", nil, &id)
	return id, err
}

// UploadMedia sends one file as multipart form data.
func (c *Client) UploadMedia(ctx context.Context, filename string, r io.Reader) (domain.MediaRef, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return domain.MediaRef{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return domain.MediaRef{}, err
	}
	if err := w.Close(); err != nil {
		return domain.MediaRef{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/v0/media/upload", &buf)
	if err != nil {
		return domain.MediaRef{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuth(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return domain.MediaRef{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return domain.MediaRef{}, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var record MediaRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return domain.MediaRef{}, err
	}
	return domain.MediaRef{ID: record.ID, URL: record.URL, Type: record.Type, UploadedAt: record.UploadedAt}, nil
}

// DeleteMedia removes a previously uploaded file.
func (c *Client) DeleteMedia(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/media/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.Credential != "" && !IsLocalCredential(c.Credential) {
		req.Header.Set("Authorization", "Bearer "+c.Credential)
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
