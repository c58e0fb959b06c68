// Package server exposes the civic task service HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"civicline/internal/domain"
	"civicline/internal/events"
	"civicline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Repo     repo.Repo
	Events   events.Writer
	Auth     AuthConfig
	BasePath string
	// MediaDir is where uploaded files are stored and served from.
	MediaDir string
	Now      func() time.Time
	Log      *slog.Logger
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Config) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"post not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the civic API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.MediaDir == "" {
		return nil, errors.New("media dir required")
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Civicline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg)
	registerPosts(group, cfg)
	registerComments(group, cfg)
	registerMediaDelete(group, cfg)
	registerMediaUpload(router, cfg, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique"):
		return newAPIError(http.StatusConflict, "conflict", "username already taken", nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a session",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		if input.Body.Identifier == "" || input.Body.Secret == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "identifier and secret are required", nil)
		}
		account, err := cfg.Repo.GetAccountByUsername(ctx, input.Body.Identifier)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		if !checkSecret(account.SecretHash, input.Body.Secret) {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
		}
		token, err := issueToken(cfg.Auth.JWTSecret, account.ID, string(account.Role), cfg.now(), cfg.Auth.ttl())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Credential: token, Identity: identityResponse(account.Identity)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" || input.Body.Username == "" || input.Body.Secret == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name, username and secret are required", nil)
		}
		role := domain.Role(input.Body.Role)
		switch role {
		case "":
			role = domain.RoleCitizen
		case domain.RoleCitizen, domain.RoleOfficial, domain.RoleWorker, domain.RoleAdmin:
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid role %q", input.Body.Role), nil)
		}
		hash, err := hashSecret(input.Body.Secret)
		if err != nil {
			return nil, handleError(err)
		}
		now := cfg.now().UTC()
		account := repo.Account{
			Identity: domain.Identity{
				ID:         uuid.NewString(),
				Name:       input.Body.Name,
				Username:   input.Body.Username,
				Role:       role,
				Department: input.Body.Department,
				Status:     "active",
				CreatedAt:  now.Format(time.RFC3339),
			},
			SecretHash: hash,
		}
		if err := cfg.Repo.InsertAccount(ctx, account); err != nil {
			return nil, handleError(err)
		}
		appendEvent(ctx, cfg, "account.registered", "account", account.ID, account.ID, events.EventPayload{"role": string(role)})
		token, err := issueToken(cfg.Auth.JWTSecret, account.ID, string(role), now, cfg.Auth.ttl())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Credential: token, Identity: identityResponse(account.Identity)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Resolve the authenticated identity",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body IdentityResponse `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		account, err := cfg.Repo.GetAccount(ctx, accountID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IdentityResponse `json:"body"`
		}{Body: identityResponse(account.Identity)}, nil
	})
}

var validStatuses = map[domain.Status]bool{
	domain.StatusPending:    true,
	domain.StatusAssigned:   true,
	domain.StatusInProgress: true,
	domain.StatusCompleted:  true,
	domain.StatusReviewed:   true,
}

func registerPosts(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-posts",
		Method:      http.MethodGet,
		Path:        "/posts",
		Summary:     "List posts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PostResponse `json:"body"`
	}, error) {
		posts, err := cfg.Repo.ListPosts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PostResponse `json:"body"`
		}{Body: mapPosts(posts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-post",
		Method:        http.MethodPost,
		Path:          "/posts",
		Summary:       "Create post",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreatePostRequest `json:"body"`
	}) (*struct {
		Body PostResponse `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.Content) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "content is required", nil)
		}
		status := domain.Status(input.Body.Status)
		if status == "" {
			status = domain.StatusPending
		}
		if !validStatuses[status] {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid status %q", input.Body.Status), nil)
		}
		account, err := cfg.Repo.GetAccount(ctx, accountID)
		if err != nil {
			return nil, handleError(err)
		}
		now := cfg.now().UTC()
		t := domain.Task{
			ID:           uuid.NewString(),
			AuthorName:   account.Name,
			AuthorAvatar: avatarInitials(account.Name),
			AuthorRole:   account.Role,
			Content:      input.Body.Content,
			Category:     input.Body.Category,
			Priority:     input.Body.Priority,
			Department:   input.Body.Department,
			Location:     input.Body.Location,
			Hashtags:     input.Body.Hashtags,
			Status:       status,
			CreatedAt:    now.Format(time.RFC3339),
		}
		for _, m := range input.Body.Media {
			t.Media = append(t.Media, domain.MediaRef{ID: m.ID, URL: m.URL, Type: m.Type, UploadedAt: m.UploadedAt})
		}
		if err := cfg.Repo.InsertPost(ctx, t); err != nil {
			return nil, handleError(err)
		}
		appendEvent(ctx, cfg, "post.created", "post", t.ID, accountID, events.EventPayload{"category": t.Category})
		return &struct {
			Body PostResponse `json:"body"`
		}{Body: postResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-post",
		Method:      http.MethodGet,
		Path:        "/posts/{post_id}",
		Summary:     "Get post",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PostID string `path:"post_id"`
	}) (*struct {
		Body PostResponse `json:"body"`
	}, error) {
		t, err := cfg.Repo.GetPost(ctx, input.PostID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PostResponse `json:"body"`
		}{Body: postResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-post",
		Method:      http.MethodPut,
		Path:        "/posts/{post_id}",
		Summary:     "Update post fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PostID string         `path:"post_id"`
		Body   map[string]any `json:"body"`
	}) (*struct {
		Body PostResponse `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if raw, ok := input.Body["status"]; ok {
			status, _ := raw.(string)
			if !validStatuses[domain.Status(status)] {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid status %q", status), nil)
			}
		}
		if err := cfg.Repo.UpdatePost(ctx, input.PostID, input.Body); err != nil {
			return nil, handleError(err)
		}
		appendEvent(ctx, cfg, "post.updated", "post", input.PostID, accountID, events.EventPayload{"fields": keys(input.Body)})
		t, err := cfg.Repo.GetPost(ctx, input.PostID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PostResponse `json:"body"`
		}{Body: postResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-post",
		Method:        http.MethodDelete,
		Path:          "/posts/{post_id}",
		Summary:       "Delete post",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PostID string `path:"post_id"`
	}) (*struct{}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := cfg.Repo.DeletePost(ctx, input.PostID); err != nil {
			return nil, handleError(err)
		}
		appendEvent(ctx, cfg, "post.deleted", "post", input.PostID, accountID, nil)
		return &struct{}{}, nil
	})
}

func registerComments(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/posts/{post_id}/comments",
		Summary:       "Comment on a post",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PostID string `path:"post_id"`
		Body   struct {
			Text string `json:"text"`
		} `json:"body"`
	}) (*struct {
		Body CommentResponse `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.Text) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", nil)
		}
		if _, err := cfg.Repo.GetPost(ctx, input.PostID); err != nil {
			return nil, handleError(err)
		}
		account, err := cfg.Repo.GetAccount(ctx, accountID)
		if err != nil {
			return nil, handleError(err)
		}
		c := domain.Comment{
			ID:        uuid.NewString(),
			Author:    account.Name,
			Text:      input.Body.Text,
			CreatedAt: cfg.now().UTC().Format(time.RFC3339),
		}
		if err := cfg.Repo.InsertComment(ctx, input.PostID, c); err != nil {
			return nil, handleError(err)
		}
		appendEvent(ctx, cfg, "post.commented", "post", input.PostID, accountID, nil)
		return &struct {
			Body CommentResponse `json:"body"`
		}{Body: CommentResponse{ID: c.ID, Author: c.Author, Text: c.Text, CreatedAt: c.CreatedAt}}, nil
	})
}

func registerMediaDelete(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "delete-media",
		Method:        http.MethodDelete,
		Path:          "/media/{media_id}",
		Summary:       "Delete an uploaded file",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MediaID string `path:"media_id"`
	}) (*struct{}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := cfg.Repo.GetMedia(ctx, input.MediaID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := cfg.Repo.DeleteMedia(ctx, input.MediaID); err != nil {
			return nil, handleError(err)
		}
		if name := path.Base(m.URL); name != "" && name != "." {
			if err := os.Remove(filepath.Join(cfg.MediaDir, name)); err != nil && !os.IsNotExist(err) {
				cfg.logger().Warn("remove media file", "id", m.ID, "error", err)
			}
		}
		appendEvent(ctx, cfg, "media.deleted", "media", input.MediaID, accountID, nil)
		return &struct{}{}, nil
	})
}

// registerMediaUpload uses plain chi handlers: huma's typed inputs do not
// cover multipart bodies or raw file responses.
func registerMediaUpload(router chi.Router, cfg Config, basePath string) {
	router.Post(path.Join(basePath, "media/upload"), func(w http.ResponseWriter, r *http.Request) {
		accountID, authErr := accountIDFromContext(r.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart form required", nil))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "file field is required", nil))
			return
		}
		defer file.Close()

		id := uuid.NewString()
		name := id + filepath.Ext(header.Filename)
		dst, err := os.Create(filepath.Join(cfg.MediaDir, name))
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		if _, err := io.Copy(dst, file); err != nil {
			dst.Close()
			respondStatusError(w, handleError(err))
			return
		}
		if err := dst.Close(); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		m := domain.MediaRef{
			ID:         id,
			URL:        path.Join(basePath, "media/files", name),
			Type:       mediaKind(header.Filename),
			UploadedAt: cfg.now().UTC().Format(time.RFC3339),
		}
		if err := cfg.Repo.InsertMedia(r.Context(), m); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		appendEvent(r.Context(), cfg, "media.uploaded", "media", id, accountID, events.EventPayload{"name": header.Filename})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%q,"url":%q,"type":%q,"uploadedAt":%q}`, m.ID, m.URL, m.Type, m.UploadedAt)
	})

	router.Get(path.Join(basePath, "media/files/{name}"), func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name != filepath.Base(name) {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid file name", nil))
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.MediaDir, name))
	})
}

func appendEvent(ctx context.Context, cfg Config, evtType, entityKind, entityID, actorID string, payload events.EventPayload) {
	if cfg.Events.DB == nil {
		return
	}
	if err := cfg.Events.Append(ctx, evtType, entityKind, entityID, actorID, payload); err != nil {
		cfg.logger().Warn("append event", "type", evtType, "error", err)
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func avatarInitials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			out = append(out, r)
			break
		}
		if len(out) == 2 {
			break
		}
	}
	return strings.ToUpper(string(out))
}

func mediaKind(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "image"
	case ".mp4", ".mov", ".webm":
		return "video"
	default:
		return "file"
	}
}
