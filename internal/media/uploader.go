// Package media attaches files to reports: uploaded to the remote service
// when possible, copied into the workspace otherwise.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"civicline/internal/domain"
	"civicline/internal/remote"
)

// Uploader sends files to the remote media endpoint with a per-file local
// fallback. Each file settles independently: one failed upload degrades
// that file to a workspace copy without affecting its siblings.
type Uploader struct {
	Remote *remote.Client
	// Dir is the workspace media directory used for local fallback copies.
	Dir string
	Log *slog.Logger
	Now func() time.Time
}

func New(rc *remote.Client, dir string) *Uploader {
	return &Uploader{Remote: rc, Dir: dir}
}

// Attach processes all paths concurrently and returns one reference per
// input, in input order. It only fails when a file cannot even be copied
// locally; remote failures degrade silently to local references.
func (u *Uploader) Attach(ctx context.Context, paths []string) ([]domain.MediaRef, error) {
	refs := make([]domain.MediaRef, len(paths))
	errs := make([]error, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			refs[i], errs[i] = u.attachOne(ctx, path)
		}(i, path)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", paths[i], err)
		}
	}
	return refs, nil
}

func (u *Uploader) attachOne(ctx context.Context, path string) (domain.MediaRef, error) {
	if u.remoteAllowed() {
		f, err := os.Open(path)
		if err != nil {
			return domain.MediaRef{}, err
		}
		ref, err := u.Remote.UploadMedia(ctx, filepath.Base(path), f)
		f.Close()
		if err == nil {
			return ref, nil
		}
		u.logger().Warn("media upload failed, keeping local copy", "path", path, "error", err)
	}
	return u.copyLocal(path)
}

// copyLocal places the file in the workspace media directory under a fresh
// id so repeated attachments of the same file never collide.
func (u *Uploader) copyLocal(path string) (domain.MediaRef, error) {
	src, err := os.Open(path)
	if err != nil {
		return domain.MediaRef{}, err
	}
	defer src.Close()

	id := uuid.NewString()
	name := id + filepath.Ext(path)
	dst, err := os.Create(filepath.Join(u.Dir, name))
	if err != nil {
		return domain.MediaRef{}, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return domain.MediaRef{}, err
	}
	if err := dst.Close(); err != nil {
		return domain.MediaRef{}, err
	}
	now := u.now().UTC()
	return domain.MediaRef{
		ID:         id,
		URL:        filepath.Join(u.Dir, name),
		Type:       mediaType(path),
		UploadedAt: now.Format(time.RFC3339),
		Local:      true,
	}, nil
}

// Remove deletes an attachment: remote by id, local by its workspace path.
func (u *Uploader) Remove(ctx context.Context, ref domain.MediaRef) error {
	if ref.Local {
		err := os.Remove(ref.URL)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !u.remoteAllowed() {
		return nil
	}
	if err := u.Remote.DeleteMedia(ctx, ref.ID); err != nil {
		u.logger().Warn("remote media delete failed", "id", ref.ID, "error", err)
	}
	return nil
}

func (u *Uploader) remoteAllowed() bool {
	cred := u.Remote.Credential
	return cred != "" && !remote.IsLocalCredential(cred)
}

func mediaType(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	switch {
	case strings.HasPrefix(t, "image/"):
		return "image"
	case strings.HasPrefix(t, "video/"):
		return "video"
	default:
		return "file"
	}
}

func (u *Uploader) logger() *slog.Logger {
	if u.Log != nil {
		return u.Log
	}
	return slog.Default()
}

func (u *Uploader) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now()
}
