package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"civicline/internal/cache"
	"civicline/internal/domain"
	"civicline/internal/remote"
)

// AuthError is a rejected login or registration: the service answered and
// said no. Transport failures are not AuthErrors and trigger local fallback
// instead.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// Session is the persisted auth state: the credential the remote client
// sends, plus the resolved identity behind it.
type Session struct {
	Credential string          `json:"credential"`
	Identity   domain.Identity `json:"identity"`
}

// Local reports whether the session was issued from the local roster.
func (s Session) Local() bool {
	return remote.IsLocalCredential(s.Credential)
}

// SessionStore resolves and persists the active session. It owns the
// remote client's credential: Login, Logout and Resolve all write it, so
// the other stores read a single source of truth.
type SessionStore struct {
	Remote    *remote.Client
	Cache     cache.Cache
	Directory *DirectoryStore
	Log       *slog.Logger

	current *Session
}

func NewSessionStore(rc *remote.Client, c cache.Cache, dir *DirectoryStore) *SessionStore {
	return &SessionStore{Remote: rc, Cache: c, Directory: dir}
}

// Current returns the active session, if any.
func (s *SessionStore) Current() (Session, bool) {
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Resolve restores the persisted session. Local sessions are re-checked
// against the roster; remote ones are re-validated against the service,
// keeping the cached identity when the service is unreachable and dropping
// the session only when the service rejects the credential.
func (s *SessionStore) Resolve(ctx context.Context) (Session, bool, error) {
	var sess Session
	if err := s.Cache.Get(ctx, cache.KeySession, &sess); err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger(s.Log).Warn("session cache unreadable, treating as signed out", "error", err)
		}
		return Session{}, false, nil
	}
	if sess.Local() {
		if _, ok := s.Directory.FindByID(sess.Identity.ID); !ok {
			if err := s.Logout(ctx); err != nil {
				return Session{}, false, err
			}
			return Session{}, false, nil
		}
		s.adopt(sess)
		return sess, true, nil
	}
	s.Remote.Credential = sess.Credential
	id, err := s.Remote.Me(ctx)
	if err != nil {
		var apiErr *remote.APIError
		if errors.As(err, &apiErr) {
			logger(s.Log).Warn("stored credential rejected, signing out", "status", apiErr.StatusCode)
			if err := s.Logout(ctx); err != nil {
				return Session{}, false, err
			}
			return Session{}, false, nil
		}
		logger(s.Log).Warn("session check unreachable, keeping cached identity", "error", err)
		s.adopt(sess)
		return sess, true, nil
	}
	sess.Identity = id
	s.adopt(sess)
	return sess, true, s.Cache.Put(ctx, cache.KeySession, sess)
}

// Login authenticates remotely, falling back to the local roster when the
// service is unreachable. A service rejection surfaces as AuthError and
// never falls back.
func (s *SessionStore) Login(ctx context.Context, identifier, secret string) (Session, error) {
	rs, err := s.Remote.Login(ctx, remote.Credentials{Identifier: identifier, Secret: secret})
	if err == nil {
		sess := Session{Credential: rs.Credential, Identity: rs.Identity}
		s.adopt(sess)
		return sess, s.Cache.Put(ctx, cache.KeySession, sess)
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return Session{}, &AuthError{Reason: apiMessage(apiErr)}
	}
	logger(s.Log).Warn("login service unreachable, trying local roster", "error", err)
	id, ok := s.Directory.FindByUsername(identifier)
	if !ok {
		return Session{}, &AuthError{Reason: "unknown user"}
	}
	sess := Session{Credential: remote.LocalCredentialPrefix + id.ID, Identity: id}
	s.adopt(sess)
	return sess, s.Cache.Put(ctx, cache.KeySession, sess)
}

// Register creates a remote account. Unlike Login there is no local
// fallback; an account that only exists on this machine would be lost.
func (s *SessionStore) Register(ctx context.Context, reg remote.Registration) (Session, error) {
	rs, err := s.Remote.Register(ctx, reg)
	if err != nil {
		var apiErr *remote.APIError
		if errors.As(err, &apiErr) {
			return Session{}, &AuthError{Reason: apiMessage(apiErr)}
		}
		return Session{}, err
	}
	sess := Session{Credential: rs.Credential, Identity: rs.Identity}
	s.adopt(sess)
	return sess, s.Cache.Put(ctx, cache.KeySession, sess)
}

// Logout clears the session from memory, the cache and the remote client.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.current = nil
	s.Remote.Credential = ""
	return s.Cache.Delete(ctx, cache.KeySession)
}

func (s *SessionStore) adopt(sess Session) {
	s.current = &sess
	s.Remote.Credential = sess.Credential
}

// apiMessage digs the human-readable message out of an error envelope,
// falling back to the raw body.
func apiMessage(e *remote.APIError) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}
