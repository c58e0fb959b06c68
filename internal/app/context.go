// Package app wires the client stack for one workspace: config, database,
// cache, remote client and the stores.
package app

import (
	"context"
	"database/sql"
	"log/slog"

	"civicline/internal/cache"
	"civicline/internal/config"
	"civicline/internal/db"
	"civicline/internal/media"
	"civicline/internal/migrate"
	"civicline/internal/remote"
	"civicline/internal/store"
)

// Options override config-derived settings from the command line.
type Options struct {
	Workspace string
	// BaseURL overrides api.base_url when non-empty.
	BaseURL string
	Log     *slog.Logger
}

// App is the assembled client stack.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Cache     cache.Cache
	Remote    *remote.Client
	Session   *store.SessionStore
	Tasks     *store.TaskStore
	Directory *store.DirectoryStore
	Media     *media.Uploader
	Log       *slog.Logger
}

// Open builds the stack and restores the persisted session. The rosters are
// loaded eagerly; the task collection is left to the caller, which decides
// whether this invocation needs it.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	baseURL := cfg.API.BaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	mediaDir, err := db.MediaDir(opts.Workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	c := cache.Cache{DB: conn}
	rc := remote.New(baseURL)
	rc.Timeout = cfg.Timeout()

	directory := store.NewDirectoryStore(c)
	directory.Log = log
	tasks := store.NewTaskStore(rc, c)
	tasks.Log = log
	session := store.NewSessionStore(rc, c, directory)
	session.Log = log
	uploader := media.New(rc, mediaDir)
	uploader.Log = log

	a := &App{
		Config:    cfg,
		DB:        conn,
		Cache:     c,
		Remote:    rc,
		Session:   session,
		Tasks:     tasks,
		Directory: directory,
		Media:     uploader,
		Log:       log,
	}
	if err := directory.Load(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if _, _, err := session.Resolve(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
