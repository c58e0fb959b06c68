package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"civicline/internal/cache"
	"civicline/internal/domain"
	"civicline/internal/seed"
)

// ErrUserNotFound is returned when no roster holds the requested id.
var ErrUserNotFound = errors.New("user not found")

// DirectoryStore maintains the two role-partitioned rosters. Rosters live
// in the durable cache with seed defaults; every mutation rewrites the
// affected roster before returning, so memory and cache never diverge.
type DirectoryStore struct {
	Cache cache.Cache
	Log   *slog.Logger
	Now   func() time.Time

	officials []domain.Identity
	workers   []domain.Identity
}

func NewDirectoryStore(c cache.Cache) *DirectoryStore {
	return &DirectoryStore{Cache: c}
}

// NewOfficial is the input for adding a government official.
type NewOfficial struct {
	Name        string
	Username    string
	Department  string
	Designation string
}

// NewWorker is the input for adding a field worker.
type NewWorker struct {
	Name       string
	Username   string
	Department string
}

// IdentityPatch is a partial roster update. Nil fields are left untouched.
type IdentityPatch struct {
	Name        *string
	Username    *string
	Department  *string
	Designation *string
	Status      *string
	Verified    *bool
	Assigned    *int
	Completed   *int
}

func (p IdentityPatch) apply(id *domain.Identity) {
	if p.Name != nil {
		id.Name = *p.Name
	}
	if p.Username != nil {
		id.Username = *p.Username
	}
	if p.Department != nil {
		id.Department = *p.Department
	}
	if p.Designation != nil {
		id.Designation = *p.Designation
	}
	if p.Status != nil {
		id.Status = *p.Status
	}
	if p.Verified != nil {
		id.Verified = *p.Verified
	}
	if p.Assigned != nil {
		id.Assigned = *p.Assigned
	}
	if p.Completed != nil {
		id.Completed = *p.Completed
	}
}

// Load reads both rosters from the cache, seeding defaults when a roster is
// missing or unreadable. A deliberately emptied roster stays empty.
func (d *DirectoryStore) Load(ctx context.Context) error {
	if err := d.loadRoster(ctx, cache.KeyOfficials, &d.officials, seed.Officials); err != nil {
		return err
	}
	return d.loadRoster(ctx, cache.KeyWorkers, &d.workers, seed.Workers)
}

func (d *DirectoryStore) loadRoster(ctx context.Context, key string, dst *[]domain.Identity, fallback func() []domain.Identity) error {
	var roster []domain.Identity
	err := d.Cache.Get(ctx, key, &roster)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger(d.Log).Warn("roster cache unreadable, reseeding", "key", key, "error", err)
		}
		roster = fallback()
		if err := d.Cache.Put(ctx, key, roster); err != nil {
			return err
		}
	}
	*dst = roster
	return nil
}

// Officials returns a copy of the officials roster.
func (d *DirectoryStore) Officials() []domain.Identity {
	return append([]domain.Identity(nil), d.officials...)
}

// Workers returns a copy of the workers roster.
func (d *DirectoryStore) Workers() []domain.Identity {
	return append([]domain.Identity(nil), d.workers...)
}

// AddOfficial appends to the officials roster and persists it.
func (d *DirectoryStore) AddOfficial(ctx context.Context, in NewOfficial) (domain.Identity, error) {
	now := nowFunc(d.Now).UTC()
	id := domain.Identity{
		ID:          strconv.FormatInt(now.UnixMilli(), 10),
		Name:        in.Name,
		Username:    in.Username,
		Role:        domain.RoleOfficial,
		Department:  in.Department,
		Designation: in.Designation,
		Verified:    true,
		Status:      "active",
		CreatedAt:   now.Format(time.RFC3339),
	}
	d.officials = append(d.officials, id)
	return id, d.Cache.Put(ctx, cache.KeyOfficials, d.officials)
}

// AddWorker appends to the workers roster and persists it.
func (d *DirectoryStore) AddWorker(ctx context.Context, in NewWorker) (domain.Identity, error) {
	now := nowFunc(d.Now).UTC()
	id := domain.Identity{
		ID:         strconv.FormatInt(now.UnixMilli(), 10),
		Name:       in.Name,
		Username:   in.Username,
		Role:       domain.RoleWorker,
		Department: in.Department,
		Verified:   true,
		Status:     "available",
		CreatedAt:  now.Format(time.RFC3339),
	}
	d.workers = append(d.workers, id)
	return id, d.Cache.Put(ctx, cache.KeyWorkers, d.workers)
}

// UpdateUser patches whichever roster holds the id, officials first. Ids
// are not namespaced per role, so a collision across rosters would update
// the official and leave the worker untouched.
func (d *DirectoryStore) UpdateUser(ctx context.Context, id string, patch IdentityPatch) (domain.Identity, error) {
	for i := range d.officials {
		if d.officials[i].ID == id {
			patch.apply(&d.officials[i])
			return d.officials[i], d.Cache.Put(ctx, cache.KeyOfficials, d.officials)
		}
	}
	for i := range d.workers {
		if d.workers[i].ID == id {
			patch.apply(&d.workers[i])
			return d.workers[i], d.Cache.Put(ctx, cache.KeyWorkers, d.workers)
		}
	}
	return domain.Identity{}, ErrUserNotFound
}

// DeleteUser removes the id from the roster selected by role. Removal is
// immediate; unknown ids are a no-op.
func (d *DirectoryStore) DeleteUser(ctx context.Context, id string, role domain.Role) error {
	switch role {
	case domain.RoleOfficial:
		d.officials = removeIdentity(d.officials, id)
		return d.Cache.Put(ctx, cache.KeyOfficials, d.officials)
	case domain.RoleWorker:
		d.workers = removeIdentity(d.workers, id)
		return d.Cache.Put(ctx, cache.KeyWorkers, d.workers)
	default:
		return fmt.Errorf("role %s has no roster", role)
	}
}

// FindByUsername searches both rosters case-insensitively.
func (d *DirectoryStore) FindByUsername(username string) (domain.Identity, bool) {
	for _, roster := range [][]domain.Identity{d.officials, d.workers} {
		for _, id := range roster {
			if strings.EqualFold(id.Username, username) {
				return id, true
			}
		}
	}
	return domain.Identity{}, false
}

// FindByID searches both rosters, officials first.
func (d *DirectoryStore) FindByID(id string) (domain.Identity, bool) {
	for _, roster := range [][]domain.Identity{d.officials, d.workers} {
		for _, candidate := range roster {
			if candidate.ID == id {
				return candidate, true
			}
		}
	}
	return domain.Identity{}, false
}

func removeIdentity(roster []domain.Identity, id string) []domain.Identity {
	kept := roster[:0]
	for _, candidate := range roster {
		if candidate.ID != id {
			kept = append(kept, candidate)
		}
	}
	return kept
}
