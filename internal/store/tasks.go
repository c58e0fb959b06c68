package store

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
	"unicode"

	"civicline/internal/cache"
	"civicline/internal/domain"
	"civicline/internal/remote"
	"civicline/internal/seed"
)

// TaskStore maintains the in-memory task collection for the running
// session. Load prefers the remote service; any failure falls back to the
// durable cache, and an empty or unreadable cache falls back to the seed
// dataset, so consumers never observe an empty or error state.
type TaskStore struct {
	Remote *remote.Client
	Cache  cache.Cache
	Log    *slog.Logger
	Now    func() time.Time

	state  State
	source Source
	tasks  []domain.Task
}

func NewTaskStore(rc *remote.Client, c cache.Cache) *TaskStore {
	return &TaskStore{Remote: rc, Cache: c}
}

// TaskDraft is the caller-supplied content of a new report.
type TaskDraft struct {
	Author     domain.Identity
	Content    string
	Category   string
	Priority   string
	Department string
	Location   string
	Hashtags   []string
	Media      []domain.MediaRef
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Content        *string
	Category       *string
	Priority       *string
	Department     *string
	Location       *string
	Status         *domain.Status
	AssignedTo     *string
	AssignedWorker *string
	Likes          *int
	Shares         *int
}

func (p TaskPatch) apply(t *domain.Task) {
	if p.Content != nil {
		t.Content = *p.Content
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Department != nil {
		t.Department = *p.Department
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}
	if p.AssignedWorker != nil {
		t.AssignedWorker = *p.AssignedWorker
	}
	if p.Likes != nil {
		t.Likes = *p.Likes
	}
	if p.Shares != nil {
		t.Shares = *p.Shares
	}
}

// fields maps the patch onto the remote service's camelCase keys.
func (p TaskPatch) fields() map[string]any {
	out := map[string]any{}
	if p.Content != nil {
		out["content"] = *p.Content
	}
	if p.Category != nil {
		out["category"] = *p.Category
	}
	if p.Priority != nil {
		out["priority"] = *p.Priority
	}
	if p.Department != nil {
		out["department"] = *p.Department
	}
	if p.Location != nil {
		out["location"] = *p.Location
	}
	if p.Status != nil {
		out["status"] = string(*p.Status)
	}
	if p.AssignedTo != nil {
		out["assignedTo"] = *p.AssignedTo
	}
	if p.AssignedWorker != nil {
		out["assignedWorker"] = *p.AssignedWorker
	}
	if p.Likes != nil {
		out["upvotes"] = *p.Likes
	}
	if p.Shares != nil {
		out["shares"] = *p.Shares
	}
	return out
}

// State returns the load lifecycle position.
func (s *TaskStore) State() State { return s.state }

// Source returns where the current collection came from.
func (s *TaskStore) Source() Source { return s.source }

// Tasks returns a copy of the in-memory collection in display order.
func (s *TaskStore) Tasks() []domain.Task {
	out := make([]domain.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Get finds a task by id.
func (s *TaskStore) Get(id string) (domain.Task, bool) {
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

func (s *TaskStore) remoteAllowed() bool {
	cred := s.Remote.Credential
	return cred != "" && !remote.IsLocalCredential(cred)
}

// Load populates the collection: remote first when a credential permits it,
// otherwise cache, otherwise seed. Remote success replaces the collection
// outright; it is not merged with the cache.
func (s *TaskStore) Load(ctx context.Context) error {
	s.state = StateLoading
	if s.remoteAllowed() {
		tasks, err := s.Remote.FetchPosts(ctx)
		if err == nil {
			s.tasks = tasks
			s.source = SourceRemote
			s.state = StateReady
			return s.persist(ctx)
		}
		logger(s.Log).Warn("remote task fetch failed, falling back to cache", "error", err)
	}
	var cached []domain.Task
	err := s.Cache.Get(ctx, cache.KeyTasks, &cached)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		logger(s.Log).Warn("task cache unreadable, reseeding", "error", err)
	}
	if err != nil || len(cached) == 0 {
		cached = seed.Tasks()
	}
	s.tasks = cached
	s.source = SourceLocal
	s.state = StateReady
	return s.persist(ctx)
}

// Refresh re-runs Load, replacing the collection.
func (s *TaskStore) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

// Create adds a report, remote-first. The returned task is the effective
// record: the server's version when remote creation succeeded, otherwise a
// locally constructed one with a timestamp id. Either way the collection is
// prepended exactly once.
func (s *TaskStore) Create(ctx context.Context, draft TaskDraft) (domain.Task, ApplyResult, error) {
	if s.remoteAllowed() {
		t, err := s.Remote.CreatePost(ctx, remote.PostDraft{
			Content:    draft.Content,
			Category:   draft.Category,
			Priority:   draft.Priority,
			Status:     string(domain.StatusPending),
			Location:   draft.Location,
			Department: draft.Department,
			Hashtags:   draft.Hashtags,
			Media:      remote.MediaRecords(draft.Media),
		})
		if err == nil {
			s.prepend(t)
			return t, ApplyResult{Source: SourceRemote}, s.persist(ctx)
		}
		logger(s.Log).Warn("remote task create failed, keeping local copy", "error", err)
	}
	now := nowFunc(s.Now).UTC()
	t := domain.Task{
		ID:           strconv.FormatInt(now.UnixMilli(), 10),
		AuthorName:   draft.Author.Name,
		AuthorAvatar: initials(draft.Author.Name),
		AuthorRole:   draft.Author.Role,
		Content:      draft.Content,
		Category:     draft.Category,
		Priority:     draft.Priority,
		Department:   draft.Department,
		Location:     draft.Location,
		Hashtags:     draft.Hashtags,
		Media:        draft.Media,
		Status:       domain.StatusPending,
		CreatedAt:    now.Format(time.RFC3339),
	}
	s.prepend(t)
	return t, ApplyResult{Source: SourceLocal}, s.persist(ctx)
}

// Update applies a partial update. The remote call is attempted once when
// permitted; the local collection is patched regardless of its outcome, so
// the caller's edit is never dropped.
func (s *TaskStore) Update(ctx context.Context, id string, patch TaskPatch) (ApplyResult, error) {
	result := ApplyResult{Source: SourceLocal}
	if s.remoteAllowed() {
		if err := s.Remote.UpdatePost(ctx, id, patch.fields()); err != nil {
			logger(s.Log).Warn("remote task update failed, applying locally only", "id", id, "error", err)
		} else {
			result.Source = SourceRemote
		}
	}
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			patch.apply(&s.tasks[i])
			break
		}
	}
	return result, s.persist(ctx)
}

// Delete removes a report remotely and locally. Unknown ids are a no-op.
func (s *TaskStore) Delete(ctx context.Context, id string) (ApplyResult, error) {
	result := ApplyResult{Source: SourceLocal}
	if s.remoteAllowed() {
		if err := s.Remote.DeletePost(ctx, id); err != nil {
			logger(s.Log).Warn("remote task delete failed, removing locally only", "id", id, "error", err)
		} else {
			result.Source = SourceRemote
		}
	}
	s.removeByID(id)
	return result, s.persist(ctx)
}

func (s *TaskStore) prepend(t domain.Task) {
	s.removeByID(t.ID)
	s.tasks = append([]domain.Task{t}, s.tasks...)
	if s.state == StateUninitialized {
		s.state = StateReady
		s.source = SourceLocal
	}
}

func (s *TaskStore) removeByID(id string) {
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
}

// persist rewrites the durable cache so a reload after an outage still
// reflects the latest known state.
func (s *TaskStore) persist(ctx context.Context) error {
	return s.Cache.Put(ctx, cache.KeyTasks, s.tasks)
}

func initials(name string) string {
	var out []rune
	prevSpace := true
	for _, r := range name {
		if r == ' ' {
			prevSpace = true
			continue
		}
		if prevSpace && len(out) < 2 {
			out = append(out, unicode.ToUpper(r))
		}
		prevSpace = false
	}
	return string(out)
}
