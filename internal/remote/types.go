package remote

import "civicline/internal/domain"

// Wire shapes for the remote task service. The remote representation differs
// from the canonical domain shape: the author is a sub-object, fields are
// camelCase, and the like counter is called "upvotes".

type AuthorRecord struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
}

type MediaRecord struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Type       string `json:"type,omitempty"`
	UploadedAt string `json:"uploadedAt,omitempty"`
}

type CommentRecord struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type PostRecord struct {
	ID             string          `json:"id"`
	Author         AuthorRecord    `json:"author"`
	Content        string          `json:"content"`
	Category       string          `json:"category,omitempty"`
	Priority       string          `json:"priority,omitempty"`
	Department     string          `json:"department,omitempty"`
	Location       string          `json:"location,omitempty"`
	Hashtags       []string        `json:"hashtags,omitempty"`
	Media          []MediaRecord   `json:"media,omitempty"`
	Status         string          `json:"status"`
	AssignedTo     string          `json:"assignedTo,omitempty"`
	AssignedWorker string          `json:"assignedWorker,omitempty"`
	Upvotes        int             `json:"upvotes"`
	Comments       []CommentRecord `json:"comments,omitempty"`
	Shares         int             `json:"shares"`
	CreatedAt      string          `json:"createdAt"`
}

// PostDraft is the body for remote post creation.
type PostDraft struct {
	Content    string        `json:"content"`
	Category   string        `json:"category,omitempty"`
	Priority   string        `json:"priority,omitempty"`
	Status     string        `json:"status,omitempty"`
	Location   string        `json:"location,omitempty"`
	Department string        `json:"department,omitempty"`
	Hashtags   []string      `json:"hashtags,omitempty"`
	Media      []MediaRecord `json:"media,omitempty"`
}

// Canonical flattens the remote record into the domain shape.
func (p PostRecord) Canonical() domain.Task {
	t := domain.Task{
		ID:             p.ID,
		AuthorName:     p.Author.Name,
		AuthorAvatar:   p.Author.Avatar,
		AuthorRole:     domain.Role(p.Author.Role),
		Content:        p.Content,
		Category:       p.Category,
		Priority:       p.Priority,
		Department:     p.Department,
		Location:       p.Location,
		Hashtags:       p.Hashtags,
		Status:         domain.Status(p.Status),
		AssignedTo:     p.AssignedTo,
		AssignedWorker: p.AssignedWorker,
		CreatedAt:      p.CreatedAt,
		Likes:          p.Upvotes,
		Shares:         p.Shares,
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	for _, m := range p.Media {
		t.Media = append(t.Media, domain.MediaRef{ID: m.ID, URL: m.URL, Type: m.Type, UploadedAt: m.UploadedAt})
	}
	for _, c := range p.Comments {
		t.Comments = append(t.Comments, domain.Comment{ID: c.ID, Author: c.Author, Text: c.Text, CreatedAt: c.CreatedAt})
	}
	return t
}

// CanonicalTasks converts a remote listing, preserving order.
func CanonicalTasks(records []PostRecord) []domain.Task {
	tasks := make([]domain.Task, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, r.Canonical())
	}
	return tasks
}

// MediaRecords converts canonical refs back to the wire shape for drafts.
// Local fallback references are kept as-is; the server treats them as
// opaque URLs.
func MediaRecords(refs []domain.MediaRef) []MediaRecord {
	records := make([]MediaRecord, 0, len(refs))
	for _, r := range refs {
		records = append(records, MediaRecord{ID: r.ID, URL: r.URL, Type: r.Type, UploadedAt: r.UploadedAt})
	}
	return records
}
