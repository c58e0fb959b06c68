package server

import "civicline/internal/domain"

// Wire shapes served to clients. Posts carry a nested author object and
// camelCase keys; the like counter is exposed as "upvotes".

type AuthorResponse struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
}

type MediaResponse struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Type       string `json:"type,omitempty"`
	UploadedAt string `json:"uploadedAt,omitempty"`
}

type CommentResponse struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type PostResponse struct {
	ID             string            `json:"id"`
	Author         AuthorResponse    `json:"author"`
	Content        string            `json:"content"`
	Category       string            `json:"category,omitempty"`
	Priority       string            `json:"priority,omitempty"`
	Department     string            `json:"department,omitempty"`
	Location       string            `json:"location,omitempty"`
	Hashtags       []string          `json:"hashtags,omitempty"`
	Media          []MediaResponse   `json:"media,omitempty"`
	Status         string            `json:"status"`
	AssignedTo     string            `json:"assignedTo,omitempty"`
	AssignedWorker string            `json:"assignedWorker,omitempty"`
	Upvotes        int               `json:"upvotes"`
	Comments       []CommentResponse `json:"comments,omitempty"`
	Shares         int               `json:"shares"`
	CreatedAt      string            `json:"createdAt"`
}

type CreatePostRequest struct {
	Content    string          `json:"content"`
	Category   string          `json:"category,omitempty"`
	Priority   string          `json:"priority,omitempty"`
	Status     string          `json:"status,omitempty"`
	Location   string          `json:"location,omitempty"`
	Department string          `json:"department,omitempty"`
	Hashtags   []string        `json:"hashtags,omitempty"`
	Media      []MediaResponse `json:"media,omitempty"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type RegisterRequest struct {
	Name       string `json:"name"`
	Username   string `json:"username"`
	Secret     string `json:"secret"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

type IdentityResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	Department  string `json:"department,omitempty"`
	Designation string `json:"designation,omitempty"`
	Verified    bool   `json:"verified"`
	Status      string `json:"status,omitempty"`
	Assigned    int    `json:"assigned"`
	Completed   int    `json:"completed"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type SessionResponse struct {
	Credential string           `json:"credential"`
	Identity   IdentityResponse `json:"identity"`
}

func postResponse(t domain.Task) PostResponse {
	p := PostResponse{
		ID: t.ID,
		Author: AuthorResponse{
			Name:   t.AuthorName,
			Avatar: t.AuthorAvatar,
			Role:   string(t.AuthorRole),
		},
		Content:        t.Content,
		Category:       t.Category,
		Priority:       t.Priority,
		Department:     t.Department,
		Location:       t.Location,
		Hashtags:       t.Hashtags,
		Status:         string(t.Status),
		AssignedTo:     t.AssignedTo,
		AssignedWorker: t.AssignedWorker,
		Upvotes:        t.Likes,
		Shares:         t.Shares,
		CreatedAt:      t.CreatedAt,
	}
	for _, m := range t.Media {
		p.Media = append(p.Media, MediaResponse{ID: m.ID, URL: m.URL, Type: m.Type, UploadedAt: m.UploadedAt})
	}
	for _, c := range t.Comments {
		p.Comments = append(p.Comments, CommentResponse{ID: c.ID, Author: c.Author, Text: c.Text, CreatedAt: c.CreatedAt})
	}
	return p
}

func mapPosts(tasks []domain.Task) []PostResponse {
	res := make([]PostResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, postResponse(t))
	}
	return res
}

func identityResponse(id domain.Identity) IdentityResponse {
	return IdentityResponse{
		ID:          id.ID,
		Name:        id.Name,
		Username:    id.Username,
		Role:        string(id.Role),
		Department:  id.Department,
		Designation: id.Designation,
		Verified:    id.Verified,
		Status:      id.Status,
		Assigned:    id.Assigned,
		Completed:   id.Completed,
		CreatedAt:   id.CreatedAt,
	}
}
