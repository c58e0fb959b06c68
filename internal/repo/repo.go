package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"civicline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Account is a service-side login record. The secret hash never leaves
// this package's callers; it is not part of the shared domain shape.
type Account struct {
	domain.Identity
	SecretHash string
}

func (r Repo) InsertAccount(ctx context.Context, a Account) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO accounts(id,name,username,role,department,designation,verified,status,secret_hash,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.Username, a.Role, nullable(a.Department), nullable(a.Designation), boolInt(a.Verified), a.Status, a.SecretHash, a.CreatedAt)
	return err
}

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	var department, designation sql.NullString
	var verified int
	err := row.Scan(&a.ID, &a.Name, &a.Username, &a.Role, &department, &designation, &verified, &a.Status, &a.SecretHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if department.Valid {
		a.Department = department.String
	}
	if designation.Valid {
		a.Designation = designation.String
	}
	a.Verified = verified != 0
	return a, err
}

const accountColumns = `id,name,username,role,department,designation,verified,status,secret_hash,created_at`

func (r Repo) GetAccount(ctx context.Context, id string) (Account, error) {
	return scanAccount(r.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=?`, id))
}

func (r Repo) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	return scanAccount(r.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username=?`, username))
}

func (r Repo) InsertPost(ctx context.Context, t domain.Task) error {
	hashtags, media, err := encodePostJSON(t)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO posts(id,author_name,author_avatar,author_role,content,category,priority,department,location,hashtags_json,media_json,status,assigned_to,assigned_worker,upvotes,shares,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.AuthorName, nullable(t.AuthorAvatar), nullable(string(t.AuthorRole)), t.Content, nullable(t.Category), nullable(t.Priority),
		nullable(t.Department), nullable(t.Location), hashtags, media, t.Status, nullable(t.AssignedTo), nullable(t.AssignedWorker),
		t.Likes, t.Shares, t.CreatedAt)
	return err
}

// UpdatePost applies only the provided fields, mirroring the partial
// update the API accepts.
func (r Repo) UpdatePost(ctx context.Context, id string, fields map[string]any) error {
	columns := map[string]string{
		"content":        "content",
		"category":       "category",
		"priority":       "priority",
		"department":     "department",
		"location":       "location",
		"status":         "status",
		"assignedTo":     "assigned_to",
		"assignedWorker": "assigned_worker",
		"upvotes":        "upvotes",
		"shares":         "shares",
	}
	var (
		set  []string
		args []any
	)
	for key, column := range columns {
		v, ok := fields[key]
		if !ok {
			continue
		}
		set = append(set, column+"=?")
		args = append(args, v)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE posts SET %s WHERE id=?`, strings.Join(set, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePost(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM posts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const postColumns = `id,author_name,author_avatar,author_role,content,category,priority,department,location,hashtags_json,media_json,status,assigned_to,assigned_worker,upvotes,shares,created_at`

func (r Repo) GetPost(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=?`, id)
	t, err := scanPostRow(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	comments, err := r.listComments(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.Comments = comments
	return t, nil
}

func (r Repo) ListPosts(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanPostRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		comments, err := r.listComments(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Comments = comments
	}
	return res, nil
}

func scanPostRow(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var avatar, role, category, priority, department, location, hashtags, media, assignedTo, assignedWorker sql.NullString
	err := scan(&t.ID, &t.AuthorName, &avatar, &role, &t.Content, &category, &priority, &department, &location,
		&hashtags, &media, &t.Status, &assignedTo, &assignedWorker, &t.Likes, &t.Shares, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	t.AuthorAvatar = avatar.String
	t.AuthorRole = domain.Role(role.String)
	t.Category = category.String
	t.Priority = priority.String
	t.Department = department.String
	t.Location = location.String
	t.AssignedTo = assignedTo.String
	t.AssignedWorker = assignedWorker.String
	if hashtags.Valid && hashtags.String != "" {
		if err := json.Unmarshal([]byte(hashtags.String), &t.Hashtags); err != nil {
			return t, fmt.Errorf("decode hashtags for %s: %w", t.ID, err)
		}
	}
	if media.Valid && media.String != "" {
		if err := json.Unmarshal([]byte(media.String), &t.Media); err != nil {
			return t, fmt.Errorf("decode media for %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func encodePostJSON(t domain.Task) (hashtags any, media any, err error) {
	if len(t.Hashtags) > 0 {
		data, err := json.Marshal(t.Hashtags)
		if err != nil {
			return nil, nil, err
		}
		hashtags = string(data)
	}
	if len(t.Media) > 0 {
		data, err := json.Marshal(t.Media)
		if err != nil {
			return nil, nil, err
		}
		media = string(data)
	}
	return hashtags, media, nil
}

func (r Repo) InsertComment(ctx context.Context, postID string, c domain.Comment) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO comments(id,post_id,author,text,created_at) VALUES (?,?,?,?,?)`,
		c.ID, postID, c.Author, c.Text, c.CreatedAt)
	return err
}

func (r Repo) listComments(ctx context.Context, postID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,author,text,created_at FROM comments WHERE post_id=? ORDER BY created_at ASC, id ASC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.Author, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertMedia(ctx context.Context, m domain.MediaRef) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO media(id,url,type,uploaded_at) VALUES (?,?,?,?)`,
		m.ID, m.URL, nullable(m.Type), m.UploadedAt)
	return err
}

func (r Repo) GetMedia(ctx context.Context, id string) (domain.MediaRef, error) {
	var m domain.MediaRef
	var typ sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,url,type,uploaded_at FROM media WHERE id=?`, id).
		Scan(&m.ID, &m.URL, &typ, &m.UploadedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	m.Type = typ.String
	return m, err
}

func (r Repo) DeleteMedia(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM media WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
