package domain

// Role classifies a person in the directory.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleOfficial Role = "official"
	RoleWorker   Role = "worker"
	RoleAdmin    Role = "admin"
)

// Status is a report's position in its lifecycle. The expected path is
// pending -> assigned -> in_progress -> completed -> reviewed, but the
// stores do not reject overwrites that move backwards.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusReviewed   Status = "reviewed"
)

type Identity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Role        Role   `json:"role" enum:"citizen,official,worker,admin"`
	Department  string `json:"department,omitempty"`
	Designation string `json:"designation,omitempty"`
	Verified    bool   `json:"verified"`
	Status      string `json:"status"`
	Assigned    int    `json:"assigned"`
	Completed   int    `json:"completed"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type MediaRef struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Type       string `json:"type,omitempty"`
	UploadedAt string `json:"uploaded_at,omitempty" format:"date-time"`
	Local      bool   `json:"local,omitempty"`
}

type Comment struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Task is a citizen report. The author fields are a snapshot taken at
// posting time, not a reference into the directory. AssignedTo carries an
// identity id while AssignedWorker is a free-text label; the two are not
// guaranteed consistent with each other or with Status.
type Task struct {
	ID             string     `json:"id"`
	AuthorName     string     `json:"author_name"`
	AuthorAvatar   string     `json:"author_avatar,omitempty"`
	AuthorRole     Role       `json:"author_role,omitempty"`
	Content        string     `json:"content"`
	Category       string     `json:"category,omitempty"`
	Priority       string     `json:"priority,omitempty"`
	Department     string     `json:"department,omitempty"`
	Location       string     `json:"location,omitempty"`
	Hashtags       []string   `json:"hashtags,omitempty"`
	Media          []MediaRef `json:"media,omitempty"`
	Status         Status     `json:"status" enum:"pending,assigned,in_progress,completed,reviewed"`
	AssignedTo     string     `json:"assigned_to,omitempty"`
	AssignedWorker string     `json:"assigned_worker,omitempty"`
	CreatedAt      string     `json:"created_at" format:"date-time"`
	Likes          int        `json:"likes"`
	Comments       []Comment  `json:"comments,omitempty"`
	Shares         int        `json:"shares"`
}
