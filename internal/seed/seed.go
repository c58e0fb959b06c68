// Package seed holds the fixed demo dataset used when both the remote
// service and the local cache come up empty. Values are deterministic so
// first-run behavior is reproducible.
package seed

import "civicline/internal/domain"

// Tasks returns the demo task collection: exactly one report.
func Tasks() []domain.Task {
	return []domain.Task{
		{
			ID:           "demo-1001",
			AuthorName:   "Ravi Kumar",
			AuthorAvatar: "RK",
			AuthorRole:   domain.RoleCitizen,
			Content:      "Large pothole on the main road near the bus stand. Two-wheelers are swerving into oncoming traffic to avoid it.",
			Category:     "Roads",
			Priority:     "high",
			Department:   "Road Maintenance",
			Location:     "MG Road, near central bus stand",
			Hashtags:     []string{"pothole", "roadsafety"},
			Status:       domain.StatusPending,
			CreatedAt:    "2024-01-15T09:30:00Z",
			Likes:        12,
			Shares:       3,
		},
	}
}

// Officials returns the default officials roster.
func Officials() []domain.Identity {
	return []domain.Identity{
		{
			ID:          "off-2001",
			Name:        "Sarah Chen",
			Username:    "sarah.chen",
			Role:        domain.RoleOfficial,
			Department:  "Road Maintenance",
			Designation: "Assistant Engineer",
			Verified:    true,
			Status:      "active",
			CreatedAt:   "2024-01-02T08:00:00Z",
		},
		{
			ID:          "off-2002",
			Name:        "Anil Deshmukh",
			Username:    "anil.deshmukh",
			Role:        domain.RoleOfficial,
			Department:  "Sanitation",
			Designation: "Ward Officer",
			Verified:    true,
			Status:      "active",
			CreatedAt:   "2024-01-02T08:00:00Z",
		},
	}
}

// Workers returns the default workers roster.
func Workers() []domain.Identity {
	return []domain.Identity{
		{
			ID:         "w-3001",
			Name:       "Mike Johnson",
			Username:   "mike.johnson",
			Role:       domain.RoleWorker,
			Department: "Road Maintenance",
			Verified:   true,
			Status:     "available",
			CreatedAt:  "2024-01-03T08:00:00Z",
		},
		{
			ID:         "w-3002",
			Name:       "Priya Sharma",
			Username:   "priya.sharma",
			Role:       domain.RoleWorker,
			Department: "Sanitation",
			Verified:   true,
			Status:     "available",
			CreatedAt:  "2024-01-03T08:00:00Z",
		},
	}
}
