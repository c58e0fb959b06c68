// Package resolver decides whether a report belongs to a worker identity.
//
// Upstream data carries three independent assignment representations on a
// task: an id-typed field, a free-text worker label, and the status. None of
// them is canonical, so membership is an OR over several heuristics. The
// permissiveness is intentional and must survive refactors; call sites are
// expected to go through IsAssignedTo/IsCompletedBy only, so a future
// normalized assignee reference needs changes here and nowhere else.
package resolver

import (
	"strings"

	"civicline/internal/domain"
)

// Partition splits a task collection for one identity.
type Partition struct {
	Assigned  []domain.Task
	Completed []domain.Task
}

// IsAssignedTo reports whether the task is an active assignment of the
// identity. Matching is case-folded and substring-permissive; empty
// candidate fields contribute no match rather than matching everything.
func IsAssignedTo(t domain.Task, id domain.Identity) bool {
	if t.Status != domain.StatusAssigned && t.Status != domain.StatusInProgress {
		return false
	}
	return matchesIdentity(t, id)
}

// IsCompletedBy reports whether the task was completed by the identity,
// using the same matching strategy with the completed status set.
func IsCompletedBy(t domain.Task, id domain.Identity) bool {
	if t.Status != domain.StatusCompleted && t.Status != domain.StatusReviewed {
		return false
	}
	return matchesIdentity(t, id)
}

// Split partitions tasks into active and completed assignments for the
// identity. Relative order of the input is preserved in both subsets.
func Split(tasks []domain.Task, id domain.Identity) Partition {
	var p Partition
	for _, t := range tasks {
		switch {
		case IsAssignedTo(t, id):
			p.Assigned = append(p.Assigned, t)
		case IsCompletedBy(t, id):
			p.Completed = append(p.Completed, t)
		}
	}
	return p
}

func matchesIdentity(t domain.Task, id domain.Identity) bool {
	assignedID := strings.TrimSpace(t.AssignedTo)
	label := fold(t.AssignedWorker)
	name := fold(id.Name)
	username := fold(id.Username)
	candidateID := strings.TrimSpace(id.ID)

	// Strategy 1: exact id match.
	if candidateID != "" && assignedID == candidateID {
		return true
	}
	// Strategy 2: worker label equals or contains the name or username.
	if label != "" {
		if name != "" && (label == name || strings.Contains(label, name)) {
			return true
		}
		if username != "" && (label == username || strings.Contains(label, username)) {
			return true
		}
	}
	// Strategy 3: id-typed field contains the username or name.
	if folded := fold(t.AssignedTo); folded != "" {
		if username != "" && strings.Contains(folded, username) {
			return true
		}
		if name != "" && strings.Contains(folded, name) {
			return true
		}
	}
	return false
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
