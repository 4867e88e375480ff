package escalateoverdue

import "time"

// Input is intentionally empty of business parameters; the sweep is driven
// entirely by database state. An optional AsOf override exists for replays.
type Input struct {
	AsOf string `json:"asOf,omitempty"` // RFC3339, defaults to now
}

type Output struct {
	Success      bool      `json:"success"`
	Escalated    int       `json:"escalated"`
	DigestsSent  int       `json:"digestsSent"`
	TodosExpired int       `json:"todosExpired"`
	Skipped      int       `json:"skipped"`
	CompletedAt  time.Time `json:"completedAt"`
}

// overdueRow is one candidate returned by the sweep query.
type overdueRow struct {
	ID           string
	UserID       string
	ClientName   string
	EmailSubject string
	ManagerID    *string
}

// digestEntry accumulates one manager's escalations inside the window.
type digestEntry struct {
	Count   int
	Clients []string
}
