package domain

import "time"

// Preferences is what the onboarding flow stores for a user.
type Preferences struct {
	Categories   []string   `json:"categories"`
	HasOnboarded bool       `json:"has_onboarded"`
	Streak       int        `json:"streak"`
	LastVisit    *time.Time `json:"last_visit,omitempty"`
}
