package leads

import "time"

// Status is a lead lifecycle state. Operators move leads through these
// states from the Telegram admin flow; only a subset feeds the
// conversion export.
type Status string

const (
	StatusNew            Status = "new"
	StatusThinking       Status = "thinking"
	StatusIrrelevant     Status = "irrelevant"
	StatusTrialScheduled Status = "trial_scheduled"
	StatusTrialCompleted Status = "trial_completed"
	StatusEnrolled       Status = "enrolled"
	StatusPaid           Status = "paid"
)

// ExportableStatuses are the lifecycle states that qualify a lead for
// the Yandex.Direct conversion feed.
var ExportableStatuses = []Status{
	StatusTrialScheduled,
	StatusTrialCompleted,
	StatusEnrolled,
	StatusPaid,
}

// Valid reports whether s is part of the lifecycle vocabulary.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusThinking, StatusIrrelevant,
		StatusTrialScheduled, StatusTrialCompleted, StatusEnrolled, StatusPaid:
		return true
	}
	return false
}

// Exportable reports whether a lead in this state belongs in the
// conversion feed.
func (s Status) Exportable() bool {
	for _, es := range ExportableStatuses {
		if s == es {
			return true
		}
	}
	return false
}

// Lead represents a customer-journey record from the website or the
// Telegram intake flow.
type Lead struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	Course     string     `json:"course"`
	Status     Status     `json:"status"`
	YMClientID string     `json:"ym_client_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}
