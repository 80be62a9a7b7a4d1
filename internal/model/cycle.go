package model

import "time"

// CycleStatus is a point-in-time copy of the run progress record.
type CycleStatus struct {
	Running        bool      `json:"running"`
	RunID          string    `json:"runId,omitempty"`
	CycleStartTime time.Time `json:"cycleStartTime,omitempty"`
	Completed      int64     `json:"completed"`
	Failed         int64     `json:"failed"`
	Total          int64     `json:"total"`
	NextUpdateTime time.Time `json:"nextUpdateTime,omitempty"`
}

// Submission is the outcome of one successful form submission.
type Submission struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Quantity int       `json:"quantity"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

type Sample struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone"`
}
