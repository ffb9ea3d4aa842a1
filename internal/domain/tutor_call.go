package domain

import (
	"time"
)

// CallOutcome classifies how a tutor backend call ended.
type CallOutcome string

const (
	CallOK                 CallOutcome = "ok"
	CallConfigurationError CallOutcome = "configuration_error"
	CallBackendError       CallOutcome = "backend_error"
)

// TutorCall is the audit record of one backend call. It never carries
// message content or credentials.
type TutorCall struct {
	ID            string
	UserID        string
	SessionID     string
	Backend       BackendID
	Model         string
	Outcome       CallOutcome
	StatusCode    int
	Duration      time.Duration
	TranscriptLen int
	CreatedAt     time.Time
}

// CallStat is an aggregated count of calls per backend and outcome.
type CallStat struct {
	Backend BackendID   `json:"backend"`
	Outcome CallOutcome `json:"outcome"`
	Count   int64       `json:"count"`
}
