package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a transcript message with its author.
type Role string

const (
	// RoleLearner marks a message typed by the student.
	RoleLearner Role = "learner"
	// RoleTutor marks a reply produced by a tutoring backend.
	RoleTutor Role = "tutor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleLearner || r == RoleTutor
}

// Message is one entry of a transcript. Position in the transcript is its order.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
