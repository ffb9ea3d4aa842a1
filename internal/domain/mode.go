package domain

import (
	"fmt"
	"strings"
)

// Mode is the UI perspective a session is in.
type Mode string

const (
	// ModeAuthor is problem management (the teacher view).
	ModeAuthor Mode = "author"
	// ModeLearner is guided solving (the student view).
	ModeLearner Mode = "learner"
)

// ParseMode accepts author/learner and the teacher/student aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "author", "teacher":
		return ModeAuthor, nil
	case "learner", "student":
		return ModeLearner, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}
