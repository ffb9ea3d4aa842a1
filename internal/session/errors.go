package session

import "errors"

var (
	// ErrValidation reports empty or otherwise unusable user-supplied input.
	ErrValidation = errors.New("validation error")
	// ErrIndex reports a problem index that does not exist.
	ErrIndex = errors.New("index error")
	// ErrNoProblem reports a reply request while no problem is selected.
	ErrNoProblem = errors.New("no problem selected")
	// ErrReplyPending reports a reply request while another reply is outstanding.
	ErrReplyPending = errors.New("reply already pending")
)
