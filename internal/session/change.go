package session

// ChangeKind names the operation that produced a Change.
type ChangeKind string

const (
	ChangeProblemAdded    ChangeKind = "problem_added"
	ChangeProblemDeleted  ChangeKind = "problem_deleted"
	ChangeProblemSelected ChangeKind = "problem_selected"
	ChangeModeSet         ChangeKind = "mode_set"
	ChangeMessageAppended ChangeKind = "message_appended"
	ChangeBackendSet      ChangeKind = "backend_set"
	ChangeReplyStarted    ChangeKind = "reply_started"
	ChangeReplyCompleted  ChangeKind = "reply_completed"
	ChangeReplyAborted    ChangeKind = "reply_aborted"
)

// Change describes the effect of one mutation so the caller can decide
// what to redraw.
type Change struct {
	Kind              ChangeKind `json:"kind"`
	ProblemsChanged   bool       `json:"problems_changed"`
	TranscriptCleared bool       `json:"transcript_cleared"`
	CurrentIndex      *int       `json:"current_index"`
}
