package session

import "github.com/ashureev/mathtutor/internal/domain"

// ProblemView is a problem together with its current position.
type ProblemView struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Snapshot is the read model served to the UI shell. It never includes
// the credential.
type Snapshot struct {
	Problems      []ProblemView    `json:"problems"`
	CurrentIndex  *int             `json:"current_index"`
	Transcript    []domain.Message `json:"transcript"`
	Mode          domain.Mode      `json:"mode"`
	Backend       domain.BackendID `json:"backend"`
	HasCredential bool             `json:"has_credential"`
	Phase         Phase            `json:"phase"`
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Problems:      make([]ProblemView, len(s.problems)),
		Transcript:    s.Transcript(),
		Mode:          s.mode,
		Backend:       s.backend,
		HasCredential: s.HasCredential(),
		Phase:         s.Phase(),
	}
	for i, p := range s.problems {
		snap.Problems[i] = ProblemView{Index: i, Text: p}
	}
	if snap.Transcript == nil {
		snap.Transcript = []domain.Message{}
	}
	if i, ok := s.CurrentIndex(); ok {
		snap.CurrentIndex = &i
	}
	return snap
}
