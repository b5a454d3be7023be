package recorder

import (
	"fmt"
	"sync"
	"time"
)

// Phase is a step of the recording task state machine.
type Phase string

const (
	PhasePending      Phase = "PENDING"
	PhaseResolving    Phase = "RESOLVING"
	PhaseCheckLive    Phase = "CHECK_LIVE"
	PhaseRecording    Phase = "RECORDING"
	PhaseWaitingRetry Phase = "WAITING_RETRY"
	PhaseFinished     Phase = "FINISHED"
	PhaseStopped      Phase = "STOPPED"
	PhaseFailed       Phase = "FAILED"
)

// Terminal reports whether a task in this phase will not move again.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseStopped || p == PhaseFailed
}

// TaskStatus is a point-in-time copy of a task's published state.
type TaskStatus struct {
	Label        string    `json:"label"`
	Target       string    `json:"target"`
	Phase        Phase     `json:"phase"`
	RoomID       string    `json:"room_id,omitempty"`
	Username     string    `json:"username,omitempty"`
	OutputFile   string    `json:"output_file,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	BytesWritten int64     `json:"bytes_written"`
	Recordings   int       `json:"recordings"`
	LastError    string    `json:"last_error,omitempty"`
	// PostProcessing is set while a closed file is being remuxed or uploaded.
	PostProcessing bool `json:"post_processing,omitempty"`
}

// statusBoard is written by the owning task and read by observers.
type statusBoard struct {
	mu sync.RWMutex
	s  TaskStatus
}

func newStatusBoard(label string, t Target) *statusBoard {
	return &statusBoard{s: TaskStatus{Label: label, Target: t.String(), Phase: PhasePending}}
}

func (b *statusBoard) update(fn func(s *TaskStatus)) {
	b.mu.Lock()
	fn(&b.s)
	b.mu.Unlock()
}

func (b *statusBoard) setPhase(p Phase) {
	b.update(func(s *TaskStatus) { s.Phase = p })
}

func (b *statusBoard) setError(err error) {
	b.update(func(s *TaskStatus) {
		if err == nil {
			s.LastError = ""
			return
		}
		s.LastError = fmt.Sprint(err)
	})
}

func (b *statusBoard) snapshot() TaskStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.s
}
