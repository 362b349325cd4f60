package job

import "time"

// State is a provisioning attempt's position in the retry state machine.
type State string

const (
	StateScheduled   State = "scheduled"
	StateRunning     State = "running"
	StateSucceeded   State = "succeeded"
	StateRetrying    State = "retrying"
	StateFailed      State = "failed"
	StateExhausted   State = "exhausted"
	StateRollingBack State = "rolling_back"
	StateRolledBack  State = "rolled_back"
)

// Attempt is the persisted record of a job chain for one key.
type Attempt struct {
	Key              string    `json:"key"`
	Kind             Kind      `json:"kind"`
	TenantID         string    `json:"tenant_id,omitempty"`
	Queue            Queue     `json:"queue"`
	Attempts         int       `json:"attempts"`
	State            State     `json:"state"`
	LastError        string    `json:"last_error,omitempty"`
	RollbackEnqueued bool      `json:"rollback_enqueued"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// transitions lists the allowed state changes.
var transitions = map[State][]State{
	"":               {StateScheduled, StateRunning},
	StateScheduled:   {StateRunning},
	StateRunning:     {StateRunning, StateSucceeded, StateRetrying, StateFailed, StateExhausted},
	StateRetrying:    {StateRunning},
	StateExhausted:   {StateRollingBack},
	StateFailed:      {StateRollingBack, StateScheduled, StateRunning},
	StateRollingBack: {StateRolledBack, StateFailed},
	StateSucceeded:   {StateScheduled, StateRunning},
	StateRolledBack:  {StateScheduled},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
