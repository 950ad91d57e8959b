package reconcile

import (
	"sync/atomic"
	"time"
)

// State is a step of the pass state machine.
type State string

const (
	StateIdle                  State = "idle"
	StateValidating            State = "validating"
	StateAwaitingStoreResponse State = "awaiting_store_response"
	StateDemultiplexing        State = "demultiplexing"
	StateWritingBack           State = "writing_back"
	StateFailed                State = "failed"
)

// transitions lists the edges the state machine allows.
var transitions = map[State][]State{
	StateIdle:                  {StateValidating},
	StateValidating:            {StateAwaitingStoreResponse, StateFailed},
	StateAwaitingStoreResponse: {StateDemultiplexing, StateFailed},
	StateDemultiplexing:        {StateWritingBack, StateFailed},
	StateWritingBack:           {StateIdle, StateFailed},
	StateFailed:                {StateIdle},
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	Seq    int64  `json:"seq"`
	From   State  `json:"from"`
	To     State  `json:"to"`
	Detail string `json:"detail,omitempty"`
}

// Sequencer issues the logical sequence numbers stamped on transitions.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock. Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Observer receives every finished pass. internal/metrics implements it.
type Observer interface {
	ObservePass(report *Report, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObservePass(*Report, error, time.Duration) {}
