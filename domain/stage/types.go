package stage

import (
	"fmt"
	"time"
)

// Name is a pipeline stage. Stages run in declaration order and a
// competition only ever moves forward.
type Name string

const (
	Pending    Name = "pending"
	Loaded     Name = "loaded"
	Engineered Name = "engineered"
	Sanitized  Name = "sanitized"
	Selected   Name = "selected"
	Searched   Name = "searched"
	Ensembled  Name = "ensembled"
	Persisted  Name = "persisted"
)

// Order lists the stages a successful run passes through
var Order = []Name{Loaded, Engineered, Sanitized, Selected, Searched, Ensembled, Persisted}

// Index returns the position of n in Order, -1 for Pending or unknown
func (n Name) Index() int {
	for i, s := range Order {
		if s == n {
			return i
		}
	}
	return -1
}

// Next returns the stage after n
func (n Name) Next() (Name, bool) {
	i := n.Index()
	if i+1 >= len(Order) {
		return "", false
	}
	return Order[i+1], true
}

// Terminal reports whether n is the last stage
func (n Name) Terminal() bool {
	return n == Persisted
}

// Result is the outcome of attempting one stage
type Result struct {
	Stage    Name          `json:"stage"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Tracker enforces strictly linear forward transitions
type Tracker struct {
	current Name
	results []Result
}

// NewTracker starts at Pending
func NewTracker() *Tracker {
	return &Tracker{current: Pending}
}

// Current returns the last stage reached
func (t *Tracker) Current() Name {
	return t.current
}

// Results returns every attempted stage in order
func (t *Tracker) Results() []Result {
	return append([]Result(nil), t.results...)
}

// Advance records a successful transition to next. Skipping a stage or
// moving backwards is an error.
func (t *Tracker) Advance(next Name, took time.Duration) error {
	want, ok := t.current.Next()
	if !ok || want != next {
		return fmt.Errorf("illegal transition %s -> %s", t.current, next)
	}
	t.current = next
	t.results = append(t.results, Result{Stage: next, Success: true, Duration: took})
	return nil
}

// Fail records a failed attempt at the stage after the current one. The
// current stage does not change.
func (t *Tracker) Fail(err error, took time.Duration) {
	next, ok := t.current.Next()
	if !ok {
		return
	}
	t.results = append(t.results, Result{Stage: next, Error: err.Error(), Duration: took})
}
