package engine

import (
	"fmt"
	"sync"
)

// DefaultMaxSteps is the default maximum number of continuing requests per
// flow.
const DefaultMaxSteps = 1000

// QuotaEnforcer counts the continuing requests of one flow and enforces a
// maximum. A chain of effects that never settles is stopped here.
//
// Safe for concurrent use; concurrent continuations of one flow share it.
type QuotaEnforcer struct {
	mu       sync.Mutex
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit. A limit
// of zero or less disables enforcement.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates it against the limit.
func (q *QuotaEnforcer) Check(flowToken string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{
			FlowToken: flowToken,
			Steps:     q.current,
			Limit:     q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a flow exceeds its quota.
type StepsExceededError struct {
	FlowToken string
	Steps     int
	Limit     int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("flow %s exceeded max steps quota: %d steps > %d limit",
		e.FlowToken, e.Steps, e.Limit)
}
