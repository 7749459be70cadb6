package continuation

import "fmt"

// NotFoundError reports a REPLY whose retid has no live continuation —
// either it was already consumed (a duplicate REPLY) or never issued.
// The dispatcher logs and drops this rather than treating it as fatal,
// per spec.md §7's device-boundary error containment rule.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("continuation: no live continuation for retid %d", e.ID)
}
