package transport

import "fmt"

// DialError reports a failure to connect to a destination address after
// the backoff policy gave up. It never propagates past the sender loop,
// which logs it and moves on to the next queued frame, per spec.md §7's
// device-boundary error containment.
type DialError struct {
	Dest  string
	Cause error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("transport: dial %s: %v", e.Dest, e.Cause)
}

func (e *DialError) Unwrap() error { return e.Cause }

// SelfAddressError reports that no usable network interface (eth0,
// falling back to wlan0) was found during self-address discovery,
// mirroring _mq_selfaddr's abort-if-neither-found behavior. The sender
// also returns it for a destination address without the tcp:// scheme.
type SelfAddressError struct {
	Reason string
}

func (e *SelfAddressError) Error() string { return "transport: self-address: " + e.Reason }
