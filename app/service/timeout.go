package service

import "time"

// FixedTimeoutProvider serves the externally configured bank response
// timeout, consumed once per call attempt.
type FixedTimeoutProvider time.Duration

func (t FixedTimeoutProvider) Timeout() time.Duration { return time.Duration(t) }
