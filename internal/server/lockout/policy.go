package lockout

import "time"

// Policy holds the tunables of the lockout engine.
type Policy struct {
	// MaxFailedAttempts is the number of failures within the counting window
	// that triggers a lock.
	MaxFailedAttempts int
	// BaseLockout is the duration of the first lock. The n-th lock of a user
	// lasts n*BaseLockout.
	BaseLockout time.Duration
	// WindowMultiplier sizes the failure counting window as a multiple of
	// BaseLockout.
	WindowMultiplier int
	// DedupeWindow suppresses a new lock when one was created this recently.
	DedupeWindow time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxFailedAttempts: 5,
		BaseLockout:       600 * time.Second,
		WindowMultiplier:  2,
		DedupeWindow:      60 * time.Second,
	}
}

// withDefaults replaces non-positive fields with their default values.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxFailedAttempts <= 0 {
		p.MaxFailedAttempts = d.MaxFailedAttempts
	}
	if p.BaseLockout <= 0 {
		p.BaseLockout = d.BaseLockout
	}
	if p.WindowMultiplier <= 0 {
		p.WindowMultiplier = d.WindowMultiplier
	}
	if p.DedupeWindow <= 0 {
		p.DedupeWindow = d.DedupeWindow
	}
	return p
}

// Window is the look-back period used to count failed attempts.
func (p Policy) Window() time.Duration {
	return p.BaseLockout * time.Duration(p.WindowMultiplier)
}

// lockDuration returns the duration of the next lock given how many locks the
// user already had.
func (p Policy) lockDuration(priorLocks int) time.Duration {
	return p.BaseLockout * time.Duration(priorLocks+1)
}
