package reachability

import (
	"github.com/go-errors/errors"
	"github.com/the-lightning-land/reachd/connectivity"
)

var (
	// ErrHandleCreation is returned when a provider refuses to create a
	// handle for a target. No monitor is produced.
	ErrHandleCreation = errors.New("could not create reachability handle")

	// ErrRegistration is returned by Start when the callback could not be
	// registered or scheduled. The monitor stays stopped and Start may be
	// retried.
	ErrRegistration = errors.New("could not register for reachability callbacks")

	ErrClosed = errors.New("monitor is closed")
)

// Callback is invoked by a handle whenever the platform reports a new flag
// set. token is the opaque value passed to SetCallback.
type Callback func(token Token, flags connectivity.Flags)

// Handle is a platform reachability reference bound to a single target.
// Implementations may invoke the callback from any goroutine, including
// from within Schedule.
type Handle interface {
	// Flags synchronously queries the current flags.
	Flags() (connectivity.Flags, error)

	// SetCallback registers cb to be invoked with token. A nil cb removes a
	// previous registration.
	SetCallback(cb Callback, token Token) bool

	// Schedule starts delivering callbacks.
	Schedule() bool

	// Unschedule stops delivering callbacks. Once it returns no new
	// callback invocation is started.
	Unschedule() bool

	// Close releases the platform resources. It is called exactly once.
	Close() error
}

// Provider creates handles. It stands in for the platform reachability API.
type Provider interface {
	CreateHandle(target Target) (Handle, error)
}
