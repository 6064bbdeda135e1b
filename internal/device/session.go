// Package device defines the device-session capability the executor drives
// and two implementations of it: an in-memory simulation and a websocket
// transport.
package device

import (
	"context"
	"errors"
	"time"
)

// ErrFatal marks session failures after which the script cannot continue.
var ErrFatal = errors.New("device session failure")

// ErrNoSession is returned when a device operation runs without a session.
var ErrNoSession = errors.New("no device session")

// Session is the synchronous device capability used by scripts. Connection
// management and retries are the implementation's concern.
type Session interface {
	SwitchDevice(ctx context.Context, name string) error
	SendCommand(ctx context.Context, text string) (string, error)
	AwaitPattern(ctx context.Context, pattern string, timeout time.Duration, clear bool) (bool, error)
}

// Exchange is one command sent to a device and the output it produced.
type Exchange struct {
	Device  string
	Command string
	Output  string
}
