package peer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNegotiationApply wraps failures to create or apply a session
	// description. These are logged and never retried.
	ErrNegotiationApply = errors.New("failed to apply session description")

	// ErrCandidateApply wraps failures to apply a remote ICE candidate.
	ErrCandidateApply = errors.New("failed to apply ICE candidate")

	// ErrChannelTimeout is matched by *ChannelTimeoutError.
	ErrChannelTimeout = errors.New("timed out waiting for data channels")

	ErrDuplicateChannel = errors.New("duplicate data channel")
	ErrUnknownChannel   = errors.New("unknown data channel")

	// ErrAbstractRole is returned by role-specific operations of a
	// controller created without a role.
	ErrAbstractRole = errors.New("controller has no role")

	ErrNoLocalMedia = errors.New("no local media stream configured")
	ErrClosed       = errors.New("peer closed")
)

// ChannelTimeoutError reports the channels that had not opened when the
// barrier timed out.
type ChannelTimeoutError struct {
	Pending []string
	Timeout time.Duration
}

func (e *ChannelTimeoutError) Error() string {
	return fmt.Sprintf("data channels not open after %s: %s", e.Timeout, strings.Join(e.Pending, ", "))
}

func (e *ChannelTimeoutError) Is(target error) bool {
	return target == ErrChannelTimeout
}
