package modem

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"i4.energy/across/modemctl/at"
)

// Releaser is the opaque per-command context blob. The dispatcher calls
// Release exactly once, after the post-completion routine has run.
type Releaser interface {
	Release()
}

// ParseFunc decodes a completed response into rsp.Payload. A returned
// error fails the command with a decode error.
type ParseFunc func(rsp *Response) error

// CompleteFunc runs after parsing, on the channel's dispatcher goroutine.
// It must not block on the same channel.
type CompleteFunc func(cmd *Command, rsp *Response)

// Command is a unit of protocol work queued on one channel.
type Command struct {
	// Kind names the operation the command belongs to (for logs, metrics
	// and timeout lookup).
	Kind string
	// Channel is the target channel; set by Channel.Enqueue.
	Channel ID
	// Token identifies the external request the command serves.
	Token string

	// Primary is the command line, without the trailing CR.
	Primary string
	// Secondary is transmitted only after Primary completed successfully.
	// The command's final response is the secondary's.
	Secondary string

	// Timeout bounds each transmitted step. Zero selects the channel default.
	Timeout time.Duration
	// Retries is the number of re-transmissions allowed after a timeout or
	// a failed reply.
	Retries int
	// HighPriority commands are queued ahead of normal ones.
	HighPriority bool
	// AlwaysParse runs Parse on failed responses too.
	AlwaysParse bool
	// Expect lists additional reply prefixes besides those derived from
	// the command text.
	Expect []string
	// EntersData marks a command whose CONNECT reply switches the modem
	// side of the channel to data. The channel is held on that reply:
	// nothing is transmitted or parsed until SetMode completes the switch
	// or releases the hold.
	EntersData bool

	Context    Releaser
	Parse      ParseFunc
	OnComplete CompleteFunc

	started  bool
	begun    time.Time
	released atomic.Bool
	done     chan *Response
}

// NewCommand returns a command with a fresh request token.
func NewCommand(kind, primary string) *Command {
	return &Command{
		Kind:    kind,
		Primary: primary,
		Token:   uuid.NewString(),
	}
}

// Chain sets the secondary command and returns cmd.
func (c *Command) Chain(secondary string) *Command {
	c.Secondary = secondary
	return c
}

// text returns the line transmitted for step 0 or 1.
func (c *Command) text(step int) string {
	if step == 1 {
		return c.Secondary
	}
	return c.Primary
}

// expects reports whether line is an information response to this
// command's current step.
func (c *Command) expects(step int, line string) bool {
	for _, p := range c.Expect {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	for _, p := range at.ReplyPrefixes(c.text(step)) {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// release frees the context blob. The dispatcher's completion path is its
// only caller.
func (c *Command) release() {
	if c.Context == nil {
		return
	}
	if c.released.CompareAndSwap(false, true) {
		c.Context.Release()
	}
}
