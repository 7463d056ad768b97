package modem

import "strings"

// URCFunc parses one unsolicited event. rest is the first line with the
// registered prefix removed; rsp.Lines holds every line of the event. The
// routine stores the decoded value in rsp.Payload and may set rsp.Notify to
// escalate the event, or rsp.Unrecognized to reject the line.
type URCFunc func(rsp *Response, rest string) error

// Entry binds a line prefix to its parse routine.
type Entry struct {
	Prefix string
	// Trailing is the number of lines that follow the prefixed line and
	// belong to the same event (for example the PDU after +CMT).
	Trailing int
	Parse    URCFunc
}

// Silo is a domain-scoped, ordered table of unsolicited prefixes.
type Silo struct {
	Name    string
	entries []Entry
}

func NewSilo(name string, entries ...Entry) *Silo {
	return &Silo{Name: name, entries: entries}
}

// Match returns the first entry whose prefix starts line.
func (s *Silo) Match(line string) (Entry, bool) {
	for _, e := range s.entries {
		if strings.HasPrefix(line, e.Prefix) {
			return e, true
		}
	}
	return Entry{}, false
}

// Prefixes lists the registered prefixes in table order.
func (s *Silo) Prefixes() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Prefix
	}
	return out
}

// Notification is an unsolicited event escalated by a Silo.
//
// Notifications are delivered on the dispatcher goroutine of the channel
// that received them; handlers must hand blocking work to another goroutine.
type Notification struct {
	Kind    string
	Silo    string
	Channel ID
	// Session is the data session bound to the channel, 0 if none.
	Session int
	Payload any
	Raw     string
}

// NotifyFunc receives notifications.
type NotifyFunc func(Notification)

// Notification kinds raised by the engine itself.
const (
	NotifyModemUnresponsive = "modem-unresponsive"
)
