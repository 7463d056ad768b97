package modem

import (
	"strings"

	"i4.energy/across/modemctl/at"
)

// Response is one group of lines received on a channel: either the reply
// to a command step or a single unsolicited event.
type Response struct {
	Channel ID
	// Lines holds information lines. The final result line is decoded into
	// Result and not stored here.
	Lines  []string
	Result at.Result

	Unsolicited  bool
	Unrecognized bool
	Corrupt      bool
	TimedOut     bool

	// Payload is the decoded value produced by a parse routine.
	Payload any
	// Notify, when set by an unsolicited parse routine, escalates the event
	// as a notification of that kind.
	Notify string

	// Err is the command's outcome as seen by the completion path.
	Err error
}

func newResponse(ch ID) *Response {
	return &Response{Channel: ch}
}

// OK reports whether the response completed its command successfully.
func (r *Response) OK() bool {
	return r.Err == nil && !r.TimedOut && !r.Corrupt && r.Result.Success()
}

// Text joins the information lines.
func (r *Response) Text() string {
	return strings.Join(r.Lines, "\n")
}

// Line returns the first information line starting with prefix, with the
// prefix removed.
func (r *Response) Line(prefix string) (string, bool) {
	for _, l := range r.Lines {
		if strings.HasPrefix(l, prefix) {
			return l[len(prefix):], true
		}
	}
	return "", false
}

// LinesWith returns every information line starting with prefix, prefix
// removed.
func (r *Response) LinesWith(prefix string) []string {
	var out []string
	for _, l := range r.Lines {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l[len(prefix):])
		}
	}
	return out
}

// failure classifies a non-successful response.
func (r *Response) failure(op string) error {
	switch {
	case r.Err != nil:
		return r.Err
	case r.TimedOut:
		return TimeoutError(op)
	case r.Corrupt:
		return DecodeError(op, ErrCorruptResponse)
	case !r.Result.Success():
		return ProtocolError(op, r.Result.Err())
	}
	return nil
}
