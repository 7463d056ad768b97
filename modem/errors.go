package modem

import "errors"

var (
	// ErrNoDialer is returned when a channel is configured without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNoChannels is returned when a Modem is built without any channel.
	ErrNoChannels = errors.New("no channels configured")

	// ErrDuplicateChannel is returned when two channels share an identifier.
	ErrDuplicateChannel = errors.New("duplicate channel id")

	// ErrNotInitialized is returned when an operation is attempted on a
	// channel whose transport could not be established.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrLineTooLong is returned when a modem response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates malformed input, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")

	// ErrLoopRunning is returned when Run is called on a channel whose
	// dispatcher loop is already running.
	ErrLoopRunning = errors.New("channel loop already running")

	// ErrNotRunning is returned by operations that need the dispatcher loop.
	ErrNotRunning = errors.New("channel loop not running")

	// ErrClosed completes commands that were still queued when the channel
	// stopped.
	ErrClosed = errors.New("channel closed")

	// ErrTimeout is the cause of responses synthesized on command timeout.
	ErrTimeout = errors.New("command timed out")

	// ErrCorruptResponse marks responses that contained undecodable bytes.
	ErrCorruptResponse = errors.New("corrupt response")

	// ErrCommandInFlight is returned by SetMode while a command is awaiting
	// its reply.
	ErrCommandInFlight = errors.New("command in flight")

	// ErrNoModeSwitcher is returned by SetMode on channels that cannot
	// leave command mode.
	ErrNoModeSwitcher = errors.New("channel has no mode switcher")

	// ErrDataMode is returned when a line-oriented operation is attempted on
	// a channel carrying raw payload.
	ErrDataMode = errors.New("channel is in data mode")

	// ErrUnknownChannel is returned for lookups of channel ids that were not
	// configured.
	ErrUnknownChannel = errors.New("unknown channel")
)

// Class groups errors by how the protocol engine recovers from them.
type Class int

const (
	// ClassTransport covers failures to open or write the transport. They
	// are fatal to the triggering command.
	ClassTransport Class = iota + 1
	// ClassProtocol covers ERROR and +CME/+CMS ERROR replies.
	ClassProtocol
	// ClassTimeout covers synthesized timeout responses.
	ClassTimeout
	// ClassConsistency covers state mismatches found by a multi-step
	// sequence. The sequence is torn down.
	ClassConsistency
	// ClassDecode covers malformed reply text.
	ClassDecode
)

func (c Class) String() string {
	switch c {
	case ClassTransport:
		return "transport"
	case ClassProtocol:
		return "protocol"
	case ClassTimeout:
		return "timeout"
	case ClassConsistency:
		return "consistency"
	case ClassDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error wraps an error with its class and the operation that produced it.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Class.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of the outermost classified error in err's
// chain, or 0 when err is not classified.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return 0
}

// IsTransient reports whether retrying the operation may succeed.
func IsTransient(err error) bool {
	switch ClassOf(err) {
	case ClassTimeout, ClassTransport:
		return true
	}
	return false
}

func TransportError(op string, err error) error {
	return &Error{Class: ClassTransport, Op: op, Err: err}
}

func ProtocolError(op string, err error) error {
	return &Error{Class: ClassProtocol, Op: op, Err: err}
}

func TimeoutError(op string) error {
	return &Error{Class: ClassTimeout, Op: op, Err: ErrTimeout}
}

func ConsistencyError(op string, err error) error {
	return &Error{Class: ClassConsistency, Op: op, Err: err}
}

func DecodeError(op string, err error) error {
	return &Error{Class: ClassDecode, Op: op, Err: err}
}
