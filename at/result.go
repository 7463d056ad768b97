package at

import (
	"fmt"
	"strconv"
	"strings"
)

// ResultCode is the kind of final result that terminates a response.
type ResultCode int

const (
	ResultNone ResultCode = iota
	ResultOK
	ResultPrompt
	ResultError
	ResultCME
	ResultCMS
	ResultConnect
	ResultNoCarrier
	ResultBusy
	ResultNoAnswer
	ResultNoDialtone
	ResultAborted
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "OK"
	case ResultPrompt:
		return "prompt"
	case ResultError:
		return "ERROR"
	case ResultCME:
		return "CME ERROR"
	case ResultCMS:
		return "CMS ERROR"
	case ResultConnect:
		return "CONNECT"
	case ResultNoCarrier:
		return "NO CARRIER"
	case ResultBusy:
		return "BUSY"
	case ResultNoAnswer:
		return "NO ANSWER"
	case ResultNoDialtone:
		return "NO DIALTONE"
	case ResultAborted:
		return "ABORTED"
	default:
		return "none"
	}
}

// Result is a decoded final result line.
type Result struct {
	Code ResultCode
	// Cause is the numeric sub-cause of +CME/+CMS errors.
	Cause int
	// Detail holds the text after CONNECT or a verbose error message.
	Detail string
	// Unrecognized is set when an error line carried a cause that could
	// not be parsed.
	Unrecognized bool
}

// Success reports whether the result completes a command successfully.
// CONNECT counts as success: it is the confirmation token of commands that
// switch the link into data mode.
func (r Result) Success() bool {
	switch r.Code {
	case ResultOK, ResultPrompt, ResultConnect:
		return true
	}
	return false
}

// Err converts a failed result into an error value. It returns nil for
// successful results.
func (r Result) Err() error {
	switch r.Code {
	case ResultOK, ResultPrompt, ResultConnect:
		return nil
	case ResultCME:
		return &CMEError{Code: r.Cause, Text: r.Detail}
	case ResultCMS:
		return &CMSError{Code: r.Cause, Text: r.Detail}
	case ResultNone:
		return fmt.Errorf("no final result")
	default:
		return &FinalError{Code: r.Code}
	}
}

// ParseResult decodes line as a final result code. The checks follow the
// precedence CME, CMS, OK/prompt, ERROR, CONNECT, NO CARRIER, ABORTED, then
// the dial outcomes.
func ParseResult(line string) (Result, bool) {
	switch {
	case strings.HasPrefix(line, CmeError):
		return parseCause(ResultCME, line[len(CmeError):]), true
	case strings.HasPrefix(line, CmsError):
		return parseCause(ResultCMS, line[len(CmsError):]), true
	case line == OK:
		return Result{Code: ResultOK}, true
	case line == Prompt:
		return Result{Code: ResultPrompt}, true
	case line == ERROR:
		return Result{Code: ResultError}, true
	case line == Connect || strings.HasPrefix(line, Connect+" "):
		return Result{Code: ResultConnect, Detail: strings.TrimSpace(line[len(Connect):])}, true
	case line == NoCarrier:
		return Result{Code: ResultNoCarrier}, true
	case line == Aborted:
		return Result{Code: ResultAborted}, true
	case line == Busy:
		return Result{Code: ResultBusy}, true
	case line == NoAnswer:
		return Result{Code: ResultNoAnswer}, true
	case line == NoDialtone:
		return Result{Code: ResultNoDialtone}, true
	}
	return Result{}, false
}

// parseCause decodes "<n>" or a verbose "<text>" after +CME/+CMS ERROR:.
func parseCause(code ResultCode, rest string) Result {
	rest = strings.TrimSpace(rest)
	n, err := strconv.Atoi(rest)
	if err != nil {
		return Result{Code: code, Detail: rest, Unrecognized: true}
	}
	return Result{Code: code, Cause: n}
}

// CMEError is a mobile equipment error reported as "+CME ERROR: <n>".
type CMEError struct {
	Code int
	Text string
}

func (e *CMEError) Error() string {
	if e.Text != "" {
		return "CME ERROR: " + e.Text
	}
	return "CME ERROR: " + strconv.Itoa(e.Code)
}

// CMSError is a message service error reported as "+CMS ERROR: <n>".
type CMSError struct {
	Code int
	Text string
}

func (e *CMSError) Error() string {
	if e.Text != "" {
		return "CMS ERROR: " + e.Text
	}
	return "CMS ERROR: " + strconv.Itoa(e.Code)
}

// FinalError is any other failing final result (ERROR, NO CARRIER, ...).
type FinalError struct {
	Code ResultCode
}

func (e *FinalError) Error() string {
	return e.Code.String()
}

// Well-known CME causes.
const (
	CMESimNotInserted = 10
	CMESimPinRequired = 11
	CMESimBusy        = 14
	CMEIncorrectPass  = 16
	CMENoNetwork      = 30
	CMEUnknown        = 100
)
