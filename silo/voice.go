package silo

import (
	"fmt"
	"strings"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
)

// CallStatus is reported by +XCALLSTAT.
type CallStatus struct {
	ID   int
	Stat int
}

// USSD is reported by +CUSD.
type USSD struct {
	Mode    int
	Message string
	DCS     int
}

// SuppService is reported by +CSSI (intermediate) and +CSSU (unsolicited).
type SuppService struct {
	Unsolicited bool
	Code        int
}

// Voice covers call progress and supplementary service events.
func Voice() *modem.Silo {
	return modem.NewSilo("voice",
		modem.Entry{Prefix: "+CRING: ", Parse: parseRing},
		modem.Entry{Prefix: "DISCONNECT", Parse: notifyOnly(NotifyCallStateChanged)},
		modem.Entry{Prefix: "+XCALLSTAT: ", Parse: parseCallStatus},
		modem.Entry{Prefix: "CONNECT", Parse: notifyOnly(NotifyCallStateChanged)},
		modem.Entry{Prefix: "+CCWA: ", Parse: notifyOnly(NotifyCallStateChanged)},
		modem.Entry{Prefix: "+CSSU: ", Parse: parseSuppService(true)},
		modem.Entry{Prefix: "+CSSI: ", Parse: parseSuppService(false)},
		modem.Entry{Prefix: "+CUSD: ", Parse: parseUSSD},
		modem.Entry{Prefix: "+XCIEV:", Parse: ignore},
		modem.Entry{Prefix: "+XCALLINFO: ", Parse: ignore},
		modem.Entry{Prefix: "RING CTM", Parse: ignore},
		modem.Entry{Prefix: "RING", Parse: notifyOnly(NotifyCallRing)},
		modem.Entry{Prefix: "BUSY", Parse: notifyOnly(NotifyCallStateChanged)},
		modem.Entry{Prefix: "NO ANSWER", Parse: notifyOnly(NotifyCallStateChanged)},
	)
}

func notifyOnly(kind string) modem.URCFunc {
	return func(rsp *modem.Response, _ string) error {
		rsp.Notify = kind
		return nil
	}
}

func parseRing(rsp *modem.Response, rest string) error {
	rsp.Payload = strings.TrimSpace(rest)
	rsp.Notify = NotifyCallRing
	return nil
}

func parseCallStatus(rsp *modem.Response, rest string) error {
	id, rest, err := at.Int(rest)
	if err != nil {
		return fmt.Errorf("call id: %w", err)
	}
	rest, ok := at.SkipComma(rest)
	if !ok {
		return fmt.Errorf("call %d: missing status", id)
	}
	stat, _, err := at.Int(rest)
	if err != nil {
		return fmt.Errorf("call status: %w", err)
	}
	rsp.Payload = CallStatus{ID: id, Stat: stat}
	rsp.Notify = NotifyCallStateChanged
	return nil
}

func parseSuppService(unsolicited bool) modem.URCFunc {
	return func(rsp *modem.Response, rest string) error {
		code, _, err := at.Int(rest)
		if err != nil {
			return fmt.Errorf("supplementary service code: %w", err)
		}
		rsp.Payload = SuppService{Unsolicited: unsolicited, Code: code}
		rsp.Notify = NotifySuppService
		return nil
	}
}

// parseUSSD decodes "<m>[,<str>,<dcs>]".
func parseUSSD(rsp *modem.Response, rest string) error {
	mode, rest, err := at.Int(rest)
	if err != nil {
		return fmt.Errorf("ussd mode: %w", err)
	}
	u := USSD{Mode: mode}
	if rest, ok := at.SkipComma(rest); ok {
		if u.Message, rest, err = at.Quoted(rest); err != nil {
			return fmt.Errorf("ussd message: %w", err)
		}
		if rest, ok := at.SkipComma(rest); ok {
			if u.DCS, _, err = at.Int(rest); err != nil {
				return fmt.Errorf("ussd dcs: %w", err)
			}
		}
	}
	rsp.Payload = u
	rsp.Notify = NotifyUSSD
	return nil
}
