package silo

import (
	"fmt"
	"strings"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
)

// SIM states reported by +XSIM.
const (
	XSIMNotPresent      = 0
	XSIMPinNeeded       = 1
	XSIMPinNotNeeded    = 2
	XSIMPinVerified     = 3
	XSIMPukNeeded       = 4
	XSIMBlocked         = 5
	XSIMError           = 6
	XSIMReadyForAttach  = 7
	XSIMTechProblem     = 8
	XSIMRemoved         = 9
	XSIMReactivating    = 10
	XSIMReactivated     = 11
	XSIMSMSCachingReady = 12
)

// SIMState is the payload of sim-status-changed and sim-inserted.
type SIMState struct {
	State int
	Ready bool
}

// IMSRegistration is reported by +CIREPH, +CIREPI and +CIREGU.
type IMSRegistration struct {
	Prefix string
	Value  int
}

// SIM covers SIM state and toolkit events. The silo remembers the last
// reported state so a re-inserted card can be told apart from a state
// change of the card in place.
func SIM() *modem.Silo {
	prev := XSIMNotPresent
	parseXSIM := func(rsp *modem.Response, rest string) error {
		state, _, err := at.Int(rest)
		if err != nil {
			return fmt.Errorf("sim state: %w", err)
		}
		rsp.Payload = SIMState{State: state, Ready: SIMReady(state)}
		rsp.Notify = NotifySIMStatusChanged
		if (prev == XSIMNotPresent || prev == XSIMRemoved) && state != XSIMNotPresent {
			rsp.Notify = NotifySIMInserted
		}
		prev = state
		return nil
	}

	return modem.NewSilo("sim",
		modem.Entry{Prefix: "+STKCTRLIND: ", Parse: ignore},
		modem.Entry{Prefix: "+STKCC: ", Parse: ignore},
		modem.Entry{Prefix: "+STKPRO: ", Parse: parseSTK(NotifySTKProactive)},
		modem.Entry{Prefix: "+STKCNF: ", Parse: parseSTK(NotifySTKSessionEnd)},
		modem.Entry{Prefix: "+SATI: ", Parse: parseSTK(NotifySTKProactive)},
		modem.Entry{Prefix: "+SATN: ", Parse: parseSTK(NotifySTKProactive)},
		modem.Entry{Prefix: "+SATF: ", Parse: parseSTK(NotifySTKSessionEnd)},
		modem.Entry{Prefix: "+XLOCK: ", Parse: ignore},
		modem.Entry{Prefix: "+XSIM: ", Parse: parseXSIM},
	)
}

// SIMReady reports whether an +XSIM state allows network services.
func SIMReady(state int) bool {
	switch state {
	case XSIMPinNotNeeded, XSIMPinVerified, XSIMReadyForAttach, XSIMReactivated, XSIMSMSCachingReady:
		return true
	}
	return false
}

// parseSTK passes the toolkit data through as text; decoding the BER-TLV
// is left to the consumer.
func parseSTK(kind string) modem.URCFunc {
	return func(rsp *modem.Response, rest string) error {
		data := strings.TrimSpace(rest)
		if data == "" {
			return fmt.Errorf("toolkit data: %w", at.ErrNoValue)
		}
		rsp.Payload = data
		rsp.Notify = kind
		return nil
	}
}

// IMS covers IMS registration and SRVCC reports.
func IMS() *modem.Silo {
	return modem.NewSilo("ims",
		modem.Entry{Prefix: "+CIREPI: ", Parse: parseIMS("+CIREPI")},
		modem.Entry{Prefix: "+CIREPH: ", Parse: parseIMS("+CIREPH")},
		modem.Entry{Prefix: "+CIREGU: ", Parse: parseIMS("+CIREGU")},
		modem.Entry{Prefix: "+XISRVCC: ", Parse: ignore},
		modem.Entry{Prefix: "+IMSCALLSTAT: ", Parse: ignore},
		modem.Entry{Prefix: "+IMSSMSSTAT: ", Parse: ignore},
	)
}

func parseIMS(prefix string) modem.URCFunc {
	return func(rsp *modem.Response, rest string) error {
		v, _, err := at.Int(rest)
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		rsp.Payload = IMSRegistration{Prefix: prefix, Value: v}
		rsp.Notify = NotifyIMSRegistration
		return nil
	}
}
