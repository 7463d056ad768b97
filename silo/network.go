package silo

import (
	"fmt"
	"strings"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
)

// Registration is a circuit or packet registration report.
type Registration struct {
	// Packet is set for +CGREG/+CEREG reports.
	Packet bool
	Stat   int
	LAC    uint64
	CI     uint64
	// AcT is the access technology, -1 when not reported.
	AcT     int
	HasCell bool
}

// TimeZone is reported by +CTZV.
type TimeZone struct {
	Quarters int
	Time     string
}

// Network covers registration, packet domain events and network time.
func Network() *modem.Silo {
	return modem.NewSilo("network",
		modem.Entry{Prefix: "+CREG: ", Parse: parseRegistration(false)},
		modem.Entry{Prefix: "+CGREG: ", Parse: parseRegistration(true)},
		modem.Entry{Prefix: "+CEREG: ", Parse: parseRegistration(true)},
		modem.Entry{Prefix: "+XREG: ", Parse: parseRegistration(true)},
		modem.Entry{Prefix: "+CGEV: ", Parse: parseCGEV},
		modem.Entry{Prefix: "+CTZV: ", Parse: parseCTZV},
		modem.Entry{Prefix: "+CTZDST: ", Parse: ignore},
		modem.Entry{Prefix: "+XNITZINFO", Parse: ignore},
		modem.Entry{Prefix: "+PACSP1", Parse: ignore},
	)
}

func parseRegistration(packet bool) modem.URCFunc {
	return func(rsp *modem.Response, rest string) error {
		fields, err := at.Fields(rest)
		if err != nil {
			return err
		}
		reg, err := DecodeRegistration(fields)
		if err != nil {
			return err
		}
		reg.Packet = packet
		rsp.Payload = reg
		rsp.Notify = NotifyNetworkStateChange
		return nil
	}
}

// DecodeRegistration decodes the unsolicited field layout
// "<stat>[,<lac>,<ci>[,<AcT>]]". Solicited replies carry a leading <n>
// which the caller drops first.
func DecodeRegistration(fields []string) (Registration, error) {
	reg := Registration{AcT: -1}
	if len(fields) == 0 {
		return reg, fmt.Errorf("registration: no fields")
	}
	stat, _, err := at.Int(fields[0])
	if err != nil {
		return reg, fmt.Errorf("registration stat: %w", err)
	}
	reg.Stat = stat

	if len(fields) >= 3 && fields[1] != "" {
		if reg.LAC, _, err = at.HexUint(fields[1]); err != nil {
			return reg, fmt.Errorf("registration lac: %w", err)
		}
		if reg.CI, _, err = at.HexUint(fields[2]); err != nil {
			return reg, fmt.Errorf("registration ci: %w", err)
		}
		reg.HasCell = true
	}
	if len(fields) >= 4 && fields[3] != "" {
		if reg.AcT, _, err = at.Int(fields[3]); err != nil {
			return reg, fmt.Errorf("registration act: %w", err)
		}
	}
	return reg, nil
}

// parseCGEV escalates packet domain events. A network-initiated
// deactivation asks for the affected sessions to be torn down; everything
// else only invalidates the data-call list.
func parseCGEV(rsp *modem.Response, rest string) error {
	rsp.Payload = strings.TrimSpace(rest)
	if strings.Contains(rest, "NW DEACT") {
		rsp.Notify = NotifyDataCallDeactivate
		return nil
	}
	rsp.Notify = NotifyDataCallList
	return nil
}

// parseCTZV decodes "<tz>[,"yy/MM/dd,hh:mm:ss"]". The zone is in quarters
// of an hour.
func parseCTZV(rsp *modem.Response, rest string) error {
	tz, rest, err := at.Int(rest)
	if err != nil {
		return fmt.Errorf("time zone: %w", err)
	}
	z := TimeZone{Quarters: tz}
	if rest, ok := at.SkipComma(rest); ok {
		if z.Time, _, err = at.Quoted(rest); err != nil {
			return fmt.Errorf("network time: %w", err)
		}
	}
	rsp.Payload = z
	rsp.Notify = NotifyNITZ
	return nil
}
