package adapter

import (
	"fmt"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
)

func xmm6260Variant() Variant {
	return Variant{
		Tag:    XMM6260,
		Parent: Base,
		Overrides: map[Kind]Operation{
			KindDefineContext:       {Build: contextCmd(defineXDNS), Route: RouteData, Timeout: defineTimeout},
			KindQueryDNS:            {Build: queryXDNS, Route: RouteData, Timeout: queryTimeout},
			KindSetPreferredNetwork: {Build: setXRAT},
			KindGetPreferredNetwork: {Build: fixed("AT+XRAT?", parseXRAT)},
		},
	}
}

func xmm6360Variant() Variant {
	return Variant{
		Tag:    XMM6360,
		Parent: XMM6260,
		Overrides: map[Kind]Operation{
			KindDefineContext:         {Build: contextCmd(defineAuth), Route: RouteData, Timeout: defineTimeout},
			KindActivateContext:       {Build: activateDataChannel, Route: RouteData, Timeout: activateTimeout},
			KindEnterData:             {Build: none, Route: RouteData},
			KindConfigureRegistration: {Build: fixed("AT+CREG=3;+CGREG=0;+XREG=3", nil)},
		},
	}
}

func xmm7160Variant() Variant {
	return Variant{
		Tag:    XMM7160,
		Parent: XMM6360,
		Overrides: map[Kind]Operation{
			KindConfigureRegistration: {Build: fixed("AT+CREG=3;+CEREG=2;+XREG=3;+XCESQ=1", nil)},
			KindSignalStrength:        {Build: fixed("AT+XCESQ?", parseXCESQ)},
			KindGPRSRegistration:      {Build: fixed("AT+CEREG?", parseRegistration("+CEREG: ", true))},
			KindSetPreferredNetwork:   {Build: setXACT},
			KindGetPreferredNetwork:   {Build: fixed("AT+XACT?", parseXACT)},
		},
	}
}

// xmm7260Variant differs from its parent only in modem bring-up, which is
// outside the operation table.
func xmm7260Variant() Variant {
	return Variant{Tag: XMM7260, Parent: XMM7160}
}

func xmm7x60Variant() Variant {
	return Variant{
		Tag:    XMM7x60,
		Parent: XMM6360,
		Overrides: map[Kind]Operation{
			KindSetPreferredNetwork: {Build: setXACT},
			KindGetPreferredNetwork: {Build: fixed("AT+XACT?", parseXACT)},
		},
	}
}

// defineAuth defines the context together with its authentication and DNS
// request mode.
func defineAuth(p ContextParams) string {
	emergency := 0
	if p.Emergency {
		emergency = 1
	}
	return fmt.Sprintf(`AT+CGDCONT=%d,"%s","%s",,0,0,,%d;+XGAUTH=%d,%d,"%s","%s";+XDNS=%d,%d`,
		p.CID, p.pdpType(), p.APN, emergency,
		p.CID, p.Auth, p.Username, p.Password,
		p.CID, p.xdnsMode())
}

// activateDataChannel activates the context routed to the data channel's
// mux line and reads the activation cause with a chained AT+CEER. A
// non-zero cause fails the command with a *CauseError.
func activateDataChannel(p any) (*modem.Command, error) {
	cp, err := params[ContextParams](p)
	if err != nil {
		return nil, err
	}
	if err := cp.validate(); err != nil {
		return nil, err
	}
	cmd := modem.NewCommand("", fmt.Sprintf(`AT+CGACT=1,%d;+XDATACHANNEL=1,1,"/mux/%d","/mux/%d",0`,
		cp.CID, cp.Mux, cp.Mux))
	cmd.Chain("AT+CEER")
	cmd.Parse = func(rsp *modem.Response) error {
		if cause, text, ok := ceer(rsp); ok && cause != 0 {
			return &CauseError{Cause: cause, Text: text}
		}
		return nil
	}
	return cmd, nil
}

// parseXCESQ decodes
// "+XCESQ: <n>,<rxlev>,<ber>,<rscp>,<ecno>,<rsrq>,<rsrp>,<rssnr>".
func parseXCESQ(rsp *modem.Response) error {
	rest, ok := rsp.Line("+XCESQ: ")
	if !ok {
		return fmt.Errorf("no +XCESQ line")
	}
	fields, err := at.Fields(rest)
	if err != nil {
		return err
	}
	if len(fields) < 8 {
		return fmt.Errorf("+XCESQ: %d fields", len(fields))
	}
	v := make([]int, 7)
	for i := range v {
		if v[i], _, err = at.Int(fields[i+1]); err != nil {
			return fmt.Errorf("+XCESQ field %d: %w", i+1, err)
		}
	}
	rsp.Payload = SignalStrength{RSSI: v[0], BER: v[1], RSCP: v[2], ECNO: v[3], RSRQ: v[4], RSRP: v[5], RSSNR: v[6]}
	return nil
}

var xactSet = map[NetworkType]string{
	NetworkGSMWCDMA:    "AT+XACT=3,1",
	NetworkGSMOnly:     "AT+XACT=0",
	NetworkWCDMA:       "AT+XACT=1",
	NetworkLTEOnly:     "AT+XACT=2",
	NetworkLTEGSMWCDMA: "AT+XACT=6,2,1",
	NetworkLTEWCDMA:    "AT+XACT=4,2",
}

func setXACT(p any) (*modem.Command, error) {
	nt, err := params[NetworkTypeParams](p)
	if err != nil {
		return nil, err
	}
	line, ok := xactSet[nt.Type]
	if !ok {
		return nil, fmt.Errorf("%w: network type %q", ErrInvalidParams, nt.Type)
	}
	return modem.NewCommand("", line), nil
}

var xactGet = map[int]NetworkType{
	0: NetworkGSMOnly,
	1: NetworkWCDMA,
	2: NetworkLTEOnly,
	3: NetworkGSMWCDMA,
	4: NetworkLTEWCDMA,
	6: NetworkLTEGSMWCDMA,
}

// parseXACT decodes "+XACT: <AcT>[,<preferred>...]".
func parseXACT(rsp *modem.Response) error {
	rest, ok := rsp.Line("+XACT: ")
	if !ok {
		return fmt.Errorf("no +XACT line")
	}
	act, _, err := at.Int(rest)
	if err != nil {
		return fmt.Errorf("+XACT act: %w", err)
	}
	nt, ok := xactGet[act]
	if !ok {
		return fmt.Errorf("+XACT: unknown act %d", act)
	}
	rsp.Payload = nt
	return nil
}
