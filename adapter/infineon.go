package adapter

import (
	"fmt"
	"strings"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
)

func inf6260Variant() Variant {
	return Variant{
		Tag:    INF6260,
		Parent: Base,
		Overrides: map[Kind]Operation{
			KindDefineContext:       {Build: contextCmd(defineQoSXDNS), Route: RouteData, Timeout: defineTimeout},
			KindQueryDNS:            {Build: queryXDNS, Route: RouteData, Timeout: queryTimeout},
			KindSetPreferredNetwork: {Build: setXRAT},
			KindGetPreferredNetwork: {Build: fixed("AT+XRAT?", parseXRAT)},
			KindNeighboringCells:    {Build: fixed("AT+XCELLINFO?", parseXCELLINFO)},
		},
	}
}

func inf7x60Variant() Variant {
	return Variant{
		Tag:    INF7x60,
		Parent: INF6260,
		Overrides: map[Kind]Operation{
			KindDefineContext:       {Build: contextCmd(defineXDNS), Route: RouteData, Timeout: defineTimeout},
			KindActivateContext:     {Build: contextCmd(activateRawIP), Route: RouteData, Timeout: activateTimeout},
			KindEnterData:           {Build: none, Route: RouteData},
			KindSetPreferredNetwork: {Build: setXACT},
			KindGetPreferredNetwork: {Build: fixed("AT+XACT?", parseXACT)},
		},
	}
}

func infN721Variant() Variant {
	return Variant{
		Tag:    INFN721,
		Parent: Base,
		Overrides: map[Kind]Operation{
			KindDefineContext:         {Build: contextCmd(defineQoS), Route: RouteData, Timeout: defineTimeout},
			KindQueryDNS:              {Build: queryXDNS, Route: RouteData, Timeout: queryTimeout},
			KindConfigureRegistration: {Build: fixed("AT+CREG=2;+CGREG=2;+XREG=1", nil)},
			KindSetPreferredNetwork:   {Build: setXRATDetached},
			KindGetPreferredNetwork:   {Build: fixed("AT+XRAT?", parseXRAT)},
		},
	}
}

// defineQoS defines an IPv4 context with subscribed QoS and makes sure it
// starts out deactivated.
func defineQoS(p ContextParams) string {
	return fmt.Sprintf(`AT+CGDCONT=%d,"IP","%s",,0,0;+CGQREQ=%d;+CGQMIN=%d;+CGACT=0,%d`,
		p.CID, p.APN, p.CID, p.CID, p.CID)
}

func defineQoSXDNS(p ContextParams) string {
	return fmt.Sprintf(`AT+CGDCONT=%d,"IP","%s",,0,0;+CGQREQ=%d;+CGQMIN=%d;+XDNS=%d,1;+CGACT=0,%d`,
		p.CID, p.APN, p.CID, p.CID, p.CID, p.CID)
}

// defineXDNS requests DNS servers for every address family of the PDP type.
func defineXDNS(p ContextParams) string {
	if p.pdpType() == PDPIPv4v6 {
		return fmt.Sprintf(`AT+CGDCONT=%d,"IPV4V6","%s",,0,0;+XDNS=%d,1;+XDNS=%d,2`,
			p.CID, p.APN, p.CID, p.CID)
	}
	return fmt.Sprintf(`AT+CGDCONT=%d,"%s","%s",,0,0;+XDNS=%d,%d`,
		p.CID, p.pdpType(), p.APN, p.CID, p.xdnsMode())
}

// activateRawIP activates the context and opens the raw IP data path in
// one step. The modem answers CONNECT.
func activateRawIP(p ContextParams) string {
	return fmt.Sprintf(`AT+CGACT=1,%d;+CGDATA="M-RAW_IP",%d`, p.CID, p.CID)
}

// queryXDNS decodes "+XDNS: <cid>,<dns1>,<dns2>" lines of the context.
func queryXDNS(p any) (*modem.Command, error) {
	cp, err := params[ContextParams](p)
	if err != nil {
		return nil, err
	}
	if err := cp.validate(); err != nil {
		return nil, err
	}
	cmd := modem.NewCommand("", "AT+XDNS?")
	cmd.Parse = func(rsp *modem.Response) error {
		var dns DNS
		for _, rest := range rsp.LinesWith("+XDNS: ") {
			fields, err := at.Fields(rest)
			if err != nil || len(fields) < 2 {
				continue
			}
			if cid, _, err := at.Int(fields[0]); err != nil || cid != cp.CID {
				continue
			}
			for _, f := range fields[1:] {
				dns.add(f)
			}
		}
		rsp.Payload = dns
		return nil
	}
	return cmd, nil
}

var xratSet = map[NetworkType]string{
	NetworkGSMWCDMA: "AT+XRAT=1,2",
	NetworkGSMOnly:  "AT+XRAT=0",
	NetworkWCDMA:    "AT+XRAT=2",
}

func setXRAT(p any) (*modem.Command, error) {
	nt, err := params[NetworkTypeParams](p)
	if err != nil {
		return nil, err
	}
	line, ok := xratSet[nt.Type]
	if !ok {
		return nil, fmt.Errorf("%w: network type %q", ErrInvalidParams, nt.Type)
	}
	return modem.NewCommand("", line), nil
}

var xratDetached = map[NetworkType]string{
	NetworkGSMWCDMA: "AT+XRAT=1,2;+COPS=0",
	NetworkGSMOnly:  "AT+XRAT=0,0;+COPS=0",
	NetworkWCDMA:    "AT+XRAT=2,2;+COPS=0",
}

// setXRATDetached deregisters first; the RAT is changed and registration
// restarted in the chained step.
func setXRATDetached(p any) (*modem.Command, error) {
	nt, err := params[NetworkTypeParams](p)
	if err != nil {
		return nil, err
	}
	line, ok := xratDetached[nt.Type]
	if !ok {
		return nil, fmt.Errorf("%w: network type %q", ErrInvalidParams, nt.Type)
	}
	return modem.NewCommand("", "AT+COPS=2").Chain(line), nil
}

// parseXRAT decodes "+XRAT: <AcT>[,<preferred>]".
func parseXRAT(rsp *modem.Response) error {
	rest, ok := rsp.Line("+XRAT: ")
	if !ok {
		return fmt.Errorf("no +XRAT line")
	}
	act, _, err := at.Int(rest)
	if err != nil {
		return fmt.Errorf("+XRAT act: %w", err)
	}
	switch act {
	case 0:
		rsp.Payload = NetworkGSMOnly
	case 1:
		rsp.Payload = NetworkGSMWCDMA
	case 2:
		rsp.Payload = NetworkWCDMA
	default:
		return fmt.Errorf("+XRAT: unknown act %d", act)
	}
	return nil
}

// parseXCELLINFO decodes the neighbor cell list.
//
//	GSM  (type 0,1):   <mode>,<type>,<mcc>,<mnc>,<lac>,<ci>,<rxlev>[,<ta>]
//	UMTS (type 2..4):  <mode>,<type>,<mcc>,<mnc>,<lac>,<ci>,<scrambling>,<dl_freq>,<rscp>,<ecn0>
//
// This firmware family also emits UMTS entries without <dl_freq>. The two
// layouts are told apart by field count only; the rule is specific to this
// dialect. Entries with LAC ffff are placeholders and skipped.
func parseXCELLINFO(rsp *modem.Response) error {
	var cells []NeighborCell
	for _, rest := range rsp.LinesWith("+XCELLINFO: ") {
		fields, err := at.Fields(rest)
		if err != nil {
			return err
		}
		if len(fields) < 7 {
			return fmt.Errorf("+XCELLINFO: %d fields", len(fields))
		}
		typ, _, err := at.Int(fields[1])
		if err != nil {
			return fmt.Errorf("+XCELLINFO type: %w", err)
		}
		if typ < 0 || typ >= 5 {
			return fmt.Errorf("+XCELLINFO: invalid type %d", typ)
		}
		lac := fields[4]
		if strings.EqualFold(lac, "ffff") {
			continue
		}

		if typ <= 1 {
			rxlev, _, err := at.Int(fields[6])
			if err != nil {
				return fmt.Errorf("+XCELLINFO rxlev: %w", err)
			}
			cells = append(cells, NeighborCell{CID: hex4(lac) + hex4(fields[5]), RSSI: rxlev})
			continue
		}

		scrambling, _, err := at.Int(fields[6])
		if err != nil {
			return fmt.Errorf("+XCELLINFO scrambling code: %w", err)
		}
		var rscpField string
		switch {
		case len(fields) >= 10:
			rscpField = fields[8]
		case len(fields) == 9:
			rscpField = fields[7]
		default:
			return fmt.Errorf("+XCELLINFO: umts entry with %d fields", len(fields))
		}
		rscp, _, err := at.Int(rscpField)
		if err != nil {
			return fmt.Errorf("+XCELLINFO rscp: %w", err)
		}
		cells = append(cells, NeighborCell{CID: fmt.Sprintf("%08x", scrambling), RSSI: rscp, UMTS: true})
	}
	rsp.Payload = cells
	return nil
}

// hex4 left-pads a hex field to four digits.
func hex4(s string) string {
	s = strings.ToLower(s)
	if len(s) >= 4 {
		return s[len(s)-4:]
	}
	return strings.Repeat("0", 4-len(s)) + s
}
