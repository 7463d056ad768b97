package adapter

import (
	"fmt"
	"strings"
	"time"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/ipaddr"
	"i4.energy/across/modemctl/modem"
	"i4.energy/across/modemctl/silo"
)

const (
	defineTimeout     = 10 * time.Second
	activateTimeout   = 60 * time.Second
	queryTimeout      = 10 * time.Second
	enterDataTimeout  = 30 * time.Second
	deactivateTimeout = 30 * time.Second
	radioTimeout      = 30 * time.Second
)

// baseVariant is the 3GPP TS 27.007 command set.
func baseVariant() Variant {
	return Variant{
		Tag: Base,
		Overrides: map[Kind]Operation{
			KindDefineContext:   {Build: contextCmd(defineContext), Route: RouteData, Timeout: defineTimeout},
			KindActivateContext: {Build: contextCmd(cgact(1)), Route: RouteData, Timeout: activateTimeout},
			KindQueryAddress:    {Build: queryAddress, Route: RouteData, Timeout: queryTimeout},
			KindQueryDNS:        {Build: queryDNSContrdp, Route: RouteData, Timeout: queryTimeout},
			KindEnterData:       {Build: enterData, Route: RouteData, Timeout: enterDataTimeout},
			KindDeactivate:      {Build: contextCmd(cgact(0)), Route: RouteData, Timeout: deactivateTimeout},
			KindLastFailCause:   {Build: fixed("AT+CEER", parseLastFailCause), Route: RouteData},

			KindConfigureRegistration: {Build: fixed("AT+CREG=2;+CGREG=2", nil)},
			KindSignalStrength:        {Build: fixed("AT+CSQ", parseCSQ)},
			KindRegistration:          {Build: fixed("AT+CREG?", parseRegistration("+CREG: ", false))},
			KindGPRSRegistration:      {Build: fixed("AT+CGREG?", parseRegistration("+CGREG: ", true))},
			KindOperator:              {Build: fixed("AT+COPS?", parseOperator)},
			KindIMEI:                  {Build: fixed("AT+CGSN", parseIMEI)},
			KindBasebandVersion:       {Build: fixed(at.CmdRevision, parseText)},
			KindSIMStatus:             {Build: fixed(at.CmdSimStatus, parseSIMStatus)},
			KindSIMIO:                 {Build: simIO},
			KindRadioPower:            {Build: radioPower, Timeout: radioTimeout},
			KindSendSMS:               {Build: sendSMS, Timeout: smsTimeout},
		},
	}
}

// contextCmd validates ContextParams and formats the command line.
func contextCmd(line func(ContextParams) string) BuildFunc {
	return func(p any) (*modem.Command, error) {
		cp, err := params[ContextParams](p)
		if err != nil {
			return nil, err
		}
		if err := cp.validate(); err != nil {
			return nil, err
		}
		return modem.NewCommand("", line(cp)), nil
	}
}

// defineContext defines the context and, when credentials are used, sets
// them with +CGAUTH.
func defineContext(p ContextParams) string {
	line := fmt.Sprintf(`AT+CGDCONT=%d,"%s","%s"`, p.CID, p.pdpType(), p.APN)
	if p.Auth == AuthNone {
		return line
	}
	return line + fmt.Sprintf(`;+CGAUTH=%d,%d,"%s","%s"`, p.CID, p.cgauthProtocol(), p.Username, p.Password)
}

func cgact(state int) func(ContextParams) string {
	return func(p ContextParams) string {
		return fmt.Sprintf("AT+CGACT=%d,%d", state, p.CID)
	}
}

func rawIPData(p ContextParams) string {
	return fmt.Sprintf(`AT+CGDATA="M-RAW_IP",%d`, p.CID)
}

func enterData(p any) (*modem.Command, error) {
	cmd, err := contextCmd(rawIPData)(p)
	if err != nil {
		return nil, err
	}
	cmd.EntersData = true
	return cmd, nil
}

func queryAddress(p any) (*modem.Command, error) {
	b := contextCmd(func(p ContextParams) string { return fmt.Sprintf("AT+CGPADDR=%d", p.CID) })
	cmd, err := b(p)
	if err != nil {
		return nil, err
	}
	cmd.Parse = parseAddresses
	return cmd, nil
}

// parseAddresses decodes "+CGPADDR: <cid>,<addr>[,<addr2>]".
func parseAddresses(rsp *modem.Response) error {
	rest, ok := rsp.Line("+CGPADDR: ")
	if !ok {
		return fmt.Errorf("no +CGPADDR line")
	}
	fields, err := at.Fields(rest)
	if err != nil {
		return err
	}
	if len(fields) < 2 {
		return fmt.Errorf("+CGPADDR: missing address")
	}
	cid, _, err := at.Int(fields[0])
	if err != nil {
		return fmt.Errorf("+CGPADDR cid: %w", err)
	}
	out := Addresses{CID: cid}
	for _, f := range fields[1:] {
		if f == "" {
			continue
		}
		v4, v6, err := ipaddr.DecodeAddr(f)
		if err != nil {
			return err
		}
		if v4 != "" {
			out.V4 = v4
		}
		if v6 != "" {
			out.V6 = v6
		}
	}
	if out.V4 == "" && out.V6 == "" {
		return fmt.Errorf("+CGPADDR: empty address")
	}
	rsp.Payload = out
	return nil
}

func queryDNSContrdp(p any) (*modem.Command, error) {
	cp, err := params[ContextParams](p)
	if err != nil {
		return nil, err
	}
	if err := cp.validate(); err != nil {
		return nil, err
	}
	cmd := modem.NewCommand("", fmt.Sprintf("AT+CGCONTRDP=%d", cp.CID))
	cmd.Parse = func(rsp *modem.Response) error {
		var dns DNS
		for _, rest := range rsp.LinesWith("+CGCONTRDP: ") {
			fields, err := at.Fields(rest)
			if err != nil {
				continue
			}
			// <cid>,<bearer>,<apn>,<local addr>,<gw>,<dns1>,<dns2>
			for i := 5; i < len(fields) && i < 7; i++ {
				dns.add(fields[i])
			}
		}
		rsp.Payload = dns
		return nil
	}
	return cmd, nil
}

// add decodes one DNS server and drops it on error.
func (d *DNS) add(raw string) {
	if raw == "" {
		return
	}
	v4, v6, err := ipaddr.DecodeAddr(raw)
	if err != nil {
		return
	}
	if v4 != "" && v4 != "0.0.0.0" {
		d.V4 = append(d.V4, v4)
	}
	if v6 != "" && v6 != "::" {
		d.V6 = append(d.V6, v6)
	}
}

// ceer extracts the numeric cause of a +CEER reply. The extended form is
// +CEER: "<report>",<cause>,"<text>"; plain text reports carry no cause.
func ceer(rsp *modem.Response) (cause int, text string, ok bool) {
	rest, found := rsp.Line("+CEER: ")
	if !found {
		return 0, "", false
	}
	fields, err := at.Fields(rest)
	if err != nil {
		return 0, "", false
	}
	for i, f := range fields {
		n, r, err := at.Int(f)
		if err != nil || strings.TrimSpace(r) != "" {
			continue
		}
		if i+1 < len(fields) {
			text = fields[i+1]
		}
		return n, text, true
	}
	return 0, "", false
}

// parseLastFailCause stores the cause as an int, 0 when none is reported.
func parseLastFailCause(rsp *modem.Response) error {
	cause, _, _ := ceer(rsp)
	rsp.Payload = cause
	return nil
}

// parseCSQ decodes "+CSQ: <rssi>,<ber>".
func parseCSQ(rsp *modem.Response) error {
	rest, ok := rsp.Line("+CSQ: ")
	if !ok {
		return fmt.Errorf("no +CSQ line")
	}
	rssi, rest, err := at.Int(rest)
	if err != nil {
		return fmt.Errorf("+CSQ rssi: %w", err)
	}
	rest, _ = at.SkipComma(rest)
	ber, _, err := at.Int(rest)
	if err != nil {
		return fmt.Errorf("+CSQ ber: %w", err)
	}
	rsp.Payload = SignalStrength{RSSI: rssi, BER: ber, RSCP: -1, ECNO: -1, RSRQ: -1, RSRP: -1, RSSNR: -1}
	return nil
}

// parseRegistration decodes a solicited registration reply, which carries
// the report mode <n> ahead of the unsolicited field layout.
func parseRegistration(prefix string, packet bool) modem.ParseFunc {
	return func(rsp *modem.Response) error {
		rest, ok := rsp.Line(prefix)
		if !ok {
			return fmt.Errorf("no %sline", prefix)
		}
		fields, err := at.Fields(rest)
		if err != nil {
			return err
		}
		if len(fields) < 2 {
			return fmt.Errorf("%smissing status", prefix)
		}
		reg, err := silo.DecodeRegistration(fields[1:])
		if err != nil {
			return err
		}
		reg.Packet = packet
		rsp.Payload = reg
		return nil
	}
}

// parseOperator decodes "+COPS: <mode>[,<format>,<oper>[,<AcT>]]".
func parseOperator(rsp *modem.Response) error {
	rest, ok := rsp.Line("+COPS: ")
	if !ok {
		return fmt.Errorf("no +COPS line")
	}
	fields, err := at.Fields(rest)
	if err != nil {
		return err
	}
	op := Operator{Format: -1, AcT: -1}
	for i, f := range fields {
		switch i {
		case 0:
			op.Mode, _, err = at.Int(f)
		case 1:
			op.Format, _, err = at.Int(f)
		case 2:
			op.Name = f
		case 3:
			op.AcT, _, err = at.Int(f)
		}
		if err != nil {
			return fmt.Errorf("+COPS field %d: %w", i, err)
		}
	}
	rsp.Payload = op
	return nil
}

func parseIMEI(rsp *modem.Response) error {
	for _, l := range rsp.Lines {
		l = strings.TrimSpace(strings.TrimPrefix(l, "+CGSN:"))
		if l == "" {
			continue
		}
		if strings.Trim(l, "0123456789") != "" {
			return fmt.Errorf("imei: unexpected %q", l)
		}
		rsp.Payload = l
		return nil
	}
	return fmt.Errorf("imei: empty reply")
}

func parseText(rsp *modem.Response) error {
	rsp.Payload = strings.TrimSpace(strings.TrimPrefix(rsp.Text(), "+CGMR:"))
	return nil
}

func parseSIMStatus(rsp *modem.Response) error {
	rest, ok := rsp.Line("+CPIN: ")
	if !ok {
		return fmt.Errorf("no +CPIN line")
	}
	rsp.Payload = strings.TrimSpace(rest)
	return nil
}

func simIO(p any) (*modem.Command, error) {
	io, err := params[SIMIOParams](p)
	if err != nil {
		return nil, err
	}
	line := fmt.Sprintf("AT+CRSM=%d,%d,%d,%d,%d", io.Command, io.FileID, io.P1, io.P2, io.P3)
	if io.Data != "" {
		line += fmt.Sprintf(`,"%s"`, io.Data)
	}
	cmd := modem.NewCommand("", line)
	cmd.Parse = parseCRSM
	return cmd, nil
}

// parseCRSM decodes "+CRSM: <sw1>,<sw2>[,<response>]".
func parseCRSM(rsp *modem.Response) error {
	rest, ok := rsp.Line("+CRSM: ")
	if !ok {
		return fmt.Errorf("no +CRSM line")
	}
	var res SIMIOResult
	var err error
	if res.SW1, rest, err = at.Int(rest); err != nil {
		return fmt.Errorf("+CRSM sw1: %w", err)
	}
	rest, _ = at.SkipComma(rest)
	if res.SW2, rest, err = at.Int(rest); err != nil {
		return fmt.Errorf("+CRSM sw2: %w", err)
	}
	if rest, ok := at.SkipComma(rest); ok {
		if res.Response, _, err = at.String(rest); err != nil {
			return fmt.Errorf("+CRSM response: %w", err)
		}
	}
	rsp.Payload = res
	return nil
}

func radioPower(p any) (*modem.Command, error) {
	rp, err := params[RadioPowerParams](p)
	if err != nil {
		return nil, err
	}
	if rp.On {
		return modem.NewCommand("", "AT+CFUN=1"), nil
	}
	return modem.NewCommand("", "AT+CFUN=4"), nil
}
