package adapter

import (
	"encoding/hex"
	"fmt"
	"time"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
)

const smsTimeout = 60 * time.Second

// sendSMS sends a PDU-mode message. AT+CMGS=<length> is answered with the
// "> " prompt; the chained step then transmits the PDU terminated by
// Ctrl-Z and completes with "+CMGS: <mr>".
func sendSMS(p any) (*modem.Command, error) {
	sms, err := params[SMSParams](p)
	if err != nil {
		return nil, err
	}
	pdu, err := hex.DecodeString(sms.PDU)
	if err != nil || len(pdu) == 0 {
		return nil, fmt.Errorf("%w: pdu is not hex", ErrInvalidParams)
	}
	smsc := sms.SMSC
	if smsc == "" {
		smsc = "00"
	}
	if _, err := hex.DecodeString(smsc); err != nil {
		return nil, fmt.Errorf("%w: smsc is not hex", ErrInvalidParams)
	}

	cmd := modem.NewCommand("", fmt.Sprintf("AT+CMGS=%d", len(pdu)))
	cmd.Chain(smsc + sms.PDU + at.CtrlZ)
	cmd.Expect = []string{"+CMGS:"}
	cmd.Parse = parseCMGS
	return cmd, nil
}

func parseCMGS(rsp *modem.Response) error {
	rest, ok := rsp.Line("+CMGS:")
	if !ok {
		return fmt.Errorf("no +CMGS line")
	}
	ref, _, err := at.Int(rest)
	if err != nil {
		return fmt.Errorf("+CMGS reference: %w", err)
	}
	rsp.Payload = SMSResult{Ref: ref}
	return nil
}
