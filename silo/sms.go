package silo

import (
	"fmt"
	"strings"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
)

// PDUMessage is a PDU-mode message delivered directly (+CMT, +CDS, +CBM).
type PDUMessage struct {
	Length int
	PDU    string
}

// StoredSMS points at a message stored by the modem (+CMTI, +CDSI, +CBMI).
type StoredSMS struct {
	Storage string
	Index   int
}

// SMS covers message arrival. Directly delivered messages span two lines:
// the header and the hex PDU.
func SMS() *modem.Silo {
	return modem.NewSilo("sms",
		modem.Entry{Prefix: "+CMT: ", Trailing: 1, Parse: parsePDU(NotifyNewSMS)},
		modem.Entry{Prefix: "+CBM: ", Trailing: 1, Parse: parsePDU(NotifyNewBroadcastSMS)},
		modem.Entry{Prefix: "+CDS: ", Trailing: 1, Parse: parsePDU(NotifySMSStatusReport)},
		modem.Entry{Prefix: "+CMTI: ", Parse: parseStored(NotifyNewSMSOnSIM)},
		modem.Entry{Prefix: "+CBMI: ", Parse: parseStored(NotifyNewBroadcastSMS)},
		modem.Entry{Prefix: "+CDSI: ", Parse: parseStored(NotifySMSStatusReport)},
	)
}

// parsePDU decodes "[<alpha>,]<length>" followed by the PDU line.
func parsePDU(kind string) modem.URCFunc {
	return func(rsp *modem.Response, rest string) error {
		if len(rsp.Lines) < 2 {
			return fmt.Errorf("missing PDU line")
		}
		fields, err := at.Fields(rest)
		if err != nil || len(fields) == 0 {
			return fmt.Errorf("sms header %q: malformed", rest)
		}
		length, _, err := at.Int(fields[len(fields)-1])
		if err != nil {
			return fmt.Errorf("sms length: %w", err)
		}
		pdu := strings.TrimSpace(rsp.Lines[1])
		if len(pdu)%2 != 0 {
			return fmt.Errorf("odd PDU length %d", len(pdu))
		}
		rsp.Payload = PDUMessage{Length: length, PDU: pdu}
		rsp.Notify = kind
		return nil
	}
}

// parseStored decodes "<mem>,<index>".
func parseStored(kind string) modem.URCFunc {
	return func(rsp *modem.Response, rest string) error {
		mem, rest, err := at.String(rest)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		rest, ok := at.SkipComma(rest)
		if !ok {
			return fmt.Errorf("missing index")
		}
		index, _, err := at.Int(rest)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}
		rsp.Payload = StoredSMS{Storage: mem, Index: index}
		rsp.Notify = kind
		return nil
	}
}
