package silo

import (
	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
)

// Data covers the data channel. NO CARRIER outside a command means the
// network dropped the session carried by the channel.
func Data() *modem.Silo {
	return modem.NewSilo("data",
		modem.Entry{Prefix: at.NoCarrier, Parse: notifyOnly(NotifyNoCarrier)},
		modem.Entry{Prefix: "+XCIEV:", Parse: ignore},
		modem.Entry{Prefix: "RING", Parse: ignore},
	)
}

// Misc covers vendor driver indications.
func Misc() *modem.Silo {
	return modem.NewSilo("misc",
		modem.Entry{Prefix: "+XDRVI: ", Parse: parseOEM},
	)
}

func parseOEM(rsp *modem.Response, rest string) error {
	fields, err := at.Fields(rest)
	if err != nil {
		return err
	}
	rsp.Payload = fields
	rsp.Notify = NotifyOEMIndication
	return nil
}
