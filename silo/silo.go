// Package silo holds the per-domain tables of unsolicited result prefixes
// and the routines that decode them. A channel consults its silos in order
// and the first matching prefix wins.
package silo

import (
	"i4.energy/across/modemctl/modem"
)

// Notification kinds escalated by the silos.
const (
	NotifyCallStateChanged   = "call-state-changed"
	NotifyCallRing           = "call-ring"
	NotifySuppService        = "supp-svc-notification"
	NotifyUSSD               = "ussd"
	NotifyNewSMS             = "new-sms"
	NotifyNewSMSOnSIM        = "new-sms-on-sim"
	NotifySMSStatusReport    = "sms-status-report"
	NotifyNewBroadcastSMS    = "new-broadcast-sms"
	NotifyNetworkStateChange = "network-state-changed"
	NotifyNITZ               = "nitz-time-received"
	NotifyDataCallList       = "data-call-list-changed"
	NotifyDataCallDeactivate = "data-call-deactivate"
	NotifyNoCarrier          = "no-carrier"
	NotifySIMStatusChanged   = "sim-status-changed"
	NotifySIMInserted        = "sim-inserted"
	NotifySTKProactive       = "stk-proactive-command"
	NotifySTKSessionEnd      = "stk-session-end"
	NotifyIMSRegistration    = "ims-registration-changed"
	NotifyOEMIndication      = "oem-indication"
)

// ControlSet returns the silos attached to the control channel.
func ControlSet() []*modem.Silo {
	return []*modem.Silo{Voice(), SIM(), SMS(), Network(), Misc(), IMS()}
}

// DataSet returns the silos attached to a data channel.
func DataSet() []*modem.Silo {
	return []*modem.Silo{Data(), Network()}
}

// ignore accepts a line without escalating it.
func ignore(*modem.Response, string) error {
	return nil
}
