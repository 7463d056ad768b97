package adapter

import "fmt"

// Auth is the PDP authentication protocol.
type Auth int

const (
	AuthNone Auth = iota
	AuthPAP
	AuthCHAP
	AuthPAPOrCHAP
)

// PDP types.
const (
	PDPIPv4   = "IP"
	PDPIPv6   = "IPV6"
	PDPIPv4v6 = "IPV4V6"
)

// ContextParams parameterizes every data-call request.
type ContextParams struct {
	CID       int
	APN       string
	PDPType   string
	Auth      Auth
	Username  string
	Password  string
	Emergency bool
	// Mux is the multiplexer line of the data channel the context is
	// routed to.
	Mux int
}

func (p ContextParams) pdpType() string {
	if p.PDPType == "" {
		return PDPIPv4v6
	}
	return p.PDPType
}

// xdnsMode is the +XDNS request mode for the PDP type.
func (p ContextParams) xdnsMode() int {
	switch p.pdpType() {
	case PDPIPv4:
		return 1
	case PDPIPv6:
		return 2
	default:
		return 3
	}
}

// cgauthProtocol is the +CGAUTH <auth_prot>, which has no combined
// PAP-or-CHAP value; CHAP is requested instead.
func (p ContextParams) cgauthProtocol() int {
	switch p.Auth {
	case AuthPAP:
		return 1
	case AuthCHAP, AuthPAPOrCHAP:
		return 2
	}
	return 0
}

func (p ContextParams) validate() error {
	if p.CID < 1 {
		return fmt.Errorf("%w: context id %d", ErrInvalidParams, p.CID)
	}
	return nil
}

// Addresses is the reply to query-address.
type Addresses struct {
	CID int
	V4  string
	V6  string
}

// DNS is the reply to query-dns. Entries that failed to decode are left
// out.
type DNS struct {
	V4 []string
	V6 []string
}

// CauseError reports a network-supplied activation failure cause.
type CauseError struct {
	Cause int
	Text  string
}

func (e *CauseError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("activation failed: cause %d (%s)", e.Cause, e.Text)
	}
	return fmt.Sprintf("activation failed: cause %d", e.Cause)
}

// SignalStrength is the reply to signal-strength. Fields the dialect does
// not report are -1.
type SignalStrength struct {
	RSSI  int
	BER   int
	RSCP  int
	ECNO  int
	RSRQ  int
	RSRP  int
	RSSNR int
}

// Operator is the reply to operator.
type Operator struct {
	Mode   int
	Format int
	Name   string
	AcT    int
}

// SIMIOParams addresses one elementary file operation (+CRSM).
type SIMIOParams struct {
	Command int
	FileID  int
	P1      int
	P2      int
	P3      int
	Data    string
}

// SIMIOResult is the reply to sim-io.
type SIMIOResult struct {
	SW1      int
	SW2      int
	Response string
}

// RadioPowerParams switches the radio on or off.
type RadioPowerParams struct {
	On bool
}

// SMSParams carries one PDU-mode message.
type SMSParams struct {
	// SMSC is the hex encoded service centre address, empty for the SIM
	// default.
	SMSC string
	// PDU is the hex encoded TPDU.
	PDU string
}

// SMSResult is the reply to send-sms.
type SMSResult struct {
	Ref int
}

// NetworkType is a preferred radio access technology setting.
type NetworkType string

const (
	NetworkGSMWCDMA    NetworkType = "gsm-wcdma"
	NetworkGSMOnly     NetworkType = "gsm-only"
	NetworkWCDMA       NetworkType = "wcdma"
	NetworkLTEOnly     NetworkType = "lte-only"
	NetworkLTEGSMWCDMA NetworkType = "lte-gsm-wcdma"
	NetworkLTEWCDMA    NetworkType = "lte-wcdma"
)

// NetworkTypeParams selects the preferred network type.
type NetworkTypeParams struct {
	Type NetworkType
}

// NeighborCell is one entry of the neighboring-cells reply. CID is LAC and
// cell id for GSM cells and the scrambling code for UMTS cells, as eight
// hex digits.
type NeighborCell struct {
	CID  string
	RSSI int
	UMTS bool
}
