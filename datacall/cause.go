package datacall

import "fmt"

// FailCause is the session failure cause reported for a data call.
type FailCause int

const (
	CauseNone                        FailCause = 0
	CauseOperatorBarred              FailCause = 0x08
	CauseInsufficientResources       FailCause = 0x1A
	CauseMissingUnknownAPN           FailCause = 0x1B
	CauseUnknownPDPAddressType       FailCause = 0x1C
	CauseUserAuthentication          FailCause = 0x1D
	CauseActivationRejectGGSN        FailCause = 0x1E
	CauseActivationRejectUnspecified FailCause = 0x1F
	CauseServiceOptionNotSupported   FailCause = 0x20
	CauseServiceOptionNotSubscribed  FailCause = 0x21
	CauseServiceOptionOutOfOrder     FailCause = 0x22
	CauseNSAPIInUse                  FailCause = 0x23
	CauseErrorUnspecified            FailCause = 0xFFFF
)

var causeNames = map[FailCause]string{
	CauseNone:                        "NONE",
	CauseOperatorBarred:              "OPERATOR_BARRED",
	CauseInsufficientResources:       "INSUFFICIENT_RESOURCES",
	CauseMissingUnknownAPN:           "MISSING_UNKNOWN_APN",
	CauseUnknownPDPAddressType:       "UNKNOWN_PDP_ADDRESS_TYPE",
	CauseUserAuthentication:          "USER_AUTHENTICATION",
	CauseActivationRejectGGSN:        "ACTIVATION_REJECT_GGSN",
	CauseActivationRejectUnspecified: "ACTIVATION_REJECT_UNSPECIFIED",
	CauseServiceOptionNotSupported:   "SERVICE_OPTION_NOT_SUPPORTED",
	CauseServiceOptionNotSubscribed:  "SERVICE_OPTION_NOT_SUBSCRIBED",
	CauseServiceOptionOutOfOrder:     "SERVICE_OPTION_OUT_OF_ORDER",
	CauseNSAPIInUse:                  "NSAPI_IN_USE",
	CauseErrorUnspecified:            "ERROR_UNSPECIFIED",
}

func (c FailCause) String() string {
	if s, ok := causeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("FailCause(%#x)", int(c))
}

// MapCause translates a 3GPP TS 24.008 session management cause.
func MapCause(cause int) FailCause {
	switch cause {
	case 8:
		return CauseOperatorBarred
	case 26:
		return CauseInsufficientResources
	case 27:
		return CauseMissingUnknownAPN
	case 28:
		return CauseUnknownPDPAddressType
	case 29, 149:
		return CauseUserAuthentication
	case 30:
		return CauseActivationRejectGGSN
	case 31:
		return CauseActivationRejectUnspecified
	case 32:
		return CauseServiceOptionNotSupported
	case 33:
		return CauseServiceOptionNotSubscribed
	case 34:
		return CauseServiceOptionOutOfOrder
	case 35:
		return CauseNSAPIInUse
	default:
		return CauseErrorUnspecified
	}
}
