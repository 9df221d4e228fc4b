package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Match/session routing.
	ErrMatchBusy   = "E_MATCH_BUSY"
	ErrMatchOver   = "E_MATCH_OVER"
	ErrSeatTaken   = "E_SEAT_TAKEN"
	ErrSeatUnknown = "E_SEAT_UNKNOWN"
	ErrVersionSkew = "E_VERSION_SKEW"

	// Decision layer.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrNotYourRequest = "E_NOT_YOUR_REQUEST"
	ErrStaleRequest   = "E_STALE_REQUEST"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrMatchBusy:       {},
	ErrMatchOver:       {},
	ErrSeatTaken:       {},
	ErrSeatUnknown:     {},
	ErrVersionSkew:     {},
	ErrBadRequest:      {},
	ErrNotYourRequest:  {},
	ErrStaleRequest:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
