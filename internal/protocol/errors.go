package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Session state.
	ErrNoSession = "E_NO_SESSION"

	// Rule/action layer.
	ErrBadRequest        = "E_BAD_REQUEST"
	ErrOutOfBounds       = "E_OUT_OF_BOUNDS"
	ErrTileOccupied      = "E_TILE_OCCUPIED"
	ErrTileEmpty         = "E_TILE_EMPTY"
	ErrNotStackable      = "E_NOT_STACKABLE"
	ErrInsufficientFunds = "E_INSUFFICIENT_FUNDS"
	ErrUnknownFurniture  = "E_UNKNOWN_FURNITURE"
	ErrGoalNotClaimable  = "E_GOAL_NOT_CLAIMABLE"
	ErrNotRetryable      = "E_NOT_RETRYABLE"
	ErrNoSave            = "E_NO_SAVE"
	ErrStorage           = "E_STORAGE"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrNoSession:         {},
	ErrBadRequest:        {},
	ErrOutOfBounds:       {},
	ErrTileOccupied:      {},
	ErrTileEmpty:         {},
	ErrNotStackable:      {},
	ErrInsufficientFunds: {},
	ErrUnknownFurniture:  {},
	ErrGoalNotClaimable:  {},
	ErrNotRetryable:      {},
	ErrNoSave:            {},
	ErrStorage:           {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
