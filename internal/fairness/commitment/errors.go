package commitment

import "errors"

var (
	errPlayerRequired         = errors.New("player id is required")
	errNonceAssignedByStorage = errors.New("commitment nonce must be assigned by storage")
	errSeedRequired           = errors.New("server seed and digest are required")
	errParamsHashRequired     = errors.New("bet parameter hash is required")
	errStateMustBeCommitted   = errors.New("new commitments must be in committed state")
)
