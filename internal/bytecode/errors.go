package bytecode

import "errors"

var errUnboundLabel = errors.New("bytecode: label referenced by a jump was never bound")
