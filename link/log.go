package link

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger. It is btclog.Disabled until
// the owning binary calls UseLogger, matching the rest of the lnd
// family's per-package logging idiom.
var log = btclog.Disabled

// UseLogger sets the logger used by this package. Should be called
// before the package is used, typically from the binary's log.go.
func UseLogger(logger btclog.Logger) {
	log = logger
}
