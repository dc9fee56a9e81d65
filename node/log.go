package node

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger. It is btclog.Disabled until
// the owning binary calls UseLogger, matching the rest of the lnd
// family's per-package logging idiom. Unlike the leaf packages, node
// has no log.go wiring entry in package amlog (that would create an
// import cycle, since amlog already imports every package node
// depends on); cmd/amikod instead calls node.UseLogger(amlog.Node())
// directly.
var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
