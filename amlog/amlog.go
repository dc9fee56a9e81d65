// Package amlog wires up the per-subsystem logger registry shared by
// every package in this module, grounded directly on
// breez-lightninglib/daemon/log.go: one btclog.Backend feeding a
// rotating file via jrick/logrotate, one btclog.Logger per subsystem
// tag, and a setLogLevel(s) pair for runtime control.
package amlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/amikopay/amiko/channel"
	"github.com/amikopay/amiko/link"
	"github.com/amikopay/amiko/lnwire"
	"github.com/amikopay/amiko/meetingpoint"
	"github.com/amikopay/amiko/payee"
	"github.com/amikopay/amiko/payer"
	"github.com/amikopay/amiko/persist"
	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter fans the backend's output out to stdout and the rotator,
// the same split breez-lightninglib's build.LogWriter performs.
type logWriter struct {
	rotatorPipe *io.PipeWriter
}

func (w *logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.rotatorPipe != nil {
		w.rotatorPipe.Write(p)
	}
	return len(p), nil
}

var (
	writer     = &logWriter{}
	backendLog = btclog.NewBackend(writer)
	logRotator *rotator.Rotator

	nodeLog = backendLog.Logger("NODE")
	lnkLog  = backendLog.Logger("LINK")
	chnLog  = backendLog.Logger("CHAN")
	mtpLog  = backendLog.Logger("MTPT")
	pyeLog  = backendLog.Logger("PAYE")
	pyrLog  = backendLog.Logger("PAYR")
	wireLog = backendLog.Logger("WIRE")
	prstLog = backendLog.Logger("PRST")
)

// subsystemLoggers maps each subsystem tag to its logger, for
// SetLevel/SetLevels below.
var subsystemLoggers = map[string]btclog.Logger{
	"NODE": nodeLog,
	"LINK": lnkLog,
	"CHAN": chnLog,
	"MTPT": mtpLog,
	"PAYE": pyeLog,
	"PAYR": pyrLog,
	"WIRE": wireLog,
	"PRST": prstLog,
}

// UseLoggers registers every subsystem logger with its owning
// package. Call once at startup, after InitLogRotator.
func UseLoggers() {
	link.UseLogger(lnkLog)
	channel.UseLogger(chnLog)
	meetingpoint.UseLogger(mtpLog)
	payee.UseLogger(pyeLog)
	payer.UseLogger(pyrLog)
	lnwire.UseLogger(wireLog)
	persist.UseLogger(prstLog)
}

// Node returns the "NODE" subsystem logger, used directly by package
// node (which would otherwise import amlog and create an import
// cycle, since amlog imports the leaf packages node depends on).
func Node() btclog.Logger { return nodeLog }

// InitLogRotator points the backend at a rotating log file on disk,
// in addition to stdout. Must be called before any subsystem logger
// is used if on-disk logging is desired.
func InitLogRotator(logFile string, maxFileSizeKB, maxFiles int) error {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("amlog: creating log directory: %w", err)
	}

	r, err := rotator.New(logFile, int64(maxFileSizeKB*1024), false, maxFiles)
	if err != nil {
		return fmt.Errorf("amlog: creating log rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	writer.rotatorPipe = pw
	logRotator = r
	return nil
}

// SetLevel sets the log level for one subsystem tag. Unknown tags are
// ignored.
func SetLevel(subsystem, levelStr string) {
	logger, ok := subsystemLoggers[subsystem]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(levelStr)
	logger.SetLevel(level)
}

// SetLevels sets every subsystem logger to the same level.
func SetLevels(levelStr string) {
	for subsystem := range subsystemLoggers {
		SetLevel(subsystem, levelStr)
	}
}
