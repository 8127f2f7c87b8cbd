package main

import (
	"github.com/btcsuite/btclog"

	"github.com/handshake-org/hswd/auction"
	"github.com/handshake-org/hswd/build"
	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/planner"
	"github.com/handshake-org/hswd/wallet"
)

// Subsystem tags for each package that logs.
const (
	subsystemHSWD = "HSWD"
	subsystemCNDB = "CNDB"
	subsystemFUND = "FUND"
	subsystemAUCT = "AUCT"
	subsystemPLAN = "PLAN"
	subsystemWALT = "WALT"
)

// log is the daemon's own logger, set up by setupLoggers.
var log = btclog.Disabled

// setupLoggers builds the subsystem manager over the shared writer and
// hands every package its logger.
func setupLoggers(writer *build.LogWriter) *build.SubLoggerManager {
	mgr := build.NewSubLoggerManager(writer)

	log = mgr.GenSubLogger(subsystemHSWD)
	coindb.UseLogger(mgr.GenSubLogger(subsystemCNDB))
	funding.UseLogger(mgr.GenSubLogger(subsystemFUND))
	auction.UseLogger(mgr.GenSubLogger(subsystemAUCT))
	planner.UseLogger(mgr.GenSubLogger(subsystemPLAN))
	wallet.UseLogger(mgr.GenSubLogger(subsystemWALT))

	return mgr
}
