// hswd inspects and serves a naming wallet: it opens the wallet database,
// loads the credit index and reports the wallet's funds and lockups. The
// transaction engine itself is driven through the wallet package by
// whichever front end embeds it; this binary provides the storage,
// logging and configuration scaffolding around it.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"

	"github.com/handshake-org/hswd/blinddb"
	"github.com/handshake-org/hswd/build"
	"github.com/handshake-org/hswd/coindb"
)

// version is the release string reported by --version.
const version = "0.1.0"

const dbTimeout = 60 * time.Second

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "hswd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return nil
		}

		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("hswd version %s\n", version)

		return nil
	}

	rotating := build.NewRotatingLogWriter()
	if err := rotating.InitLogRotator(cfg.Logging, cfg.logPath()); err != nil {
		return err
	}
	defer rotating.Close()

	writer := &build.LogWriter{RotatorPipe: rotating.Pipe()}
	mgr := setupLoggers(writer)
	if err := build.ParseAndSetDebugLevels(cfg.DebugLevel, mgr); err != nil {
		return err
	}

	// A critical failure anywhere in the daemon requests the same
	// orderly shutdown an interrupt would.
	interrupt := make(chan os.Signal, 1)
	log = build.NewShutdownLogger(log, func() {
		interrupt <- syscall.SIGTERM
	})

	params := cfg.netParams()
	log.Infof("hswd %s starting, network auction-start height %d",
		version, params.AuctionStart)

	db, err := openDB(cfg.dbPath())
	if err != nil {
		return err
	}
	defer db.Close()

	coins, err := coindb.Open(db)
	if err != nil {
		return err
	}
	if _, err := blinddb.Open(db); err != nil {
		return err
	}

	log.Infof("Wallet database open at %s: %d credits", cfg.dbPath(),
		coins.Index().Len())

	// Block until interrupted so the log rotator and database stay
	// available to embedding front ends.
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Info("Shutdown requested, closing wallet database")

	return nil
}

// openDB opens the bolt-backed wallet database, creating it on first run.
func openDB(path string) (walletdb.DB, error) {
	db, err := walletdb.Open("bdb", path, true, dbTimeout, false)
	if err == walletdb.ErrDbDoesNotExist {
		return walletdb.Create("bdb", path, true, dbTimeout, false)
	}

	return db, err
}
