package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"

	"github.com/handshake-org/hswd/build"
	"github.com/handshake-org/hswd/hnsparams"
)

const (
	defaultConfigFilename = "hswd.conf"
	defaultLogFilename    = "hswd.log"
	defaultDBFilename     = "wallet.db"
	defaultLogLevel       = "info"
)

var defaultDataDir = btcutil.AppDataDir("hswd", false)

// config holds the daemon's command line and config file options.
//
//nolint:lll
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"The directory to store wallet data"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	RegTest bool `long:"regtest" description:"Use the regression test network"`

	Logging *build.FileLoggerConfig `group:"logging" namespace:"logging"`
}

// defaultConfig returns the zero configuration with sane defaults filled
// in.
func defaultConfig() *config {
	return &config{
		ConfigFile: filepath.Join(
			defaultDataDir, defaultConfigFilename,
		),
		DataDir:    defaultDataDir,
		LogDir:     filepath.Join(defaultDataDir, "logs"),
		DebugLevel: defaultLogLevel,
		Logging:    build.DefaultFileLoggerConfig(),
	}
}

// loadConfig parses the command line, then the config file (if present),
// then the command line again so that explicit flags win.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	preParser := flags.NewParser(cfg, flags.IgnoreUnknown)
	if _, err := preParser.Parse(); err != nil {
		return nil, err
	}

	parser := flags.NewParser(cfg, flags.Default)
	iniParser := flags.NewIniParser(parser)
	if err := iniParser.ParseFile(cfg.ConfigFile); err != nil {
		// A missing config file is fine; a malformed one is not.
		if _, ok := err.(*os.PathError); !ok {
			return nil, fmt.Errorf("failed to parse config "+
				"file: %w", err)
		}
	}

	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	return cfg, nil
}

// netParams maps the config's network selection to chain parameters.
func (c *config) netParams() *hnsparams.Params {
	if c.RegTest {
		return &hnsparams.RegressionNetParams
	}

	return &hnsparams.MainNetParams
}

// dbPath returns the wallet database location.
func (c *config) dbPath() string {
	return filepath.Join(c.DataDir, defaultDBFilename)
}

// logPath returns the log file location.
func (c *config) logPath() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}
