// Package config loads node configuration from command-line flags and
// an optional INI file, using jessevdk/go-flags exactly as lnd.go's
// loadConfig does (that call site is kept in cmd/amikod; the Config
// struct and defaults live here).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "amiko.conf"
	defaultDataDirname    = "data"
	defaultLogFilename    = "amiko.log"
	defaultLogLevel       = "info"
	defaultMaxLogFileSize = 10
	defaultMaxLogFiles    = 3
	defaultListenHost     = "localhost"
	defaultListenPort     = 7071
)

// Config holds every flag a node accepts. Struct tags are go-flags'
// long/short/description triplet, matching the teacher's struct-tag
// convention for its own config type.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"d" long:"datadir" description:"Directory to store the node's state file and payment log"`

	ListenHost string `long:"listenhost" description:"Host to listen for neighbor connections on"`
	ListenPort int    `long:"listenport" description:"Port to listen for neighbor connections on"`

	LogDir       string `long:"logdir" description:"Directory to log output to"`
	LogLevel     string `long:"loglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}"`
	MaxLogFileKB int    `long:"maxlogfilesize" description:"Maximum log file size in kilobytes"`
	MaxLogFiles  int    `long:"maxlogfiles" description:"Maximum number of rotated log files to keep"`

	MetricsListen string `long:"metricslisten" description:"host:port to serve Prometheus metrics on; empty disables metrics"`

	DebugToken string `long:"debugtoken" description:"Hex-encoded fixed token for deterministic test payments; empty disables"`
}

// Default returns a Config populated with the same defaults lnd.go's
// loadConfig seeds before flag parsing overrides them.
func Default() *Config {
	return &Config{
		ConfigFile:   defaultConfigFilename,
		DataDir:      defaultDataDirname,
		ListenHost:   defaultListenHost,
		ListenPort:   defaultListenPort,
		LogDir:       defaultDataDirname,
		LogLevel:     defaultLogLevel,
		MaxLogFileKB: defaultMaxLogFileSize,
		MaxLogFiles:  defaultMaxLogFiles,
	}
}

// Load parses command-line arguments into a Config seeded with
// Default(), then overlays any options present in ConfigFile (INI
// syntax), matching lnd's two-pass "flags first to find the config
// file path, then ini, then flags again so flags win" pattern.
func Load(args []string) (*Config, error) {
	cfg := Default()
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" && fileExists(cfg.ConfigFile) {
		if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", cfg.ConfigFile, err)
		}
		// Flags win over the ini file: reparse so any option given on
		// the command line overrides what the file just set.
		if _, err := parser.ParseArgs(args); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// StatePath is the path Load's DataDir implies for the persisted node
// state file (§6).
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.json")
}

// PayLogPath is the path Load's DataDir implies for the append-only
// payment log.
func (c *Config) PayLogPath() string {
	return filepath.Join(c.DataDir, "paylog.json")
}

// LogFilePath is the path Load's LogDir implies for the rotating log
// file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
