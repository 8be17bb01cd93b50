// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"gitlab.com/embercoin/emberd/corelog"
	"gitlab.com/embercoin/emberd/database"
	_ "gitlab.com/embercoin/emberd/database/badgerdb"
	_ "gitlab.com/embercoin/emberd/database/leveldb"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/types/chaincfg"
	"gitlab.com/embercoin/emberd/types/chainhash"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigFilename = "emberd.yaml"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultDBType         = "leveldb"
	defaultNet            = "mainnet"
)

var (
	defaultHomeDir = emberutil.AppDataDir("emberd", false)
	knownDBTypes   = database.SupportedDrivers()
)

// config defines the configuration options for emberd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion    bool           `yaml:"-" short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile     string         `yaml:"-" short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir        string         `yaml:"data_dir" short:"b" long:"datadir" description:"Directory to store block chain data"`
	Net            string         `yaml:"net" long:"net" description:"Network to operate on: mainnet, testnet or simnet"`
	DBType         string         `yaml:"db_type" long:"dbtype" description:"Database backend to use for the block chain"`
	DebugLevel     string         `yaml:"debug_level" short:"d" long:"debuglevel" description:"Logging level: trace, debug, info, warn, error"`
	TxIndex        bool           `yaml:"tx_index" long:"txindex" description:"Maintain a full hash-based transaction index which makes all transactions available by hash"`
	DropTxIndex    bool           `yaml:"-" long:"droptxindex" description:"Delete the hash-based transaction index from the database on start up and then exit"`
	AddCheckpoints []string       `yaml:"add_checkpoints" long:"addcheckpoint" description:"Add a custom checkpoint.  Format: '<height>:<hash>'"`
	MetricsListen  string         `yaml:"metrics_listen" long:"metricslisten" description:"Interface/port to serve prometheus metrics on (default disabled)"`
	Profile        string         `yaml:"profile" long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
	CPUProfile     string         `yaml:"cpu_profile" long:"cpuprofile" description:"Write CPU profile to the specified file"`
	LogConfig      corelog.Config `yaml:"logging"`

	params      *chaincfg.Params
	checkpoints []chaincfg.Checkpoint
	logLevel    zerolog.Level
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// validDBType returns whether or not dbType is a supported database type.
func validDBType(dbType string) bool {
	for _, knownType := range knownDBTypes {
		if dbType == knownType {
			return true
		}
	}
	return false
}

// newCheckpointFromStr parses checkpoints in the '<height>:<hash>' format.
func newCheckpointFromStr(checkpoint string) (chaincfg.Checkpoint, error) {
	parts := strings.Split(checkpoint, ":")
	if len(parts) != 2 {
		return chaincfg.Checkpoint{}, fmt.Errorf("unable to parse "+
			"checkpoint %q -- use the syntax <height>:<hash>",
			checkpoint)
	}

	height, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return chaincfg.Checkpoint{}, fmt.Errorf("unable to parse "+
			"checkpoint %q due to malformed height", checkpoint)
	}

	if len(parts[1]) == 0 {
		return chaincfg.Checkpoint{}, fmt.Errorf("unable to parse "+
			"checkpoint %q due to missing hash", checkpoint)
	}
	hash, err := chainhash.NewHashFromStr(parts[1])
	if err != nil {
		return chaincfg.Checkpoint{}, fmt.Errorf("unable to parse "+
			"checkpoint %q due to malformed hash", checkpoint)
	}

	return chaincfg.Checkpoint{
		Height: int32(height),
		Hash:   hash,
	}, nil
}

// parseCheckpoints checks the checkpoint strings for valid syntax
// ('<height>:<hash>') and parses them to chaincfg.Checkpoint instances.
func parseCheckpoints(checkpointStrings []string) ([]chaincfg.Checkpoint, error) {
	if len(checkpointStrings) == 0 {
		return nil, nil
	}
	checkpoints := make([]chaincfg.Checkpoint, len(checkpointStrings))
	for i, cpString := range checkpointStrings {
		checkpoint, err := newCheckpointFromStr(cpString)
		if err != nil {
			return nil, err
		}
		checkpoints[i] = checkpoint
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Height < checkpoints[j].Height
	})
	return checkpoints, nil
}

// paramsByName resolves the human readable network name to its chain
// parameters.
func paramsByName(name string) *chaincfg.Params {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams
	case "testnet":
		return &chaincfg.TestNetParams
	case "simnet":
		return &chaincfg.SimNetParams
	default:
		return nil
	}
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
// 	1) Start with a default config with sane settings
// 	2) Pre-parse the command line to check for an alternative config file
// 	3) Load configuration file overwriting defaults with any specified options
// 	4) Parse CLI options and overwrite/add any specified options
//
// The above results in emberd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig() (*config, error) {
	cfg := config{
		ConfigFile: filepath.Join(defaultHomeDir, defaultConfigFilename),
		DataDir:    filepath.Join(defaultHomeDir, defaultDataDirname),
		Net:        defaultNet,
		DBType:     defaultDBType,
		DebugLevel: defaultLogLevel,
		LogConfig:  corelog.Config{}.Default(),
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, version())
		os.Exit(0)
	}

	// Load additional config from file when it exists.
	parser := flags.NewParser(&cfg, flags.Default)
	if fileExists(preCfg.ConfigFile) {
		cfgFile, err := os.OpenFile(preCfg.ConfigFile, os.O_RDONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening config file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
		err = yaml.NewDecoder(cfgFile).Decode(&cfg)
		_ = cfgFile.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, err
	}

	cfg.params = paramsByName(cfg.Net)
	if cfg.params == nil {
		err := fmt.Errorf("unknown network %q -- choose one of "+
			"mainnet, testnet or simnet", cfg.Net)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	if !validDBType(cfg.DBType) {
		err := fmt.Errorf("the specified database type [%v] is invalid "+
			"-- supported types %v", cfg.DBType, knownDBTypes)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	cfg.logLevel, err = zerolog.ParseLevel(cfg.DebugLevel)
	if err != nil {
		err := fmt.Errorf("the specified debug level [%v] is invalid",
			cfg.DebugLevel)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	// Validate profile port number.
	if cfg.Profile != "" {
		profilePort, err := strconv.Atoi(cfg.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			err := fmt.Errorf("the profile port must be between " +
				"1024 and 65535")
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// Check the checkpoints for syntax errors.
	cfg.checkpoints, err = parseCheckpoints(cfg.AddCheckpoints)
	if err != nil {
		err := fmt.Errorf("error parsing checkpoints: %v", err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Create the home directory if it doesn't already exist.
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		err := fmt.Errorf("failed to create data directory: %v", err)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	return &cfg, nil
}
