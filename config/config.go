// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads the daemon configuration from the command line and
// an optional ini-style configuration file, including the Forknote-style
// coin parameter overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytecoin-go/bytecoind/currency"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultLogFilename = "bytecoind.log"
	defaultLogLevel    = 0
	defaultP2pPort     = 8080
	defaultRPCPort     = 8081
	defaultDBThreads   = 2
	defaultDBOpenFiles = 100
	defaultDBWriteMiB  = 256
	defaultDBReadMiB   = 10
)

// logLevelNames maps the numeric --log-level values onto backend levels,
// 0 being the quiet error-only baseline.
var logLevelNames = []string{"error", "warn", "info", "debug", "trace"}

// Config holds the parsed daemon configuration.
type Config struct {
	ConfigFile string `long:"config-file" description:"Specify configuration file"`
	DataDir    string `long:"data-dir" description:"Specify data directory"`
	LogFile    string `long:"log-file" description:"Specify log file"`
	LogLevel   int    `long:"log-level" description:"Set log level 0..4" default:"0"`
	NoConsole  bool   `long:"no-console" description:"Disable daemon console"`
	Testnet    bool   `long:"testnet" description:"Use testnet: a different network id, no checkpoints, no seed nodes"`

	P2pBindIP       string   `long:"p2p-bind-ip" description:"Interface for p2p network protocol" default:"0.0.0.0"`
	P2pBindPort     uint16   `long:"p2p-bind-port" description:"Port for p2p network protocol" default:"8080"`
	P2pExternalPort uint16   `long:"p2p-external-port" description:"External port for p2p network protocol (if port forwarding used with NAT)"`
	AddPeers        []string `long:"add-peer" description:"Manually add peer to local peerlist"`
	PriorityNodes   []string `long:"add-priority-node" description:"Specify list of peers to connect to and attempt to keep the connection open"`
	ExclusiveNodes  []string `long:"add-exclusive-node" description:"Specify list of peers to connect to only"`
	SeedNodes       []string `long:"seed-node" description:"Connect to a node to retrieve peer addresses, and disconnect"`
	AllowLocalIP    bool     `long:"allow-local-ip" description:"Allow local ip add to peer list, mostly in debug purposes"`
	HideMyPort      bool     `long:"hide-my-port" description:"Do not announce yourself as peerlist candidate"`

	RPCBindIP         string `long:"rpc-bind-ip" description:"Interface for RPC server" default:"127.0.0.1"`
	RPCBindPort       uint16 `long:"rpc-bind-port" description:"Port for RPC server" default:"8081"`
	EnableCors        string `long:"enable-cors" description:"Adds header 'Access-Control-Allow-Origin' to the RPC responses"`
	FeeAddress        string `long:"fee-address" description:"Convenience charge address"`
	EnableBlockExplorer bool `long:"enable-blockexplorer" description:"Enable the block explorer RPC surface"`

	DBThreads         int `long:"db-threads" description:"Number of background database threads" default:"2"`
	DBMaxOpenFiles    int `long:"db-max-open-files" description:"Number of open files that can be used by the database" default:"100"`
	DBWriteBufferSize int `long:"db-write-buffer-size" description:"Size of the database write buffer in megabytes (MB)" default:"256"`
	DBReadCacheSize   int `long:"db-read-cache-size" description:"Size of the database read cache in megabytes (MB)" default:"10"`

	// Forknote-style coin parameter overrides.
	MoneySupply              string   `long:"MONEY_SUPPLY" description:"Total number of atomic units to be emitted"`
	EmissionSpeedFactor      uint8    `long:"EMISSION_SPEED_FACTOR" description:"Shift of the emission curve"`
	GenesisBlockReward       uint64   `long:"GENESIS_BLOCK_REWARD" description:"Premine amount in atomic units"`
	TailEmissionReward       uint64   `long:"TAIL_EMISSION_REWARD" description:"Floor of the base block reward"`
	DifficultyTarget         uint64   `long:"DIFFICULTY_TARGET" description:"Target block spacing in seconds"`
	DifficultyWindow         int      `long:"DIFFICULTY_WINDOW" description:"Difficulty retarget window in blocks"`
	DifficultyCut            int      `long:"DIFFICULTY_CUT" description:"Timestamps trimmed from each sorted tail"`
	UpgradeHeightV2          uint32   `long:"UPGRADE_HEIGHT_V2" description:"Fixed activation height of block major version 2"`
	UpgradeHeightV3          uint32   `long:"UPGRADE_HEIGHT_V3" description:"Fixed activation height of block major version 3"`
	RewardBlocksWindow       uint32   `long:"CRYPTONOTE_REWARD_BLOCKS_WINDOW" description:"Median block size window"`
	BlockGrantedFullRewardZone uint64 `long:"CRYPTONOTE_BLOCK_GRANTED_FULL_REWARD_ZONE" description:"Penalty-free block size in bytes"`
	GenesisCoinbaseTxHex     string   `long:"GENESIS_COINBASE_TX_HEX" description:"Hex of the genesis coinbase transaction"`
	Checkpoints              []string `long:"CHECKPOINT" description:"Checkpoint as height:hash, may repeat"`
}

// usageError marks a command-line misuse that should exit with code 2.
type usageError struct {
	error
}

// IsUsageError reports whether err came from command-line misuse.
func IsUsageError(err error) bool {
	_, ok := err.(usageError)
	if !ok {
		_, ok = errors.Cause(err).(usageError)
	}
	return ok
}

// DefaultDataDir returns the platform application data directory for the
// coin.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + currency.CoinName
	}
	return filepath.Join(home, "."+currency.CoinName)
}

// Load parses the command line and the configuration file and returns the
// effective configuration. A first pass over the command line only locates
// the config file; the real parse then layers the file under the command
// line so flags always win.
func Load(arguments []string) (*Config, error) {
	preCfg := &Config{DataDir: DefaultDataDir()}
	preParser := flags.NewParser(preCfg, flags.IgnoreUnknown)
	remaining, err := preParser.ParseArgs(arguments)
	if err != nil {
		return nil, usageError{err}
	}

	// A positional argument names a config file inside the data dir. An
	// unknown flag left over by the first pass is not one; the real parse
	// below reports it as a usage error.
	if len(remaining) == 1 && preCfg.ConfigFile == "" && !strings.HasPrefix(remaining[0], "-") {
		preCfg.ConfigFile = remaining[0]
	} else if len(remaining) > 1 {
		return nil, usageError{errors.Errorf("unexpected arguments: %v", remaining)}
	}

	cfg := &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: defaultLogLevel,
	}
	parser := flags.NewParser(cfg, flags.Default)

	if preCfg.ConfigFile != "" {
		configPath := preCfg.ConfigFile
		if !filepath.IsAbs(configPath) {
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				configPath = filepath.Join(preCfg.DataDir, configPath)
			}
		}
		iniParser := flags.NewIniParser(parser)
		if err := iniParser.ParseFile(configPath); err != nil {
			return nil, errors.Wrapf(err, "couldn't load config file %s", configPath)
		}
	}

	if _, err := parser.ParseArgs(arguments); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, err
		}
		return nil, usageError{err}
	}

	if cfg.LogLevel < 0 || cfg.LogLevel > 4 {
		return nil, usageError{errors.Errorf("log level %d outside 0..4", cfg.LogLevel)}
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, defaultLogFilename)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, errors.Wrapf(err, "couldn't create data directory %s", cfg.DataDir)
	}

	return cfg, nil
}

// LogLevelName maps the numeric log level onto the backend's level name.
func (cfg *Config) LogLevelName() string {
	return logLevelNames[cfg.LogLevel]
}

// BuildCurrency applies the coin parameter overrides and returns the
// resulting Currency.
func (cfg *Config) BuildCurrency() (*currency.Currency, error) {
	builder := currency.NewBuilder()

	if cfg.MoneySupply != "" {
		supply, err := strconv.ParseUint(cfg.MoneySupply, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad MONEY_SUPPLY %q", cfg.MoneySupply)
		}
		builder.MoneySupply(supply)
	}
	builder.EmissionSpeedFactor(cfg.EmissionSpeedFactor)
	builder.GenesisBlockReward(cfg.GenesisBlockReward)
	builder.TailEmissionReward(cfg.TailEmissionReward)
	builder.DifficultyTarget(cfg.DifficultyTarget)
	builder.DifficultyWindow(cfg.DifficultyWindow)
	builder.DifficultyCut(cfg.DifficultyCut)
	builder.UpgradeHeightV2(cfg.UpgradeHeightV2)
	builder.UpgradeHeightV3(cfg.UpgradeHeightV3)
	builder.RewardBlocksWindow(cfg.RewardBlocksWindow)
	builder.BlockGrantedFullRewardZone(cfg.BlockGrantedFullRewardZone)
	builder.GenesisCoinbaseTxHex(cfg.GenesisCoinbaseTxHex)

	for _, checkpoint := range cfg.Checkpoints {
		parts := strings.SplitN(checkpoint, ":", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("bad CHECKPOINT %q, want height:hash", checkpoint)
		}
		height, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bad CHECKPOINT height %q", parts[0])
		}
		builder.AddCheckpoint(uint32(height), parts[1])
	}

	builder.SeedNodes(cfg.SeedNodes)
	builder.Testnet(cfg.Testnet)

	c, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "invalid coin parameters")
	}
	return c, nil
}

// Describe prints a one-line summary of the effective configuration.
func (cfg *Config) Describe() string {
	network := "mainnet"
	if cfg.Testnet {
		network = "testnet"
	}
	return fmt.Sprintf("%s, data dir %s, p2p %s:%d", network, cfg.DataDir,
		cfg.P2pBindIP, cfg.P2pBindPort)
}
