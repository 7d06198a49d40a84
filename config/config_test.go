// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dataDir := t.TempDir()
	cfg, err := Load([]string{"--data-dir", dataDir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.P2pBindPort != 8080 {
		t.Fatalf("default p2p port: got %d, want 8080", cfg.P2pBindPort)
	}
	if cfg.RPCBindPort != 8081 {
		t.Fatalf("default rpc port: got %d, want 8081", cfg.RPCBindPort)
	}
	if cfg.LogLevel != 0 {
		t.Fatalf("default log level: got %d, want 0", cfg.LogLevel)
	}
	if cfg.LogFile != filepath.Join(dataDir, "bytecoind.log") {
		t.Fatalf("default log file: got %s", cfg.LogFile)
	}
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--does-not-exist"})
	if err == nil {
		t.Fatal("unknown flag accepted")
	}
	if !IsUsageError(err) {
		t.Fatalf("unknown flag error is not a usage error: %v", err)
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	_, err := Load([]string{"--data-dir", t.TempDir(), "--log-level", "9"})
	if err == nil || !IsUsageError(err) {
		t.Fatalf("log level 9: got %v, want usage error", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "node.conf")
	content := "[Application Options]\np2p-bind-port=9999\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load([]string{"--data-dir", dataDir, "--config-file", configPath})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.P2pBindPort != 9999 {
		t.Fatalf("config file port: got %d, want 9999", cfg.P2pBindPort)
	}
}

func TestCommandLineBeatsConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "node.conf")
	content := "[Application Options]\np2p-bind-port=9999\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load([]string{"--data-dir", dataDir, "--config-file", configPath,
		"--p2p-bind-port", "7777"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.P2pBindPort != 7777 {
		t.Fatalf("command line should win: got %d, want 7777", cfg.P2pBindPort)
	}
}

func TestBuildCurrencyOverrides(t *testing.T) {
	cfg, err := Load([]string{"--data-dir", t.TempDir(),
		"--DIFFICULTY_TARGET", "60",
		"--UPGRADE_HEIGHT_V2", "1000",
		"--CHECKPOINT", "5:cae33204e624faeb64938d80073bb7bbacc27017dc63f36c5c0f313cad455a02",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	c, err := cfg.BuildCurrency()
	if err != nil {
		t.Fatalf("BuildCurrency: %v", err)
	}
	if c.DifficultyTarget != 60 {
		t.Fatalf("difficulty target override: got %d, want 60", c.DifficultyTarget)
	}
	if c.UpgradeHeightV2 != 1000 {
		t.Fatalf("upgrade height override: got %d, want 1000", c.UpgradeHeightV2)
	}
	found := false
	for _, cp := range c.Checkpoints {
		if cp.Height == 5 {
			found = true
		}
	}
	if !found {
		t.Fatal("checkpoint override missing")
	}
}

func TestBuildCurrencyRejectsBadCheckpoint(t *testing.T) {
	cfg, err := Load([]string{"--data-dir", t.TempDir(), "--CHECKPOINT", "nonsense"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.BuildCurrency(); err == nil {
		t.Fatal("malformed checkpoint accepted")
	}
}

func TestBuildCurrencyTestnet(t *testing.T) {
	cfg, err := Load([]string{"--data-dir", t.TempDir(), "--testnet"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := cfg.BuildCurrency()
	if err != nil {
		t.Fatalf("BuildCurrency: %v", err)
	}
	if !c.Testnet {
		t.Fatal("testnet flag lost")
	}
	if len(c.Checkpoints) != 0 {
		t.Fatal("testnet keeps checkpoints")
	}
}
