// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bytecoin-go/bytecoind/blockchain"
	"github.com/bytecoin-go/bytecoind/config"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/logger"
	"github.com/bytecoin-go/bytecoind/mempool"
	"github.com/bytecoin-go/bytecoind/p2p"
	"github.com/bytecoin-go/bytecoind/protocol"
	"github.com/bytecoin-go/bytecoind/wire"
)

// poolIdleInterval drives mempool TTL eviction and state flushes.
const poolIdleInterval = 60 * time.Second

// bytecoind bundles the daemon's long-lived services.
type bytecoind struct {
	cfg     *config.Config
	chain   *blockchain.Chain
	pool    *mempool.TxPool
	handler *protocol.Handler
	server  *p2p.NodeServer

	quit chan struct{}
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if config.IsUsageError(err) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.InitLogRotator(cfg.LogFile)
	logger.SetLogLevels(cfg.LogLevelName())

	daemon, err := newBytecoind(cfg)
	if err != nil {
		bytdLog.Errorf("Startup failed: %+v", err)
		os.Exit(1)
	}

	if err := daemon.run(interruptListener()); err != nil {
		bytdLog.Errorf("Runtime failure: %+v", err)
		os.Exit(1)
	}
}

func newBytecoind(cfg *config.Config) (*bytecoind, error) {
	bytdLog.Infof("Starting bytecoind (%s)", cfg.Describe())

	c, err := cfg.BuildCurrency()
	if err != nil {
		return nil, err
	}

	chain, err := blockchain.New(&blockchain.Config{
		DataDir:           cfg.DataDir,
		Currency:          c,
		PoWHasher:         crypto.FastPoWHasher{},
		SigVerifier:       crypto.StructuralVerifier{},
		DBMaxOpenFiles:    cfg.DBMaxOpenFiles,
		DBWriteBufferSize: cfg.DBWriteBufferSize * 1024 * 1024,
		DBReadCacheSize:   cfg.DBReadCacheSize * 1024 * 1024,
	})
	if err != nil {
		return nil, err
	}
	bytdLog.Infof("Chain loaded: top index %d, top hash %s",
		chain.TopBlockIndex(), chain.TopBlockHash())

	pool := mempool.New(&mempool.Config{
		Currency: c,
		Chain:    chain,
	})
	chain.SetTransactionPool(pool)
	if err := pool.LoadState(cfg.DataDir); err != nil {
		bytdLog.Warnf("Couldn't restore mempool state: %v", err)
	}

	handler := protocol.NewHandler(c, chain, pool)

	p2pCfg := &p2p.Config{
		Currency:     c,
		DataDir:      cfg.DataDir,
		BindIP:       cfg.P2pBindIP,
		BindPort:     cfg.P2pBindPort,
		ExternalPort: cfg.P2pExternalPort,
		AllowLocalIP: cfg.AllowLocalIP,
		HideMyPort:   cfg.HideMyPort,
	}
	for _, addr := range cfg.AddPeers {
		address, err := p2p.ParseAddress(addr)
		if err != nil {
			return nil, err
		}
		p2pCfg.Peers = append(p2pCfg.Peers, address)
	}
	for _, addr := range cfg.PriorityNodes {
		address, err := p2p.ParseAddress(addr)
		if err != nil {
			return nil, err
		}
		p2pCfg.PriorityNodes = append(p2pCfg.PriorityNodes, address)
	}
	for _, addr := range cfg.ExclusiveNodes {
		address, err := p2p.ParseAddress(addr)
		if err != nil {
			return nil, err
		}
		p2pCfg.ExclusiveNodes = append(p2pCfg.ExclusiveNodes, address)
	}

	server, err := p2p.NewNodeServer(p2pCfg, handler)
	if err != nil {
		return nil, err
	}
	handler.SetEndpoint(server)

	daemon := &bytecoind{
		cfg:     cfg,
		chain:   chain,
		pool:    pool,
		handler: handler,
		server:  server,
		quit:    make(chan struct{}),
	}

	// Locally connected blocks are relayed off the caller's task so the
	// chain lock is never held while peers are written to.
	chain.Subscribe(func(n *blockchain.Notification) {
		if n.Type != blockchain.NTBlockAdded {
			return
		}
		notification := n.Data.(*blockchain.BlockAddedNotification)
		blockBytes, err := notification.Block.Bytes()
		if err != nil {
			return
		}
		spawn(func() {
			if err := handler.RelayBlock(&wire.RawBlock{Block: blockBytes}); err != nil {
				bytdLog.Debugf("Couldn't relay block: %v", err)
			}
		})
	})

	return daemon, nil
}

// run starts the services and blocks until the interrupt arrives.
func (d *bytecoind) run(interrupt <-chan struct{}) error {
	if err := d.server.Start(); err != nil {
		return err
	}

	spawn(d.poolIdleLoop)

	<-interrupt
	bytdLog.Info("Shutting down...")

	close(d.quit)
	d.server.Stop()
	if err := d.pool.SaveState(d.cfg.DataDir); err != nil {
		bytdLog.Errorf("Couldn't save mempool state: %v", err)
	}
	d.chain.Close()
	bytdLog.Info("Shutdown complete")
	return nil
}

// poolIdleLoop expires pooled transactions and flushes pool state.
func (d *bytecoind) poolIdleLoop() {
	ticker := time.NewTicker(poolIdleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C:
			d.pool.HandleIdle()
			if err := d.pool.SaveState(d.cfg.DataDir); err != nil {
				bytdLog.Errorf("Couldn't save mempool state: %v", err)
			}
		}
	}
}
