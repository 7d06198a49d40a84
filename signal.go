// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// interruptListener returns a channel that closes when SIGINT or SIGTERM
// arrives. Further signals are logged and otherwise ignored.
func interruptListener() <-chan struct{} {
	c := make(chan struct{})
	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, os.Interrupt, syscall.SIGTERM)

		sig := <-interruptChannel
		bytdLog.Infof("Received signal (%s). Shutting down...", sig)
		close(c)

		for {
			sig := <-interruptChannel
			bytdLog.Infof("Received signal (%s). Already shutting down...", sig)
		}
	}()
	return c
}
