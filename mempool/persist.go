// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// poolStateVersion guards the poolstate.bin layout.
const poolStateVersion = 1

// SaveState writes the pool's entries and their insertion times to
// poolstate.bin in the given data directory.
func (mp *TxPool) SaveState(dataDir string) error {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, poolStateVersion); err != nil {
		return err
	}
	if err := wire.WriteVarInt(&buf, uint64(len(mp.pool))); err != nil {
		return err
	}
	for _, desc := range mp.pool {
		serialized, err := desc.Tx.Bytes()
		if err != nil {
			return err
		}
		if err := wire.WriteVarInt(&buf, uint64(len(serialized))); err != nil {
			return err
		}
		buf.Write(serialized)

		var timeBuf [8]byte
		binary.LittleEndian.PutUint64(timeBuf[:], uint64(desc.Added.Unix()))
		buf.Write(timeBuf[:])

		flag := byte(0)
		if desc.FromAltChain {
			flag = 1
		}
		buf.WriteByte(flag)
	}

	path := filepath.Join(dataDir, currency.PoolDataFilename)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.Wrap(err, "couldn't write pool state")
	}
	log.Debugf("Saved %d pooled transactions to %s", len(mp.pool), path)
	return nil
}

// LoadState restores poolstate.bin into the pool. Entries that no longer
// pass admission, for example because their spends confirmed meanwhile,
// are dropped.
func (mp *TxPool) LoadState(dataDir string) error {
	path := filepath.Join(dataDir, currency.PoolDataFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "couldn't read pool state")
	}

	r := bytes.NewReader(data)
	version, err := wire.ReadVarInt(r)
	if err != nil {
		return errors.Wrap(err, "corrupt pool state")
	}
	if version != poolStateVersion {
		return errors.Errorf("unknown pool state version %d", version)
	}

	count, err := wire.ReadVarInt(r)
	if err != nil {
		return errors.Wrap(err, "corrupt pool state")
	}

	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	restored := 0
	for i := uint64(0); i < count; i++ {
		size, err := wire.ReadVarInt(r)
		if err != nil {
			return errors.Wrap(err, "corrupt pool state")
		}
		serialized := make([]byte, size)
		if _, err := io.ReadFull(r, serialized); err != nil {
			return errors.Wrap(err, "corrupt pool state")
		}
		var timeBuf [8]byte
		if _, err := io.ReadFull(r, timeBuf[:]); err != nil {
			return errors.Wrap(err, "corrupt pool state")
		}
		flag, err := r.ReadByte()
		if err != nil {
			return errors.Wrap(err, "corrupt pool state")
		}

		tx, err := coreutil.NewTxFromBytes(serialized)
		if err != nil {
			log.Warnf("Dropping malformed pooled transaction from state file: %v", err)
			continue
		}
		if err := mp.add(tx, flag == 1); err != nil {
			continue
		}
		// Restore the original insertion time so TTLs survive restarts.
		if txHash, err := tx.Hash(); err == nil {
			if desc, ok := mp.pool[txHash]; ok {
				desc.Added = time.Unix(int64(binary.LittleEndian.Uint64(timeBuf[:])), 0)
			}
		}
		restored++
	}

	log.Infof("Restored %d pooled transactions from %s", restored, path)
	return nil
}
