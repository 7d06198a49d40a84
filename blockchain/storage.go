// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// txIndexKeyPrefix prefixes transaction-hash keys in the chain-state
// database. The value is the little endian block height and intra-block
// index of the transaction.
const txIndexKeyPrefix = 'x'

// blockStore persists the main chain the way the original daemon does:
// raw block blobs appended to blocks.bin, their sizes in blockindexes.bin,
// plus a leveldb chain-state database holding the transaction location
// index.
type blockStore struct {
	dataDir string

	blocksFile *os.File
	indexFile  *os.File

	// offsets[i] is the byte offset of block i inside blocks.bin;
	// offsets[len] is the current end of file.
	offsets []int64

	db *leveldb.DB
}

// blockStoreConfig carries the tunables of the chain-state database.
type blockStoreConfig struct {
	MaxOpenFiles    int
	WriteBufferSize int
	ReadCacheSize   int
}

func openBlockStore(dataDir string, cfg blockStoreConfig) (*blockStore, error) {
	blocksPath := filepath.Join(dataDir, currency.BlocksFilename)
	indexPath := filepath.Join(dataDir, currency.BlockIndexesFilename)

	blocksFile, err := os.OpenFile(blocksPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open block storage")
	}
	indexFile, err := os.OpenFile(indexPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		blocksFile.Close()
		return nil, errors.Wrap(err, "couldn't open block index storage")
	}

	store := &blockStore{
		dataDir:    dataDir,
		blocksFile: blocksFile,
		indexFile:  indexFile,
		offsets:    []int64{0},
	}
	if err := store.loadOffsets(); err != nil {
		store.Close()
		return nil, err
	}

	dbOpts := &opt.Options{
		OpenFilesCacheCapacity: cfg.MaxOpenFiles,
		WriteBuffer:            cfg.WriteBufferSize,
		BlockCacheCapacity:     cfg.ReadCacheSize,
	}
	db, err := leveldb.OpenFile(filepath.Join(dataDir, "chainstate"), dbOpts)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "couldn't open chain-state database")
	}
	store.db = db
	return store, nil
}

func (store *blockStore) loadOffsets() error {
	info, err := store.indexFile.Stat()
	if err != nil {
		return err
	}
	count := info.Size() / 8
	if _, err := store.indexFile.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var sizeBuf [8]byte
	offset := int64(0)
	for i := int64(0); i < count; i++ {
		if _, err := io.ReadFull(store.indexFile, sizeBuf[:]); err != nil {
			return errors.Wrap(err, "truncated block index file")
		}
		offset += int64(binary.LittleEndian.Uint64(sizeBuf[:]))
		store.offsets = append(store.offsets, offset)
	}
	return nil
}

// BlockCount returns the number of stored blocks.
func (store *blockStore) BlockCount() uint32 {
	return uint32(len(store.offsets) - 1)
}

// AppendBlock persists a raw block at the next height and indexes its
// transactions.
func (store *blockStore) AppendBlock(raw *wire.RawBlock, txHashes []crypto.Hash) error {
	var buf bytes.Buffer
	if err := raw.Serialize(&buf); err != nil {
		return err
	}

	end := store.offsets[len(store.offsets)-1]
	if _, err := store.blocksFile.WriteAt(buf.Bytes(), end); err != nil {
		return errors.Wrap(err, "couldn't append block blob")
	}

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(buf.Len()))
	if _, err := store.indexFile.WriteAt(sizeBuf[:], int64(store.BlockCount())*8); err != nil {
		return errors.Wrap(err, "couldn't append block index entry")
	}

	height := store.BlockCount()
	batch := new(leveldb.Batch)
	for i, txHash := range txHashes {
		batch.Put(txIndexKey(txHash), txIndexValue(height, uint32(i)))
	}
	if err := store.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "couldn't index block transactions")
	}

	store.offsets = append(store.offsets, end+int64(buf.Len()))
	return nil
}

// ReadBlock reads the raw block stored at the given height.
func (store *blockStore) ReadBlock(height uint32) (*wire.RawBlock, error) {
	if height >= store.BlockCount() {
		return nil, errors.Errorf("no stored block at height %d", height)
	}
	start := store.offsets[height]
	size := store.offsets[height+1] - start
	blob := make([]byte, size)
	if _, err := store.blocksFile.ReadAt(blob, start); err != nil {
		return nil, errors.Wrapf(err, "couldn't read block at height %d", height)
	}

	raw := &wire.RawBlock{}
	if err := raw.Deserialize(bytes.NewReader(blob)); err != nil {
		return nil, errors.Wrapf(err, "corrupt block blob at height %d", height)
	}
	return raw, nil
}

// TruncateToHeight drops all stored blocks at and above the given height.
func (store *blockStore) TruncateToHeight(height uint32, droppedTxHashes []crypto.Hash) error {
	if height >= store.BlockCount() {
		return nil
	}

	batch := new(leveldb.Batch)
	for _, txHash := range droppedTxHashes {
		batch.Delete(txIndexKey(txHash))
	}
	if err := store.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "couldn't drop transaction index entries")
	}

	if err := store.blocksFile.Truncate(store.offsets[height]); err != nil {
		return errors.Wrap(err, "couldn't truncate block storage")
	}
	if err := store.indexFile.Truncate(int64(height) * 8); err != nil {
		return errors.Wrap(err, "couldn't truncate block index storage")
	}
	store.offsets = store.offsets[:height+1]
	return nil
}

// TxLocation looks up the main-chain location of a transaction.
func (store *blockStore) TxLocation(txHash crypto.Hash) (height uint32, index uint32, ok bool) {
	value, err := store.db.Get(txIndexKey(txHash), nil)
	if err != nil || len(value) != 8 {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(value[:4]), binary.LittleEndian.Uint32(value[4:]), true
}

// Close releases the underlying files and database.
func (store *blockStore) Close() {
	if store.blocksFile != nil {
		store.blocksFile.Close()
	}
	if store.indexFile != nil {
		store.indexFile.Close()
	}
	if store.db != nil {
		store.db.Close()
	}
}

func txIndexKey(txHash crypto.Hash) []byte {
	key := make([]byte, 1+crypto.HashSize)
	key[0] = txIndexKeyPrefix
	copy(key[1:], txHash[:])
	return key
}

func txIndexValue(height, index uint32) []byte {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint32(value[:4], height)
	binary.LittleEndian.PutUint32(value[4:], index)
	return value
}
