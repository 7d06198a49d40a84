// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package levin implements the framed binary RPC every peer connection
// speaks: a fixed little endian header carrying a command id, payload
// length, flags and return code, followed by a portable-storage payload.
package levin

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Signature is the magic every Levin frame starts with.
const Signature uint64 = 0x0101010101012101

// ProtocolVersion is the only Levin version spoken.
const ProtocolVersion uint32 = 1

// MaxPacketSize bounds a frame payload; larger announcements kill the
// connection before any allocation happens.
const MaxPacketSize = 50000000

// headerSize is the wire size of the fixed frame header.
const headerSize = 33

// Packet flag bits.
const (
	flagRequest  uint32 = 1
	flagResponse uint32 = 2
)

// ErrPacketTooBig is returned when a frame announces a payload above
// MaxPacketSize.
var ErrPacketTooBig = errors.New("levin packet exceeds the maximum size")

// ErrBadSignature is returned when a frame does not start with the Levin
// magic.
var ErrBadSignature = errors.New("bad levin signature")

// Command is one decoded inbound frame.
type Command struct {
	// Command is the command id.
	Command uint32

	// Buffer is the raw payload.
	Buffer []byte

	// IsNotify is set when the sender does not expect a response.
	IsNotify bool

	// IsResponse is set when the frame answers a prior command.
	IsResponse bool

	// ReturnCode carries the status of a response frame.
	ReturnCode int32
}

func writeHeader(w io.Writer, payloadSize int, returnResponse bool, command uint32, returnCode int32, flags uint32) error {
	if payloadSize > MaxPacketSize {
		return ErrPacketTooBig
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], Signature)
	binary.LittleEndian.PutUint64(header[8:16], uint64(payloadSize))
	if returnResponse {
		header[16] = 1
	}
	binary.LittleEndian.PutUint32(header[17:21], command)
	binary.LittleEndian.PutUint32(header[21:25], uint32(returnCode))
	binary.LittleEndian.PutUint32(header[25:29], flags)
	binary.LittleEndian.PutUint32(header[29:33], ProtocolVersion)

	_, err := w.Write(header[:])
	return err
}

// WriteCommand writes a request frame. With needResponse the remote is
// expected to answer with a response frame of the same command id.
func WriteCommand(w io.Writer, command uint32, payload []byte, needResponse bool) error {
	if err := writeHeader(w, len(payload), needResponse, command, 0, flagRequest); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// WriteNotify writes a fire-and-forget request frame.
func WriteNotify(w io.Writer, command uint32, payload []byte) error {
	return WriteCommand(w, command, payload, false)
}

// WriteReply writes a response frame carrying the given return code.
func WriteReply(w io.Writer, command uint32, payload []byte, returnCode int32) error {
	if err := writeHeader(w, len(payload), false, command, returnCode, flagResponse); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadCommand reads one frame from r. It blocks until a full frame
// arrives or the reader fails.
func ReadCommand(r io.Reader) (*Command, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	if binary.LittleEndian.Uint64(header[0:8]) != Signature {
		return nil, ErrBadSignature
	}
	payloadSize := binary.LittleEndian.Uint64(header[8:16])
	if payloadSize > MaxPacketSize {
		return nil, ErrPacketTooBig
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	flags := binary.LittleEndian.Uint32(header[25:29])
	return &Command{
		Command:    binary.LittleEndian.Uint32(header[17:21]),
		Buffer:     payload,
		IsNotify:   header[16] == 0 && flags&flagResponse == 0,
		IsResponse: flags&flagResponse != 0,
		ReturnCode: int32(binary.LittleEndian.Uint32(header[21:25])),
	}, nil
}
