// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package levin

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestCommandFrameRoundTrip(t *testing.T) {
	payload := []byte("request payload")
	var buf bytes.Buffer
	if err := WriteCommand(&buf, 1001, payload, true); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	cmd, err := ReadCommand(&buf)
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if cmd.Command != 1001 || cmd.IsResponse || cmd.IsNotify {
		t.Fatalf("command frame misdecoded: %+v", cmd)
	}
	if !bytes.Equal(cmd.Buffer, payload) {
		t.Fatal("payload changed in round trip")
	}
}

func TestNotifyFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteNotify(&buf, 2001, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteNotify: %v", err)
	}
	cmd, err := ReadCommand(&buf)
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if !cmd.IsNotify || cmd.IsResponse {
		t.Fatalf("notify frame misdecoded: %+v", cmd)
	}
}

func TestReplyFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReply(&buf, 1002, []byte("reply"), -7); err != nil {
		t.Fatalf("WriteReply: %v", err)
	}
	cmd, err := ReadCommand(&buf)
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if !cmd.IsResponse || cmd.ReturnCode != -7 || cmd.Command != 1002 {
		t.Fatalf("reply frame misdecoded: %+v", cmd)
	}
}

func TestReadCommandRejectsBadSignature(t *testing.T) {
	frame := make([]byte, headerSize)
	if _, err := ReadCommand(bytes.NewReader(frame)); err != ErrBadSignature {
		t.Fatalf("bad signature: got %v, want ErrBadSignature", err)
	}
}

func TestReadCommandRejectsOversizedPayload(t *testing.T) {
	frame := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(frame[0:8], Signature)
	binary.LittleEndian.PutUint64(frame[8:16], MaxPacketSize+1)
	if _, err := ReadCommand(bytes.NewReader(frame)); err != ErrPacketTooBig {
		t.Fatalf("oversized payload: got %v, want ErrPacketTooBig", err)
	}
}

func TestStorageScalarRoundTrip(t *testing.T) {
	s := NewSection()
	s.Set("u8", uint8(8))
	s.Set("u16", uint16(16))
	s.Set("u32", uint32(32))
	s.Set("u64", uint64(1<<40))
	s.Set("i64", int64(-5))
	s.Set("flag", true)
	s.Set("blob", []byte("hello"))

	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if v, _ := parsed.GetUint("u8"); v != 8 {
		t.Errorf("u8: got %d", v)
	}
	if v, _ := parsed.GetUint("u16"); v != 16 {
		t.Errorf("u16: got %d", v)
	}
	if v, _ := parsed.GetUint("u32"); v != 32 {
		t.Errorf("u32: got %d", v)
	}
	if v, _ := parsed.GetUint("u64"); v != 1<<40 {
		t.Errorf("u64: got %d", v)
	}
	if v, _ := parsed.GetUint("i64"); int64(v) != -5 {
		t.Errorf("i64: got %d", int64(v))
	}
	if v, _ := parsed.GetBool("flag"); !v {
		t.Error("flag lost")
	}
	if v, _ := parsed.GetBytes("blob"); !bytes.Equal(v, []byte("hello")) {
		t.Error("blob lost")
	}
}

func TestStorageNestedSections(t *testing.T) {
	inner := NewSection()
	inner.Set("height", uint32(42))

	s := NewSection()
	s.Set("payload", inner)

	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	nested, ok := parsed.GetSection("payload")
	if !ok {
		t.Fatal("nested section lost")
	}
	if v, _ := nested.GetUint("height"); v != 42 {
		t.Errorf("nested height: got %d", v)
	}
}

func TestStorageArrays(t *testing.T) {
	entry := NewSection()
	entry.Set("n", uint32(1))

	s := NewSection()
	s.Set("blobs", []interface{}{[]byte("a"), []byte("bc")})
	s.Set("sections", []interface{}{entry})

	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	blobs, ok := parsed.GetArray("blobs")
	if !ok || len(blobs) != 2 {
		t.Fatalf("blob array lost: %v", blobs)
	}
	if !bytes.Equal(blobs[1].([]byte), []byte("bc")) {
		t.Error("blob array element changed")
	}

	sections, ok := parsed.GetArray("sections")
	if !ok || len(sections) != 1 {
		t.Fatalf("section array lost: %v", sections)
	}
	if v, _ := sections[0].(*Section).GetUint("n"); v != 1 {
		t.Error("section array element changed")
	}
}

func TestStoragePackedVarintWidths(t *testing.T) {
	for _, value := range []uint64{0, 63, 64, 16383, 16384, 1073741823, 1073741824} {
		var buf bytes.Buffer
		if err := writePackedVarint(&buf, value); err != nil {
			t.Fatalf("writePackedVarint(%d): %v", value, err)
		}
		got, err := readPackedVarint(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("readPackedVarint(%d): %v", value, err)
		}
		if got != value {
			t.Errorf("packed varint round trip: got %d, want %d", got, value)
		}
	}
}

func TestUnmarshalRejectsBadSignature(t *testing.T) {
	if _, err := Unmarshal(make([]byte, 16)); err == nil {
		t.Fatal("bad storage signature accepted")
	}
}
