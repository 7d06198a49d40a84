// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"testing"

	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/levin"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRequestRoundTrip(t *testing.T) {
	req := HandshakeRequest{
		NodeData: BasicNodeData{
			NetworkID: [16]byte{1, 2, 3, 4},
			Version:   1,
			LocalTime: 1700000000,
			MyPort:    8080,
			PeerID:    0xdeadbeef,
		},
		PayloadData: CoreSyncData{
			CurrentHeight: 1234,
			TopBlockHash:  crypto.FastHash([]byte("top")),
		},
	}

	payload, err := req.Marshal()
	require.NoError(t, err)

	var parsed HandshakeRequest
	require.NoError(t, parsed.Unmarshal(payload))
	require.Equal(t, req, parsed)
}

func TestHandshakeResponseRoundTrip(t *testing.T) {
	rsp := HandshakeResponse{
		NodeData: BasicNodeData{
			NetworkID: [16]byte{9, 8, 7},
			Version:   1,
			PeerID:    77,
		},
		PayloadData: CoreSyncData{
			CurrentHeight: 10,
			TopBlockHash:  crypto.FastHash([]byte("tip")),
		},
		LocalPeerlist: []PeerlistEntry{
			{Address: NetworkAddress{IP: 0x08080808, Port: 8080}, PeerID: 5, LastSeen: 99},
		},
	}

	payload, err := rsp.Marshal()
	require.NoError(t, err)

	var parsed HandshakeResponse
	require.NoError(t, parsed.Unmarshal(payload))
	require.Equal(t, rsp, parsed)
}

func TestHandshakeRequestRejectsShortNetworkID(t *testing.T) {
	req := HandshakeRequest{PayloadData: CoreSyncData{CurrentHeight: 1}}
	payload, err := req.Marshal()
	require.NoError(t, err)

	var parsed HandshakeRequest
	require.NoError(t, parsed.Unmarshal(payload))

	// A truncated payload fails the parse.
	var truncated HandshakeRequest
	require.Error(t, truncated.Unmarshal(payload[:len(payload)-8]))

	// A network id of the wrong length must fail the parse, not yield a
	// zero-padded id that could accidentally match.
	nodeData := req.NodeData.toSection()
	nodeData.Set("network_id", make([]byte, 8))
	s := levin.NewSection()
	s.Set("node_data", nodeData)
	s.Set("payload_data", req.PayloadData.toSection())
	short, err := s.Marshal()
	require.NoError(t, err)
	var shortID HandshakeRequest
	require.Error(t, shortID.Unmarshal(short))
}

func TestTimedSyncRoundTrip(t *testing.T) {
	req := TimedSyncRequest{
		PayloadData: CoreSyncData{CurrentHeight: 42, TopBlockHash: crypto.FastHash([]byte("x"))},
	}
	payload, err := req.Marshal()
	require.NoError(t, err)
	var parsedReq TimedSyncRequest
	require.NoError(t, parsedReq.Unmarshal(payload))
	require.Equal(t, req, parsedReq)

	rsp := TimedSyncResponse{
		LocalTime:   1700000123,
		PayloadData: CoreSyncData{CurrentHeight: 43, TopBlockHash: crypto.FastHash([]byte("y"))},
		LocalPeerlist: []PeerlistEntry{
			{Address: NetworkAddress{IP: 1, Port: 2}, PeerID: 3, LastSeen: 4},
		},
	}
	payload, err = rsp.Marshal()
	require.NoError(t, err)
	var parsedRsp TimedSyncResponse
	require.NoError(t, parsedRsp.Unmarshal(payload))
	require.Equal(t, rsp, parsedRsp)
}

func TestPingRoundTrip(t *testing.T) {
	payload, err := (&PingRequest{}).Marshal()
	require.NoError(t, err)
	require.NoError(t, (&PingRequest{}).Unmarshal(payload))

	rsp := PingResponse{Status: PingOKResponseStatus, PeerID: 12345}
	payload, err = rsp.Marshal()
	require.NoError(t, err)
	var parsed PingResponse
	require.NoError(t, parsed.Unmarshal(payload))
	require.Equal(t, rsp, parsed)
}
