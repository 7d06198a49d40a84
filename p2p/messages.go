// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/levin"
	"github.com/pkg/errors"
)

// p2pCommandsBase is the base of the node-level command id space.
const p2pCommandsBase = 1000

// Node-level command ids.
const (
	// CommandHandshake is the initial exchange of node data and sync
	// data.
	CommandHandshake = p2pCommandsBase + 1

	// CommandTimedSync is the periodic sync heartbeat.
	CommandTimedSync = p2pCommandsBase + 2

	// CommandPing is the reachability probe used before white-listing a
	// peer.
	CommandPing = p2pCommandsBase + 3
)

// PingOKResponseStatus is the status string of a successful ping.
const PingOKResponseStatus = "OK"

// BasicNodeData identifies a node during handshakes.
type BasicNodeData struct {
	NetworkID [16]byte
	Version   uint8
	LocalTime uint64
	MyPort    uint32
	PeerID    uint64
}

func (d *BasicNodeData) toSection() *levin.Section {
	s := levin.NewSection()
	s.Set("network_id", append([]byte(nil), d.NetworkID[:]...))
	s.Set("version", d.Version)
	s.Set("peer_id", d.PeerID)
	s.Set("local_time", d.LocalTime)
	s.Set("my_port", d.MyPort)
	return s
}

func (d *BasicNodeData) fromSection(s *levin.Section) error {
	networkID, ok := s.GetBytes("network_id")
	if !ok || len(networkID) != len(d.NetworkID) {
		return errors.New("missing or malformed network_id")
	}
	copy(d.NetworkID[:], networkID)

	version, _ := s.GetUint("version")
	d.Version = uint8(version)
	peerID, ok := s.GetUint("peer_id")
	if !ok {
		return errors.New("missing peer_id")
	}
	d.PeerID = peerID
	d.LocalTime, _ = s.GetUint("local_time")
	myPort, _ := s.GetUint("my_port")
	d.MyPort = uint32(myPort)
	return nil
}

// CoreSyncData is the view of a node's chain tip exchanged on handshakes
// and heartbeats.
type CoreSyncData struct {
	CurrentHeight uint32
	TopBlockHash  crypto.Hash
}

func (d *CoreSyncData) toSection() *levin.Section {
	s := levin.NewSection()
	s.Set("current_height", d.CurrentHeight)
	s.Set("top_id", append([]byte(nil), d.TopBlockHash[:]...))
	return s
}

func (d *CoreSyncData) fromSection(s *levin.Section) error {
	height, ok := s.GetUint("current_height")
	if !ok {
		return errors.New("missing current_height")
	}
	d.CurrentHeight = uint32(height)

	topID, ok := s.GetBytes("top_id")
	if !ok || len(topID) != crypto.HashSize {
		return errors.New("missing or malformed top_id")
	}
	copy(d.TopBlockHash[:], topID)
	return nil
}

// HandshakeRequest is the COMMAND_HANDSHAKE request payload.
type HandshakeRequest struct {
	NodeData    BasicNodeData
	PayloadData CoreSyncData
}

// Marshal encodes the request into a portable storage payload.
func (req *HandshakeRequest) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("node_data", req.NodeData.toSection())
	s.Set("payload_data", req.PayloadData.toSection())
	return s.Marshal()
}

// Unmarshal decodes the request from a portable storage payload.
func (req *HandshakeRequest) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	nodeData, ok := s.GetSection("node_data")
	if !ok {
		return errors.New("missing node_data")
	}
	if err := req.NodeData.fromSection(nodeData); err != nil {
		return err
	}
	payloadData, ok := s.GetSection("payload_data")
	if !ok {
		return errors.New("missing payload_data")
	}
	return req.PayloadData.fromSection(payloadData)
}

// HandshakeResponse is the COMMAND_HANDSHAKE response payload.
type HandshakeResponse struct {
	NodeData      BasicNodeData
	PayloadData   CoreSyncData
	LocalPeerlist []PeerlistEntry
}

// Marshal encodes the response into a portable storage payload.
func (rsp *HandshakeResponse) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("node_data", rsp.NodeData.toSection())
	s.Set("payload_data", rsp.PayloadData.toSection())
	s.Set("local_peerlist", MarshalPeerlist(rsp.LocalPeerlist))
	return s.Marshal()
}

// Unmarshal decodes the response from a portable storage payload.
func (rsp *HandshakeResponse) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	nodeData, ok := s.GetSection("node_data")
	if !ok {
		return errors.New("missing node_data")
	}
	if err := rsp.NodeData.fromSection(nodeData); err != nil {
		return err
	}
	payloadData, ok := s.GetSection("payload_data")
	if !ok {
		return errors.New("missing payload_data")
	}
	if err := rsp.PayloadData.fromSection(payloadData); err != nil {
		return err
	}
	if blob, ok := s.GetBytes("local_peerlist"); ok {
		rsp.LocalPeerlist, err = UnmarshalPeerlist(blob)
		if err != nil {
			return err
		}
	}
	return nil
}

// TimedSyncRequest is the COMMAND_TIMED_SYNC request payload.
type TimedSyncRequest struct {
	PayloadData CoreSyncData
}

// Marshal encodes the request into a portable storage payload.
func (req *TimedSyncRequest) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("payload_data", req.PayloadData.toSection())
	return s.Marshal()
}

// Unmarshal decodes the request from a portable storage payload.
func (req *TimedSyncRequest) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	payloadData, ok := s.GetSection("payload_data")
	if !ok {
		return errors.New("missing payload_data")
	}
	return req.PayloadData.fromSection(payloadData)
}

// TimedSyncResponse is the COMMAND_TIMED_SYNC response payload.
type TimedSyncResponse struct {
	LocalTime     uint64
	PayloadData   CoreSyncData
	LocalPeerlist []PeerlistEntry
}

// Marshal encodes the response into a portable storage payload.
func (rsp *TimedSyncResponse) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("local_time", rsp.LocalTime)
	s.Set("payload_data", rsp.PayloadData.toSection())
	s.Set("local_peerlist", MarshalPeerlist(rsp.LocalPeerlist))
	return s.Marshal()
}

// Unmarshal decodes the response from a portable storage payload.
func (rsp *TimedSyncResponse) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	rsp.LocalTime, _ = s.GetUint("local_time")
	payloadData, ok := s.GetSection("payload_data")
	if !ok {
		return errors.New("missing payload_data")
	}
	if err := rsp.PayloadData.fromSection(payloadData); err != nil {
		return err
	}
	if blob, ok := s.GetBytes("local_peerlist"); ok {
		rsp.LocalPeerlist, err = UnmarshalPeerlist(blob)
		if err != nil {
			return err
		}
	}
	return nil
}

// PingRequest is the empty COMMAND_PING request payload.
type PingRequest struct{}

// Marshal encodes the request into a portable storage payload.
func (req *PingRequest) Marshal() ([]byte, error) {
	return levin.NewSection().Marshal()
}

// Unmarshal decodes the request from a portable storage payload.
func (req *PingRequest) Unmarshal(data []byte) error {
	_, err := levin.Unmarshal(data)
	return err
}

// PingResponse is the COMMAND_PING response payload.
type PingResponse struct {
	Status string
	PeerID uint64
}

// Marshal encodes the response into a portable storage payload.
func (rsp *PingResponse) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("status", []byte(rsp.Status))
	s.Set("peer_id", rsp.PeerID)
	return s.Marshal()
}

// Unmarshal decodes the response from a portable storage payload.
func (rsp *PingResponse) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	status, _ := s.GetBytes("status")
	rsp.Status = string(status)
	rsp.PeerID, _ = s.GetUint("peer_id")
	return nil
}
