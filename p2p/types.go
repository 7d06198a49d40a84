// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package p2p implements the node server: the TCP listener, the Levin
// connection table, the peer-list manager and the handshake, timed-sync
// and ping commands every peer speaks.
package p2p

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// NetworkAddress is an IPv4 endpoint as it travels in peer lists.
type NetworkAddress struct {
	IP   uint32
	Port uint32
}

// String renders the address in dotted host:port form.
func (na NetworkAddress) String() string {
	return fmt.Sprintf("%s:%d", ipToString(na.IP), na.Port)
}

// PeerlistEntry pairs an address with its peer id and the unix time it was
// last seen alive.
type PeerlistEntry struct {
	Address  NetworkAddress
	PeerID   uint64
	LastSeen uint64
}

// peerlistEntrySize is the packed wire size of one entry: the original
// daemon serializes peer lists as flat binary blobs.
const peerlistEntrySize = 4 + 4 + 8 + 8

// MarshalPeerlist packs entries into the flat binary form carried inside
// handshake and timed-sync payloads.
func MarshalPeerlist(entries []PeerlistEntry) []byte {
	data := make([]byte, 0, len(entries)*peerlistEntrySize)
	var buf [8]byte
	for _, entry := range entries {
		binary.LittleEndian.PutUint32(buf[:4], entry.Address.IP)
		data = append(data, buf[:4]...)
		binary.LittleEndian.PutUint32(buf[:4], entry.Address.Port)
		data = append(data, buf[:4]...)
		binary.LittleEndian.PutUint64(buf[:], entry.PeerID)
		data = append(data, buf[:]...)
		binary.LittleEndian.PutUint64(buf[:], entry.LastSeen)
		data = append(data, buf[:]...)
	}
	return data
}

// UnmarshalPeerlist unpacks a flat binary peer list.
func UnmarshalPeerlist(data []byte) ([]PeerlistEntry, error) {
	if len(data)%peerlistEntrySize != 0 {
		return nil, errors.Errorf("peer list blob of %d bytes is not a multiple of %d",
			len(data), peerlistEntrySize)
	}
	entries := make([]PeerlistEntry, 0, len(data)/peerlistEntrySize)
	for offset := 0; offset < len(data); offset += peerlistEntrySize {
		entries = append(entries, PeerlistEntry{
			Address: NetworkAddress{
				IP:   binary.LittleEndian.Uint32(data[offset:]),
				Port: binary.LittleEndian.Uint32(data[offset+4:]),
			},
			PeerID:   binary.LittleEndian.Uint64(data[offset+8:]),
			LastSeen: binary.LittleEndian.Uint64(data[offset+16:]),
		})
	}
	return entries, nil
}

// ParseAddress turns a host:port string into a NetworkAddress. Only IPv4
// addresses are accepted; a DNS name is resolved and its first result used.
func ParseAddress(addr string) (NetworkAddress, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return NetworkAddress{}, errors.Wrapf(err, "malformed address %q", addr)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return NetworkAddress{}, errors.Wrapf(err, "malformed port in %q", addr)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return NetworkAddress{}, errors.Errorf("couldn't resolve %q", host)
		}
		ip = ips[0]
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return NetworkAddress{}, errors.Errorf("%q is not an IPv4 address", host)
	}

	return NetworkAddress{
		IP:   binary.LittleEndian.Uint32(ip4),
		Port: uint32(port),
	}, nil
}

// ipToString renders a packed IPv4 address.
func ipToString(ip uint32) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], ip)
	return net.IP(buf[:]).String()
}

// ipFromNetIP packs a net.IP, returning false for non-IPv4 addresses.
func ipFromNetIP(ip net.IP) (uint32, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(ip4), true
}

// isIPRoutable reports whether the address is globally routable. Loopback,
// RFC1918 and link-local ranges only make sense with allowLocalIP set.
func isIPRoutable(ip uint32, allowLocalIP bool) bool {
	if allowLocalIP {
		return true
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], ip)
	netIP := net.IP(buf[:])
	if netIP.IsLoopback() || netIP.IsUnspecified() || netIP.IsLinkLocalUnicast() ||
		netIP.IsPrivate() || netIP.IsMulticast() {
		return false
	}
	return true
}
