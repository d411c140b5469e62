// Package util provides logging, traffic statistics and small helpers shared
// by every other package.
package util

import (
	"hash/fnv"
	"net"
)

// PeerIDFromConn computes a 4-byte hash from a connection's local and remote
// addresses. The signaling server uses it to name WebSocket peers; it only
// needs to be unique among live connections.
func PeerIDFromConn(conn net.Conn) uint32 {
	return PeerIDFromAddrs(conn.LocalAddr(), conn.RemoteAddr())
}

// PeerIDFromAddrs is PeerIDFromConn for callers that only hold the addresses.
func PeerIDFromAddrs(local, remote net.Addr) uint32 {
	h := fnv.New32a()
	h.Write([]byte(local.String()))
	h.Write([]byte(remote.String()))
	if id := h.Sum32(); id != 0 {
		return id
	}
	return 1
}
