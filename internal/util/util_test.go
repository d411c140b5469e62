package util

import (
	"net"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{5 * 1024 * 1024, " 5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tt.in, got, tt.want)
		}
		if len(formatBytes(tt.in)) != 8 {
			t.Errorf("formatBytes(%v) is not 8 characters", tt.in)
		}
	}
}

func TestPeerIDFromAddrs(t *testing.T) {
	local := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7480}
	a := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50001}
	b := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50002}

	if PeerIDFromAddrs(local, a) != PeerIDFromAddrs(local, a) {
		t.Fatal("peer id is not deterministic")
	}
	if PeerIDFromAddrs(local, a) == PeerIDFromAddrs(local, b) {
		t.Fatal("different connections share a peer id")
	}
	if PeerIDFromAddrs(local, a) == 0 {
		t.Fatal("peer id must not be zero")
	}
}

func TestStatsCounters(t *testing.T) {
	before := Stats.BytesSent.Load()
	Stats.AddSent(20)
	Stats.AddSent(5)
	if got := Stats.BytesSent.Load() - before; got != 25 {
		t.Fatalf("bytes sent grew by %d, want 25", got)
	}
}

func TestLoggerScopes(t *testing.T) {
	l := Scope("host").With("conn %d", 3)
	if l.prefix != "[host] [conn 3] " {
		t.Fatalf("prefix = %q", l.prefix)
	}
}
