package transport

import (
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers are used when a Link is created without explicit
// servers. Links between peers on one machine or LAN work with none.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// api gathers loopback candidates too, so peers on one machine can link
// without any network interface besides lo.
var api = func() *webrtc.API {
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}()

// newPeerConnection creates a PeerConnection using the given STUN/TURN URLs.
func newPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return api.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated, ordered, reliable DataChannel.
// Negotiated mode (ID 0) lets both sides create the channel independently
// without relying on OnDataChannel. Chunks of one frame stream must arrive
// in write order, so the channel is ordered.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel("link", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
