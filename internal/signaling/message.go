// Package signaling is a network medium for the radio contract.
//
// A Server relays discovery and link setup between peers connected over
// WebSocket. Peripheral and Central implement radio.Peripheral and
// radio.Central on top of it: control traffic goes through the server,
// chunks travel over one WebRTC DataChannel per link.
package signaling

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeWelcome     MessageType = "welcome"     // server → peer: assigned peer id
	MsgTypeAdvertise   MessageType = "advertise"   // peripheral → server
	MsgTypeUnadvertise MessageType = "unadvertise" // peripheral → server
	MsgTypeScan        MessageType = "scan"        // central → server
	MsgTypeStopScan    MessageType = "stop-scan"   // central → server
	MsgTypeDiscovered  MessageType = "discovered"  // server → central
	MsgTypeConnect     MessageType = "connect"     // central → server
	MsgTypeIncoming    MessageType = "incoming"    // server → peripheral: new link
	MsgTypeLinked      MessageType = "linked"      // server → central: link allocated
	MsgTypeOffer       MessageType = "offer"
	MsgTypeAnswer      MessageType = "answer"
	MsgTypeCandidate   MessageType = "candidate"
	MsgTypeAccept      MessageType = "accept" // peripheral → server: link authenticated
	MsgTypeClose       MessageType = "close"
	MsgTypeError       MessageType = "error"
)

// Message is the JSON structure exchanged over the WebSocket.
type Message struct {
	Type      MessageType `json:"type"`
	Peer      uint32      `json:"peer,omitempty"`
	Service   string      `json:"service,omitempty"`
	Name      string      `json:"name,omitempty"`
	Device    uint32      `json:"device,omitempty"`
	Link      uint32      `json:"link,omitempty"`
	Identity  uint16      `json:"identity,omitempty"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
	Reason    string      `json:"reason,omitempty"`
}
