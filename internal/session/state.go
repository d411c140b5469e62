package session

// State is the lifecycle position of a Host or Guest. A Host only uses
// Uninitialized, Initializing, Ready and Disposed.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateScanning
	StateConnecting
	StateAuthenticating
	StateOnline
	StateDisposed
)

var stateNames = [...]string{
	StateUninitialized:  "uninitialized",
	StateInitializing:   "initializing",
	StateReady:          "ready",
	StateScanning:       "scanning",
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateOnline:         "online",
	StateDisposed:       "disposed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// linked reports whether a guest in state s holds or is acquiring a link.
func (s State) linked() bool {
	return s == StateConnecting || s == StateAuthenticating || s == StateOnline
}
