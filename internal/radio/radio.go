// Package radio is the contract between a session and the physical link.
//
// A Peripheral advertises and accepts many connections (the host side); a
// Central scans and holds at most one connection (the guest side). Both
// move opaque chunks no larger than their maximum write size and report
// every event through a handler. Handlers may be called from any goroutine.
package radio

import (
	"errors"

	"github.com/google/uuid"
)

// DeviceID names a discovered advertiser for the duration of a scan.
type DeviceID uint32

// ConnectionID names one link on a Peripheral.
type ConnectionID uint32

// ServiceIDs are the identifiers a session advertises and scans for.
type ServiceIDs struct {
	Service  uuid.UUID
	Upload   uuid.UUID
	Download uuid.UUID
}

// DeviceNameMax bounds the advertised device name in bytes.
const DeviceNameMax = 27

var (
	ErrNotInitialized    = errors.New("radio: not initialized")
	ErrBluetoothDisabled = errors.New("radio: bluetooth disabled")
	ErrUnknownDevice     = errors.New("radio: unknown device")
	ErrUnknownConnection = errors.New("radio: unknown connection")
	ErrNotConnected      = errors.New("radio: not connected")
	ErrWriteTooLarge     = errors.New("radio: write exceeds maximum size")
	ErrWriteInFlight     = errors.New("radio: previous write not acknowledged")
	ErrClosed            = errors.New("radio: closed")
)

// PeripheralHandler receives host-side link events.
type PeripheralHandler interface {
	OnBluetoothRequire()
	OnReady()
	OnFail(err error)
	OnConnect(conn ConnectionID)
	OnDisconnect(conn ConnectionID)
	OnReceive(conn ConnectionID, chunk []byte)
	// OnWritable reports that the previous write on conn was acknowledged
	// or that the remote side pulled for more data.
	OnWritable(conn ConnectionID)
}

// Peripheral is the host side of the link.
type Peripheral interface {
	Initialize(ids ServiceIDs, h PeripheralHandler) error
	IsBluetoothEnabled() bool
	StartAdvertising(name string) error
	StopAdvertising()
	MaxWriteSize(conn ConnectionID) int
	Write(conn ConnectionID, chunk []byte) error
	// Accept marks conn as authenticated under identity.
	Accept(conn ConnectionID, identity uint16)
	// Invalidate drops conn. OnDisconnect follows.
	Invalidate(conn ConnectionID)
	Close() error
}

// CentralHandler receives guest-side link events.
type CentralHandler interface {
	OnBluetoothRequire()
	OnReady()
	OnFail(err error)
	OnDiscover(name string, device DeviceID)
	OnConnect()
	OnDisconnect()
	OnReceive(chunk []byte)
	OnWritable()
}

// Central is the guest side of the link.
type Central interface {
	Initialize(ids ServiceIDs, h CentralHandler) error
	IsBluetoothEnabled() bool
	StartScan() error
	StopScan()
	Connect(device DeviceID) error
	// Disconnect closes the current link or cancels an attempt. It is
	// silent: no OnConnect or OnDisconnect follows for that link.
	Disconnect()
	MaxWriteSize() int
	Write(chunk []byte) error
	// Accept marks the current link as authenticated.
	Accept()
	Close() error
}
