package device

import "sync/atomic"

// Device identifies a backing store for inodes and hands out inode numbers
// unique to it.
type Device struct {
	Major, Minor uint32

	nextIno uint64
}

var anonMinor uint32

// NewAnonDevice returns a device with major number 0 and a fresh minor.
func NewAnonDevice() *Device {
	return &Device{
		Minor: atomic.AddUint32(&anonMinor, 1),
	}
}

func (d *Device) DeviceID() uint64 {
	return uint64(d.Major)<<32 | uint64(d.Minor)
}

func (d *Device) NextIno() uint64 {
	return atomic.AddUint64(&d.nextIno, 1)
}
