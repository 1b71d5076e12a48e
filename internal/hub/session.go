package hub

import "time"

// Transport is the minimal surface the Hub needs from a live connection. The
// Protocol Handler supplies the concrete websocket-backed implementation;
// the Hub itself never imports gorilla/websocket.
type Transport interface {
	Send(msgType string, data any) error
	CloseWithReason(code int, reason string) error
}

type baseSession struct {
	Handle    string // opaque session id, unique per process
	Addr      string
	JoinedAt  time.Time
	LastSeen  time.Time
	Transport Transport
}

// DeviceSession is a live transport bound to exactly one device_id.
type DeviceSession struct {
	baseSession
	DeviceID       string
	ReconnectCount int
}

// DashboardSession is a live transport observing device state. It has no
// stable identifier beyond its handle.
type DashboardSession struct {
	baseSession
}

// NewDeviceSession wraps a Transport as a not-yet-bound device session.
func NewDeviceSession(handle string, t Transport, addr string, now time.Time) *DeviceSession {
	return &DeviceSession{baseSession: baseSession{Handle: handle, Addr: addr, JoinedAt: now, LastSeen: now, Transport: t}}
}

// NewDashboardSession wraps a Transport as a dashboard session.
func NewDashboardSession(handle string, t Transport, addr string, now time.Time) *DashboardSession {
	return &DashboardSession{baseSession: baseSession{Handle: handle, Addr: addr, JoinedAt: now, LastSeen: now, Transport: t}}
}
