package relay

// Conn is the hub's handle on one client connection. Send and Close run on
// the hub goroutine and must not block: implementations queue the frame or
// fail immediately, and finish socket teardown in the background.
type Conn interface {
	Send(data []byte) error
	IsOpen() bool
	Close() error
}
