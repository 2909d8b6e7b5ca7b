//go:build linux || darwin
// +build linux darwin

package pool

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// probe reports whether conn still looks alive: a non-blocking
// MSG_PEEK of one byte. A 0-byte read means the peer closed the
// connection; a hard error (anything but EAGAIN/EWOULDBLOCK) means the
// socket is dead. EAGAIN/EWOULDBLOCK or >0 bytes peeked both mean the
// connection is still usable.
func probe(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return true
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return true
	}

	alive := true
	var buf [1]byte
	_ = rc.Read(func(fd uintptr) bool {
		n, _, err := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			alive = true
		case err != nil:
			alive = false
		case n == 0:
			alive = false
		default:
			alive = true
		}
		return true
	})
	return alive
}
