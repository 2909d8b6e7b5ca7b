//go:build linux || darwin
// +build linux darwin

package happyeyeballs

import (
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/riverglass/httpcore/internal/dnscache"
)

// attempt owns one in-flight non-blocking connect() until it either
// wins the race (takeConn transfers fd ownership to the returned
// net.Conn) or loses (close releases the fd).
type attempt struct {
	fd     int
	closed bool
	won    bool
}

func startAttempt(addr dnscache.AddressInfo, port int) (*attempt, error) {
	family := unix.AF_INET
	if addr.IsV6() {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

	sa := sockaddr(addr, port)
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, err
	}

	return &attempt{fd: fd}, nil
}

func sockaddr(addr dnscache.AddressInfo, port int) unix.Sockaddr {
	if addr.IsV6() {
		sa := &unix.SockaddrInet6{Port: port}
		copy(sa.Addr[:], addr.Addr.AsSlice())
		return sa
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], addr.Addr.AsSlice())
	return sa
}

// pollAttempts polls every not-yet-decided attempt for writability and
// returns the first whose SO_ERROR is clean — the numerically-first
// address to complete its handshake among those polled, biased by
// staggered starts but not strictly ordered by them.
func pollAttempts(attempts []*attempt, timeout time.Duration) *attempt {
	live := make([]*attempt, 0, len(attempts))
	pfds := make([]unix.PollFd, 0, len(attempts))
	for _, a := range attempts {
		if a.won || a.closed {
			continue
		}
		live = append(live, a)
		pfds = append(pfds, unix.PollFd{Fd: int32(a.fd), Events: unix.POLLOUT})
	}
	if len(live) == 0 {
		return nil
	}

	ms := int(timeout / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	n, err := unix.Poll(pfds, ms)
	if err != nil || n <= 0 {
		return nil
	}

	for i, pfd := range pfds {
		if pfd.Revents&(unix.POLLOUT|unix.POLLERR|unix.POLLHUP) == 0 {
			continue
		}
		a := live[i]
		soErr, err := unix.GetsockoptInt(a.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil || soErr != 0 {
			a.close()
			continue
		}
		return a
	}
	return nil
}

// takeConn transfers fd ownership out of the attempt into a blocking
// net.Conn. Once called, close is a no-op for this attempt: the fd now
// belongs to the returned connection.
func (a *attempt) takeConn() (net.Conn, error) {
	a.won = true
	if err := unix.SetNonblock(a.fd, false); err != nil {
		a.closed = true
		unix.Close(a.fd)
		return nil, err
	}
	f := os.NewFile(uintptr(a.fd), "")
	conn, err := net.FileConn(f)
	f.Close() // FileConn dups the fd; release our copy either way
	if err != nil {
		a.closed = true
		return nil, err
	}
	return conn, nil
}

func (a *attempt) close() {
	if a.closed || a.won {
		return
	}
	a.closed = true
	unix.Close(a.fd)
}
