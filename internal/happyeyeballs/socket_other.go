//go:build !linux && !darwin
// +build !linux,!darwin

package happyeyeballs

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/riverglass/httpcore/internal/dnscache"
)

// attempt on unsupported platforms falls back to the portable
// net.Dialer instead of racing raw non-blocking sockets: no fd-level
// poll/select primitive is available without cgo or syscall tables this
// module doesn't carry for every GOOS.
type attempt struct {
	conn   net.Conn
	closed bool
	won    bool
}

func startAttempt(addr dnscache.AddressInfo, port int) (*attempt, error) {
	d := net.Dialer{Timeout: ConnectionAttemptDelay}
	conn, err := d.DialContext(context.Background(), "tcp", net.JoinHostPort(addr.Addr.String(), strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return &attempt{conn: conn}, nil
}

func pollAttempts(attempts []*attempt, timeout time.Duration) *attempt {
	for _, a := range attempts {
		if !a.won && !a.closed {
			return a
		}
	}
	return nil
}

func (a *attempt) takeConn() (net.Conn, error) {
	a.won = true
	return a.conn, nil
}

func (a *attempt) close() {
	if a.closed || a.won {
		return
	}
	a.closed = true
	a.conn.Close()
}
