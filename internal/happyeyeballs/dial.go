// Package happyeyeballs implements RFC 8305 Happy Eyeballs v2: staggered
// parallel racing of IPv4 and IPv6 connection attempts, biased toward
// IPv6, yielding the first connected socket and closing every loser.
//
// The platform-specific socket racing lives in socket_unix.go
// (non-blocking connect + poll, grounded on the teacher's
// utils/nettools/net_poll.go), with a portable fallback in
// socket_other.go; both provide the attempt type plus startAttempt and
// pollAttempts, so this file stays pure orchestration.
package happyeyeballs

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/riverglass/httpcore/internal/dnscache"
)

// ResolutionDelay is the initial budget given to the IPv6 bucket before
// the dialer falls back to IPv4, per RFC 8305 §3.
const ResolutionDelay = 50 * time.Millisecond

// ConnectionAttemptDelay is the stagger between launching successive
// connection attempts within a single address-family bucket.
const ConnectionAttemptDelay = 250 * time.Millisecond

// ErrNoAddresses is returned when neither bucket has any candidate.
var ErrNoAddresses = errors.New("happyeyeballs: no addresses to dial")

// ErrAllFailed is returned when every attempt across both buckets failed
// or the deadline elapsed before any attempt completed.
var ErrAllFailed = errors.New("happyeyeballs: all connection attempts failed")

// Dial races addrs.V6 then addrs.V4 then addrs.V6 again (the RFC 8305
// ordering: prefer v6, but don't let an unresponsive v6 path starve v4),
// returning the first successfully connected, blocking socket.
func Dial(ctx context.Context, addrs dnscache.Result, port int, deadline time.Time) (net.Conn, error) {
	if addrs.Empty() {
		return nil, ErrNoAddresses
	}

	now := time.Now()
	overall := deadline.Sub(now)
	if overall <= 0 {
		return nil, ErrAllFailed
	}

	v6Budget := ResolutionDelay
	if v6Budget > overall {
		v6Budget = overall
	}

	if len(addrs.V6) > 0 {
		deadline1 := time.Now().Add(v6Budget)
		if conn, err := parallelDial(ctx, addrs.V6, port, deadline1); err == nil {
			return conn, nil
		}
	}

	remaining := deadline.Sub(time.Now())
	if remaining <= 0 {
		return nil, ErrAllFailed
	}
	if len(addrs.V4) > 0 {
		if conn, err := parallelDial(ctx, addrs.V4, port, deadline); err == nil {
			return conn, nil
		}
	}

	remaining = deadline.Sub(time.Now())
	if remaining <= 0 || len(addrs.V6) == 0 {
		return nil, ErrAllFailed
	}
	if conn, err := parallelDial(ctx, addrs.V6, port, deadline); err == nil {
		return conn, nil
	}

	return nil, ErrAllFailed
}

// parallelDial races every address in bucket, staggering attempt starts
// by ConnectionAttemptDelay and polling all outstanding sockets for a
// writable-and-healthy winner between each stagger. Every socket that
// does not win is closed before parallelDial returns: on any exit path
// either exactly one connected, blocking socket is returned or zero
// sockets remain open.
func parallelDial(ctx context.Context, bucket []dnscache.AddressInfo, port int, deadline time.Time) (net.Conn, error) {
	var attempts []*attempt
	defer func() {
		for _, a := range attempts {
			if !a.won {
				a.close()
			}
		}
	}()

	for i, addr := range bucket {
		if time.Now().After(deadline) {
			break
		}
		a, err := startAttempt(addr, port)
		if err != nil {
			continue
		}
		attempts = append(attempts, a)

		last := i == len(bucket)-1
		budget := ConnectionAttemptDelay
		if rem := deadline.Sub(time.Now()); rem < budget {
			budget = rem
		}
		if budget < 0 {
			budget = 0
		}

		if !last {
			if w := pollAttempts(attempts, budget); w != nil {
				return w.takeConn()
			}
		}
	}

	if len(attempts) == 0 {
		return nil, ErrAllFailed
	}

	remaining := deadline.Sub(time.Now())
	if remaining < 0 {
		remaining = 0
	}
	if w := pollAttempts(attempts, remaining); w != nil {
		return w.takeConn()
	}

	return nil, ErrAllFailed
}
