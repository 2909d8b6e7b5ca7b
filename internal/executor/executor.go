// Package executor drives a single HTTP/1.1 request/response cycle over
// a pooled connection: rate limiting, connection reuse or dial, TLS,
// request framing, response reading, pool release, statistics, retry
// and redirect chasing. Grounded on the teacher's internal/client.go
// orchestration of dialer → transport → response, generalized to this
// module's pool/dnscache/happyeyeballs/tlssession/framing split.
package executor

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/riverglass/httpcore/internal/dnscache"
	"github.com/riverglass/httpcore/internal/framing"
	"github.com/riverglass/httpcore/internal/happyeyeballs"
	"github.com/riverglass/httpcore/internal/model"
	"github.com/riverglass/httpcore/internal/pool"
	"github.com/riverglass/httpcore/internal/ratelimit"
	"github.com/riverglass/httpcore/internal/stats"
	"github.com/riverglass/httpcore/internal/tlssession"
)

// Config controls the Executor's ambient behavior: everything a caller
// didn't override per-request.
type Config struct {
	UserAgent      string
	DefaultTimeout time.Duration // inactivity timeout when Request.Timeout is unset
	ConnectTimeout time.Duration // Happy Eyeballs overall budget

	MaxConnections int
	IdleTimeout    time.Duration

	DNSTTL time.Duration

	RateLimit float64 // requests/sec, 0 = unlimited
	RateBurst int

	// RequireVerification, when true, makes TLS handshakes enforce
	// normal chain and hostname verification. Left false (the
	// default), handshakes are permissive per spec.md §6 and §9.
	RequireVerification bool

	Stats *stats.Sink // shared with the caller so Client.Stats() can read it; created if nil
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = framing.DefaultUserAgent
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.Stats == nil {
		c.Stats = stats.New()
	}
	return c
}

// Executor is the request pipeline: one per Client, shared across every
// Do/Batch/DownloadSegmented call on that client.
type Executor struct {
	cfg     Config
	pool    *pool.Pool
	dns     *dnscache.Cache
	limiter *ratelimit.Bucket
	stats   *stats.Sink
}

// New builds an Executor from cfg, applying defaults for anything left
// zero-valued.
func New(cfg Config) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		cfg:     cfg,
		pool:    pool.New(cfg.MaxConnections, cfg.IdleTimeout),
		dns:     dnscache.New(cfg.DNSTTL, nil),
		limiter: ratelimit.New(cfg.RateLimit, cfg.RateBurst),
		stats:   cfg.Stats,
	}
}

// Stats returns the shared statistics sink.
func (e *Executor) Stats() *stats.Sink { return e.stats }

// WarmDNS resolves host:port ahead of time and populates the DNS cache,
// so the first real request against that origin skips resolution.
func (e *Executor) WarmDNS(ctx context.Context, host string, port int) {
	e.dns.Warmup(ctx, host, port)
}

// Pool exposes the connection pool, for callers that schedule idle
// sweeps (CleanupIdle) themselves.
func (e *Executor) Pool() *pool.Pool { return e.pool }

// NewClientPool returns a standalone Executor sharing this one's
// configuration but with its own connection pool — used by the
// segmented downloader, whose workers must not contend on one pool's
// lock (spec's per-worker independent client requirement).
func (e *Executor) NewClientPool() *Executor {
	cfg := e.cfg
	return &Executor{
		cfg:     cfg,
		pool:    pool.New(cfg.MaxConnections, cfg.IdleTimeout),
		dns:     e.dns, // DNS cache is safe, and cheap, to share
		limiter: e.limiter,
		stats:   e.stats,
	}
}

// Do executes req, following redirects and applying retries as
// configured, per spec.md §4.9.
func (e *Executor) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	redirectCount := 0
	current := req

	for {
		pr, err := current.Prepare()
		if err != nil {
			return nil, err
		}

		resp := e.doWithRetry(ctx, pr)
		resp.RedirectCount = redirectCount

		if !current.FollowRedirects || resp.StatusCode < 300 || resp.StatusCode >= 400 {
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return resp, nil
		}

		maxRedirects := current.MaxRedirects
		if maxRedirects <= 0 {
			maxRedirects = 10
		}
		if redirectCount >= maxRedirects {
			logrus.WithFields(logrus.Fields{
				"url":           current.URL,
				"max_redirects": maxRedirects,
			}).Warn("executor: redirect limit reached")
			return resp, nil
		}
		redirectCount++

		next := *current
		next.URL = resolveLocation(pr, location)
		logrus.WithFields(logrus.Fields{
			"from": current.URL,
			"to":   next.URL,
			"code": resp.StatusCode,
		}).Debug("executor: following redirect")
		current = &next
	}
}

// resolveLocation joins a (possibly relative) Location header against
// the request that produced it. Only absolute URLs and absolute paths
// are handled, matching this module's minimal URL grammar (no relative
// path segments, no userinfo).
func resolveLocation(pr *model.PreparedRequest, location string) string {
	if strings.Contains(location, "://") {
		return location
	}
	if strings.HasPrefix(location, "/") {
		return pr.U.Scheme + "://" + pr.U.HostPort() + location
	}
	return pr.U.Scheme + "://" + pr.U.HostPort() + "/" + location
}

// doWithRetry runs one request attempt, retrying per spec.md §4.9's
// retry wrapper when MaxRetries > 0 and the response is a transport
// failure (status 0) or a 5xx.
func (e *Executor) doWithRetry(ctx context.Context, pr *model.PreparedRequest) *model.Response {
	if pr.MaxRetries <= 0 {
		return e.roundTrip(ctx, pr)
	}

	delay := pr.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	attempts := pr.MaxRetries + 1
	var resp *model.Response
	for attempt := 1; attempt <= attempts; attempt++ {
		resp = e.roundTrip(ctx, pr)
		if resp.StatusCode > 0 && resp.StatusCode < 500 {
			return resp
		}
		if attempt == attempts {
			break
		}

		e.stats.RecordError(stats.ErrRetry)
		logrus.WithFields(logrus.Fields{
			"attempt": attempt,
			"status":  resp.StatusCode,
			"host":    pr.U.Host,
		}).Debug("executor: retrying request")
		sleep := delay
		if pr.ExponentialBackoff {
			sleep = delay * time.Duration(uint64(1)<<uint(attempt-1))
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return resp
		}
	}

	if resp.StatusCode == 0 {
		logrus.WithField("host", pr.U.Host).Warn("executor: max retries exceeded")
		e.stats.RecordError(stats.ErrMaxRetriesExceeded)
	}
	return resp
}

// roundTrip performs exactly one connect-or-reuse / send / receive
// cycle. It never returns a Go error: every failure is encoded as
// Response{StatusCode: 0}, per spec.md §7's no-exceptions-across-boundaries
// policy. Dial, send and read failures also record their error kind; a
// rate-limiter wait cut short by ctx records none.
func (e *Executor) roundTrip(ctx context.Context, pr *model.PreparedRequest) *model.Response {
	start := time.Now()

	if err := e.limiter.Acquire(ctx); err != nil {
		return &model.Response{StatusCode: 0}
	}

	useTLS := pr.U.Scheme == "https"
	key := pool.Key{Host: pr.U.Host, Port: pr.U.Port, UseTLS: useTLS}

	conn, reused := e.pool.Acquire(key)
	if reused {
		e.stats.RecordDNSLookup(0, true)
		e.stats.RecordTCPHandshake(0)
		e.stats.RecordConnection(true)
	} else {
		c, err := e.dial(ctx, pr, useTLS)
		if err != nil {
			return &model.Response{StatusCode: 0}
		}
		conn = c
		e.stats.RecordConnection(false)
	}

	e.stats.SetCurrent(pr.U.Host, remoteIP(conn), useTLS)

	w := bufio.NewWriter(conn)
	if err := framing.WriteRequest(w, pr, e.cfg.UserAgent, pr.EnableCompression); err != nil {
		e.pool.Discard(conn)
		e.stats.RecordError(stats.ErrSendFailed)
		return &model.Response{StatusCode: 0}
	}
	if pr.ContentLength > 0 {
		e.stats.RecordBytesSent(pr.ContentLength)
	}

	timeout := pr.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	result, err := framing.ReadResponse(conn, pr.Method, timeout, pr.EnableCompression, e.stats)
	if err != nil {
		e.pool.Discard(conn)
		e.stats.RecordError(stats.ErrConnectionFailed)
		return &model.Response{StatusCode: 0}
	}

	elapsed := time.Since(start)
	resp := result.Response
	resp.ElapsedTime = elapsed
	resp.BytesReceived = result.WireBodyBytes

	if !result.FirstByteAt.IsZero() {
		e.stats.RecordFirstByte(result.FirstByteAt.Sub(start))
	}

	if shouldCloseConnection(resp.Header) {
		e.pool.Discard(conn)
	} else {
		e.pool.Release(key, conn)
	}

	e.stats.RecordRequest(elapsed, resp.BytesReceived)
	return resp
}

// dial resolves, races, and optionally wraps in TLS a fresh connection
// for pr, per spec.md §4.9 step 4.
func (e *Executor) dial(ctx context.Context, pr *model.PreparedRequest, useTLS bool) (*pool.Conn, error) {
	hitsBefore, _ := e.dns.HitsMisses()
	dnsStart := time.Now()
	addrs, err := e.dns.Resolve(ctx, pr.U.Host, pr.U.Port)
	dnsElapsed := time.Since(dnsStart)
	hitsAfter, _ := e.dns.HitsMisses()
	e.stats.RecordDNSLookup(dnsElapsed, hitsAfter > hitsBefore)
	if err != nil {
		e.stats.RecordError(stats.ErrConnectionFailed)
		return nil, err
	}

	tcpStart := time.Now()
	deadline := time.Now().Add(e.cfg.ConnectTimeout)
	conn, err := happyeyeballs.Dial(ctx, addrs, pr.U.Port, deadline)
	e.stats.RecordTCPHandshake(time.Since(tcpStart))
	if err != nil {
		e.stats.RecordError(stats.ErrConnectionFailed)
		return nil, err
	}

	if useTLS {
		session, err := tlssession.Handshake(ctx, conn, tlssession.Config{
			ServerName:          pr.U.Host,
			RequireVerification: e.cfg.RequireVerification,
		})
		if err != nil {
			conn.Close()
			logrus.WithFields(logrus.Fields{
				"host": pr.U.Host,
				"err":  err,
			}).Warn("executor: TLS handshake failed")
			e.stats.RecordError(stats.ErrTLSHandshake)
			return nil, err
		}
		conn = session.Conn()
	}

	return pool.Put(conn), nil
}

func shouldCloseConnection(h model.Headers) bool {
	return strings.EqualFold(h.Get("Connection"), "close")
}

func remoteIP(conn net.Conn) string {
	if conn == nil {
		return ""
	}
	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Close closes every connection held in the pool.
func (e *Executor) Close() {
	e.pool.Close()
}
