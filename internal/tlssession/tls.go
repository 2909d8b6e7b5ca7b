// Package tlssession wraps an already-connected socket with TLS,
// grounded on the teacher's own crypto/tls usage in
// internal/dialer/dial.go (tls.Client + HandshakeContext), extended
// with the CA-bundle probing spec.md §6 calls for. Verification is
// permissive by default, per spec.md §6 and §9 — a handshake succeeds
// even against an untrusted or hostname-mismatched certificate unless
// the caller opts into Config.RequireVerification.
package tlssession

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
)

// caBundleDirs, then caBundleFiles, are probed in order, directories
// first: spec.md §6.
var caBundleDirs = []string{
	"/etc/ssl/certs",
	"/etc/pki/tls/certs",
	"/usr/local/share/certs",
	"/etc/ssl",
	"/data/data/com.termux/files/usr/etc/tls",
	"/system/etc/security/cacerts",
}

var caBundleFiles = []string{
	"/etc/ssl/certs/ca-certificates.crt",
	"/etc/pki/tls/certs/ca-bundle.crt",
	"/data/data/com.termux/files/usr/etc/tls/cert.pem",
}

// loadSystemCAPool walks caBundleDirs then caBundleFiles, returning the
// first pool that parses at least one certificate. A nil return lets
// crypto/tls fall back to its own platform-default pool.
func loadSystemCAPool() *x509.CertPool {
	for _, dir := range caBundleDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		pool := x509.NewCertPool()
		loaded := false
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			if pool.AppendCertsFromPEM(data) {
				loaded = true
			}
		}
		if loaded {
			return pool
		}
	}
	for _, file := range caBundleFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM(data) {
			return pool
		}
	}
	return nil
}

// Config controls how Handshake builds its tls.Config.
type Config struct {
	// ServerName is sent as SNI, and used for certificate hostname
	// matching when RequireVerification is true.
	ServerName string

	// RequireVerification, when true, runs Go's normal strict chain
	// and hostname verification. Left false (the default), the
	// handshake is "optional" per spec.md §6 and §9: it always
	// succeeds, even against an untrusted or hostname-mismatched
	// certificate. original_source/src/tls_connection.cpp calls
	// mbedtls_ssl_conf_authmode(..., MBEDTLS_SSL_VERIFY_OPTIONAL)
	// unconditionally, with no configuration path to make it
	// required — callers opt into strict verification, not out of
	// permissive verification.
	RequireVerification bool
}

// Session wraps a connected net.Conn in a TLS client handshake. Once
// Handshake succeeds, Send/Recv/Close operate on the encrypted stream;
// the underlying socket is owned by the Session, not shared.
type Session struct {
	conn *tls.Conn
}

// Handshake performs the TLS client handshake over conn using cfg,
// probing the CA trust stores in spec.md §6's order and applying
// permissive verification unless cfg.RequireVerification is set.
func Handshake(ctx context.Context, conn net.Conn, cfg Config) (*Session, error) {
	tlsCfg := &tls.Config{
		ServerName: cfg.ServerName,
		MinVersion: tls.VersionTLS12,
		RootCAs:    loadSystemCAPool(),
	}
	if !cfg.RequireVerification {
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.VerifyConnection = func(tls.ConnectionState) error { return nil }
	}

	c := tls.Client(conn, tlsCfg)
	if err := c.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return &Session{conn: c}, nil
}

// Send writes buf in full, as crypto/tls.Conn.Write already loops
// internally until every byte is accepted or a hard error occurs.
func (s *Session) Send(buf []byte) error {
	_, err := s.conn.Write(buf)
	return err
}

// Recv reads the next available plaintext into buf.
func (s *Session) Recv(buf []byte) (int, error) {
	return s.conn.Read(buf)
}

// Close sends close_notify and releases the underlying socket.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Conn exposes the underlying *tls.Conn for callers (the framing
// package) that need SetReadDeadline directly.
func (s *Session) Conn() net.Conn { return s.conn }
