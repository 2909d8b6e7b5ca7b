package model

import "time"

// Request describes a single HTTP/1.1 request to execute. The executor,
// not this struct, applies defaults: a zero Timeout uses the client's
// configured default timeout, MaxRedirects <= 0 means 10, RetryDelay <= 0
// means one second, and MaxRetries == 0 means no retries.
type Request struct {
	Method string
	URL    string
	Body   interface{} // string, []byte, *bytes.Buffer, *bytes.Reader, *strings.Reader, io.ReadCloser, or nil
	Header Headers

	Timeout time.Duration // inactivity timeout for reading the response

	FollowRedirects bool
	MaxRedirects    int // default 10, applied by the executor when <= 0

	EnableCompression bool

	MaxRetries         int
	RetryDelay         time.Duration
	ExponentialBackoff bool
}

// Response is the result of executing a Request. StatusCode == 0 signals
// a transport failure: the request never produced a parsed HTTP status
// line, and Body/Header are empty.
type Response struct {
	StatusCode    int
	StatusMessage string
	Header        Headers
	Body          []byte

	ElapsedTime   time.Duration
	BytesReceived int64 // wire body size, pre-decompression
	WasCompressed bool
	UsedHTTP2     bool // always false; HTTP/2 is a stub, see Non-goals
	RedirectCount int
}
