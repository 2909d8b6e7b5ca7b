package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/riverglass/httpcore/internal/urlx"
)

// PreparedRequest is the immutable, resolved form of a Request: URL
// parsed, Host/Content-Length headers pulled out of the caller-supplied
// map and normalized, and the body wrapped behind GetBody so redirects
// and retries can resend it. An io.ReadCloser body is handed out only
// once; every other supported body type is replayable.
type PreparedRequest struct {
	*Request

	U          *urlx.URL
	GetBody    func() (io.ReadCloser, error)
	Header     Headers
	HeaderHost string

	ContentLength int64
}

// ErrEmptyHost is returned by Prepare when the URL and headers leave no
// usable Host.
var ErrEmptyHost = errors.New("model: empty host")

func (r *Request) Prepare() (*PreparedRequest, error) {
	u, err := urlx.Parse(r.URL)
	if err != nil {
		return nil, err
	}

	headers := r.Header.Clone()
	if headers == nil {
		headers = Headers{}
	}
	host := u.Host
	if !u.IsDefaultPort() {
		host = u.HostPort()
	}
	cl := int64(-1)
	// user defined headers have higher priority
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "host":
			if len(v) != 0 {
				host = v[0]
			}
			delete(headers, k)
		case "content-length":
			if len(v) != 0 {
				if n, err := strconv.ParseInt(v[0], 10, 64); err == nil {
					cl = n
				}
			}
			delete(headers, k)
		}
	}
	if host == "" {
		return nil, ErrEmptyHost
	}

	pr := &PreparedRequest{
		Request: r,

		U:             u,
		Header:        headers,
		HeaderHost:    host,
		ContentLength: cl,
	}
	if err := pr.updateBody(); err != nil {
		// updateBody potentially overwrites ContentLength
		return nil, err
	}
	return pr, nil
}

// updateBody should only be called once, from Prepare.
func (r *PreparedRequest) updateBody() (err error) {
	if r.Request.Body == nil {
		r.GetBody = func() (io.ReadCloser, error) { return nil, nil }
		return nil
	}
	switch b := r.Request.Body.(type) {
	case io.ReadCloser:
		var once atomic.Bool
		r.GetBody = func() (io.ReadCloser, error) {
			if once.CompareAndSwap(false, true) {
				return b, nil
			}
			return nil, errors.New("model: request body already consumed")
		}
		// unknown content-length
	case *bytes.Buffer:
		r.ContentLength = int64(b.Len())
		buf := b.Bytes()
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	case *bytes.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			rr := snapshot
			return io.NopCloser(&rr), nil
		}
	case *strings.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			rr := snapshot
			return io.NopCloser(&rr), nil
		}
	case string:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(b)), nil
		}
	case []byte:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
	default:
		return fmt.Errorf("model: unsupported body type: %T", r.Request.Body)
	}
	return nil
}
