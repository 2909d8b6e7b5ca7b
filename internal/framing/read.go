package framing

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/riverglass/httpcore/internal/compress"
	"github.com/riverglass/httpcore/internal/model"
)

// ErrMalformedStatusLine is returned when the response does not begin
// with "HTTP/x.y NNN reason".
var ErrMalformedStatusLine = errors.New("framing: malformed HTTP status line")

// DownloadedCounter is the minimal interface the read loop needs to
// bump the shared progress counter on every chunk received, without
// depending on the stats package directly (keeps this package testable
// without a Sink).
type DownloadedCounter interface {
	AddDownloaded(n uint64)
}

// ReadResult carries the parsed response plus the timing the executor
// needs that isn't itself part of the Response.
type ReadResult struct {
	Response      *model.Response
	FirstByteAt   time.Time
	WireBodyBytes int64 // bytes received on the wire, pre-decompression
}

// ReadResponse reads a full HTTP/1.1 response from conn under an
// inactivity timeout: the read deadline is pushed out to
// now+timeout after every read that observes at least one byte, rather
// than being a fixed wall-clock deadline (spec.md §4.8).
func ReadResponse(conn net.Conn, method string, timeout time.Duration, enableCompression bool, counter DownloadedCounter) (*ReadResult, error) {
	var buf []byte
	readBuf := make([]byte, 32*1024)

	headersEnd := -1
	var firstByteAt time.Time

	isHead := strings.EqualFold(method, "HEAD")
	var parsed parsedHeaders
	bodyMode := bodyModeUnknown

	for {
		if timeout > 0 {
			conn.SetReadDeadline(time.Now().Add(timeout))
		}
		n, err := conn.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			if firstByteAt.IsZero() {
				firstByteAt = time.Now()
			}
			if counter != nil {
				counter.AddDownloaded(uint64(n))
			}
		}

		if headersEnd < 0 {
			if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
				headersEnd = idx + 4
			}
		}

		if headersEnd >= 0 && bodyMode == bodyModeUnknown {
			p, perr := parseHeaders(buf[:headersEnd])
			if perr != nil {
				return nil, perr
			}
			parsed = p
			switch {
			case isHead:
				bodyMode = bodyModeNone
			case parsed.chunked:
				bodyMode = bodyModeChunked
			case parsed.contentLength >= 0:
				bodyMode = bodyModeContentLength
			default:
				bodyMode = bodyModeUntilClose
			}
		}

		if headersEnd >= 0 && bodyComplete(buf, headersEnd, bodyMode, parsed.contentLength) {
			break
		}

		if err != nil {
			// Inactivity timeout, EOF, or a hard read error: stop and
			// return whatever was parsed so far (spec.md §7's
			// truncate-and-return policy for mid-stream failures).
			break
		}
	}

	if headersEnd < 0 {
		return nil, ErrMalformedStatusLine
	}

	wireBody := buf[headersEnd:]
	wireLen := int64(len(wireBody))

	var bodyBytes []byte
	if bodyMode == bodyModeChunked {
		db, err := dechunk(wireBody)
		if err != nil {
			// Leave whatever was dechunked so far; truncated chunked
			// bodies are a mid-stream failure, not a hard error.
			bodyBytes = db
		} else {
			bodyBytes = db
		}
	} else if bodyMode == bodyModeContentLength && parsed.contentLength >= 0 && int64(len(wireBody)) > parsed.contentLength {
		bodyBytes = wireBody[:parsed.contentLength]
	} else {
		bodyBytes = wireBody
	}

	wasCompressed := false
	if enableCompression {
		if enc := parsed.header.Get("Content-Encoding"); enc != "" {
			if t := compress.DetectFromHeader(enc); t != compress.None {
				if decoded, ok := compress.Decompress(bodyBytes, t); ok {
					bodyBytes = decoded
					wasCompressed = true
				}
			}
		}
	}

	resp := &model.Response{
		StatusCode:    parsed.statusCode,
		StatusMessage: parsed.statusMessage,
		Header:        parsed.header,
		Body:          bodyBytes,
		WasCompressed: wasCompressed,
	}

	return &ReadResult{
		Response:      resp,
		FirstByteAt:   firstByteAt,
		WireBodyBytes: wireLen,
	}, nil
}

type bodyMode int

const (
	bodyModeUnknown bodyMode = iota
	bodyModeNone
	bodyModeChunked
	bodyModeContentLength
	bodyModeUntilClose
)

func bodyComplete(buf []byte, headersEnd int, mode bodyMode, contentLength int64) bool {
	switch mode {
	case bodyModeNone:
		return true
	case bodyModeChunked:
		return bytes.Contains(buf[headersEnd:], []byte("0\r\n\r\n"))
	case bodyModeContentLength:
		return int64(len(buf)-headersEnd) >= contentLength
	default:
		return false
	}
}

type parsedHeaders struct {
	statusCode    int
	statusMessage string
	header        model.Headers
	contentLength int64
	chunked       bool
}

// parseHeaders parses the status line and header block once the full
// CRLFCRLF has been observed.
func parseHeaders(block []byte) (parsedHeaders, error) {
	lines := strings.Split(string(block), "\r\n")
	if len(lines) == 0 {
		return parsedHeaders{}, ErrMalformedStatusLine
	}
	statusLine := lines[0]
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return parsedHeaders{}, ErrMalformedStatusLine
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return parsedHeaders{}, ErrMalformedStatusLine
	}
	msg := ""
	if len(parts) == 3 {
		msg = parts[2]
	}

	h := model.Headers{}
	var contentLengths []string
	chunked := false
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		// spec.md §3: repeated headers collapse last-write-wins rather
		// than accumulate, so a differently-cased repeat (e.g.
		// "X-Foo"/"x-foo") still overwrites instead of landing under a
		// second map key that Get/Has would then pick nondeterministically.
		h.Set(key, val)

		switch strings.ToLower(key) {
		case "content-length":
			contentLengths = append(contentLengths, val)
		case "transfer-encoding":
			if strings.EqualFold(strings.TrimSpace(val), "chunked") {
				chunked = true
			}
		}
	}

	// RFC 7230 §3.3.2: multiple Content-Length headers are only legal
	// when every value is identical; otherwise the message is a
	// smuggling attempt and must be rejected rather than silently
	// resolved by picking one of the conflicting values.
	contentLength := int64(-1)
	if len(contentLengths) > 0 {
		first := contentLengths[0]
		for _, v := range contentLengths[1:] {
			if v != first {
				return parsedHeaders{}, fmt.Errorf("framing: conflicting Content-Length headers: %v", contentLengths)
			}
		}
		if n, err := strconv.ParseInt(first, 10, 64); err == nil {
			contentLength = n
		}
	}

	return parsedHeaders{
		statusCode:    code,
		statusMessage: msg,
		header:        h,
		contentLength: contentLength,
		chunked:       chunked,
	}, nil
}

// dechunk repeatedly parses a hex chunk-size line, copies that many
// bytes, skips the trailing CRLF, and stops at a zero-size chunk — the
// extraction spec.md §4.8 describes, grounded on the teacher's
// internal/transport/chunked/reader.go state machine but operating
// over an already-buffered byte slice instead of an io.Reader, since
// the caller has already accumulated the full wire body.
func dechunk(data []byte) ([]byte, error) {
	var out []byte
	rest := data
	for {
		nl := bytes.Index(rest, []byte("\r\n"))
		if nl < 0 {
			return out, errors.New("framing: truncated chunk header")
		}
		sizeLine := rest[:nl]
		if semi := bytes.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeLine = sizeLine[:semi]
		}
		size, err := strconv.ParseUint(string(bytes.TrimSpace(sizeLine)), 16, 64)
		if err != nil {
			return out, errors.New("framing: invalid chunk size")
		}
		rest = rest[nl+2:]
		if size == 0 {
			return out, nil
		}
		if uint64(len(rest)) < size+2 {
			return out, errors.New("framing: truncated chunk body")
		}
		out = append(out, rest[:size]...)
		rest = rest[size+2:] // skip chunk data + trailing CRLF
	}
}
