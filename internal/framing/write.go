// Package framing implements HTTP/1.1 request-line/header serialization
// and response parsing under an inactivity-timeout read model, grounded
// on the teacher's internal/transport/http1.go request writer and
// internal/transport/chunked/reader.go's dechunking loop, generalized
// to this module's Headers type and to spec.md §4.8's buffered
// read-then-parse model (the teacher streams a chunked body lazily
// through an io.Reader; this module's inactivity-timeout deadline needs
// to see every read as it lands, so the response is accumulated into a
// buffer and parsed incrementally against that buffer instead).
package framing

import (
	"bufio"
	"strconv"

	"github.com/riverglass/httpcore/internal/compress"
	"github.com/riverglass/httpcore/internal/model"
)

// DefaultUserAgent is used when neither the caller nor a default
// header override supplies one.
const DefaultUserAgent = "httpcore/1.0"

// WriteRequest serializes the request line, headers and body of pr to
// w. Default headers (User-Agent, Connection, Accept, Accept-Encoding)
// are added only when the caller did not already supply a
// case-insensitive match, per spec.md §4.8.
func WriteRequest(w *bufio.Writer, pr *model.PreparedRequest, userAgent string, enableCompression bool) error {
	body, err := pr.GetBody()
	if err != nil {
		return err
	}
	if body != nil {
		defer body.Close()
	}

	if err := writeRequestLine(w, pr); err != nil {
		return err
	}
	if err := writeHeaders(w, pr, userAgent, enableCompression); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if body != nil {
		buf := make([]byte, 32*1024)
		for {
			n, rerr := body.Read(buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					return werr
				}
			}
			if rerr != nil {
				break
			}
		}
		return w.Flush()
	}
	return nil
}

func writeRequestLine(w *bufio.Writer, pr *model.PreparedRequest) error {
	if _, err := w.WriteString(pr.Method); err != nil {
		return err
	}
	w.WriteByte(' ')
	w.WriteString(pr.U.RequestURI())
	_, err := w.WriteString(" HTTP/1.1\r\n")
	return err
}

func writeHeaders(w *bufio.Writer, pr *model.PreparedRequest, userAgent string, enableCompression bool) error {
	w.WriteString("Host: ")
	w.WriteString(pr.HeaderHost)
	w.WriteString("\r\n")

	if pr.ContentLength >= 0 {
		w.WriteString("Content-Length: ")
		w.WriteString(strconv.FormatInt(pr.ContentLength, 10))
		w.WriteString("\r\n")
	}

	for k, vs := range pr.Header {
		for _, v := range vs {
			w.WriteString(k)
			w.WriteString(": ")
			w.WriteString(v)
			w.WriteString("\r\n")
		}
	}

	if !pr.Header.Has("User-Agent") {
		ua := userAgent
		if ua == "" {
			ua = DefaultUserAgent
		}
		w.WriteString("User-Agent: ")
		w.WriteString(ua)
		w.WriteString("\r\n")
	}
	if !pr.Header.Has("Connection") {
		w.WriteString("Connection: keep-alive\r\n")
	}
	if !pr.Header.Has("Accept") {
		w.WriteString("Accept: */*\r\n")
	}
	if enableCompression && !pr.Header.Has("Accept-Encoding") {
		w.WriteString("Accept-Encoding: ")
		w.WriteString(compress.AcceptEncodingHeader())
		w.WriteString("\r\n")
	}

	_, err := w.WriteString("\r\n")
	return err
}
