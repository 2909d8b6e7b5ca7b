package framing

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/riverglass/httpcore/internal/model"
)

func prepare(t *testing.T, req *model.Request) *model.PreparedRequest {
	t.Helper()
	pr, err := req.Prepare()
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return pr
}

func TestWriteRequestDefaultHeaders(t *testing.T) {
	pr := prepare(t, &model.Request{Method: "GET", URL: "http://example.com/foo"})

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteRequest(w, pr, "", true); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "GET /foo HTTP/1.1\r\n") {
		t.Fatalf("unexpected request line: %q", out)
	}
	if !strings.Contains(out, "Host: example.com\r\n") {
		t.Fatalf("missing Host header: %q", out)
	}
	if !strings.Contains(out, "User-Agent: "+DefaultUserAgent+"\r\n") {
		t.Fatalf("missing default User-Agent: %q", out)
	}
	if !strings.Contains(out, "Connection: keep-alive\r\n") {
		t.Fatalf("missing default Connection: %q", out)
	}
	if !strings.Contains(out, "Accept-Encoding:") {
		t.Fatalf("missing Accept-Encoding: %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\n") {
		t.Fatalf("missing terminating CRLFCRLF: %q", out)
	}
}

func TestWriteRequestHonorsCallerHeaders(t *testing.T) {
	req := &model.Request{
		Method: "POST",
		URL:    "http://example.com/",
		Header: model.Headers{"User-Agent": {"custom/1"}},
		Body:   "hello",
	}
	pr := prepare(t, req)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteRequest(w, pr, "ignored/1", false); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "ignored/1") {
		t.Fatalf("caller-supplied User-Agent should win: %q", out)
	}
	if !strings.Contains(out, "User-Agent: custom/1\r\n") {
		t.Fatalf("missing caller User-Agent: %q", out)
	}
	if !strings.Contains(out, "Content-Length: 5\r\n") {
		t.Fatalf("missing Content-Length for body: %q", out)
	}
	if !strings.HasSuffix(out, "hello") {
		t.Fatalf("missing body: %q", out)
	}
}

func serveAndRead(t *testing.T, wire string, method string, timeout time.Duration) *ReadResult {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Write([]byte(wire))
		server.Close()
	}()

	res, err := ReadResponse(client, method, timeout, true, nil)
	<-done
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	return res
}

func TestReadResponseContentLength(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	res := serveAndRead(t, wire, "GET", time.Second)

	if res.Response.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", res.Response.StatusCode)
	}
	if string(res.Response.Body) != "hello" {
		t.Fatalf("Body = %q, want %q", res.Response.Body, "hello")
	}
}

func TestReadResponseEmptyContentLengthZero(t *testing.T) {
	wire := "HTTP/1.1 204 No Content\r\nContent-Length: 0\r\n\r\n"
	res := serveAndRead(t, wire, "GET", time.Second)

	if len(res.Response.Body) != 0 {
		t.Fatalf("expected empty body, got %q", res.Response.Body)
	}
}

func TestReadResponseHeadIgnoresContentLength(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n"
	res := serveAndRead(t, wire, "HEAD", time.Second)

	if len(res.Response.Body) != 0 {
		t.Fatalf("expected no body for HEAD, got %q", res.Response.Body)
	}
}

func TestReadResponseChunked(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"2\r\nhe\r\n3\r\nllo\r\n0\r\n\r\n"
	res := serveAndRead(t, wire, "GET", time.Second)

	if string(res.Response.Body) != "hello" {
		t.Fatalf("Body = %q, want %q", res.Response.Body, "hello")
	}
}

func TestReadResponseChunkedEmpty(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n"
	res := serveAndRead(t, wire, "GET", time.Second)

	if len(res.Response.Body) != 0 {
		t.Fatalf("expected empty body, got %q", res.Response.Body)
	}
}

func TestReadResponseUntilClose(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\n\r\nhello world"
	res := serveAndRead(t, wire, "GET", time.Second)

	if string(res.Response.Body) != "hello world" {
		t.Fatalf("Body = %q, want %q", res.Response.Body, "hello world")
	}
}

func TestReadResponseRepeatedHeaderCollapsesLastWriteWins(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\nX-Foo: first\r\nx-foo: second\r\nContent-Length: 0\r\n\r\n"
	res := serveAndRead(t, wire, "GET", time.Second)

	if got := res.Response.Header.Get("X-Foo"); got != "second" {
		t.Fatalf("Header.Get(%q) = %q, want %q", "X-Foo", got, "second")
	}
	if n := len(res.Response.Header); n != 2 {
		t.Fatalf("expected one entry for X-Foo/x-foo plus Content-Length, got %d keys: %v", n, res.Response.Header)
	}
}

func TestDechunkRoundTrip(t *testing.T) {
	out, err := dechunk([]byte("2\r\nhe\r\n3\r\nllo\r\n0\r\n\r\n"))
	if err != nil {
		t.Fatalf("dechunk: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("dechunk = %q, want %q", out, "hello")
	}
}
