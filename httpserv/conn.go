package httpserv

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"dqx0.com/go/httpserv/httpserv/internal/http1"
	"dqx0.com/go/httpserv/httpserv/internal/stream"
	"dqx0.com/go/httpserv/internal/obs"
)

// clientConn owns one accepted socket and turns it into a sequence of
// requests. The task keeps write authority over the socket; body readers
// get a bounded read view and must be released (the notify-on-drop signal)
// before the task parses further.
type clientConn struct {
	srv    *Server
	raw    net.Conn // unwrapped, for deadline kicks
	conn   net.Conn // possibly promoted by the stream wrapper
	br     *bufio.Reader
	seq    *stream.SequentialWriterBuilder
	remote net.Addr
	secure bool
	log    logrus.FieldLogger

	upgraded   atomic.Bool
	forceClose atomic.Bool
}

func newClientConn(srv *Server, raw net.Conn) (*clientConn, error) {
	conn := raw
	secure := false
	if srv.wrap != nil {
		wrapped, err := srv.wrap(raw)
		if err != nil {
			raw.Close()
			return nil, err
		}
		conn = wrapped
		secure = true
	}
	return &clientConn{
		srv:    srv,
		raw:    raw,
		conn:   conn,
		br:     bufio.NewReaderSize(conn, 1024),
		seq:    stream.NewSequentialWriterBuilder(conn),
		remote: raw.RemoteAddr(),
		secure: secure,
		log:    srv.log.WithField("remote", raw.RemoteAddr().String()),
	}, nil
}

func (c *clientConn) markClose() {
	c.forceClose.Store(true)
	c.seq.Poison()
	// Wake the task if it is parse-blocked on a next request that must
	// not be answered anymore. Writes are unaffected.
	_ = c.raw.SetReadDeadline(time.Now())
}

func (c *clientConn) run() {
	defer c.srv.unregister(c)

	var last *stream.SequentialWriter
	defer func() {
		if last != nil {
			<-last.Done()
		}
		if !c.upgraded.Load() {
			c.conn.Close()
		}
	}()

	for {
		if c.srv.closing() || c.forceClose.Load() {
			return
		}

		rr := &http1.Reader{
			BR:            c.br,
			MaxLineBytes:  c.srv.maxHeaderLine,
			MaxTotalBytes: c.srv.maxHeaderTotal,
		}
		head, err := rr.ReadHead()
		if err != nil {
			if silentReadError(err) {
				return
			}
			c.log.WithError(err).Debug("malformed request head")
			w := c.seq.Next()
			last = w
			c.writeMinimal(w, HTTPVersion11, StatusBadRequest, "")
			return
		}

		version := HTTPVersion{head.Major, head.Minor}
		method := Method(head.Method)

		if version.Major != 1 {
			w := c.seq.Next()
			last = w
			c.writeMinimal(w, HTTPVersion11, StatusVersionNotSupport,
				"This server only supports HTTP versions 1.0 and 1.1")
			return
		}

		kind, length, err := http1.Framing(head)
		if err != nil {
			c.log.WithError(err).Debug("invalid body framing")
			w := c.seq.Next()
			last = w
			c.writeMinimal(w, version, StatusBadRequest, "")
			return
		}

		if version.Minor > 1 {
			// Framing is still HTTP/1.x, so the body can be skipped and
			// the connection reused.
			if !c.discardBody(kind, length) {
				return
			}
			w := c.seq.Next()
			last = w
			c.writeMinimalKeep(w, HTTPVersion11, StatusVersionNotSupport,
				"This server only supports HTTP versions 1.0 and 1.1")
			continue
		}

		connVal := strings.ToLower(head.Get("Connection"))
		upgradeReq := strings.Contains(connVal, "upgrade")
		noMore := strings.Contains(connVal, "close") || upgradeReq
		if version == HTTPVersion10 && !strings.Contains(connVal, "keep-alive") {
			noMore = true
		}

		mustContinue := false
		if expect := head.Get("Expect"); expect != "" {
			if !strings.EqualFold(expect, "100-continue") {
				w := c.seq.Next()
				last = w
				c.writeMinimal(w, version, StatusExpectationFailed, "")
				return
			}
			mustContinue = true
		}

		w := c.seq.Next()
		last = w

		var body io.ReadCloser
		var notify *stream.NotifyReader
		var bodyDone <-chan struct{}
		switch {
		case upgradeReq:
			// The client intends to speak another protocol; hand it the
			// whole remaining stream.
			body = io.NopCloser(c.br)
		case kind == http1.BodyChunked:
			notify = stream.NewNotifyReader(http1.NewChunkedReader(c.br, c.srv.maxHeaderLine))
			body = notify
			bodyDone = notify.Done()
		case kind == http1.BodyReadToClose:
			body = io.NopCloser(c.br)
			noMore = true
		case kind == http1.BodyLength && length <= c.srv.pipelineBodyLimit && !mustContinue:
			// Small declared bodies are buffered up front so the next
			// pipelined request can be parsed while this one is handled.
			buf := make([]byte, length)
			if _, err := io.ReadFull(c.br, buf); err != nil {
				c.writeMinimal(w, version, StatusBadRequest, "")
				return
			}
			body = io.NopCloser(bytes.NewReader(buf))
		case kind == http1.BodyLength:
			notify = stream.NewNotifyReader(stream.NewEqualReader(c.br, length))
			body = notify
			bodyDone = notify.Done()
		default:
			body = io.NopCloser(emptyReader{})
		}

		if kind != http1.BodyLength {
			length = -1
		}
		req := &Request{
			method:        method,
			target:        head.Target,
			version:       version,
			header:        headerFromLines(head.Header),
			remote:        c.remote,
			secure:        c.secure,
			contentLength: length,
			conn:          c,
			w:             w,
			notify:        notify,
			persist:       !noMore,
			upgradeOK:     upgradeReq,
			body:          body,
			mustContinue:  mustContinue,
		}
		runtime.SetFinalizer(req, finalizeRequest)

		c.srv.meter.Count(obs.MetricRequests, 1)
		if !c.srv.deliver(req) {
			// Shutting down; the request was never seen by anyone.
			runtime.SetFinalizer(req, nil)
			_ = w.Close()
			return
		}

		if noMore {
			return
		}
		if bodyDone != nil {
			<-bodyDone
			if req.bodyAbandoned() {
				return
			}
		}
		if version == HTTPVersion10 || bodyDone != nil {
			// No parse-ahead here; wait out the response so the
			// keep-alive verdict is known.
			<-w.Done()
			if c.forceClose.Load() {
				return
			}
		}
	}
}

// discardBody skips a request body that will never be surfaced.
func (c *clientConn) discardBody(kind http1.BodyKind, length int64) bool {
	switch kind {
	case http1.BodyLength:
		if _, err := io.CopyN(io.Discard, c.br, length); err != nil {
			return false
		}
	case http1.BodyChunked:
		cr := http1.NewChunkedReader(c.br, c.srv.maxHeaderLine)
		if err := cr.Close(); err != nil {
			return false
		}
	case http1.BodyReadToClose:
		return false
	}
	return true
}

// writeMinimal sends a terse response and poisons the connection.
func (c *clientConn) writeMinimal(w *stream.SequentialWriter, version HTTPVersion, status StatusCode, body string) {
	c.markClose()
	c.encodeMinimal(w, version, status, body, false)
}

// writeMinimalKeep sends a terse response but keeps the connection alive.
func (c *clientConn) writeMinimalKeep(w *stream.SequentialWriter, version HTTPVersion, status StatusCode, body string) {
	c.encodeMinimal(w, version, status, body, true)
}

func (c *clientConn) encodeMinimal(w *stream.SequentialWriter, version HTTPVersion, status StatusCode, body string, keep bool) {
	resp := EmptyResponse(status)
	if body != "" {
		resp = ResponseFromString(body).WithStatus(status)
	}
	bw := bufio.NewWriter(w)
	if _, err := resp.writeTo(bw, version, MethodGet, keep, ""); err == nil {
		_ = bw.Flush()
	}
	_ = w.Close()
}

func silentReadError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func headerFromLines(lines []http1.HeaderLine) Header {
	var h Header
	for _, l := range lines {
		h.Add(l.Name, l.Value)
	}
	return h
}
