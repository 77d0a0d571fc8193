package httpserv

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync"

	"dqx0.com/go/httpserv/httpserv/internal/http1"
	"dqx0.com/go/httpserv/httpserv/internal/stream"
	"dqx0.com/go/httpserv/internal/obs"
)

// Request is one parsed HTTP request, handed to the application through
// the server's receive methods.
//
// Every request must be answered exactly once, with Respond, IntoWriter,
// Upgrade, or Close. A request released via Close without a response gets
// a synthesized 500 and its connection is shut down; a garbage-collected
// unanswered request is treated the same way, but relying on the collector
// delays the client, so call Close.
//
// Pipelined requests on one connection may be answered in any order; the
// responses are committed to the socket in request order regardless.
type Request struct {
	method  Method
	target  string
	version HTTPVersion
	header  Header
	remote  net.Addr
	secure  bool

	// -1 when the body length is not declared (chunked or absent).
	contentLength int64

	conn      *clientConn
	w         *stream.SequentialWriter
	notify    *stream.NotifyReader
	persist   bool
	upgradeOK bool

	mu           sync.Mutex
	body         io.ReadCloser
	bodyTaken    bool
	mustContinue bool
	responded    bool
	abandoned    bool
}

// Method returns the request method.
func (r *Request) Method() Method { return r.method }

// URL returns the request target exactly as received.
func (r *Request) URL() string { return r.target }

// HTTPVersion returns the protocol version from the request line.
func (r *Request) HTTPVersion() HTTPVersion { return r.version }

// Header returns the request headers, duplicates preserved in order.
func (r *Request) Header() *Header { return &r.header }

// RemoteAddr returns the peer address.
func (r *Request) RemoteAddr() net.Addr { return r.remote }

// Secure reports whether the request arrived over a wrapped (encrypted)
// stream.
func (r *Request) Secure() bool { return r.secure }

// ContentLength returns the declared body length, or -1 when the body is
// chunked or absent.
func (r *Request) ContentLength() int64 { return r.contentLength }

// Body returns the body stream. Only the first call yields the body;
// later calls return an empty reader. If the client sent
// Expect: 100-continue, the interim response goes out before the first
// call returns.
func (r *Request) Body() io.Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodyTaken || r.responded {
		return emptyReader{}
	}
	r.bodyTaken = true
	if r.mustContinue {
		r.mustContinue = false
		_ = http1.WriteContinue(r.w)
	}
	return r.body
}

// Respond writes resp to the client. It may be called from any goroutine
// and at most once; a second call returns ErrAlreadyResponded. Any unread
// body is drained first so the connection can carry the next request,
// except when the client sent Expect: 100-continue and the body was never
// taken: then the body is not read and the connection is closed after the
// response.
func (r *Request) Respond(resp *Response) error {
	mustCont, err := r.begin()
	if err != nil {
		return err
	}
	r.finishBody(mustCont)

	bw := bufio.NewWriter(r.w)
	keep, werr := resp.writeTo(bw, r.version, r.method, r.persist && !r.conn.forceClose.Load(), "")
	if werr == nil {
		werr = bw.Flush()
	}
	if werr != nil || !keep {
		r.conn.markClose()
	}
	if cerr := r.w.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		r.conn.log.WithError(werr).Debug("response write failed")
		return werr
	}
	r.conn.srv.meter.Count(obs.MetricResponses, 1)
	return nil
}

// IntoWriter hands over the raw response stream. The caller writes the
// status line, headers, and body itself and must Close the writer when
// done; the connection is closed afterwards since the server cannot know
// the framing.
func (r *Request) IntoWriter() (io.WriteCloser, error) {
	mustCont, err := r.begin()
	if err != nil {
		return nil, err
	}
	r.finishBody(mustCont)
	r.conn.markClose()
	return r.w, nil
}

// Upgrade writes resp with "Connection: upgrade" and the given protocol
// token, then yields the raw bidirectional stream. The connection task
// stops parsing; the stream belongs to the caller, including closing it.
// Fails with ErrNotUpgradable unless the client asked for an upgrade.
func (r *Request) Upgrade(protocol string, resp *Response) (io.ReadWriteCloser, error) {
	if !r.upgradeOK {
		return nil, ErrNotUpgradable
	}
	_, err := r.begin()
	if err != nil {
		return nil, err
	}
	// The body reader stays untouched: the client owns the stream from
	// here and any bytes after the head belong to the new protocol.

	bw := bufio.NewWriter(r.w)
	_, werr := resp.writeTo(bw, r.version, r.method, false, protocol)
	if werr == nil {
		werr = bw.Flush()
	}
	if werr != nil {
		r.conn.markClose()
		_ = r.w.Close()
		return nil, werr
	}
	// Flip upgraded before releasing the writer: the task checks it
	// right after the final Done.
	r.conn.upgraded.Store(true)
	if err := r.w.Close(); err != nil {
		return nil, err
	}
	r.conn.srv.meter.Count(obs.MetricResponses, 1)
	return &rawStream{r: r.conn.br, c: r.conn.conn}, nil
}

// Close releases the request. If it has not been responded to, the client
// gets a 500 and the connection is closed.
func (r *Request) Close() error {
	r.mu.Lock()
	done := r.responded
	r.mu.Unlock()
	if done {
		return nil
	}
	r.conn.markClose()
	return r.Respond(EmptyResponse(StatusInternalError))
}

func (r *Request) String() string {
	return fmt.Sprintf("Request(%s %s from %s)", r.method, r.target, r.remote)
}

// begin claims the single response slot.
func (r *Request) begin() (mustContinue bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responded {
		return false, ErrAlreadyResponded
	}
	r.responded = true
	mustContinue = r.mustContinue
	r.mustContinue = false
	runtime.SetFinalizer(r, nil)
	return mustContinue, nil
}

// finishBody releases the body reader so the connection task can resume.
// When the client is still waiting for a 100 Continue that never came,
// the body bytes may never arrive, so the reader is abandoned and the
// connection marked for close instead of drained.
func (r *Request) finishBody(mustContinue bool) {
	if r.notify == nil {
		return
	}
	if mustContinue {
		r.mu.Lock()
		r.abandoned = true
		r.mu.Unlock()
		r.conn.markClose()
		r.notify.Abandon()
		return
	}
	if err := r.notify.Close(); err != nil {
		r.conn.markClose()
	}
}

func (r *Request) bodyAbandoned() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abandoned
}

func finalizeRequest(r *Request) {
	go func() { _ = r.Close() }()
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }
