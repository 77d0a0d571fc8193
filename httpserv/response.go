package httpserv

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"dqx0.com/go/httpserv/httpserv/internal/http1"
)

// DefaultChunkedThreshold is the body length at which a response with a
// known length switches from identity to chunked framing on HTTP/1.1.
const DefaultChunkedThreshold = 32768

const serverName = "httpserv (Go)"

// RFC 7231 IMF-fixdate.
const imfFixdate = "Mon, 02 Jan 2006 15:04:05 GMT"

// Response is what the application hands back through Request.Respond.
//
// ContentLength -1 means the length is unknown; unknown-length bodies are
// sent chunked on HTTP/1.1 and close-delimited on HTTP/1.0. A zero
// ContentLength with a non-nil Body also counts as unknown; the
// constructors below always set it exactly.
//
// Framing headers (Connection, Transfer-Encoding, Upgrade) in Header are
// replaced by computed ones. A Content-Length field is honored as the body
// length when ContentLength does not already say otherwise.
type Response struct {
	Status        StatusCode
	Header        Header
	Body          io.Reader
	ContentLength int64

	// ChunkedThreshold overrides DefaultChunkedThreshold when positive.
	ChunkedThreshold int
}

// EmptyResponse returns a bodyless response with the given status.
func EmptyResponse(status StatusCode) *Response {
	return &Response{Status: status}
}

// ResponseFromString returns a 200 text/plain response.
func ResponseFromString(s string) *Response {
	r := &Response{Status: StatusOK, ContentLength: int64(len(s))}
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if len(s) > 0 {
		r.Body = strings.NewReader(s)
	}
	return r
}

// ResponseFromBytes returns a 200 response carrying b.
func ResponseFromBytes(b []byte) *Response {
	r := &Response{Status: StatusOK, ContentLength: int64(len(b))}
	if len(b) > 0 {
		r.Body = bytes.NewReader(b)
	}
	return r
}

// ResponseFromReader returns a 200 response streaming from rd. Pass -1
// when the length is not known up front.
func ResponseFromReader(rd io.Reader, length int64) *Response {
	return &Response{Status: StatusOK, Body: rd, ContentLength: length}
}

// WithStatus sets the status code and returns the response.
func (r *Response) WithStatus(status StatusCode) *Response {
	r.Status = status
	return r
}

// WithHeader appends a header field and returns the response.
func (r *Response) WithHeader(name, value string) *Response {
	r.Header.Add(name, value)
	return r
}

func (r *Response) chunkedThreshold() int64 {
	if r.ChunkedThreshold > 0 {
		return int64(r.ChunkedThreshold)
	}
	return DefaultChunkedThreshold
}

type framing int

const (
	frameNone framing = iota
	frameIdentity
	frameChunked
	frameUntilClose
)

// writeTo encodes the response for a request made with the given version
// and method. persistent is the connection's wish; the return value is
// whether the connection can actually be kept open after this response.
func (r *Response) writeTo(w io.Writer, version HTTPVersion, method Method, persistent bool, upgrade string) (bool, error) {
	status := r.Status
	if status == 0 {
		status = StatusOK
	}

	length := r.ContentLength
	body := r.Body
	if body == nil {
		length = 0
	} else if length == 0 {
		length = -1
	}

	// Split off the user headers we synthesize ourselves.
	var user []Field
	for _, f := range r.Header.Fields() {
		switch {
		case strings.EqualFold(f.Name, "Connection"),
			strings.EqualFold(f.Name, "Transfer-Encoding"),
			strings.EqualFold(f.Name, "Upgrade"):
			continue
		case strings.EqualFold(f.Name, "Content-Length"):
			if n, err := strconv.ParseInt(strings.TrimSpace(f.Value), 10, 64); err == nil && n >= 0 && length < 0 {
				length = n
			}
			continue
		}
		user = append(user, f)
	}

	var frame framing
	switch {
	case upgrade != "" || status.bodyless():
		frame = frameNone
	case version.AtLeast(1, 1) && (length < 0 || length >= r.chunkedThreshold()):
		frame = frameChunked
	case length >= 0:
		frame = frameIdentity
	default:
		frame = frameUntilClose
	}

	keepAlive := persistent && frame != frameUntilClose && upgrade == ""

	if err := http1.WriteStatusLine(w, version.Major, version.Minor, int(status), status.ReasonPhrase()); err != nil {
		return false, err
	}
	if !hasField(user, "Server") {
		if err := http1.WriteHeaderLine(w, "Server", serverName); err != nil {
			return false, err
		}
	}
	if !hasField(user, "Date") {
		if err := http1.WriteHeaderLine(w, "Date", time.Now().UTC().Format(imfFixdate)); err != nil {
			return false, err
		}
	}
	for _, f := range user {
		if err := http1.WriteHeaderLine(w, f.Name, f.Value); err != nil {
			return false, err
		}
	}
	switch frame {
	case frameChunked:
		if err := http1.WriteHeaderLine(w, "Transfer-Encoding", "chunked"); err != nil {
			return false, err
		}
	case frameIdentity:
		if err := http1.WriteHeaderLine(w, "Content-Length", strconv.FormatInt(length, 10)); err != nil {
			return false, err
		}
	}
	if upgrade != "" {
		if err := http1.WriteHeaderLine(w, "Upgrade", upgrade); err != nil {
			return false, err
		}
		if err := http1.WriteHeaderLine(w, "Connection", "upgrade"); err != nil {
			return false, err
		}
	} else if keepAlive {
		if err := http1.WriteHeaderLine(w, "Connection", "keep-alive"); err != nil {
			return false, err
		}
	} else {
		if err := http1.WriteHeaderLine(w, "Connection", "close"); err != nil {
			return false, err
		}
	}
	if err := http1.EndHeaders(w); err != nil {
		return false, err
	}

	if frame == frameNone || method == MethodHead {
		return keepAlive, nil
	}

	switch frame {
	case frameChunked:
		cw := http1.NewChunkedWriter(w)
		if _, err := io.Copy(cw, body); err != nil {
			return false, err
		}
		if err := cw.Close(); err != nil {
			return false, err
		}
	case frameIdentity:
		if length > 0 {
			if _, err := io.CopyN(w, body, length); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return false, err
			}
		}
	case frameUntilClose:
		if _, err := io.Copy(w, body); err != nil {
			return false, err
		}
	}
	return keepAlive, nil
}

func hasField(fields []Field, name string) bool {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}
