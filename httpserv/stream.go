package httpserv

import (
	"crypto/tls"
	"io"
	"net"
)

// StreamWrapper promotes an accepted plaintext stream, typically into an
// encrypted one. The returned stream must have the same bidirectional
// byte-stream shape; the connection task is oblivious to the difference.
type StreamWrapper func(net.Conn) (net.Conn, error)

// tlsWrapper builds the default wrapper from a *tls.Config. The handshake
// runs lazily on first I/O, inside the connection's worker.
func tlsWrapper(cfg *tls.Config) StreamWrapper {
	return func(c net.Conn) (net.Conn, error) {
		return tls.Server(c, cfg), nil
	}
}

// rawStream is the bidirectional stream yielded by Request.Upgrade. Reads
// go through the connection's buffered reader so bytes the client sent
// right after the request head are not lost; writes and Close hit the
// socket directly.
type rawStream struct {
	r io.Reader
	c net.Conn
}

func (s *rawStream) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *rawStream) Write(p []byte) (int, error) { return s.c.Write(p) }
func (s *rawStream) Close() error                { return s.c.Close() }
