package http1

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

var errChunkFormat = errors.New("http1: invalid chunk format")

// chunkState is where the decoder stands inside the chunked framing.
type chunkState int

const (
	chunkSize    chunkState = iota // at a "<hex>[;ext]\r\n" size line
	chunkData                      // inside a chunk's payload
	chunkEnd                       // at the CRLF that closes a chunk
	chunkTrailer                   // past the 0-chunk, discarding trailers
	chunkDone
)

// chunkedReader decodes Transfer-Encoding: chunked into the plain byte
// stream. Trailers after the final 0-chunk are read and discarded.
type chunkedReader struct {
	br      *bufio.Reader
	state   chunkState
	remain  int64
	maxLine int
}

// NewChunkedReader returns a reader that yields the de-chunked byte stream.
// Close drains the remaining chunks so the connection can be reused.
func NewChunkedReader(br *bufio.Reader, maxLine int) io.ReadCloser {
	return &chunkedReader{br: br, maxLine: maxLine}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	for {
		switch c.state {
		case chunkSize:
			size, err := c.readSize()
			if err != nil {
				return 0, err
			}
			if size == 0 {
				c.state = chunkTrailer
				continue
			}
			c.remain = size
			c.state = chunkData

		case chunkData:
			if len(p) == 0 {
				return 0, nil
			}
			n := len(p)
			if int64(n) > c.remain {
				n = int(c.remain)
			}
			read, err := c.br.Read(p[:n])
			c.remain -= int64(read)
			if c.remain == 0 {
				c.state = chunkEnd
			}
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return read, err
			}
			if read > 0 {
				return read, nil
			}

		case chunkEnd:
			var crlf [2]byte
			if _, err := io.ReadFull(c.br, crlf[:]); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return 0, err
			}
			if crlf[0] != '\r' || crlf[1] != '\n' {
				return 0, errChunkFormat
			}
			c.state = chunkSize

		case chunkTrailer:
			line, err := c.readLine()
			if err != nil {
				return 0, err
			}
			if len(line) == 0 {
				c.state = chunkDone
			}

		case chunkDone:
			return 0, io.EOF
		}
	}
}

// Close consumes whatever is left of the framing so the stream is
// positioned at the byte after the final trailer.
func (c *chunkedReader) Close() error {
	if c.state == chunkDone {
		return nil
	}
	_, err := io.Copy(io.Discard, c)
	return err
}

func (c *chunkedReader) readSize() (int64, error) {
	line, err := c.readLine()
	if err != nil {
		return 0, err
	}
	// chunk extensions ("<hex>;<ext>") are allowed and ignored
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return 0, errChunkFormat
	}
	n, err := strconv.ParseUint(string(line), 16, 63)
	if err != nil {
		return 0, errChunkFormat
	}
	return int64(n), nil
}

// readLine returns one size or trailer line without its CRLF. Lines that
// overflow the buffered reader or the configured bound are oversized
// framing, not data.
func (c *chunkedReader) readLine() ([]byte, error) {
	line, err := c.br.ReadSlice('\n')
	switch {
	case err == bufio.ErrBufferFull:
		return nil, ErrHeaderTooLarge
	case err == io.EOF:
		return nil, io.ErrUnexpectedEOF
	case err != nil:
		return nil, err
	}
	if c.maxLine > 0 && len(line) > c.maxLine {
		return nil, ErrHeaderTooLarge
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), nil
}

// ChunkedWriter encodes writes as HTTP/1.1 chunks. Close writes the
// terminating zero-length chunk; it does not close the underlying writer.
type ChunkedWriter struct {
	w      io.Writer
	closed bool
}

func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w}
}

func (c *ChunkedWriter) Write(p []byte) (int, error) {
	if c.closed {
		return 0, errors.New("http1: write on closed chunked writer")
	}
	if len(p) == 0 {
		return 0, nil
	}
	head := strconv.AppendUint(nil, uint64(len(p)), 16)
	head = append(head, '\r', '\n')
	if _, err := c.w.Write(head); err != nil {
		return 0, err
	}
	if _, err := c.w.Write(p); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(c.w, "\r\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *ChunkedWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	_, err := io.WriteString(c.w, "0\r\n\r\n")
	return err
}
