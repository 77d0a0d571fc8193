package http1

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestChunkedReader_Decode(t *testing.T) {
	raw := "3\r\nabc\r\n2\r\nde\r\n0\r\n\r\nNEXT"
	br := bufio.NewReader(strings.NewReader(raw))
	cr := NewChunkedReader(br, 8<<10)
	b, err := io.ReadAll(cr)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if string(b) != "abcde" {
		t.Fatalf("body=%q", string(b))
	}
	rest, _ := io.ReadAll(br)
	if string(rest) != "NEXT" {
		t.Fatalf("stream position off, rest=%q", string(rest))
	}
}

func TestChunkedReader_ExtensionsAndTrailers(t *testing.T) {
	raw := "5;ext=1\r\nhello\r\n0\r\nTrailer: v\r\n\r\ntail"
	br := bufio.NewReader(strings.NewReader(raw))
	b, err := io.ReadAll(NewChunkedReader(br, 8<<10))
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("body=%q", string(b))
	}
	rest, _ := io.ReadAll(br)
	if string(rest) != "tail" {
		t.Fatalf("trailers not discarded, rest=%q", string(rest))
	}
}

func TestChunkedReader_CloseDrains(t *testing.T) {
	raw := "5\r\nhello\r\n0\r\n\r\nGET /"
	br := bufio.NewReader(strings.NewReader(raw))
	cr := NewChunkedReader(br, 8<<10)
	if err := cr.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	rest, _ := io.ReadAll(br)
	if string(rest) != "GET /" {
		t.Fatalf("rest=%q", string(rest))
	}
}

func TestChunkedReader_BadSize(t *testing.T) {
	for _, raw := range []string{"zz\r\nhello", "\r\n", "3\r\nabcXY"} {
		cr := NewChunkedReader(bufio.NewReader(strings.NewReader(raw)), 8<<10)
		if _, err := io.ReadAll(cr); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestChunkedReader_TruncatedStream(t *testing.T) {
	cr := NewChunkedReader(bufio.NewReader(strings.NewReader("5\r\nhel")), 8<<10)
	if _, err := io.ReadAll(cr); err != io.ErrUnexpectedEOF {
		t.Fatalf("err=%v, want io.ErrUnexpectedEOF", err)
	}
}

func TestChunkedWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cw := NewChunkedWriter(&buf)
	for _, part := range []string{"hello ", "wor", "ld"} {
		if _, err := io.WriteString(cw, part); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "0\r\n\r\n") {
		t.Fatalf("missing terminator: %q", buf.String())
	}

	dec, err := io.ReadAll(NewChunkedReader(bufio.NewReader(&buf), 8<<10))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(dec) != "hello world" {
		t.Fatalf("round trip=%q", string(dec))
	}
}

func TestWriteHeaderLine_Sanitizes(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHeaderLine(&buf, "X-Test", "a\r\nInjected: yes"); err != nil {
		t.Fatalf("WriteHeaderLine error: %v", err)
	}
	if got := buf.String(); got != "X-Test: aInjected: yes\r\n" {
		t.Fatalf("line=%q", got)
	}

	buf.Reset()
	if err := WriteHeaderLine(&buf, "Bad Name", "v"); err != nil {
		t.Fatalf("WriteHeaderLine error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("invalid name written: %q", buf.String())
	}
}
