package stream

import (
	"io"
	"strings"
	"testing"
)

func TestEqualReader_Limit(t *testing.T) {
	org := strings.NewReader("hello world")
	er := NewEqualReader(org, 5)
	b, err := io.ReadAll(er)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("body=%q", string(b))
	}
	rest, _ := io.ReadAll(org)
	if string(rest) != " world" {
		t.Fatalf("rest=%q", string(rest))
	}
}

func TestEqualReader_CloseDrainsRemainder(t *testing.T) {
	org := strings.NewReader("hello world")
	er := NewEqualReader(org, 5)
	var one [1]byte
	if _, err := er.Read(one[:]); err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if one[0] != 'h' {
		t.Fatalf("first byte=%q", one[0])
	}
	if err := er.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	rest, _ := io.ReadAll(org)
	if string(rest) != " world" {
		t.Fatalf("rest=%q", string(rest))
	}
}

func TestEqualReader_ShortSource(t *testing.T) {
	er := NewEqualReader(strings.NewReader("hi"), 5)
	if _, err := io.ReadAll(er); err != io.ErrUnexpectedEOF {
		t.Fatalf("err=%v, want io.ErrUnexpectedEOF", err)
	}
}
