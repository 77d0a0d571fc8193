package httpserv

import "testing"

func TestHeaderOrderAndCase(t *testing.T) {
	var h Header
	h.Add("x-foo", "a")
	h.Add("Accept", "text/html")
	h.Add("X-Foo", "b")

	if got := h.Get("X-FOO"); got != "a" {
		t.Fatalf("Get=%q, want %q", got, "a")
	}
	vv := h.Values("x-foo")
	if len(vv) != 2 || vv[0] != "a" || vv[1] != "b" {
		t.Fatalf("Values=%v", vv)
	}

	// duplicates keep their position relative to other fields
	fields := h.Fields()
	if fields[0].Name != "x-foo" || fields[1].Name != "Accept" || fields[2].Name != "X-Foo" {
		t.Fatalf("order=%v", fields)
	}

	h.Set("content-type", "text/plain")
	if got := h.Get("Content-Type"); got != "text/plain" {
		t.Fatalf("content-type=%q", got)
	}

	h.Del("x-foo")
	if h.Has("X-Foo") {
		t.Fatal("Del left a field behind")
	}
	if h.Len() != 2 {
		t.Fatalf("Len=%d", h.Len())
	}
}

func TestHeaderClone(t *testing.T) {
	var h Header
	h.Add("A", "1")
	c := h.Clone()
	c.Set("A", "2")
	if got := h.Get("A"); got != "1" {
		t.Fatalf("clone aliased the original: %q", got)
	}
}

func TestReasonPhrase(t *testing.T) {
	cases := map[StatusCode]string{
		200: "OK",
		204: "No Content",
		304: "Not Modified",
		404: "Not Found",
		417: "Expectation Failed",
		505: "HTTP Version Not Supported",
		299: "Unknown",
	}
	for code, want := range cases {
		if got := code.ReasonPhrase(); got != want {
			t.Fatalf("ReasonPhrase(%d)=%q, want %q", code, got, want)
		}
	}
}

func TestHTTPVersion(t *testing.T) {
	if HTTPVersion11.String() != "HTTP/1.1" {
		t.Fatalf("String=%q", HTTPVersion11.String())
	}
	if !HTTPVersion11.AtLeast(1, 1) || HTTPVersion10.AtLeast(1, 1) {
		t.Fatal("AtLeast comparisons wrong")
	}
	if !(HTTPVersion{2, 0}).AtLeast(1, 1) {
		t.Fatal("2.0 should be at least 1.1")
	}
}
