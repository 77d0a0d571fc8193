// Package httpserv is a small, embeddable HTTP/1.x server library. It
// accepts TCP (optionally wrapped, e.g. TLS) connections, parses requests,
// and hands them to the application through a single receive surface; the
// application answers each request whenever it likes and framing,
// keep-alive, and pipelining order are taken care of.
//
// Highlights
//   - One goroutine per connection from an elastic worker pool; idle
//     workers retire after a grace window.
//   - Pipelining with strict response ordering, whatever order the
//     application responds in.
//   - Identity, chunked, and close-delimited response framing chosen from
//     the HTTP version and body length; HEAD/1xx/204/304 rules applied.
//   - Expect: 100-continue handled lazily on first body read.
//   - Connection upgrade (e.g. websocket) yields the raw stream.
//
// Quick start:
//
//	s, err := httpserv.New(httpserv.Config{Addr: ":8080"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	for rq := range s.Incoming() {
//		go func(rq *httpserv.Request) {
//			_ = rq.Respond(httpserv.ResponseFromString("hello"))
//		}(rq)
//	}
package httpserv
