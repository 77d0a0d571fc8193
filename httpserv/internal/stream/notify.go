package stream

import (
	"io"
	"sync"
)

// NotifyReader wraps a body reader and signals a one-shot channel when the
// reader is released, so the owner of the underlying stream knows it may
// resume. Close releases normally (closing, and thus draining, the inner
// reader); Abandon releases without touching the stream, for when the body
// bytes are known to never arrive.
type NotifyReader struct {
	rc   io.ReadCloser
	done chan struct{}
	once sync.Once
}

func NewNotifyReader(rc io.ReadCloser) *NotifyReader {
	return &NotifyReader{rc: rc, done: make(chan struct{})}
}

func (n *NotifyReader) Read(p []byte) (int, error) {
	return n.rc.Read(p)
}

func (n *NotifyReader) Close() error {
	var err error
	n.once.Do(func() {
		err = n.rc.Close()
		close(n.done)
	})
	return err
}

// Abandon signals release without draining the inner reader.
func (n *NotifyReader) Abandon() {
	n.once.Do(func() {
		close(n.done)
	})
}

// Done is closed once the reader has been released.
func (n *NotifyReader) Done() <-chan struct{} {
	return n.done
}
