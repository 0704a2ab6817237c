package capture

import (
	"fmt"
	"io"
)

// Reader wraps a stream and reports every successful read and seek to a
// capture session inline, so captured event order exactly matches the order
// the underlying operations occur in. The wrapper adds no blocking beyond
// what the wrapped stream itself performs.
type Reader struct {
	inner   io.Reader
	session *Session
}

// NewReader wraps inner so its reads and seeks are recorded on session.
func NewReader(inner io.Reader, session *Session) *Reader {
	return &Reader{inner: inner, session: session}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.session.OnRead(n)
	}
	return n, err
}

// Seek forwards to the wrapped stream when it is seekable and records the
// reposition on success.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := r.inner.(io.Seeker)
	if !ok {
		return 0, fmt.Errorf("capture reader: wrapped stream %T is not seekable", r.inner)
	}
	pos, err := seeker.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	r.session.OnSeek(int(offset), whence)
	return pos, nil
}
