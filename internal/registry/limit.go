package registry

import "io"

// limitReader fails with ErrTooLarge once more than max bytes have been
// read from r.
type limitReader struct {
	r    io.Reader
	max  int64
	left int64
	over bool
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.over {
		return 0, ErrTooLarge
	}
	// Allow one byte past the limit so an exact fit still reaches EOF.
	if int64(len(p)) > l.left+1 {
		p = p[:l.left+1]
	}
	n, err := l.r.Read(p)
	if int64(n) > l.left {
		l.over = true
		return int(l.left), ErrTooLarge
	}
	l.left -= int64(n)
	return n, err
}

func (l *limitReader) exceeded() bool {
	return l.over
}

// seekLimitReader keeps the limit rewindable so the store can retry a
// spooled upload from the start.
type seekLimitReader struct {
	*limitReader
	s io.Seeker
}

func (l *seekLimitReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := l.s.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	l.left = l.max - pos
	if l.left < 0 {
		l.left = 0
	}
	l.over = false
	return pos, nil
}

// limited is the reader UploadFile hands to the store.
type limited interface {
	io.Reader
	exceeded() bool
}

func newLimitReader(r io.Reader, max int64) limited {
	lr := &limitReader{r: r, max: max, left: max}
	if s, ok := r.(io.Seeker); ok {
		return &seekLimitReader{limitReader: lr, s: s}
	}
	return lr
}
