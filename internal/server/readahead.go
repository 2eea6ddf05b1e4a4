package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
)

// readAheadSize is the largest upstream read behind one content response.
// http.ServeContent copies in 32 KiB steps; without read-ahead each step
// would be its own range request.
const readAheadSize = 4 << 20

// blockReader serves small sequential ReadAt calls from one buffered
// upstream read. Reads never extend past end unless the caller asks for
// bytes beyond it. Not safe for concurrent use.
type blockReader struct {
	r    io.ReaderAt
	size int64
	end  int64

	buf     []byte
	start   int64
	n       int
	tailErr error // returned once a read reaches start+n
}

func newBlockReader(r io.ReaderAt, size, end int64, blockSize int) *blockReader {
	if end <= 0 || end > size {
		end = size
	}

	return &blockReader{r: r, size: size, end: end, buf: make([]byte, 0, blockSize)}
}

func (b *blockReader) ReadAt(p []byte, off int64) (int, error) {
	total := 0

	for total < len(p) {
		if off >= b.size {
			return total, io.EOF
		}

		if b.n == 0 || off < b.start || off >= b.start+int64(b.n) {
			if b.n > 0 && off == b.start+int64(b.n) && b.tailErr != nil {
				return total, b.tailErr
			}

			if err := b.fill(off); err != nil {
				return total, err
			}
		}

		c := copy(p[total:], b.buf[off-b.start:b.n])
		total += c
		off += int64(c)
	}

	return total, nil
}

func (b *blockReader) fill(off int64) error {
	limit := b.end
	if off >= limit {
		limit = b.size
	}

	want := min(int64(cap(b.buf)), limit-off)

	n, err := b.r.ReadAt(b.buf[:want], off)
	b.start, b.n, b.tailErr = off, n, err

	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}

		return err
	}

	return nil
}

// rangeEnd returns the exclusive end of a request's single byte range, or
// size when there is no range, a suffix or open range, or several ranges.
func rangeEnd(r *http.Request, size int64) int64 {
	spec, ok := strings.CutPrefix(r.Header.Get("Range"), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return size
	}

	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok || first == "" || last == "" {
		return size
	}

	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil || n < 0 || n+1 > size {
		return size
	}

	return n + 1
}
