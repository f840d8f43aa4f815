package bufioutil

import (
	"bufio"
	"io"
)

// BufferedSeeker is a buffered reader that can also seek. Seeks that land
// inside the buffered window are served without touching the underlying
// reader.
type BufferedSeeker struct {
	rs io.ReadSeeker
	br *bufio.Reader
}

func NewBufferedSeeker(rs io.ReadSeeker, size int) *BufferedSeeker {
	return &BufferedSeeker{
		rs: rs,
		br: bufio.NewReaderSize(rs, size),
	}
}

func (b *BufferedSeeker) Read(p []byte) (int, error) {
	return b.br.Read(p)
}

func (b *BufferedSeeker) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		if offset >= 0 && offset <= int64(b.br.Buffered()) {
			if _, err := b.br.Discard(int(offset)); err != nil {
				return 0, err
			}
			return b.position()
		}

		offset -= int64(b.br.Buffered())
	}

	n, err := b.rs.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	b.br.Reset(b.rs)
	return n, nil
}

// position reports the logical read position, accounting for buffered bytes.
func (b *BufferedSeeker) position() (int64, error) {
	n, err := b.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return n - int64(b.br.Buffered()), nil
}
