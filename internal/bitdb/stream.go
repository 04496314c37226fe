package bitdb

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic opens every database stream.
const Magic = "prgacfgm"

// DefaultBatchSize is the number of buffered bytes that triggers a flush.
const DefaultBatchSize = 4096

// ErrBadMagic is returned when a stream does not start with Magic.
var ErrBadMagic = errors.New("not a bitstream database")

// ErrTruncated is returned when a stream ends before its terminator.
var ErrTruncated = errors.New("truncated bitstream database")

// Writer frames packets as a little-endian uint32 size followed by the
// encoded packet. Frames are collected into batches before they reach the
// underlying writer.
type Writer struct {
	w     io.Writer
	batch int
	buf   []byte
	err   error
}

// NewWriter writes Magic to w. A batch size below one selects
// DefaultBatchSize.
func NewWriter(w io.Writer, batch int) *Writer {
	if batch < 1 {
		batch = DefaultBatchSize
	}
	return &Writer{w: w, batch: batch, buf: append(make([]byte, 0, batch), Magic...)}
}

// Write appends one packet. The pending batch is flushed first when the
// packet would not fit.
func (w *Writer) Write(p Packet) error {
	if w.err != nil {
		return w.err
	}
	data := Marshal(p)
	if len(w.buf) > 0 && len(w.buf)+4+len(data) > w.batch {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(data)))
	w.buf = append(w.buf, data...)
	return nil
}

// Flush hands the pending batch to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if len(w.buf) == 0 {
		return nil
	}
	if _, err := w.w.Write(w.buf); err != nil {
		w.err = errors.Wrap(err, "bitdb: write batch")
		return w.err
	}
	w.buf = w.buf[:0]
	return nil
}

// Close writes the terminator and flushes. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, 0)
	return w.Flush()
}

// Reader decodes a framed stream.
type Reader struct {
	r    *bufio.Reader
	done bool
}

// NewReader checks the magic at the start of r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil || string(magic) != Magic {
		return nil, ErrBadMagic
	}
	return &Reader{r: br}, nil
}

// Next returns the next packet, or io.EOF after the terminator.
func (r *Reader) Next() (Packet, error) {
	if r.done {
		return nil, io.EOF
	}
	var size [4]byte
	if _, err := io.ReadFull(r.r, size[:]); err != nil {
		return nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(size[:])
	if n == 0 {
		r.done = true
		return nil, io.EOF
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, ErrTruncated
	}
	return Unmarshal(data)
}

// ReadAll decodes every packet of a stream.
func ReadAll(r io.Reader) ([]Packet, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var out []Packet
	for {
		p, err := rd.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
}

// Summarize counts the packets of a stream without keeping them. The header
// is nil when the stream has none.
func Summarize(r io.Reader) (*Header, Stats, error) {
	var (
		hdr *Header
		st  Stats
	)
	rd, err := NewReader(r)
	if err != nil {
		return nil, st, err
	}
	for {
		p, err := rd.Next()
		if err == io.EOF {
			return hdr, st, nil
		}
		if err != nil {
			return hdr, st, err
		}
		switch p := p.(type) {
		case *Header:
			hdr = p
		case *Block:
			st.Blocks++
		case *Placement:
			st.Placements++
		case *Edge:
			st.Edges++
		}
	}
}
