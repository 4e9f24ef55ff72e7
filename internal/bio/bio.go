// Package bio provides byte- and bit-level I/O for JPEG 2000 codestreams.
package bio

import (
	"errors"
	"io"
)

// PacketReader reads packet header bits. A byte following 0xFF carries
// only 7 bits; its most significant bit is a stuffed zero.
type PacketReader struct {
	r     io.ByteReader
	buf   byte  // Current byte buffer
	cnt   uint8 // Number of unread bits in buf
	sawFF bool  // buf was 0xFF
}

// NewPacketReader creates a packet header reader over r.
func NewPacketReader(r io.ByteReader) *PacketReader {
	return &PacketReader{r: r}
}

// Reset discards the bit state and reads from r from now on.
func (r *PacketReader) Reset(src io.ByteReader) {
	r.r = src
	r.buf = 0
	r.cnt = 0
	r.sawFF = false
}

// ReadBit reads a single bit, handling byte stuffing.
func (r *PacketReader) ReadBit() (int, error) {
	if r.cnt == 0 {
		b, err := r.r.ReadByte()
		if err != nil {
			return 0, unexpected(err)
		}
		if r.sawFF {
			r.cnt = 7
		} else {
			r.cnt = 8
		}
		r.sawFF = b == 0xFF
		r.buf = b
	}
	r.cnt--
	return int((r.buf >> r.cnt) & 1), nil
}

// ReadBits reads n bits (0-32), most significant first.
func (r *PacketReader) ReadBits(n int) (int, error) {
	var result int
	for i := 0; i < n; i++ {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		result = (result << 1) | bit
	}
	return result, nil
}

// Sync ends the current header: unread bits are dropped and, if the last
// byte was 0xFF, the stuffing byte that follows it is consumed.
func (r *PacketReader) Sync() error {
	r.cnt = 0
	if r.sawFF {
		r.sawFF = false
		if _, err := r.r.ReadByte(); err != nil {
			return unexpected(err)
		}
	}
	return nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// PacketWriter writes packet header bits with byte stuffing.
type PacketWriter struct {
	w     io.ByteWriter
	buf   byte
	cnt   uint8
	delay bool // previous byte was 0xFF
}

// NewPacketWriter creates a packet header writer.
func NewPacketWriter(w io.ByteWriter) *PacketWriter {
	return &PacketWriter{w: w}
}

func (w *PacketWriter) capacity() uint8 {
	if w.delay {
		return 7
	}
	return 8
}

// WriteBit writes a single bit.
func (w *PacketWriter) WriteBit(bit int) error {
	w.buf = (w.buf << 1) | byte(bit&1)
	w.cnt++
	if w.cnt == w.capacity() {
		return w.flushByte()
	}
	return nil
}

// WriteBits writes the low n bits of val, most significant first.
func (w *PacketWriter) WriteBits(val, n int) error {
	for i := n; i > 0; i-- {
		if err := w.WriteBit((val >> (i - 1)) & 1); err != nil {
			return err
		}
	}
	return nil
}

func (w *PacketWriter) flushByte() error {
	err := w.w.WriteByte(w.buf)
	w.delay = w.buf == 0xFF
	w.buf = 0
	w.cnt = 0
	return err
}

// Flush pads the last byte with zeros. A final 0xFF is followed by a
// zero stuffing byte.
func (w *PacketWriter) Flush() error {
	if w.cnt > 0 {
		w.buf <<= w.capacity() - w.cnt
		if err := w.flushByte(); err != nil {
			return err
		}
	}
	if w.delay {
		w.delay = false
		return w.w.WriteByte(0)
	}
	return nil
}
