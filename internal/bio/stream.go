package bio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const streamBufSize = 4096

// Stream is a random-access big-endian byte cursor over a codestream.
// It is not safe for concurrent use; every reader of the codestream shares
// one Stream and its position.
type Stream struct {
	src    io.ReadSeeker
	length int64
	pos    int64

	buf      []byte
	bufStart int64
}

// NewStream wraps src. The stream starts at the current position of src
// and its length is measured once.
func NewStream(src io.ReadSeeker) (*Stream, error) {
	cur, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locating stream start: %w", err)
	}
	end, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("measuring stream: %w", err)
	}
	return &Stream{
		src:    src,
		length: end,
		pos:    cur,
		buf:    make([]byte, 0, streamBufSize),
	}, nil
}

// Pos returns the current offset.
func (s *Stream) Pos() int64 { return s.pos }

// Len returns the total length of the underlying source.
func (s *Stream) Len() int64 { return s.length }

// Remaining returns the number of bytes after the current offset.
func (s *Stream) Remaining() int64 { return s.length - s.pos }

// SeekTo moves the cursor to the absolute offset pos. Seeking beyond the
// end of the source fails with io.ErrUnexpectedEOF.
func (s *Stream) SeekTo(pos int64) error {
	if pos < 0 {
		return fmt.Errorf("bio: negative seek offset %d", pos)
	}
	if pos > s.length {
		return fmt.Errorf("bio: seek to %d beyond end %d: %w", pos, s.length, io.ErrUnexpectedEOF)
	}
	s.pos = pos
	return nil
}

// Skip advances the cursor by n bytes.
func (s *Stream) Skip(n int64) error {
	return s.SeekTo(s.pos + n)
}

// fill makes the byte at s.pos available in the buffer.
func (s *Stream) fill() error {
	if s.pos >= s.length {
		return io.ErrUnexpectedEOF
	}
	if s.pos >= s.bufStart && s.pos < s.bufStart+int64(len(s.buf)) {
		return nil
	}
	if _, err := s.src.Seek(s.pos, io.SeekStart); err != nil {
		return err
	}
	n, err := io.ReadFull(s.src, s.buf[:cap(s.buf)])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	s.buf = s.buf[:n]
	s.bufStart = s.pos
	if n == 0 {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// ReadByte reads one byte.
func (s *Stream) ReadByte() (byte, error) {
	if err := s.fill(); err != nil {
		return 0, err
	}
	b := s.buf[s.pos-s.bufStart]
	s.pos++
	return b, nil
}

// ReadFull reads exactly len(p) bytes. A short read leaves the cursor at
// the end of the source and returns io.ErrUnexpectedEOF.
func (s *Stream) ReadFull(p []byte) error {
	for len(p) > 0 {
		if err := s.fill(); err != nil {
			return err
		}
		n := copy(p, s.buf[s.pos-s.bufStart:])
		p = p[n:]
		s.pos += int64(n)
	}
	return nil
}

// ReadUint16 reads a big-endian uint16.
func (s *Stream) ReadUint16() (uint16, error) {
	var b [2]byte
	if err := s.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// ReadUint32 reads a big-endian uint32.
func (s *Stream) ReadUint32() (uint32, error) {
	var b [4]byte
	if err := s.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// PeekUint16 reads a big-endian uint16 without moving the cursor.
func (s *Stream) PeekUint16() (uint16, error) {
	pos := s.pos
	v, err := s.ReadUint16()
	s.pos = pos
	return v, err
}

// Close closes the source if it implements io.Closer.
func (s *Stream) Close() error {
	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
