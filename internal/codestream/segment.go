package codestream

import "encoding/binary"

// segment is a marker segment buffered by the extraction pass. data holds
// the segment body including its 2-byte length field.
type segment struct {
	marker Marker
	index  int // occurrence of marker within its header
	data   []byte
}

// segments is an ordered list of buffered marker segments.
type segments []segment

func (ss segments) count(m Marker) int {
	n := 0
	for _, s := range ss {
		if s.marker == m {
			n++
		}
	}
	return n
}

func (ss segments) each(m Marker, fn func(s segment) error) error {
	for _, s := range ss {
		if s.marker != m {
			continue
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

// segReader decodes the fields of one marker segment. The first read past
// the end of the segment sets a sticky error wrapping ErrCorrupted and
// every later read returns zero.
type segReader struct {
	m    Marker
	data []byte
	pos  int
	err  error
}

func newSegReader(s segment) *segReader {
	return &segReader{m: s.marker, data: s.data}
}

func (r *segReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = Corruptf("%s marker segment: read past its declared length %d", r.m, len(r.data))
		return false
	}
	return true
}

func (r *segReader) u8() int {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return int(v)
}

func (r *segReader) u16() int {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return int(v)
}

func (r *segReader) u32() int64 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return int64(v)
}

// comp reads a component index, 1 byte when there are fewer than 257
// components and 2 bytes otherwise.
func (r *segReader) comp(nComps int) int {
	if nComps < 257 {
		return r.u8()
	}
	return r.u16()
}

func (r *segReader) rest() []byte {
	if r.err != nil {
		return nil
	}
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

func (r *segReader) remaining() int { return len(r.data) - r.pos }
