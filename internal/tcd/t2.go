package tcd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mrjoshuak/go-j2kparse/internal/bio"
	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
	"github.com/mrjoshuak/go-j2kparse/internal/imgdata"
)

const (
	initialLblock = 3
	maxMSBSkipped = 74
	maxLengthBits = 32
)

// PacketDecoder reads the packets of one tile at a time: SOP markers,
// packet headers and the position of packet bodies. Headers are read
// inline from the codestream or from the tile's packed packet headers.
type PacketDecoder struct {
	spec  *codestream.DecoderSpec
	hd    *codestream.HeaderDecoder
	s     *bio.Stream
	trunc bool
	log   logrus.FieldLogger

	tile   *Tile
	blocks *CodeBlocks
	precs  map[precKey]*precinct
	pktIdx int

	bits *bio.PacketReader
	pph  *bytes.Reader // nil when headers are inline

	// code-blocks included in the packet being read
	included []BlockKey
	hdrLen   int64
}

// precinct holds the header decoding state of one precinct.
type precinct struct {
	bands []precinctBand
}

type precinctBand struct {
	s              int
	band           *Band
	n0, m0, n1, m1 int
	incl, zbp      *TagTree
	lblock         []int
}

// NewPacketDecoder creates a packet decoder reading from s. In truncation
// mode every byte read is charged to the tile's budget.
func NewPacketDecoder(spec *codestream.DecoderSpec, hd *codestream.HeaderDecoder, s *bio.Stream, trunc bool, log logrus.FieldLogger) *PacketDecoder {
	return &PacketDecoder{
		spec:  spec,
		hd:    hd,
		s:     s,
		trunc: trunc,
		log:   log,
		bits:  bio.NewPacketReader(s),
	}
}

// Restart prepares the decoder for tile t and returns the empty set of
// code-block records that packet headers will fill.
func (d *PacketDecoder) Restart(t *Tile) (*CodeBlocks, error) {
	d.tile = t
	d.blocks = NewCodeBlocks()
	d.precs = make(map[precKey]*precinct)
	d.pktIdx = 0
	d.included = d.included[:0]
	d.pph = nil
	if t.PackedHeaders {
		data, err := d.hd.PackedPacketHeaders(t.Index)
		if err != nil {
			return nil, err
		}
		d.pph = bytes.NewReader(data)
		d.bits.Reset(d.pph)
	} else {
		d.bits.Reset(d.s)
	}
	return d.blocks, nil
}

// Tile returns the tile being decoded.
func (d *PacketDecoder) Tile() *Tile { return d.tile }

// PacketIndex returns the index of the next packet header.
func (d *PacketDecoder) PacketIndex() int { return d.pktIdx }

// NumPrecincts returns the number of precincts of resolution r of
// component c.
func (d *PacketDecoder) NumPrecincts(c, r int) int {
	return d.tile.Components[c].Resolutions[r].NumPrecincts()
}

// PrecinctGrid returns the reference-grid precinct lattice of resolution r
// of component c.
func (d *PacketDecoder) PrecinctGrid(c, r int) (start, end, inc imgdata.Coord) {
	return d.tile.PrecinctGrid(c, r)
}

// ComponentGrid returns the finest precinct lattice of component c.
func (d *PacketDecoder) ComponentGrid(c int) (start, end, inc imgdata.Coord) {
	return d.tile.ComponentGrid(c)
}

// precinct returns the decoding state of precinct p, building it on first
// use.
func (d *PacketDecoder) precinct(c, r, p int) *precinct {
	k := precKey{c, r, p}
	if pr, ok := d.precs[k]; ok {
		return pr
	}
	res := d.tile.Components[c].Resolutions[r]
	pr := &precinct{}
	for _, b := range res.Bands {
		n0, m0, n1, m1 := res.PrecinctBlocks(b, p)
		pb := precinctBand{s: b.Type, band: b, n0: n0, m0: m0, n1: n1, m1: m1}
		if n1 > n0 && m1 > m0 {
			pb.incl = NewTagTree(n1-n0, m1-m0)
			pb.zbp = NewTagTree(n1-n0, m1-m0)
			pb.lblock = make([]int, (n1-n0)*(m1-m0))
		}
		pr.bands = append(pr.bands, pb)
	}
	d.precs[k] = pr
	return pr
}

// ReadSOP reads the SOP marker segment in front of packet p of resolution
// r, component c, if the tile uses SOP markers and one is present. It
// returns true when the rate or the end of the codestream is reached.
func (d *PacketDecoder) ReadSOP(b *RateBudget, p, c, r int) (bool, error) {
	if !d.tile.SOP || p >= d.NumPrecincts(c, r) {
		return false, nil
	}
	m, err := d.s.PeekUint16()
	if err != nil {
		return true, codestream.Truncated(err)
	}
	if codestream.Marker(m) != codestream.SOP {
		return false, nil
	}
	if d.trunc && !b.Take(d.tile.Index, codestream.SOPLength) {
		return true, nil
	}
	var buf [codestream.SOPLength]byte
	if err := d.s.ReadFull(buf[:]); err != nil {
		return true, codestream.Truncated(err)
	}
	if l := binary.BigEndian.Uint16(buf[2:]); l != 4 {
		return false, codestream.Corruptf("SOP length %d", l)
	}
	// the header of this packet is not read yet, inline or packed
	if n := int(binary.BigEndian.Uint16(buf[4:])); n != d.pktIdx&0xFFFF {
		return false, codestream.Corruptf("SOP sequence number %d, expected %d", n, d.pktIdx&0xFFFF)
	}
	return false, nil
}

// ReadHeader reads the header of packet (l, r, c, p) and records in the
// code-block records which code-blocks contribute how many passes and
// bytes. It returns true when the rate or the end of the codestream is
// reached; the contributions of the packet are then dropped.
func (d *PacketDecoder) ReadHeader(l, r, c, p int, b *RateBudget) (bool, error) {
	start := d.s.Pos()
	d.included = d.included[:0]
	d.hdrLen = 0
	if p >= d.NumPrecincts(c, r) {
		return false, nil
	}
	pphLeft := 0
	if d.pph != nil {
		pphLeft = d.pph.Len()
	}

	err := d.readHeaderBits(l, r, c, p)
	if err == nil {
		err = d.bits.Sync()
	}
	if err == nil && d.tile.EPH {
		err = d.readEPH()
	}
	if err != nil {
		if !codestream.IsEOF(err) {
			return false, err
		}
		d.dropIncluded(l)
		return true, codestream.Truncated(fmt.Errorf("packet header (l=%d r=%d c=%d p=%d): %w", l, r, c, p, err))
	}
	d.pktIdx++
	if d.pph != nil {
		d.hdrLen = int64(pphLeft - d.pph.Len())
	} else {
		d.hdrLen = d.s.Pos() - start
	}

	if d.trunc && d.pph == nil && !b.Take(d.tile.Index, d.hdrLen) {
		b.Tile[d.tile.Index] = 0
		d.dropIncluded(l)
		return true, nil
	}
	return false, nil
}

func (d *PacketDecoder) readHeaderBits(l, r, c, p int) error {
	bit, err := d.bits.ReadBit()
	if err != nil || bit == 0 {
		return err
	}
	opts := d.tile.Components[c].Options
	pr := d.precinct(c, r, p)
	for i := range pr.bands {
		pb := &pr.bands[i]
		if pb.incl == nil {
			continue
		}
		w := pb.n1 - pb.n0
		for m := pb.m0; m < pb.m1; m++ {
			for n := pb.n0; n < pb.n1; n++ {
				k := BlockKey{C: c, R: r, S: pb.s, M: m, N: n}
				if err := d.readBlock(pb, k, (m-pb.m0)*w+(n-pb.n0), l, opts); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// readBlock reads the header fields of one code-block.
func (d *PacketDecoder) readBlock(pb *precinctBand, k BlockKey, i, l int, opts uint8) error {
	m, n := k.M-pb.m0, k.N-pb.n0
	cb := d.blocks.Get(k)
	if cb == nil {
		v, err := pb.incl.Update(m, n, l+1, d.bits)
		if err != nil || v > l {
			return err
		}
		skipped := 1
		for {
			v, err := pb.zbp.Update(m, n, skipped, d.bits)
			if err != nil {
				return err
			}
			if v < skipped {
				break
			}
			if skipped++; skipped > maxMSBSkipped {
				return codestream.Corruptf("code-block %v: more than %d skipped bit-planes", k, maxMSBSkipped)
			}
		}
		cb = newCBlkInfo(d.tile.Layers)
		cb.ULX, cb.ULY, cb.W, cb.H = pb.band.BlockRect(k.M, k.N)
		cb.MSBSkipped = skipped - 1
		d.blocks.set(k, cb)
		pb.lblock[i] = initialLblock
	} else {
		bit, err := d.bits.ReadBit()
		if err != nil || bit == 0 {
			return err
		}
	}
	d.included = append(d.included, k)

	passes, err := d.readPassCount()
	if err != nil {
		return err
	}
	for {
		bit, err := d.bits.ReadBit()
		if err != nil {
			return err
		}
		if bit == 0 {
			break
		}
		pb.lblock[i]++
	}

	counts := SplitPasses(opts, cb.TotalPasses, passes)
	lens := make([]int, len(counts))
	total := 0
	for j, np := range counts {
		nbits := pb.lblock[i] + log2(np)
		if nbits > maxLengthBits {
			return codestream.Corruptf("code-block %v: %d-bit length field", k, nbits)
		}
		v, err := d.bits.ReadBits(nbits)
		if err != nil {
			return err
		}
		lens[j] = v
		total += v
	}

	cb.Len[l] = total
	cb.Passes[l] = passes
	cb.PktIdx[l] = d.pktIdx
	if len(lens) > 1 {
		cb.SegLen[l] = lens
	}
	cb.TotalPasses += passes
	return nil
}

// readPassCount decodes the number of new coding passes (Table B.4).
func (d *PacketDecoder) readPassCount() (int, error) {
	bit, err := d.bits.ReadBit()
	if err != nil || bit == 0 {
		return 1, err
	}
	if bit, err = d.bits.ReadBit(); err != nil || bit == 0 {
		return 2, err
	}
	v, err := d.bits.ReadBits(2)
	if err != nil || v < 3 {
		return 3 + v, err
	}
	if v, err = d.bits.ReadBits(5); err != nil || v < 31 {
		return 6 + v, err
	}
	v, err = d.bits.ReadBits(7)
	return 37 + v, err
}

func (d *PacketDecoder) readEPH() error {
	var src io.ByteReader = d.s
	if d.pph != nil {
		src = d.pph
	}
	hi, err := src.ReadByte()
	if err != nil {
		return err
	}
	lo, err := src.ReadByte()
	if err != nil {
		return err
	}
	if m := codestream.Marker(uint16(hi)<<8 | uint16(lo)); m != codestream.EPH {
		return codestream.Corruptf("expected EPH marker, found %v", m)
	}
	return nil
}

// HeaderLength returns the length of the last packet header read, inline
// or from the packed packet headers.
func (d *PacketDecoder) HeaderLength() int64 { return d.hdrLen }

// dropIncluded removes layer l from the code-blocks of the current packet.
func (d *PacketDecoder) dropIncluded(l int) {
	for _, k := range d.included {
		d.drop(k, l)
	}
	d.included = d.included[:0]
}

func (d *PacketDecoder) drop(k BlockKey, l int) {
	cb := d.blocks.Get(k)
	if cb == nil {
		return
	}
	cb.DropLayer(l)
	if cb.TotalPasses == 0 {
		d.blocks.remove(k)
	}
}

// ReadBody assigns codestream offsets to the contributions announced by
// the last packet header and moves past the packet body. In truncation
// mode a contribution exceeding the tile budget, and every one after it,
// is dropped and true is returned.
func (d *PacketDecoder) ReadBody(l, r, c, p int, b *RateBudget) (bool, error) {
	off := d.s.Pos()
	stop := false
	for _, k := range d.included {
		cb := d.blocks.Get(k)
		if cb == nil {
			continue
		}
		n := int64(cb.Len[l])
		if !stop && d.trunc && n > b.Tile[d.tile.Index] {
			stop = true
		}
		if !stop && off+n > d.s.Len() {
			d.log.WithFields(logrus.Fields{
				"tile": d.tile.Index, "layer": l, "res": r, "comp": c, "precinct": p,
			}).Debug("packet body runs past the end of the codestream")
			for _, k := range d.included {
				if cb := d.blocks.Get(k); cb != nil && cb.Off[l] == 0 {
					d.drop(k, l)
				}
			}
			_ = d.s.SeekTo(d.s.Len())
			return true, codestream.Truncated(io.ErrUnexpectedEOF)
		}
		if stop {
			d.drop(k, l)
			continue
		}
		cb.Off[l] = off
		off += n
		if d.trunc {
			b.Tile[d.tile.Index] -= n
		}
	}
	d.included = d.included[:0]
	if err := d.s.SeekTo(off); err != nil {
		return true, codestream.Truncated(err)
	}
	return stop, nil
}
