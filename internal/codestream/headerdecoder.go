package codestream

import (
	"encoding/binary"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/mrjoshuak/go-j2kparse/internal/bio"
)

// HeaderDecoder reads the main header of a codestream and, on request, the
// marker segments of each tile-part header. Every header is decoded in two
// passes: the segments are first extracted and checked for legality, then
// interpreted in a fixed order regardless of their order in the stream.
type HeaderDecoder struct {
	s   *bio.Stream
	log logrus.FieldLogger

	siz      *ImageSize
	spec     *DecoderSpec
	comments []Comment
	regs     []Registration

	mainOff int64
	mainLen int64

	usesPPM       bool
	ppm           []packedFragment
	ppmChunks     [][]byte
	tilePartTiles []int // tile of every tile-part, in codestream order
	ppt           [][]packedFragment
	tilePOC       [][]ProgressionChange
}

// packedFragment is the payload of one PPM or PPT marker segment.
type packedFragment struct {
	tilePart int
	z        int
	data     []byte
}

// NewHeaderDecoder reads SOC and the main header from s. On return the
// stream is positioned on the first SOT marker.
func NewHeaderDecoder(s *bio.Stream, log logrus.FieldLogger) (*HeaderDecoder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	hd := &HeaderDecoder{s: s, log: log, mainOff: s.Pos()}
	if err := hd.readMainHeader(); err != nil {
		return nil, err
	}
	return hd, nil
}

func (hd *HeaderDecoder) readMainHeader() error {
	m, err := hd.s.ReadUint16()
	if err != nil {
		return Corruptf("reading SOC marker: %v", err)
	}
	if Marker(m) != SOC {
		return Corruptf("expected SOC marker, got 0x%04X", m)
	}

	segs, err := hd.extractMainMarkSeg()
	if err != nil {
		return err
	}
	hd.mainLen = hd.s.Pos() - hd.mainOff

	if err := hd.readFoundMainMarkSeg(segs); err != nil {
		return err
	}

	hd.spec.ROIShift.SetDefault(0)
	hd.spec.PackedHeaders.SetDefault(hd.usesPPM)
	if !hd.spec.ProgressionChanges.HasDefault() {
		hd.spec.ProgressionChanges.SetDefault(nil)
	}
	return hd.spec.checkDefaults()
}

// extractMainMarkSeg buffers the main header segments up to the first SOT
// marker, which is left unread.
func (hd *HeaderDecoder) extractMainMarkSeg() (segments, error) {
	var segs segments
	for {
		v, err := hd.s.ReadUint16()
		if err != nil {
			return nil, Corruptf("main header ends before the first tile-part: %v", err)
		}
		m := Marker(v)
		if v < 0xFF00 {
			return nil, Corruptf("expected a marker in main header, got 0x%04X", v)
		}
		if len(segs) == 0 && m != SIZ {
			return nil, Corruptf("first marker segment of main header is %s, want SIZ", m)
		}

		switch m {
		case SOT:
			if err := hd.s.SeekTo(hd.s.Pos() - 2); err != nil {
				return nil, err
			}
			if segs.count(COD) == 0 {
				return nil, Corruptf("main header has no COD marker segment")
			}
			if segs.count(QCD) == 0 {
				return nil, Corruptf("main header has no QCD marker segment")
			}
			return segs, nil
		case SIZ, COD, QCD, TLM, PLM, POC, CRG:
			if segs.count(m) > 0 {
				return nil, Corruptf("more than one %s marker segment in main header", m)
			}
		case COC, QCC, RGN, COM, PPM:
		case SOC, SOD, EOC, PLT, PPT, SOP, EPH:
			return nil, Corruptf("%s marker found in main header", m)
		default:
			if err := hd.skipUnknown(m); err != nil {
				return nil, Corruptf("skipping %s in main header: %v", m, err)
			}
			continue
		}

		seg, err := hd.readSegment(m, segs.count(m))
		if err != nil {
			return nil, Corruptf("reading %s marker segment: %v", m, err)
		}
		segs = append(segs, seg)
	}
}

// readFoundMainMarkSeg interprets the main header segments.
func (hd *HeaderDecoder) readFoundMainMarkSeg(segs segments) error {
	order := []struct {
		m  Marker
		fn func(segment) error
	}{
		{SIZ, hd.readSIZ},
		{COM, hd.readCOM},
		{CRG, hd.readCRG},
		{COD, func(s segment) error { return hd.readCOD(s, -1) }},
		{COC, func(s segment) error { return hd.readCOC(s, -1) }},
		{RGN, func(s segment) error { return hd.readRGN(s, -1) }},
		{QCD, func(s segment) error { return hd.readQCD(s, -1) }},
		{QCC, func(s segment) error { return hd.readQCC(s, -1) }},
		{POC, func(s segment) error { return hd.readPOC(s, -1) }},
		{PPM, hd.readPPM},
	}
	for _, o := range order {
		if err := segs.each(o.m, o.fn); err != nil {
			return err
		}
	}
	if hd.usesPPM {
		return hd.splitPPM()
	}
	return nil
}

// ReadTilePartHeader reads the marker segments following the SOT segment
// of tile-part tilePart of tile, up to and including SOD. An end of stream
// is reported as ErrTruncated.
func (hd *HeaderDecoder) ReadTilePartHeader(tile, tilePart int) error {
	segs, err := hd.extractTilePartMarkSeg(tile, tilePart)
	if err != nil {
		return err
	}
	return hd.readFoundTilePartMarkSeg(segs, tile, tilePart)
}

func (hd *HeaderDecoder) extractTilePartMarkSeg(tile, tilePart int) (segments, error) {
	var segs segments
	for {
		v, err := hd.s.ReadUint16()
		if err != nil {
			return nil, Truncated(err)
		}
		m := Marker(v)
		if v < 0xFF00 {
			return nil, Corruptf("tile %d part %d: expected a marker, got 0x%04X", tile, tilePart, v)
		}

		switch m {
		case SOD:
			return segs, nil
		case SOC, SIZ, SOT, TLM, PLM, PPM, CRG, EOC, SOP, EPH:
			return nil, Corruptf("tile %d part %d: %s marker found in tile-part header", tile, tilePart, m)
		case COD, QCD, POC:
			if segs.count(m) > 0 {
				return nil, Corruptf("tile %d part %d: more than one %s marker segment", tile, tilePart, m)
			}
		case PPT:
			if hd.usesPPM {
				return nil, Corruptf("tile %d part %d: PPT marker segment in a codestream using PPM", tile, tilePart)
			}
		case COC, QCC, RGN, COM, PLT:
		default:
			if err := hd.skipUnknown(m); err != nil {
				return nil, Truncated(err)
			}
			continue
		}

		seg, err := hd.readSegment(m, segs.count(m))
		if err != nil {
			return nil, Truncated(err)
		}
		segs = append(segs, seg)
	}
}

func (hd *HeaderDecoder) readFoundTilePartMarkSeg(segs segments, tile, tilePart int) error {
	order := []struct {
		m  Marker
		fn func(segment) error
	}{
		{COD, func(s segment) error { return hd.readCOD(s, tile) }},
		{COC, func(s segment) error { return hd.readCOC(s, tile) }},
		{RGN, func(s segment) error { return hd.readRGN(s, tile) }},
		{QCD, func(s segment) error { return hd.readQCD(s, tile) }},
		{QCC, func(s segment) error { return hd.readQCC(s, tile) }},
		{POC, func(s segment) error { return hd.readPOC(s, tile) }},
		{PPT, func(s segment) error { return hd.readPPT(s, tile, tilePart) }},
		{COM, hd.readCOM},
	}
	for _, o := range order {
		if err := segs.each(o.m, o.fn); err != nil {
			return err
		}
	}
	return nil
}

// readSegment buffers the segment of marker m, whose code has been read.
func (hd *HeaderDecoder) readSegment(m Marker, index int) (segment, error) {
	off := hd.s.Pos() - 2
	l, err := hd.s.ReadUint16()
	if err != nil {
		return segment{}, err
	}
	if l < 2 {
		return segment{}, Corruptf("%s marker segment length %d", m, l)
	}
	data := make([]byte, l)
	binary.BigEndian.PutUint16(data, l)
	if err := hd.s.ReadFull(data[2:]); err != nil {
		return segment{}, err
	}
	hd.log.WithFields(logrus.Fields{
		"marker": m.String(),
		"offset": off,
		"length": l,
	}).Debug("extracted marker segment")
	return segment{marker: m, index: index, data: data}, nil
}

func (hd *HeaderDecoder) skipUnknown(m Marker) error {
	if !m.HasLength() {
		hd.log.WithFields(logrus.Fields{
			"marker": m.String(),
			"offset": hd.s.Pos() - 2,
		}).Warn("skipping unrecognized marker")
		return nil
	}
	l, err := hd.s.ReadUint16()
	if err != nil {
		return err
	}
	hd.log.WithFields(logrus.Fields{
		"marker": m.String(),
		"offset": hd.s.Pos() - 4,
	}).Warn("skipping unrecognized marker segment")
	if l < 2 {
		return Corruptf("%s marker segment length %d", m, l)
	}
	return hd.s.Skip(int64(l) - 2)
}

// checkLength reports a read error of r, or warns when the declared
// segment length exceeds what was decoded.
func (hd *HeaderDecoder) checkLength(r *segReader) error {
	if r.err != nil {
		return r.err
	}
	if n := r.remaining(); n > 0 {
		hd.log.WithFields(logrus.Fields{
			"marker": r.m.String(),
			"length": len(r.data),
			"unread": n,
		}).Warn("marker segment length larger than its content")
	}
	return nil
}

// splitPPM cuts the concatenated PPM payloads into one Nppm-prefixed chunk
// per tile-part.
func (hd *HeaderDecoder) splitPPM() error {
	sort.SliceStable(hd.ppm, func(i, j int) bool { return hd.ppm[i].z < hd.ppm[j].z })
	var all []byte
	for _, f := range hd.ppm {
		all = append(all, f.data...)
	}
	hd.ppmChunks = hd.ppmChunks[:0]
	for pos := 0; pos < len(all); {
		if pos+4 > len(all) {
			return Corruptf("PPM: truncated Nppm field at offset %d", pos)
		}
		n := int(binary.BigEndian.Uint32(all[pos:]))
		pos += 4
		if n < 0 || n > len(all)-pos {
			return Corruptf("PPM: Nppm %d exceeds the packed header data", n)
		}
		hd.ppmChunks = append(hd.ppmChunks, all[pos:pos+n])
		pos += n
	}
	return nil
}

// SetTileOfTilePart records that the next tile-part in codestream order
// belongs to tile. It must be called once per tile-part, in order.
func (hd *HeaderDecoder) SetTileOfTilePart(tile int) {
	hd.tilePartTiles = append(hd.tilePartTiles, tile)
}

// PackedPacketHeaders returns the packed packet headers of tile, from the
// PPM chunks of its tile-parts or from its PPT segments.
func (hd *HeaderDecoder) PackedPacketHeaders(tile int) ([]byte, error) {
	if hd.usesPPM {
		var out []byte
		for i, t := range hd.tilePartTiles {
			if t != tile {
				continue
			}
			if i >= len(hd.ppmChunks) {
				return nil, Corruptf("PPM: no packed headers for tile-part %d", i)
			}
			out = append(out, hd.ppmChunks[i]...)
		}
		return out, nil
	}
	frags := hd.ppt[tile]
	if len(frags) == 0 {
		return nil, Corruptf("tile %d uses packed packet headers but has no PPT marker segment", tile)
	}
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].tilePart != frags[j].tilePart {
			return frags[i].tilePart < frags[j].tilePart
		}
		return frags[i].z < frags[j].z
	})
	var out []byte
	for _, f := range frags {
		out = append(out, f.data...)
	}
	return out, nil
}

// SIZ returns the decoded SIZ marker segment.
func (hd *HeaderDecoder) SIZ() *ImageSize { return hd.siz }

// Spec returns the decoder specification.
func (hd *HeaderDecoder) Spec() *DecoderSpec { return hd.spec }

// Comments returns the COM marker segments read so far.
func (hd *HeaderDecoder) Comments() []Comment { return hd.comments }

// Registrations returns the CRG component offsets, or nil.
func (hd *HeaderDecoder) Registrations() []Registration { return hd.regs }

// MainHeaderLength returns the length of the main header, SOC included.
func (hd *HeaderDecoder) MainHeaderLength() int64 { return hd.mainLen }

// UsesPPM reports whether the main header carries PPM marker segments.
func (hd *HeaderDecoder) UsesPPM() bool { return hd.usesPPM }

// Logger returns the logger used for warnings.
func (hd *HeaderDecoder) Logger() logrus.FieldLogger { return hd.log }
