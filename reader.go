package j2kparse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mrjoshuak/go-j2kparse/internal/bio"
	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
	"github.com/mrjoshuak/go-j2kparse/internal/imgdata"
	"github.com/mrjoshuak/go-j2kparse/internal/tcd"
)

const (
	maxTilePartSize = math.MaxInt32
	eocLength       = 2
)

// tilePart locates one tile-part in the codestream.
type tilePart struct {
	start        int64 // offset of the SOT marker
	length       int64 // Psot, or the distance to EOC when Psot is 0
	headLen      int64 // SOT up to and including SOD
	firstPackOff int64 // first byte of packet data
}

// Reader parses a JPEG 2000 codestream and locates the compressed data of
// the code-blocks of one tile at a time. It implements imgdata.ImgData;
// the current tile is tile (0, 0) after Open.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	cfg Config
	log logrus.FieldLogger

	s     *bio.Stream
	hd    *codestream.HeaderDecoder
	siz   *codestream.ImageSize
	spec  *codestream.DecoderSpec
	pd    *tcd.PacketDecoder
	trunc bool

	// rate bookkeeping
	tnbytes        int64
	unlimited      bool
	budget         *tcd.RateBudget
	bodies         int64 // packet data committed during discovery (truncation mode)
	totTileLen     []int64
	totTileHeadLen []int64
	rateReached    bool
	truncated      bool

	parts     [][]tilePart
	numParts  []int // declared tile-part count per tile, 0 if unknown
	nParts    int   // tile-parts read, all tiles
	targetRes int

	info strings.Builder

	// current tile
	tx, ty   int
	tile     *tcd.Tile
	blocks   *tcd.CodeBlocks
	curTP    int
	lastByte int64
	pktHL    []int64 // header length of every packet of the tile
}

// Open reads the main header and every tile-part header of the codestream
// in rs, allocates the rate and parses the packets of the first tile.
// If rs implements io.Closer, Close closes it, as does a failing Open.
func Open(rs io.ReadSeeker, cfg Config) (*Reader, error) {
	if err := cfg.validate(); err != nil {
		if c, ok := rs.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	s, err := bio.NewStream(rs)
	if err != nil {
		if c, ok := rs.(io.Closer); ok {
			c.Close()
		}
		return nil, fmt.Errorf("opening codestream: %w", err)
	}
	r := &Reader{cfg: cfg, log: cfg.logger(), s: s, trunc: !cfg.Parsing}
	if err := r.init(); err != nil {
		s.Close()
		return nil, err
	}
	return r, nil
}

// OpenFile opens the codestream stored in the named file.
func OpenFile(name string, cfg Config) (*Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return Open(f, cfg)
}

// Close releases the underlying stream.
func (r *Reader) Close() error {
	return r.s.Close()
}

func (r *Reader) init() error {
	hd, err := codestream.NewHeaderDecoder(r.s, r.log)
	if err != nil {
		return fmt.Errorf("reading main header: %w", err)
	}
	r.hd = hd
	r.siz = hd.SIZ()
	r.spec = hd.Spec()
	r.pd = tcd.NewPacketDecoder(r.spec, hd, r.s, r.trunc, r.log)

	if r.cfg.CodestreamInfo {
		desc := hd.Describe()
		r.info.WriteString(desc)
		r.log.Info(desc)
	}

	nt := r.siz.NumTiles()
	r.parts = make([][]tilePart, nt)
	r.numParts = make([]int, nt)
	r.totTileLen = make([]int64, nt)
	r.totTileHeadLen = make([]int64, nt)

	r.resolveRate()
	r.budget = tcd.NewRateBudget(r.tnbytes, nt)
	r.budget.Accounted = r.s.Pos()
	if r.trunc && r.budget.Accounted > r.tnbytes {
		r.log.WithField("nbytes", r.tnbytes).Warn("rate too small for the main header, no tile data will be read")
	}

	if err := r.discover(); err != nil {
		return err
	}
	if !r.trunc {
		r.allocateRate()
	}
	r.budget.Backup()
	r.resolveRes()

	return r.SetTile(0, 0)
}

// resolveRate computes the byte budget from Rate or NBytes.
func (r *Reader) resolveRate() {
	switch {
	case r.cfg.NBytes >= 0:
		r.tnbytes = int64(r.cfg.NBytes)
	case r.cfg.Rate >= 0:
		area := float64(r.siz.ImgWidth()) * float64(r.siz.ImgHeight())
		r.tnbytes = int64(r.cfg.Rate * area / 8)
	default:
		r.unlimited = true
		r.tnbytes = r.s.Len()
	}
}

// resolveRes checks the requested resolution against the decomposition
// levels of the codestream.
func (r *Reader) resolveRes() {
	min := r.spec.MinDecompLevels()
	switch {
	case r.cfg.Res < 0:
		r.targetRes = min
	case r.cfg.Res > min:
		r.log.WithFields(logrus.Fields{"res": r.cfg.Res, "max": min}).
			Warn("requested resolution level not available in every tile-component, using the highest common one")
		r.targetRes = min
	default:
		r.targetRes = r.cfg.Res
	}
}

// discover reads every tile-part header, recording where tile-parts and
// their packet data lie.
func (r *Reader) discover() error {
	for {
		m, err := r.s.PeekUint16()
		if err != nil {
			r.warnTruncated(err)
			return nil
		}
		if codestream.Marker(m) != codestream.SOT {
			r.checkEOC(codestream.Marker(m))
			return nil
		}
		stop, err := r.readTilePart()
		if err != nil {
			if errors.Is(err, codestream.ErrTruncated) {
				r.warnTruncated(err)
				return nil
			}
			return err
		}
		if stop {
			r.rateReached = true
			return nil
		}
	}
}

func (r *Reader) warnTruncated(err error) {
	r.truncated = true
	r.log.WithError(err).WithField("offset", r.s.Pos()).Warn("codestream truncated")
}

// checkEOC is called with the marker following the last tile-part.
func (r *Reader) checkEOC(m codestream.Marker) {
	if m != codestream.EOC {
		r.log.WithFields(logrus.Fields{
			"offset": r.s.Pos(),
			"marker": m.String(),
		}).Warn("EOC marker not found after the last tile-part")
		return
	}
	if r.trunc && r.budget.Accounted+r.bodies+eocLength <= r.tnbytes {
		r.budget.Accounted += eocLength
	}
}

// readTilePart reads the header of the tile-part at the current position
// and moves to the next one. It returns true when the rate is reached.
func (r *Reader) readTilePart() (bool, error) {
	start := r.s.Pos()
	t, tp, psot, err := r.readTilePartHeader()
	if err != nil {
		return false, err
	}
	firstPackOff := r.s.Pos()
	headLen := firstPackOff - start

	length := psot
	if psot == 0 {
		length = r.s.Len() - start
		if r.endsWithEOC() {
			length -= 2
		}
	}
	if length < headLen {
		return false, codestream.Corruptf("tile %d part %d: length %d shorter than its header (%d)", t, tp, length, headLen)
	}
	if start+length > r.s.Len() {
		r.truncated = true
		r.log.WithFields(logrus.Fields{"tile": t, "tilepart": tp, "length": length}).
			Warn("tile-part extends past the end of the codestream")
		length = r.s.Len() - start
	}

	part := tilePart{start: start, length: length, headLen: headLen, firstPackOff: firstPackOff}
	if r.cfg.CodestreamInfo {
		line := fmt.Sprintf("tile %d part %d: offset %d, length %d, header length %d\n", t, tp, start, length, headLen)
		r.info.WriteString(line)
		r.log.Info(strings.TrimSuffix(line, "\n"))
	}

	body := length - headLen
	stop := false
	if r.trunc {
		committed := r.budget.Accounted + r.bodies
		switch {
		case committed+headLen > r.tnbytes:
			part.firstPackOff = r.s.Len()
			stop = true
		case committed+headLen+body > r.tnbytes:
			r.budget.Accounted += headLen
			avail := r.tnbytes - r.budget.Accounted - r.bodies
			r.budget.Tile[t] += avail
			r.bodies += avail
			stop = true
		default:
			r.budget.Accounted += headLen
			r.budget.Tile[t] += body
			r.bodies += body
		}
	} else {
		r.budget.Accounted += headLen
		r.totTileLen[t] += length
		r.totTileHeadLen[t] += headLen
	}
	r.parts[t] = append(r.parts[t], part)
	if stop {
		return true, nil
	}
	if err := r.s.SeekTo(start + length); err != nil {
		return false, codestream.Truncated(err)
	}
	return false, nil
}

func (r *Reader) endsWithEOC() bool {
	pos := r.s.Pos()
	defer r.s.SeekTo(pos)
	if r.s.SeekTo(r.s.Len()-2) != nil {
		return false
	}
	m, err := r.s.ReadUint16()
	return err == nil && codestream.Marker(m) == codestream.EOC
}

// readTilePartHeader reads the SOT marker segment and the rest of the
// tile-part header up to SOD.
func (r *Reader) readTilePartHeader() (tile, part int, psot int64, err error) {
	var sot [codestream.SOTLength + 2]byte
	if err := r.s.ReadFull(sot[:]); err != nil {
		return 0, 0, 0, codestream.Truncated(err)
	}
	if m := codestream.Marker(binary.BigEndian.Uint16(sot[0:])); m != codestream.SOT {
		return 0, 0, 0, codestream.Corruptf("expected SOT marker at offset %d, found %s", r.s.Pos()-int64(len(sot)), m)
	}
	if l := binary.BigEndian.Uint16(sot[2:]); l != codestream.SOTLength {
		return 0, 0, 0, codestream.Corruptf("SOT marker segment length %d", l)
	}
	tile = int(binary.BigEndian.Uint16(sot[4:]))
	psot = int64(binary.BigEndian.Uint32(sot[6:]))
	part = int(sot[10])
	numParts := int(sot[11])

	switch {
	case tile > codestream.MaxTileIndex || tile >= r.siz.NumTiles():
		return 0, 0, 0, codestream.Corruptf("tile index %d out of range [0,%d)", tile, r.siz.NumTiles())
	case psot > maxTilePartSize:
		return 0, 0, 0, codestream.Unsupportedf("tile-part length %d", psot)
	case part > codestream.MaxTilePartIndex:
		return 0, 0, 0, codestream.Corruptf("tile-part index %d", part)
	case part != len(r.parts[tile]):
		return 0, 0, 0, codestream.Corruptf("tile %d: tile-part %d found, expected %d", tile, part, len(r.parts[tile]))
	}
	switch {
	case part == 0:
		r.numParts[tile] = numParts
		if numParts == 0 {
			r.log.WithField("tile", tile).Debug("tile-part count not signalled")
		}
	case numParts != 0 && r.numParts[tile] != 0 && numParts != r.numParts[tile]:
		return 0, 0, 0, codestream.Corruptf("tile %d: tile-part count %d, was %d", tile, numParts, r.numParts[tile])
	}
	if r.numParts[tile] != 0 && part >= r.numParts[tile] {
		return 0, 0, 0, codestream.Corruptf("tile %d: tile-part %d of %d", tile, part, r.numParts[tile])
	}

	r.hd.SetTileOfTilePart(tile)
	r.nParts++
	if err := r.hd.ReadTilePartHeader(tile, part); err != nil {
		return 0, 0, 0, fmt.Errorf("tile %d part %d header: %w", tile, part, err)
	}
	return tile, part, psot, nil
}

// allocateRate splits the budget left after the headers between the
// tiles in proportion to their length, from the last tile to the first;
// tile 0 gets the rounding remainder.
func (r *Reader) allocateRate() {
	nt := len(r.totTileLen)
	r.budget.Accounted += eocLength
	if r.unlimited {
		for t := range r.budget.Tile {
			r.budget.Tile[t] = r.totTileLen[t] - r.totTileHeadLen[t]
		}
		return
	}

	rem := r.tnbytes - r.budget.Accounted
	if rem < 0 {
		r.log.WithFields(logrus.Fields{"nbytes": r.tnbytes, "headers": r.budget.Accounted}).
			Warn("rate too small for the headers, no tile data will be read")
		return
	}
	var total int64
	for _, n := range r.totTileLen {
		total += n
	}
	if total == 0 {
		return
	}
	totnBytes := float64(rem)
	for t := nt - 1; t > 0; t-- {
		n := int64(totnBytes * (float64(r.totTileLen[t]) / float64(total)))
		r.budget.Tile[t] = n
		rem -= n
	}
	r.budget.Tile[0] = rem
}

// Header returns the decoded coding parameters.
func (r *Reader) Header() *codestream.DecoderSpec { return r.spec }

// SIZ returns the image and tiling geometry.
func (r *Reader) SIZ() *codestream.ImageSize { return r.siz }

// Comments returns the COM marker segments of the codestream headers.
func (r *Reader) Comments() []codestream.Comment { return r.hd.Comments() }

// Info returns the structure log gathered with Config.CodestreamInfo.
func (r *Reader) Info() string { return r.info.String() }

// Budget returns the target number of bytes and the number of bytes
// accounted so far.
func (r *Reader) Budget() (target, accounted int64) {
	return r.tnbytes, r.budget.Accounted
}

// RateReached reports whether the rate was reached while reading the
// tile-part headers.
func (r *Reader) RateReached() bool { return r.rateReached }

// Truncated reports whether the codestream ended early.
func (r *Reader) Truncated() bool { return r.truncated }

// Res returns the resolution level to reconstruct.
func (r *Reader) Res() int { return r.targetRes }

// NumTileParts returns the number of tile-parts read for tile t.
func (r *Reader) NumTileParts(t int) int { return len(r.parts[t]) }

// ErrorResilience reports the entropy decoder error detection flags.
func (r *Reader) ErrorResilience() (detect, verbose bool) {
	return r.cfg.ErrorResilience, r.cfg.VerboseErrors
}

// ImgData

func (r *Reader) tileRect() (x0, y0, x1, y1 int) {
	return r.siz.TileRect(r.tx, r.ty)
}

func (r *Reader) TileWidth() int {
	x0, _, x1, _ := r.tileRect()
	return x1 - x0
}

func (r *Reader) TileHeight() int {
	_, y0, _, y1 := r.tileRect()
	return y1 - y0
}

func (r *Reader) NomTileWidth() int { return r.siz.XTsiz }
func (r *Reader) NomTileHeight() int { return r.siz.YTsiz }
func (r *Reader) ImgWidth() int { return r.siz.ImgWidth() }
func (r *Reader) ImgHeight() int { return r.siz.ImgHeight() }
func (r *Reader) NumComps() int { return r.siz.NumComps() }
func (r *Reader) CompSubsX(c int) int { return int(r.siz.Components[c].SubsamplingX) }
func (r *Reader) CompSubsY(c int) int { return int(r.siz.Components[c].SubsamplingY) }
func (r *Reader) CompImgWidth(c int) int { return r.siz.CompImgWidth(c) }
func (r *Reader) CompImgHeight(c int) int { return r.siz.CompImgHeight(c) }
func (r *Reader) NomRangeBits(c int) int { return r.siz.Components[c].Precision() }
func (r *Reader) Tile() imgdata.Coord { return imgdata.Coord{X: r.tx, Y: r.ty} }
func (r *Reader) TileIdx() int { return r.ty*r.siz.NumTilesX() + r.tx }
func (r *Reader) TilePartULX() int { return r.siz.XTOsiz }
func (r *Reader) TilePartULY() int { return r.siz.YTOsiz }
func (r *Reader) ImgULX() int { return r.siz.XOsiz }
func (r *Reader) ImgULY() int { return r.siz.YOsiz }
func (r *Reader) NumTileCount() int { return r.siz.NumTiles() }

func (r *Reader) NumTiles() imgdata.Coord {
	return imgdata.Coord{X: r.siz.NumTilesX(), Y: r.siz.NumTilesY()}
}

func (r *Reader) TileCompWidth(t, c int) int {
	x0, _, x1, _ := r.siz.TileRect(t%r.siz.NumTilesX(), t/r.siz.NumTilesX())
	s := r.CompSubsX(c)
	return codestream.CeilDiv(x1, s) - codestream.CeilDiv(x0, s)
}

func (r *Reader) TileCompHeight(t, c int) int {
	_, y0, _, y1 := r.siz.TileRect(t%r.siz.NumTilesX(), t/r.siz.NumTilesX())
	s := r.CompSubsY(c)
	return codestream.CeilDiv(y1, s) - codestream.CeilDiv(y0, s)
}

func (r *Reader) CompULX(c int) int {
	x0, _, _, _ := r.tileRect()
	return codestream.CeilDiv(x0, r.CompSubsX(c))
}

func (r *Reader) CompULY(c int) int {
	_, y0, _, _ := r.tileRect()
	return codestream.CeilDiv(y0, r.CompSubsY(c))
}

var _ imgdata.ImgData = (*Reader)(nil)
