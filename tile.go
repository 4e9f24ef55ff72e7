package j2kparse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
	"github.com/mrjoshuak/go-j2kparse/internal/imgdata"
	"github.com/mrjoshuak/go-j2kparse/internal/tcd"
)

// SetTile makes tile (x, y) current and parses its packets.
func (r *Reader) SetTile(x, y int) error {
	if x < 0 || y < 0 || x >= r.siz.NumTilesX() || y >= r.siz.NumTilesY() {
		return codestream.InvalidParamf("tile (%d,%d) outside the %dx%d tile grid", x, y, r.siz.NumTilesX(), r.siz.NumTilesY())
	}
	r.tx, r.ty = x, y
	return r.initTile(r.TileIdx())
}

// NextTile advances to the next tile in raster order. After the last tile
// it returns imgdata.ErrNoMoreTiles.
func (r *Reader) NextTile() error {
	x, y := r.tx+1, r.ty
	if x == r.siz.NumTilesX() {
		x, y = 0, y+1
	}
	if y == r.siz.NumTilesY() {
		return imgdata.ErrNoMoreTiles
	}
	return r.SetTile(x, y)
}

// initTile parses the packets of tile t, leaving the location of every
// code-block contribution in r.blocks.
func (r *Reader) initTile(t int) error {
	tile, err := tcd.NewTile(r.siz, r.spec, t)
	if err != nil {
		return fmt.Errorf("tile %d: %w", t, err)
	}
	start := r.budget.Restore(t)
	blocks, err := r.pd.Restart(tile)
	if err != nil {
		return fmt.Errorf("tile %d: %w", t, err)
	}
	r.tile, r.blocks = tile, blocks
	r.pktHL = r.pktHL[:0]

	parts := r.parts[t]
	if len(parts) == 0 {
		if r.rateReached || r.truncated {
			r.log.WithField("tile", t).Debug("tile not read")
		} else {
			r.log.WithField("tile", t).Warn("no tile-part found for tile")
		}
		return nil
	}
	r.curTP = 0
	r.lastByte = parts[0].start + parts[0].length - 1

	// in truncation mode a tile without budget cannot afford a single
	// packet header
	stop := r.trunc && start == 0
	if err := r.s.SeekTo(parts[0].firstPackOff); !stop && err != nil {
		stop = true
		r.warnTileTruncated(t, err)
	}
	if !stop {
		w := tcd.NewWalker(tile)
		for _, ch := range w.Changes() {
			done, err := w.Walk(ch, r.readPacket)
			if err != nil {
				if !errors.Is(err, codestream.ErrTruncated) {
					return fmt.Errorf("tile %d: %w", t, err)
				}
				r.warnTileTruncated(t, err)
				done = true
			}
			if done {
				stop = true
				break
			}
		}
	}

	if r.trunc {
		r.budget.Settle(t, start)
		if stop {
			r.budget.Tile[t] = 0
		}
		return nil
	}
	if body := r.totTileLen[t] - r.totTileHeadLen[t]; start < body {
		r.rejectCascade(t)
	} else {
		r.budget.Tile[t] -= body
		r.budget.CarryOver(t)
	}
	r.budget.Settle(t, start)
	return nil
}

func (r *Reader) warnTileTruncated(t int, err error) {
	r.log.WithError(err).WithField("tile", t).Warn("codestream truncated in tile data")
}

// readPacket reads one packet of the current tile: it follows the packet
// data into the next tile-part when needed, then reads the SOP marker, the
// header and the body. It returns true when the rate is reached.
func (r *Reader) readPacket(p tcd.Packet) (bool, error) {
	parts := r.parts[r.tile.Index]
	if pos := r.s.Pos(); pos > r.lastByte && r.curTP < len(parts)-1 {
		r.curTP++
		tp := parts[r.curTP]
		if tp.firstPackOff == r.s.Len() {
			// the rate was reached in this tile-part's header
			return true, nil
		}
		if err := r.s.SeekTo(tp.firstPackOff); err != nil {
			return true, codestream.Truncated(err)
		}
		r.lastByte = tp.start + tp.length - 1
	}

	l, res, c, k := p.Layer, p.Resolution, p.Component, p.Precinct
	if stop, err := r.pd.ReadSOP(r.budget, k, c, res); stop || err != nil {
		return stop, err
	}
	off := r.s.Pos()
	if stop, err := r.pd.ReadHeader(l, res, c, k, r.budget); stop || err != nil {
		return stop, err
	}
	hl := r.pd.HeaderLength()
	if r.pd.PacketIndex() > len(r.pktHL) {
		r.pktHL = append(r.pktHL, hl)
	}
	stop, err := r.pd.ReadBody(l, res, c, k, r.budget)

	if r.cfg.CodestreamInfo {
		line := fmt.Sprintf("  packet %d: tile %d layer %d res %d comp %d precinct %d, offset %d, length %d, header length %d\n",
			len(r.pktHL)-1, r.tile.Index, l, res, c, k, off, r.s.Pos()-off, hl)
		r.info.WriteString(line)
		r.log.WithFields(logrus.Fields{"tile": r.tile.Index}).Info(strings.TrimSpace(line))
	}
	return stop, err
}

// rejectCascade simulates the truncation of tile t at its allocated budget
// in parsing mode. Contributions are charged layer by layer, then by
// resolution, subband, code-block row and column and component; a packet
// header is charged with the first contribution of its packet. The first
// header or contribution that does not fit, and every contribution after
// it, are dropped.
func (r *Reader) rejectCascade(t int) {
	charged := make(map[int]bool)
	rejected := false
	left := r.budget.Tile[t]
	for l := 0; l < r.tile.Layers; l++ {
		r.blocks.Each(func(_ tcd.BlockKey, cb *tcd.CBlkInfo) {
			pi := cb.PktIdx[l]
			if pi < 0 {
				return
			}
			if !rejected && !charged[pi] && pi < len(r.pktHL) {
				if r.pktHL[pi] > left {
					rejected = true
				} else {
					left -= r.pktHL[pi]
					charged[pi] = true
				}
			}
			if !rejected && int64(cb.Len[l]) > left {
				rejected = true
			}
			if rejected {
				cb.DropLayer(l)
				return
			}
			left -= int64(cb.Len[l])
		})
	}
	r.budget.Tile[t] = left
	if rejected {
		r.log.WithFields(logrus.Fields{
			"tile":   t,
			"budget": r.budget.Allocated(t),
		}).Debug("tile truncated by rate simulation")
	}
}

// Subband describes a subband of the current tile, as passed to CodeBlock.
type Subband struct {
	Component  int
	Resolution int
	Type       int // BandLL, BandHL, BandLH or BandHH

	// Bounds in subband coordinates
	X0, Y0, X1, Y1 int

	// Code-block grid: number of code-blocks and nominal size
	CodeBlocksX, CodeBlocksY int
	CBlkWidth, CBlkHeight    int
}

// Subbands lists the subbands of component c of the current tile, lowest
// resolution first.
func (r *Reader) Subbands(c int) []Subband {
	if r.tile == nil || c < 0 || c >= r.tile.NumComps() {
		return nil
	}
	var out []Subband
	for _, res := range r.tile.Components[c].Resolutions {
		for _, b := range res.Bands {
			out = append(out, Subband{
				Component:   c,
				Resolution:  res.Level,
				Type:        b.Type,
				X0:          b.X0,
				Y0:          b.Y0,
				X1:          b.X1,
				Y1:          b.Y1,
				CodeBlocksX: b.CodeBlocksX,
				CodeBlocksY: b.CodeBlocksY,
				CBlkWidth:   1 << b.CBlkWExp,
				CBlkHeight:  1 << b.CBlkHExp,
			})
		}
	}
	return out
}

// Layers returns the number of quality layers of the current tile.
func (r *Reader) Layers() int {
	if r.tile == nil {
		return 0
	}
	return r.tile.Layers
}

// CodeBlockCount returns the number of code-blocks of the current tile
// that received data.
func (r *Reader) CodeBlockCount() int {
	if r.blocks == nil {
		return 0
	}
	return r.blocks.Len()
}

// PacketHeaderLengths returns the header length of every packet read in
// the current tile, in reading order.
func (r *Reader) PacketHeaderLengths() []int64 {
	return append([]int64(nil), r.pktHL...)
}
