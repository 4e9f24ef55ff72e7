// Package tcd describes the structure of a JPEG 2000 tile as the packet
// layer sees it.
//
// A tile holds one TileComponent per image component, each split into
// resolution levels, subbands, precincts and code-blocks following
// ISO/IEC 15444-1 Annex B. The package decodes packet headers into
// per-code-block location records (PacketDecoder) and walks the packets of
// a tile in any of the five progression orders (Walker).
package tcd

import (
	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
	"github.com/mrjoshuak/go-j2kparse/internal/imgdata"
)

// Subband indices. Resolution 0 holds only BandLL; every higher resolution
// holds BandHL, BandLH and BandHH.
const (
	BandLL = iota
	BandHL
	BandLH
	BandHH
)

// Tile represents a single tile in the image.
type Tile struct {
	// Tile index
	Index int

	// Tile bounds on the reference grid
	X0, Y0, X1, Y1 int

	// Tile-level coding parameters
	Layers        int
	Order         codestream.ProgressionOrder
	Changes       []codestream.ProgressionChange // POC entries, nil if none
	SOP, EPH      bool
	PackedHeaders bool

	Components []*TileComponent
}

// TileComponent represents a single component within a tile.
type TileComponent struct {
	// Component index
	Index int

	// Subsampling factors (XRsiz, YRsiz)
	SubsX, SubsY int

	// Component bounds
	X0, Y0, X1, Y1 int

	// Decomposition levels
	Levels int

	// Code-block style (SPcod/SPcoc code-block style byte)
	Options uint8

	// Resolution levels, lowest first
	Resolutions []*Resolution
}

// Resolution represents a resolution level within a tile-component.
type Resolution struct {
	// Resolution level (0 = lowest)
	Level int

	// Bounds at this resolution
	X0, Y0, X1, Y1 int

	// Precinct size exponents
	PPx, PPy int

	// Precinct grid dimensions
	PrecinctsX, PrecinctsY int

	// Bands at this resolution
	Bands []*Band
}

// Band represents a subband within a resolution level.
type Band struct {
	// Band type (BandLL..BandHH)
	Type int

	// Band bounds
	X0, Y0, X1, Y1 int

	// Code-block size exponents after precinct clipping
	CBlkWExp, CBlkHExp int

	// Index of the first code-block column and row on the band's
	// code-block partition, which is anchored at the origin
	CBlkX0, CBlkY0 int

	// Code-block grid dimensions
	CodeBlocksX, CodeBlocksY int
}

// NewTile computes the geometry of tile idx from the SIZ segment and the
// coding parameters in force for that tile.
func NewTile(siz *codestream.ImageSize, spec *codestream.DecoderSpec, idx int) (*Tile, error) {
	if idx < 0 || idx >= siz.NumTiles() {
		return nil, codestream.InvalidParamf("tile index %d outside [0,%d)", idx, siz.NumTiles())
	}
	x0, y0, x1, y1 := siz.TileRect(idx%siz.NumTilesX(), idx/siz.NumTilesX())
	t := &Tile{
		Index:         idx,
		X0:            x0,
		Y0:            y0,
		X1:            x1,
		Y1:            y1,
		Layers:        spec.Layers.Tile(idx),
		Order:         spec.Progression.Tile(idx),
		Changes:       spec.ProgressionChanges.Tile(idx),
		SOP:           spec.SOP.Tile(idx),
		EPH:           spec.EPH.Tile(idx),
		PackedHeaders: spec.PackedHeaders.Tile(idx),
		Components:    make([]*TileComponent, siz.NumComps()),
	}

	for c, ci := range siz.Components {
		sx, sy := int(ci.SubsamplingX), int(ci.SubsamplingY)
		tc := &TileComponent{
			Index:   c,
			SubsX:   sx,
			SubsY:   sy,
			X0:      ceilDiv(x0, sx),
			Y0:      ceilDiv(y0, sy),
			X1:      ceilDiv(x1, sx),
			Y1:      ceilDiv(y1, sy),
			Levels:  spec.DecompLevels.Resolve(idx, c),
			Options: spec.EntropyOptions.Resolve(idx, c),
		}
		cb := spec.CodeBlockSize.Resolve(idx, c)
		ps := spec.PrecinctSizes.Resolve(idx, c)
		tc.Resolutions = make([]*Resolution, tc.Levels+1)
		for r := range tc.Resolutions {
			res, err := tc.initResolution(r, codestream.PrecinctAt(ps, r), cb)
			if err != nil {
				return nil, err
			}
			tc.Resolutions[r] = res
		}
		t.Components[c] = tc
	}
	return t, nil
}

// NumComps returns the number of components of the tile.
func (t *Tile) NumComps() int { return len(t.Components) }

// MaxLevels returns the largest decomposition level count of the tile.
func (t *Tile) MaxLevels() int {
	n := 0
	for _, tc := range t.Components {
		n = max(n, tc.Levels)
	}
	return n
}

// initResolution initializes a resolution level.
func (tc *TileComponent) initResolution(r int, ps codestream.PrecinctSize, cb codestream.CodeBlockSize) (*Resolution, error) {
	shift := tc.Levels - r
	res := &Resolution{
		Level: r,
		X0:    ceilShift(tc.X0, shift),
		Y0:    ceilShift(tc.Y0, shift),
		X1:    ceilShift(tc.X1, shift),
		Y1:    ceilShift(tc.Y1, shift),
		PPx:   int(ps.WidthExp),
		PPy:   int(ps.HeightExp),
	}
	if r > 0 && (res.PPx == 0 || res.PPy == 0) {
		return nil, codestream.Corruptf("precinct exponent 0 at resolution %d", r)
	}
	if res.X1 > res.X0 && res.Y1 > res.Y0 {
		res.PrecinctsX = ceilShift(res.X1, res.PPx) - res.X0>>res.PPx
		res.PrecinctsY = ceilShift(res.Y1, res.PPy) - res.Y0>>res.PPy
	}

	xcb, ycb := log2(cb.Width), log2(cb.Height)
	if r == 0 {
		res.Bands = []*Band{tc.initBand(BandLL, tc.Levels, min(xcb, res.PPx), min(ycb, res.PPy))}
		return res, nil
	}
	nb := tc.Levels - r + 1
	xcb, ycb = min(xcb, res.PPx-1), min(ycb, res.PPy-1)
	res.Bands = []*Band{
		tc.initBand(BandHL, nb, xcb, ycb),
		tc.initBand(BandLH, nb, xcb, ycb),
		tc.initBand(BandHH, nb, xcb, ycb),
	}
	return res, nil
}

// initBand initializes a band at decomposition level nb (Annex B, B-15).
func (tc *TileComponent) initBand(bandType, nb, xcb, ycb int) *Band {
	var xob, yob int
	switch bandType {
	case BandHL:
		xob = 1
	case BandLH:
		yob = 1
	case BandHH:
		xob, yob = 1, 1
	}
	band := &Band{
		Type:     bandType,
		X0:       bandEdge(tc.X0, xob, nb),
		Y0:       bandEdge(tc.Y0, yob, nb),
		X1:       bandEdge(tc.X1, xob, nb),
		Y1:       bandEdge(tc.Y1, yob, nb),
		CBlkWExp: xcb,
		CBlkHExp: ycb,
	}
	if band.X1 > band.X0 && band.Y1 > band.Y0 {
		band.CBlkX0 = band.X0 >> xcb
		band.CBlkY0 = band.Y0 >> ycb
		band.CodeBlocksX = ceilShift(band.X1, xcb) - band.CBlkX0
		band.CodeBlocksY = ceilShift(band.Y1, ycb) - band.CBlkY0
	}
	return band
}

// Band returns subband s (BandLL..BandHH) of the resolution, or nil.
func (res *Resolution) Band(s int) *Band {
	if res.Level == 0 {
		if s == BandLL {
			return res.Bands[0]
		}
		return nil
	}
	if s < BandHL || s > BandHH {
		return nil
	}
	return res.Bands[s-1]
}

// NumPrecincts returns the number of precincts of the resolution.
func (res *Resolution) NumPrecincts() int { return res.PrecinctsX * res.PrecinctsY }

// PrecinctBlocks returns the code-blocks of band b covered by precinct k,
// as the column range [n0,n1) and row range [m0,m1) on the band's
// code-block grid. The range is empty when the precinct misses the band.
func (res *Resolution) PrecinctBlocks(b *Band, k int) (n0, m0, n1, m1 int) {
	if res.PrecinctsX == 0 || b.CodeBlocksX == 0 || b.CodeBlocksY == 0 {
		return 0, 0, 0, 0
	}
	ppx, ppy := res.PPx, res.PPy
	if res.Level > 0 {
		ppx--
		ppy--
	}
	i, j := k%res.PrecinctsX, k/res.PrecinctsX
	px0 := (res.X0>>res.PPx + i) << ppx
	py0 := (res.Y0>>res.PPy + j) << ppy
	lx, hx := max(px0, b.X0), min(px0+1<<ppx, b.X1)
	ly, hy := max(py0, b.Y0), min(py0+1<<ppy, b.Y1)
	if lx >= hx || ly >= hy {
		return 0, 0, 0, 0
	}
	n0 = lx>>b.CBlkWExp - b.CBlkX0
	n1 = ceilShift(hx, b.CBlkWExp) - b.CBlkX0
	m0 = ly>>b.CBlkHExp - b.CBlkY0
	m1 = ceilShift(hy, b.CBlkHExp) - b.CBlkY0
	return n0, m0, n1, m1
}

// BlockRect returns the position of code-block (m, n) relative to the
// upper-left corner of the band, and its size.
func (b *Band) BlockRect(m, n int) (ulx, uly, w, h int) {
	x0 := max((b.CBlkX0+n)<<b.CBlkWExp, b.X0)
	y0 := max((b.CBlkY0+m)<<b.CBlkHExp, b.Y0)
	x1 := min((b.CBlkX0+n+1)<<b.CBlkWExp, b.X1)
	y1 := min((b.CBlkY0+m+1)<<b.CBlkHExp, b.Y1)
	return x0 - b.X0, y0 - b.Y0, x1 - x0, y1 - y0
}

// PrecinctGrid returns the precinct lattice of resolution r of component c
// on the reference grid: the tile's start and end points and the distance
// between precinct boundaries.
func (t *Tile) PrecinctGrid(c, r int) (start, end, inc imgdata.Coord) {
	tc := t.Components[c]
	res := tc.Resolutions[r]
	lv := tc.Levels - r
	return imgdata.Coord{X: t.X0, Y: t.Y0}, imgdata.Coord{X: t.X1, Y: t.Y1},
		imgdata.Coord{X: tc.SubsX << (res.PPx + lv), Y: tc.SubsY << (res.PPy + lv)}
}

// ComponentGrid returns the finest precinct lattice over all resolutions
// of component c.
func (t *Tile) ComponentGrid(c int) (start, end, inc imgdata.Coord) {
	for r := range t.Components[c].Resolutions {
		s, e, i := t.PrecinctGrid(c, r)
		if r == 0 || i.X < inc.X {
			inc.X = i.X
		}
		if r == 0 || i.Y < inc.Y {
			inc.Y = i.Y
		}
		start, end = s, e
	}
	return start, end, inc
}

// precinctAt returns the precinct of resolution r of component c whose
// upper-left corner maps to reference grid point (x, y) (Annex B.12), or
// -1.
func (t *Tile) precinctAt(c, r, x, y int) int {
	tc := t.Components[c]
	res := tc.Resolutions[r]
	if res.PrecinctsX == 0 || res.PrecinctsY == 0 {
		return -1
	}
	lv := tc.Levels - r
	rpx, rpy := res.PPx+lv, res.PPy+lv
	if y%(tc.SubsY<<rpy) != 0 && (y != t.Y0 || (res.Y0<<lv)%(1<<rpy) == 0) {
		return -1
	}
	if x%(tc.SubsX<<rpx) != 0 && (x != t.X0 || (res.X0<<lv)%(1<<rpx) == 0) {
		return -1
	}
	i := ceilDiv(x, tc.SubsX<<lv)>>res.PPx - res.X0>>res.PPx
	j := ceilDiv(y, tc.SubsY<<lv)>>res.PPy - res.Y0>>res.PPy
	if i < 0 || i >= res.PrecinctsX || j < 0 || j >= res.PrecinctsY {
		return -1
	}
	return i + j*res.PrecinctsX
}

// Helper functions

func ceilDiv(a, b int) int {
	return codestream.CeilDiv(a, b)
}

// ceilShift returns ceil(a / 2^n).
func ceilShift(a, n int) int {
	return ceilDiv(a, 1<<n)
}

// bandEdge maps a tile-component coordinate to subband coordinates.
func bandEdge(a, off, nb int) int {
	if nb == 0 {
		return a
	}
	return ceilDiv(a-off<<(nb-1), 1<<nb)
}

func log2(v int) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}
