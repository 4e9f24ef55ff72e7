// Package imgdata describes the geometry of tiled, multi-component images
// on the JPEG 2000 reference grid.
//
// All coordinates live on the reference grid (canvas). The image occupies
// [ImgULX, ImgULX+ImgWidth) x [ImgULY, ImgULY+ImgHeight); the tile at
// column p and row q covers
//
//	[max(TOX+p*W, ImgULX), min(TOX+(p+1)*W, ImgULX+ImgWidth))
//
// horizontally, with TOX the tiling origin and W the nominal tile width.
// Component c with subsampling factor s maps canvas coordinate x to
// ceil(x/s).
package imgdata

import (
	"errors"

	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
)

// ErrNoMoreTiles is returned by NextTile on the last tile.
var ErrNoMoreTiles = errors.New("imgdata: no more tiles")

// ImgData is a source of tiled image geometry. Methods without a tile
// argument refer to the current tile.
type ImgData interface {
	TileWidth() int
	TileHeight() int
	NomTileWidth() int
	NomTileHeight() int
	ImgWidth() int
	ImgHeight() int
	NumComps() int
	CompSubsX(c int) int
	CompSubsY(c int) int
	TileCompWidth(t, c int) int
	TileCompHeight(t, c int) int
	CompImgWidth(c int) int
	CompImgHeight(c int) int
	NomRangeBits(c int) int

	// SetTile makes tile (x, y) current.
	SetTile(x, y int) error
	// NextTile advances in raster order, returning ErrNoMoreTiles after
	// the last tile.
	NextTile() error
	Tile() Coord
	TileIdx() int

	TilePartULX() int
	TilePartULY() int
	CompULX(c int) int
	CompULY(c int) int
	ImgULX() int
	ImgULY() int
	NumTiles() Coord
	NumTileCount() int
}

// Adapter forwards every ImgData call to its source. Types that change a
// few aspects of an image embed it and override what differs.
type Adapter struct {
	ImgData
}

// NewAdapter returns an Adapter over src.
func NewAdapter(src ImgData) Adapter {
	return Adapter{ImgData: src}
}

// Source returns the adapted ImgData.
func (a Adapter) Source() ImgData { return a.ImgData }

// Component describes one component of a Canvas.
type Component struct {
	SubsX, SubsY int
	RangeBits    int
}

// Canvas is an untiled ImgData: a single tile covering the image.
type Canvas struct {
	ulx, uly int
	w, h     int
	comps    []Component
}

// NewCanvas returns an untiled image of size w x h at (ulx, uly).
func NewCanvas(ulx, uly, w, h int, comps []Component) (*Canvas, error) {
	if ulx < 0 || uly < 0 || w < 1 || h < 1 || len(comps) == 0 {
		return nil, codestream.InvalidParamf("canvas %dx%d at (%d,%d) with %d component(s)", w, h, ulx, uly, len(comps))
	}
	for i, c := range comps {
		if c.SubsX < 1 || c.SubsY < 1 {
			return nil, codestream.InvalidParamf("component %d: subsampling %dx%d", i, c.SubsX, c.SubsY)
		}
	}
	return &Canvas{ulx: ulx, uly: uly, w: w, h: h, comps: comps}, nil
}

func (cv *Canvas) TileWidth() int { return cv.w }
func (cv *Canvas) TileHeight() int { return cv.h }
func (cv *Canvas) NomTileWidth() int { return cv.w }
func (cv *Canvas) NomTileHeight() int { return cv.h }
func (cv *Canvas) ImgWidth() int { return cv.w }
func (cv *Canvas) ImgHeight() int { return cv.h }
func (cv *Canvas) NumComps() int { return len(cv.comps) }
func (cv *Canvas) CompSubsX(c int) int { return cv.comps[c].SubsX }
func (cv *Canvas) CompSubsY(c int) int { return cv.comps[c].SubsY }
func (cv *Canvas) TileCompWidth(_, c int) int { return cv.CompImgWidth(c) }
func (cv *Canvas) TileCompHeight(_, c int) int { return cv.CompImgHeight(c) }
func (cv *Canvas) NomRangeBits(c int) int { return cv.comps[c].RangeBits }
func (cv *Canvas) Tile() Coord { return Coord{} }
func (cv *Canvas) TileIdx() int { return 0 }
func (cv *Canvas) TilePartULX() int { return cv.ulx }
func (cv *Canvas) TilePartULY() int { return cv.uly }
func (cv *Canvas) ImgULX() int { return cv.ulx }
func (cv *Canvas) ImgULY() int { return cv.uly }
func (cv *Canvas) NumTiles() Coord { return Coord{1, 1} }
func (cv *Canvas) NumTileCount() int { return 1 }

func (cv *Canvas) CompImgWidth(c int) int {
	s := cv.comps[c].SubsX
	return codestream.CeilDiv(cv.ulx+cv.w, s) - codestream.CeilDiv(cv.ulx, s)
}

func (cv *Canvas) CompImgHeight(c int) int {
	s := cv.comps[c].SubsY
	return codestream.CeilDiv(cv.uly+cv.h, s) - codestream.CeilDiv(cv.uly, s)
}

func (cv *Canvas) CompULX(c int) int { return codestream.CeilDiv(cv.ulx, cv.comps[c].SubsX) }
func (cv *Canvas) CompULY(c int) int { return codestream.CeilDiv(cv.uly, cv.comps[c].SubsY) }

func (cv *Canvas) SetTile(x, y int) error {
	if x != 0 || y != 0 {
		return codestream.InvalidParamf("tile (%d,%d) of an untiled image", x, y)
	}
	return nil
}

func (cv *Canvas) NextTile() error { return ErrNoMoreTiles }
