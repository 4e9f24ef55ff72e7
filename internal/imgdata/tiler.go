package imgdata

import (
	"fmt"
	"image"

	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
)

// Tiler splits an untiled image into tiles. The image is placed at
// (ax, ay) on the canvas and the tile grid starts at (px, py) with nominal
// tiles of nw x nh.
type Tiler struct {
	Adapter

	ax, ay int // image origin
	px, py int // tiling origin
	nw, nh int // nominal tile size
	w, h   int // image size
	ntX    int
	ntY    int

	tx, ty int
	tile   image.Rectangle // canvas area of the current tile
}

// NewTiler returns a Tiler over src, which must hold a single tile.
// A zero nw or nh gives one tile column or row covering the image.
func NewTiler(src ImgData, ax, ay, px, py, nw, nh int) (*Tiler, error) {
	if src.NumTileCount() != 1 {
		return nil, codestream.InvalidParamf("tiler source already has %d tiles", src.NumTileCount())
	}
	if ax < 0 || ay < 0 || px < 0 || py < 0 || nw < 0 || nh < 0 {
		return nil, codestream.InvalidParamf("negative tiling argument")
	}
	if px > ax || py > ay {
		return nil, codestream.InvalidParamf("tiling origin (%d,%d) right of or below image origin (%d,%d)", px, py, ax, ay)
	}
	w, h := src.ImgWidth(), src.ImgHeight()
	if nw == 0 {
		nw = ax + w - px
	}
	if nh == 0 {
		nh = ay + h - py
	}
	if px+nw <= ax || py+nh <= ay {
		return nil, codestream.InvalidParamf("first tile %dx%d at (%d,%d) does not cover the image origin", nw, nh, px, py)
	}

	t := &Tiler{Adapter: NewAdapter(src)}
	t.ax, t.ay = ax, ay
	t.px, t.py = px, py
	t.nw, t.nh = nw, nh
	t.w, t.h = w, h
	t.ntX = codestream.CeilDiv(ax+w-px, nw)
	t.ntY = codestream.CeilDiv(ay+h-py, nh)
	if err := t.SetTile(0, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tiler) tileRect(x, y int) image.Rectangle {
	return image.Rect(
		max(t.px+x*t.nw, t.ax),
		max(t.py+y*t.nh, t.ay),
		min(t.px+(x+1)*t.nw, t.ax+t.w),
		min(t.py+(y+1)*t.nh, t.ay+t.h),
	)
}

// compRect maps a canvas rectangle into component c coordinates.
func (t *Tiler) compRect(r image.Rectangle, c int) image.Rectangle {
	sx, sy := t.CompSubsX(c), t.CompSubsY(c)
	return image.Rect(
		codestream.CeilDiv(r.Min.X, sx), codestream.CeilDiv(r.Min.Y, sy),
		codestream.CeilDiv(r.Max.X, sx), codestream.CeilDiv(r.Max.Y, sy),
	)
}

// SetTile makes tile (x, y) current.
func (t *Tiler) SetTile(x, y int) error {
	if x < 0 || y < 0 || x >= t.ntX || y >= t.ntY {
		return codestream.InvalidParamf("tile (%d,%d) outside the %dx%d tile grid", x, y, t.ntX, t.ntY)
	}
	t.tx, t.ty = x, y
	t.tile = t.tileRect(x, y)
	return nil
}

// NextTile advances to the next tile in raster order.
func (t *Tiler) NextTile() error {
	switch {
	case t.tx < t.ntX-1:
		return t.SetTile(t.tx+1, t.ty)
	case t.ty < t.ntY-1:
		return t.SetTile(0, t.ty+1)
	}
	return ErrNoMoreTiles
}

// CompWindow returns the area of the current tile inside component c of
// the source image, in source component coordinates.
func (t *Tiler) CompWindow(c int) image.Rectangle {
	img := t.compRect(image.Rect(t.ax, t.ay, t.ax+t.w, t.ay+t.h), c)
	return t.compRect(t.tile, c).Sub(img.Min)
}

func (t *Tiler) TileWidth() int { return t.tile.Dx() }
func (t *Tiler) TileHeight() int { return t.tile.Dy() }
func (t *Tiler) NomTileWidth() int { return t.nw }
func (t *Tiler) NomTileHeight() int { return t.nh }
func (t *Tiler) Tile() Coord { return Coord{t.tx, t.ty} }
func (t *Tiler) TileIdx() int { return t.ty*t.ntX + t.tx }
func (t *Tiler) TilePartULX() int { return t.px }
func (t *Tiler) TilePartULY() int { return t.py }
func (t *Tiler) ImgULX() int { return t.ax }
func (t *Tiler) ImgULY() int { return t.ay }
func (t *Tiler) NumTiles() Coord { return Coord{t.ntX, t.ntY} }
func (t *Tiler) NumTileCount() int { return t.ntX * t.ntY }

// TileCompWidth returns the width of component c in tile idx.
func (t *Tiler) TileCompWidth(idx, c int) int {
	return t.compRect(t.tileRect(idx%t.ntX, idx/t.ntX), c).Dx()
}

// TileCompHeight returns the height of component c in tile idx.
func (t *Tiler) TileCompHeight(idx, c int) int {
	return t.compRect(t.tileRect(idx%t.ntX, idx/t.ntX), c).Dy()
}

func (t *Tiler) CompImgWidth(c int) int {
	return t.compRect(image.Rect(t.ax, t.ay, t.ax+t.w, t.ay+t.h), c).Dx()
}

func (t *Tiler) CompImgHeight(c int) int {
	return t.compRect(image.Rect(t.ax, t.ay, t.ax+t.w, t.ay+t.h), c).Dy()
}

func (t *Tiler) CompULX(c int) int { return t.compRect(t.tile, c).Min.X }
func (t *Tiler) CompULY(c int) int { return t.compRect(t.tile, c).Min.Y }

func (t *Tiler) String() string {
	return fmt.Sprintf("Tiler: %v tiles of %v from %v", t.NumTiles(), Coord{t.nw, t.nh}, Coord{t.px, t.py})
}
